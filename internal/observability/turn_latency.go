package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stages of one chat turn.
const (
	StageInterpret = "interpret"
	StageCartApply = "cart_apply"
	StageTurnTotal = "turn_total"
)

const (
	defaultInterpretBudget = 20 * time.Second
	cartApplyBudget        = 50 * time.Millisecond
	// turnOverhead is what a turn may spend outside the interpreter.
	turnOverhead = 500 * time.Millisecond
)

// StageStats summarizes the samples of one stage still in the window.
// OverBudget counts those samples slower than BudgetMS.
type StageStats struct {
	Stage      string  `json:"stage"`
	Samples    int     `json:"samples"`
	LastMS     float64 `json:"last_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	MaxMS      float64 `json:"max_ms"`
	BudgetMS   float64 `json:"budget_ms"`
	OverBudget int     `json:"over_budget"`
}

// TurnOutcomes counts completed turns since start.
type TurnOutcomes struct {
	Turns             int `json:"turns"`
	Degraded          int `json:"degraded"`
	CheckoutRequested int `json:"checkout_requested"`
}

type TurnLatencySnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Outcomes    TurnOutcomes `json:"outcomes"`
}

// turnLatency keeps the last size samples of each turn stage next to its budget.
type turnLatency struct {
	mu       sync.RWMutex
	size     int
	samples  map[string]*samples
	budgets  map[string]time.Duration
	outcomes TurnOutcomes
}

type samples struct {
	values []time.Duration
	next   int
	full   bool
	last   time.Duration
}

func newTurnLatency(size int) *turnLatency {
	if size <= 0 {
		size = 256
	}
	t := &turnLatency{
		size:    size,
		samples: make(map[string]*samples),
		budgets: make(map[string]time.Duration),
	}
	t.setInterpretBudget(defaultInterpretBudget)
	return t
}

// setInterpretBudget ties the interpret and whole-turn budgets to the interpreter timeout.
func (t *turnLatency) setInterpretBudget(d time.Duration) {
	if d <= 0 {
		d = defaultInterpretBudget
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.budgets[StageInterpret] = d
	t.budgets[StageCartApply] = cartApplyBudget
	t.budgets[StageTurnTotal] = d + turnOverhead
}

func (t *turnLatency) observe(stage string, d time.Duration) {
	if stage == "" || d < 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.samples[stage]
	if !ok {
		s = &samples{values: make([]time.Duration, t.size)}
		t.samples[stage] = s
	}
	s.values[s.next] = d
	s.last = d
	s.next = (s.next + 1) % len(s.values)
	if s.next == 0 {
		s.full = true
	}
}

func (t *turnLatency) observeTurn(degraded, checkoutRequested bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes.Turns++
	if degraded {
		t.outcomes.Degraded++
	}
	if checkoutRequested {
		t.outcomes.CheckoutRequested++
	}
}

func (t *turnLatency) snapshot() TurnLatencySnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.samples))
	for stage := range t.samples {
		names = append(names, stage)
	}
	sort.Strings(names)

	stages := make([]StageStats, 0, len(names))
	for _, stage := range names {
		s := t.samples[stage]
		n := s.next
		if s.full {
			n = len(s.values)
		}
		if n == 0 {
			continue
		}
		sorted := append([]time.Duration(nil), s.values[:n]...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		budget := t.budgets[stage]
		over := 0
		if budget > 0 {
			// sorted ascending, so everything from the first slow sample on is over.
			over = n - sort.Search(n, func(i int) bool { return sorted[i] > budget })
		}
		stages = append(stages, StageStats{
			Stage:      stage,
			Samples:    n,
			LastMS:     millis(s.last),
			P50MS:      millis(nearestRank(sorted, 0.50)),
			P95MS:      millis(nearestRank(sorted, 0.95)),
			MaxMS:      millis(sorted[n-1]),
			BudgetMS:   millis(budget),
			OverBudget: over,
		})
	}

	return TurnLatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  t.size,
		Stages:      stages,
		Outcomes:    t.outcomes,
	}
}

func nearestRank(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func millis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
