package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/antoniostano/kirana/internal/policy"
)

// ErrPromptShape is returned by the rules backend for prompts it cannot read.
var ErrPromptShape = errors.New("rules: prompt is missing the message or catalog section")

// RulesClient is a deterministic offline backend. It reads catalog, history and the new
// message back out of the prompt and applies the ordering rules, replying in English.
type RulesClient struct {
	ordering policy.Ordering
}

func NewRulesClient(ordering policy.Ordering) *RulesClient {
	return &RulesClient{ordering: ordering}
}

func (r *RulesClient) Name() string { return "rules" }

func (r *RulesClient) Complete(ctx context.Context, prompt string, _ *Schema) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	p, err := parsePrompt(prompt)
	if err != nil {
		return "", err
	}
	ordering := r.ordering
	if p.cap > 0 {
		ordering.MaxPerItem = p.cap
	}

	b, err := json.Marshal(p.decide(ordering))
	if err != nil {
		return "", fmt.Errorf("rules: marshal result: %w", err)
	}
	return string(b), nil
}

type ruleItem struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type ruleResult struct {
	Items        []ruleItem `json:"items"`
	ResponseText string     `json:"responseText"`
	IntentToPay  bool       `json:"intentToPay"`
}

type promptEntry struct {
	id    string
	name  string
	unit  string
	words []string
}

type promptTurn struct {
	user bool
	text string
}

type parsedPrompt struct {
	entries []promptEntry
	history []promptTurn
	message string
	cap     int
}

var (
	catalogLine  = regexp.MustCompile(`^(\S.*?): (.+) \(([^()]*)\) - ₹(\S+)$`)
	capLine      = regexp.MustCompile(regexp.QuoteMeta(CapLabel) + `\D*(\d+)`)
	addedLine    = regexp.MustCompile(`Added (\d+) × (.+?) \(([^()]*)\)\.`)
	qtyPattern   = regexp.MustCompile(`(?i)(\d+)\s*(kgs?|kilos?|kilograms?|grams?|gms?|g|litres?|liters?|ltrs?|l|ml|pcs|pieces?|packets?|packs?|units?|x)?\b`)
	unitPattern  = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(kg|g|l|ml)$`)
	segmentSplit = regexp.MustCompile(`(?i)\s*(?:,|;|&|\band\b|\bplus\b|\bthen\b)\s*`)
	wordPattern  = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)
)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"ek": 1, "teen": 3, "char": 4, "chaar": 4, "paanch": 5, "panch": 5,
	"एक": 1, "दो": 2, "तीन": 3, "चार": 4, "पांच": 5, "पाँच": 5,
}

var aliases = map[string]string{
	"namak": "salt", "नमक": "salt",
	"doodh": "milk", "dudh": "milk", "दूध": "milk",
	"chawal": "rice", "chaawal": "rice", "चावल": "rice",
	"tel": "oil", "तेल": "oil",
	"aata": "atta", "आटा": "atta",
	"sabun": "bar", "soap": "bar",
	"toothpaste": "gel", "paste": "gel",
	"tshirt": "tee", "shirt": "tee",
	"pocha": "mop",
}

var nameStopwords = map[string]bool{"the": true, "and": true, "for": true, "with": true}

func parsePrompt(prompt string) (*parsedPrompt, error) {
	p := &parsedPrompt{}
	section := ""
	hasMessage := false
	for _, raw := range strings.Split(prompt, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, SectionHistory):
			section = "history"
			continue
		case strings.HasPrefix(line, SectionMessage):
			msg := strings.TrimSpace(strings.TrimPrefix(line, SectionMessage))
			if u, err := strconv.Unquote(msg); err == nil {
				msg = u
			}
			p.message = msg
			hasMessage = true
			section = ""
			continue
		case strings.HasPrefix(line, SectionCatalog):
			section = "catalog"
			continue
		case strings.HasPrefix(line, SectionOrdering):
			section = "ordering"
			continue
		case strings.HasPrefix(line, SectionCheckout):
			section = ""
			continue
		}

		switch section {
		case "history":
			if text, ok := strings.CutPrefix(line, HistoryUserPrefix); ok {
				p.history = append(p.history, promptTurn{user: true, text: strings.TrimSpace(text)})
			} else if text, ok := strings.CutPrefix(line, HistoryAssistantPrefix); ok {
				p.history = append(p.history, promptTurn{text: strings.TrimSpace(text)})
			}
		case "catalog":
			if m := catalogLine.FindStringSubmatch(line); m != nil {
				p.entries = append(p.entries, promptEntry{id: m[1], name: m[2], unit: m[3], words: nameWords(m[2])})
			}
		case "ordering":
			if m := capLine.FindStringSubmatch(line); m != nil {
				p.cap, _ = strconv.Atoi(m[1])
			}
		}
	}
	if !hasMessage || len(p.entries) == 0 {
		return nil, ErrPromptShape
	}
	return p, nil
}

func (p *parsedPrompt) decide(ordering policy.Ordering) ruleResult {
	res := ruleResult{Items: []ruleItem{}, IntentToPay: policy.LooksLikeCheckout(p.message)}
	confirmed := p.confirmed()

	var (
		added      []string
		notes      []string
		matchedAny bool
		index      = map[string]int{}
	)
	for _, seg := range segmentSplit.Split(p.message, -1) {
		increment := policy.LooksLikeIncrement(seg)
		entry, ok := p.match(seg)
		if !ok && increment {
			entry, ok = p.lastMentioned()
		}
		if !ok {
			continue
		}
		matchedAny = true

		have := confirmed[entry.id]
		if i, seen := index[entry.id]; seen {
			have += res.Items[i].Quantity
		}

		qty, hasQty, whole := quantityFor(seg, entry)
		var add int
		switch {
		case !hasQty && increment:
			add = 1
		case !hasQty:
			notes = append(notes, fmt.Sprintf("How much %s (%s) do you need?", entry.name, entry.unit))
			continue
		case !whole:
			notes = append(notes, fmt.Sprintf("%s comes in %s packs. How many packs would you like?", entry.name, entry.unit))
			continue
		case increment || have == 0:
			add = qty
		case qty <= have:
			notes = append(notes, fmt.Sprintf("You already confirmed %d × %s earlier. Say \"one more\" if you want to add another.", have, entry.name))
			continue
		default:
			add = qty - have
		}

		if ordering.Exceeds(have + add) {
			requested := add
			if hasQty {
				requested = qty
			}
			notes = append(notes, ordering.CapNotice(entry.name, requested))
			continue
		}

		if i, seen := index[entry.id]; seen {
			res.Items[i].Quantity += add
		} else {
			index[entry.id] = len(res.Items)
			res.Items = append(res.Items, ruleItem{ItemID: entry.id, Quantity: add})
		}
		added = append(added, fmt.Sprintf("Added %d × %s (%s).", add, entry.name, entry.unit))
	}

	parts := append(added, notes...)
	switch {
	case res.IntentToPay:
		parts = append(parts, "Great, taking you to checkout now!")
	case !matchedAny:
		parts = append(parts, "Sorry, I couldn't find that in our store. Could you tell me the product name again?")
	case len(notes) == 0:
		parts = append(parts, "Anything else?")
	}
	res.ResponseText = strings.Join(parts, " ")
	return res
}

// confirmed sums quantities the assistant already reported as added in the window.
func (p *parsedPrompt) confirmed() map[string]int {
	out := map[string]int{}
	for _, t := range p.history {
		if t.user {
			continue
		}
		for _, m := range addedLine.FindAllStringSubmatch(t.text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			for _, e := range p.entries {
				if e.name == m[2] && e.unit == m[3] {
					out[e.id] += n
					break
				}
			}
		}
	}
	return out
}

func (p *parsedPrompt) match(text string) (promptEntry, bool) {
	tokens := tokenSet(text)
	best, bestScore := -1, 0
	for i, e := range p.entries {
		score := 0
		for _, w := range e.words {
			if tokens[w] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return promptEntry{}, false
	}
	return p.entries[best], true
}

func (p *parsedPrompt) lastMentioned() (promptEntry, bool) {
	for i := len(p.history) - 1; i >= 0; i-- {
		if !p.history[i].user {
			continue
		}
		if e, ok := p.match(p.history[i].text); ok {
			return e, true
		}
	}
	return promptEntry{}, false
}

// quantityFor extracts a pack count for entry from text. The second result reports
// whether any quantity was found, the third whether it divides into whole packs.
func quantityFor(text string, entry promptEntry) (int, bool, bool) {
	if m := qtyPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			packs, whole := toPacks(float64(n), m[2], entry.unit)
			return packs, true, whole
		}
	}
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if n, found := wordNumbers[w]; found {
			return n, true, true
		}
	}
	return 0, false, true
}

func toPacks(n float64, unit, packUnit string) (int, bool) {
	amount, dim, measured := measure(n, unit)
	if !measured {
		return int(n), true
	}
	m := unitPattern.FindStringSubmatch(strings.TrimSpace(packUnit))
	if m == nil {
		return int(n), true
	}
	size, err := strconv.ParseFloat(m[1], 64)
	if err != nil || size <= 0 {
		return int(n), true
	}
	packAmount, packDim, _ := measure(size, m[2])
	if packDim != dim {
		return int(n), true
	}
	ratio := amount / packAmount
	r := math.Round(ratio)
	if r < 1 || math.Abs(ratio-r) > 1e-9 {
		return 0, false
	}
	return int(r), true
}

func measure(n float64, unit string) (float64, string, bool) {
	switch strings.ToLower(unit) {
	case "kg", "kgs", "kilo", "kilos", "kilogram", "kilograms":
		return n * 1000, "g", true
	case "g", "gm", "gms", "gram", "grams":
		return n, "g", true
	case "l", "ltr", "ltrs", "litre", "litres", "liter", "liters":
		return n * 1000, "ml", true
	case "ml":
		return n, "ml", true
	default:
		return n, "", false
	}
}

func nameWords(name string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(name), -1) {
		if len([]rune(w)) < 3 || nameStopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		set[w] = true
		if a, ok := aliases[w]; ok {
			set[a] = true
		}
		if len(w) > 3 && strings.HasSuffix(w, "s") {
			set[strings.TrimSuffix(w, "s")] = true
		}
	}
	return set
}
