// Package chat runs one ordering conversation turn end to end: history, interpretation,
// cart changes and the assistant reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/antoniostano/kirana/internal/assistant"
	"github.com/antoniostano/kirana/internal/cart"
	"github.com/antoniostano/kirana/internal/catalog"
	"github.com/antoniostano/kirana/internal/conversation"
	"github.com/antoniostano/kirana/internal/observability"
	"github.com/antoniostano/kirana/internal/order"
	"github.com/antoniostano/kirana/internal/policy"
	"github.com/antoniostano/kirana/internal/session"
)

// Greeting opens every session's history.
const Greeting = "Namaste! I'm Kiyara, your neighborhood assistant. What do you need today?"

// DefaultHistoryWindow is how many turns, including the new message, the interpreter sees.
const DefaultHistoryWindow = 7

var ErrEmptyMessage = assistant.ErrEmptyMessage

// Interpreter is the part of *assistant.Interpreter the service needs.
type Interpreter interface {
	Interpret(ctx context.Context, message string, entries []catalog.Entry, history []conversation.Turn) (assistant.Result, error)
	Backend() string
}

type Options struct {
	HistoryWindow int
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

type Service struct {
	sessions    *session.Manager
	turns       conversation.Store
	interpreter Interpreter
	carts       *cart.Manager
	catalog     *catalog.Catalog
	metrics     *observability.Metrics
	logger      *zap.Logger
	window      int
}

func NewService(
	sessions *session.Manager,
	turns conversation.Store,
	interpreter Interpreter,
	carts *cart.Manager,
	cat *catalog.Catalog,
	opts Options,
) *Service {
	window := opts.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions:    sessions,
		turns:       turns,
		interpreter: interpreter,
		carts:       carts,
		catalog:     cat,
		metrics:     opts.Metrics,
		logger:      logger,
		window:      window,
	}
}

// Reply is the outcome of one user message.
type Reply struct {
	TurnID            string           `json:"turn_id"`
	Text              string           `json:"text"`
	Applied           []cart.Applied   `json:"applied"`
	Rejected          []cart.Rejection `json:"rejected"`
	Cart              cart.Cart        `json:"cart"`
	CheckoutRequested bool             `json:"checkout_requested"`
	Degraded          bool             `json:"degraded"`
	FailureKind       assistant.Kind   `json:"failure_kind,omitempty"`
}

// StartSession creates a session and seeds its history with the greeting.
func (s *Service) StartSession(ctx context.Context, req session.CreateRequest) (*session.Session, error) {
	sess := s.sessions.Create(req)
	err := s.turns.Append(ctx, conversation.Turn{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Role:      conversation.RoleAssistant,
		Text:      Greeting,
	})
	if err != nil {
		_, _ = s.sessions.End(sess.ID)
		return nil, fmt.Errorf("seed greeting: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		s.metrics.SessionEvents.WithLabelValues("created").Inc()
	}
	return sess, nil
}

// History returns the session's turns in order. limit <= 0 returns all of them.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]conversation.Turn, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	return s.turns.Recent(ctx, sessionID, limit)
}

// Send handles one user message. Backend trouble never surfaces as an error: the
// reply degrades to a retry prompt with no cart changes.
func (s *Service) Send(ctx context.Context, sessionID, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return Reply{}, err
	}

	turnID := uuid.NewString()
	if err := s.sessions.StartTurn(sessionID, turnID); err != nil {
		return Reply{}, err
	}
	defer func() { _ = s.sessions.FinishTurn(sessionID, turnID) }()
	started := time.Now()

	stored, redacted := policy.RedactPII(text)
	if err := s.turns.Append(ctx, conversation.Turn{
		ID:          turnID,
		SessionID:   sessionID,
		UserID:      sess.UserID,
		Role:        conversation.RoleUser,
		Text:        stored,
		PIIRedacted: redacted,
	}); err != nil {
		return Reply{}, fmt.Errorf("append user turn: %w", err)
	}

	history, err := s.turns.Recent(ctx, sessionID, s.window)
	if err != nil {
		return Reply{}, fmt.Errorf("load history: %w", err)
	}

	reply := Reply{TurnID: turnID, Applied: []cart.Applied{}, Rejected: []cart.Rejection{}}

	callStart := time.Now()
	res, err := s.interpreter.Interpret(ctx, text, s.catalog.Entries(), history)
	backend := s.interpreter.Backend()
	if err != nil {
		f, ok := assistant.IsFailure(err)
		if !ok {
			return Reply{}, err
		}
		s.observeInterpret(backend, string(f.Kind), time.Since(callStart))
		s.logger.Warn("interpreter degraded",
			zap.String("session_id", sessionID),
			zap.String("turn_id", turnID),
			zap.String("kind", string(f.Kind)),
			zap.Error(f.Err),
		)
		res = assistant.FallbackResult()
		reply.Degraded = true
		reply.FailureKind = f.Kind
	} else {
		s.observeInterpret(backend, "ok", time.Since(callStart))
	}

	applyStart := time.Now()
	deltas := make([]cart.Delta, 0, len(res.Items))
	for _, it := range res.Items {
		deltas = append(deltas, cart.Delta{ItemID: it.ItemID, Quantity: it.Quantity})
	}
	if len(deltas) > 0 {
		out, err := s.carts.ApplyDeltas(ctx, sessionID, deltas)
		if err != nil {
			return Reply{}, fmt.Errorf("apply cart deltas: %w", err)
		}
		reply.Applied, reply.Rejected, reply.Cart = out.Applied, out.Rejected, out.Cart
		s.observeDeltas(out)
	} else {
		c, err := s.carts.Get(ctx, sessionID)
		if err != nil {
			return Reply{}, fmt.Errorf("load cart: %w", err)
		}
		reply.Cart = c
	}
	if s.metrics != nil {
		s.metrics.ObserveTurnStage(observability.StageCartApply, time.Since(applyStart))
	}

	if err := s.turns.Append(ctx, conversation.Turn{
		SessionID: sessionID,
		UserID:    sess.UserID,
		Role:      conversation.RoleAssistant,
		Text:      res.ResponseText,
	}); err != nil {
		return Reply{}, fmt.Errorf("append assistant turn: %w", err)
	}

	reply.Text = res.ResponseText
	reply.CheckoutRequested = res.IntentToPay
	if s.metrics != nil {
		s.metrics.ObserveTurnStage(observability.StageTurnTotal, time.Since(started))
		s.metrics.ObserveTurn(reply.Degraded, reply.CheckoutRequested)
	}
	return reply, nil
}

// Checkout places the session's cart as an order for the session's customer.
func (s *Service) Checkout(ctx context.Context, sessionID string, mode order.DeliveryMode) (order.Order, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return order.Order{}, err
	}
	o, err := s.carts.Checkout(ctx, sessionID, mode, cart.Customer{Name: sess.CustomerName, Address: sess.CustomerAddress})
	if err != nil {
		return order.Order{}, err
	}
	if s.metrics != nil {
		s.metrics.Checkouts.WithLabelValues(string(mode)).Inc()
	}
	s.logger.Info("order placed",
		zap.String("session_id", sessionID),
		zap.String("order_id", o.ID),
		zap.String("mode", string(mode)),
		zap.Float64("total", o.Total),
	)
	return o, nil
}

// End closes the session.
func (s *Service) End(sessionID string) (*session.Session, error) {
	sess, err := s.sessions.End(sessionID)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	}
	return sess, nil
}

// IsBusy reports errors that mean the session is still handling a message.
func IsBusy(err error) bool { return errors.Is(err, session.ErrTurnInProgress) }

func (s *Service) observeInterpret(backend, result string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveInterpret(backend, result, d)
	}
}

func (s *Service) observeDeltas(out cart.Outcome) {
	if s.metrics == nil {
		return
	}
	if n := len(out.Applied); n > 0 {
		s.metrics.CartDeltas.WithLabelValues("applied").Add(float64(n))
	}
	for _, r := range out.Rejected {
		s.metrics.CartDeltas.WithLabelValues(r.Reason).Inc()
	}
}
