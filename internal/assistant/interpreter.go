// Package assistant turns a shopper's utterance into cart deltas, a reply and a
// checkout flag by prompting a text-completion backend and validating its answer.
package assistant

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/kirana/internal/catalog"
	"github.com/antoniostano/kirana/internal/completion"
	"github.com/antoniostano/kirana/internal/conversation"
	"github.com/antoniostano/kirana/internal/policy"
)

// FallbackText is shown when the backend failed or answered out of contract.
const FallbackText = "Connection is a bit slow. Could you try that again?"

// Delta is one requested cart change.
type Delta struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// Result is the structured interpretation of one user message.
type Result struct {
	ResponseText string  `json:"responseText"`
	Items        []Delta `json:"items"`
	IntentToPay  bool    `json:"intentToPay"`
}

// FallbackResult is the neutral retry reply with no deltas and no checkout.
func FallbackResult() Result {
	return Result{ResponseText: FallbackText, Items: []Delta{}}
}

type Options struct {
	Ordering policy.Ordering
	// Timeout bounds a single backend call. Zero means no extra bound.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Interpreter is stateless across calls; it holds only its backend and settings.
type Interpreter struct {
	client   completion.Client
	ordering policy.Ordering
	timeout  time.Duration
	logger   *zap.Logger
	schema   *completion.Schema
}

func New(client completion.Client, opts Options) *Interpreter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{
		client:   client,
		ordering: opts.Ordering,
		timeout:  opts.Timeout,
		logger:   logger,
		schema:   ResponseSchema(),
	}
}

// Backend names the completion backend in use.
func (i *Interpreter) Backend() string { return i.client.Name() }

// Interpret prompts the backend once. history must already be windowed by the caller.
// Errors are ErrEmptyMessage or a *Failure.
func (i *Interpreter) Interpret(ctx context.Context, message string, entries []catalog.Entry, history []conversation.Turn) (Result, error) {
	if strings.TrimSpace(message) == "" {
		return Result{}, ErrEmptyMessage
	}

	prompt := BuildPrompt(message, entries, history, i.ordering)

	callCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	raw, err := i.client.Complete(callCtx, prompt, i.schema)
	if err != nil {
		i.logger.Warn("completion failed", zap.String("backend", i.client.Name()), zap.Error(err))
		return Result{}, serviceFailure(err)
	}

	res, err := Decode(raw)
	if err != nil {
		i.logger.Warn("completion out of contract", zap.String("backend", i.client.Name()), zap.Error(err))
		return Result{}, err
	}
	return res, nil
}

type wireItem struct {
	ItemID   *string  `json:"itemId"`
	Quantity *float64 `json:"quantity"`
}

type wireResult struct {
	Items        *[]wireItem `json:"items"`
	ResponseText *string     `json:"responseText"`
	IntentToPay  *bool       `json:"intentToPay"`
}

// Decode validates raw backend text against the result contract. Any violation
// rejects the whole payload with a schema *Failure.
func Decode(raw string) (Result, error) {
	body := completion.StripCodeFence(raw)
	if body == "" {
		return Result{}, schemaFailure("empty response")
	}

	var w wireResult
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return Result{}, schemaFailure("decode response: %w", err)
	}
	switch {
	case w.Items == nil:
		return Result{}, schemaFailure("missing items")
	case w.ResponseText == nil:
		return Result{}, schemaFailure("missing responseText")
	case w.IntentToPay == nil:
		return Result{}, schemaFailure("missing intentToPay")
	}

	text := strings.TrimSpace(*w.ResponseText)
	if text == "" {
		return Result{}, schemaFailure("responseText is empty")
	}

	items := make([]Delta, 0, len(*w.Items))
	for idx, it := range *w.Items {
		if it.ItemID == nil || strings.TrimSpace(*it.ItemID) == "" {
			return Result{}, schemaFailure("items[%d]: missing itemId", idx)
		}
		if it.Quantity == nil {
			return Result{}, schemaFailure("items[%d]: missing quantity", idx)
		}
		q := *it.Quantity
		if q <= 0 || q != math.Trunc(q) || q > math.MaxInt32 {
			return Result{}, schemaFailure("items[%d]: quantity %v is not a positive whole number", idx, q)
		}
		items = append(items, Delta{ItemID: strings.TrimSpace(*it.ItemID), Quantity: int(q)})
	}

	return Result{ResponseText: text, Items: items, IntentToPay: *w.IntentToPay}, nil
}
