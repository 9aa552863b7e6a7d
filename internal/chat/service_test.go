package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/kirana/internal/assistant"
	"github.com/antoniostano/kirana/internal/cart"
	"github.com/antoniostano/kirana/internal/catalog"
	"github.com/antoniostano/kirana/internal/completion"
	"github.com/antoniostano/kirana/internal/conversation"
	"github.com/antoniostano/kirana/internal/observability"
	"github.com/antoniostano/kirana/internal/order"
	"github.com/antoniostano/kirana/internal/policy"
	"github.com/antoniostano/kirana/internal/session"
)

type fixture struct {
	svc    *Service
	turns  *conversation.InMemoryStore
	orders *order.InMemoryStore
}

func newFixture(t *testing.T, client completion.Client, metricsNS string) fixture {
	t.Helper()
	cat, err := catalog.New(catalog.Store{ID: "st-1", Name: "Test Store"}, []catalog.Entry{
		{ID: "g-s-1", Name: "Tata Salt Lite", Unit: "1kg", Price: 28, Category: catalog.CategoryGrocery},
		{ID: "d-m-1", Name: "Amul Taaza Milk", Unit: "1L", Price: 54, Category: catalog.CategoryGrocery},
	})
	require.NoError(t, err)

	ordering := policy.DefaultOrdering()
	turns := conversation.NewInMemoryStore()
	orders := order.NewInMemoryStore()
	carts := cart.NewManager(cart.NewInMemoryStore(), cat, orders, ordering)
	interp := assistant.New(client, assistant.Options{Ordering: ordering})

	var metrics *observability.Metrics
	if metricsNS != "" {
		metrics = observability.NewMetrics(metricsNS)
	}
	svc := NewService(session.NewManager(time.Minute), turns, interp, carts, cat, Options{Metrics: metrics})
	return fixture{svc: svc, turns: turns, orders: orders}
}

func TestStartSessionSeedsGreeting(t *testing.T) {
	f := newFixture(t, completion.NewRulesClient(policy.DefaultOrdering()), "kirana_test_chat_greeting")
	sess, err := f.svc.StartSession(context.Background(), session.CreateRequest{UserID: "u1"})
	require.NoError(t, err)

	history, err := f.svc.History(context.Background(), sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, conversation.RoleAssistant, history[0].Role)
	assert.Equal(t, Greeting, history[0].Text)
}

func TestSendAppliesDeltasAndRecordsTurns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, completion.NewRulesClient(policy.DefaultOrdering()), "")
	sess, err := f.svc.StartSession(ctx, session.CreateRequest{UserID: "u1"})
	require.NoError(t, err)

	reply, err := f.svc.Send(ctx, sess.ID, "send me 2kg salt")
	require.NoError(t, err)
	assert.False(t, reply.Degraded)
	require.Len(t, reply.Applied, 1)
	assert.Equal(t, 2, reply.Cart.Quantity("g-s-1"))

	// Restating the confirmed quantity must not double it.
	reply, err = f.svc.Send(ctx, sess.ID, "2kg salt")
	require.NoError(t, err)
	assert.Empty(t, reply.Applied)
	assert.Equal(t, 2, reply.Cart.Quantity("g-s-1"))

	reply, err = f.svc.Send(ctx, sess.ID, "add one more")
	require.NoError(t, err)
	assert.Equal(t, 3, reply.Cart.Quantity("g-s-1"))

	reply, err = f.svc.Send(ctx, sess.ID, "that's all, let's pay")
	require.NoError(t, err)
	assert.True(t, reply.CheckoutRequested)

	history, err := f.svc.History(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 9)
}

func TestSendPassesWindowIncludingNewMessage(t *testing.T) {
	ctx := context.Background()
	var (
		mu   sync.Mutex
		seen []string
	)
	client := completion.Func(func(_ context.Context, prompt string, _ *completion.Schema) (string, error) {
		mu.Lock()
		seen = append(seen, prompt)
		mu.Unlock()
		return `{"items":[],"responseText":"ok","intentToPay":false}`, nil
	})
	f := newFixture(t, client, "")
	sess, err := f.svc.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)

	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		_, err := f.svc.Send(ctx, sess.ID, msg)
		require.NoError(t, err)
	}

	last := seen[len(seen)-1]
	assert.Contains(t, last, "USER: five\n")
	assert.NotContains(t, last, Greeting)
	assert.NotContains(t, last, "USER: one\n")
	assert.Contains(t, last, "USER: two\n")
}

func TestSendDegradesOnBackendFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, completion.Func(func(context.Context, string, *completion.Schema) (string, error) {
		return "", errors.New("upstream unavailable")
	}), "kirana_test_chat_degraded")
	sess, err := f.svc.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)

	reply, err := f.svc.Send(ctx, sess.ID, "2kg salt")
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Equal(t, assistant.KindService, reply.FailureKind)
	assert.Equal(t, assistant.FallbackText, reply.Text)
	assert.False(t, reply.CheckoutRequested)
	assert.Empty(t, reply.Cart.Lines)
}

func TestSendDegradesOnMalformedOutput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, completion.Func(func(context.Context, string, *completion.Schema) (string, error) {
		return `{"items":[{"itemId":"g-s-1","quantity":2}],"intentToPay":true}`, nil
	}), "")
	sess, err := f.svc.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)

	reply, err := f.svc.Send(ctx, sess.ID, "2kg salt")
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Equal(t, assistant.KindSchema, reply.FailureKind)
	assert.False(t, reply.CheckoutRequested)
	assert.Empty(t, reply.Cart.Lines)
}

func TestSendDropsUnknownItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, completion.Func(func(context.Context, string, *completion.Schema) (string, error) {
		return `{"items":[{"itemId":"x-9","quantity":1},{"itemId":"d-m-1","quantity":1}],"responseText":"Added milk.","intentToPay":false}`, nil
	}), "")
	sess, err := f.svc.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)

	reply, err := f.svc.Send(ctx, sess.ID, "milk and mystery")
	require.NoError(t, err)
	assert.Len(t, reply.Applied, 1)
	require.Len(t, reply.Rejected, 1)
	assert.Equal(t, cart.ReasonUnknownItem, reply.Rejected[0].Reason)
}

func TestSendRefusesOverCapDeltaWhole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, completion.Func(func(context.Context, string, *completion.Schema) (string, error) {
		return `{"items":[{"itemId":"g-s-1","quantity":20}],"responseText":"Added 20 salt.","intentToPay":false}`, nil
	}), "")
	sess, err := f.svc.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)

	reply, err := f.svc.Send(ctx, sess.ID, "give me 20kg salt")
	require.NoError(t, err)
	assert.Empty(t, reply.Applied)
	require.Len(t, reply.Rejected, 1)
	assert.Equal(t, policy.ReasonCapExceeded, reply.Rejected[0].Reason)
	assert.Equal(t, 0, reply.Cart.Quantity("g-s-1"))
}

func TestSendDoesNotRequestCheckoutOnNegatedPhrases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, completion.NewRulesClient(policy.DefaultOrdering()), "")
	sess, err := f.svc.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)

	for _, msg := range []string{"no more salt", "I don't want to checkout yet, add 2 salt"} {
		reply, err := f.svc.Send(ctx, sess.ID, msg)
		require.NoError(t, err)
		assert.Falsef(t, reply.CheckoutRequested, "CheckoutRequested for %q", msg)
	}

	reply, err := f.svc.Send(ctx, sess.ID, "nothing else, thanks")
	require.NoError(t, err)
	assert.True(t, reply.CheckoutRequested)
}

func TestSendRejectsEmptyAndConcurrentMessages(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})
	f := newFixture(t, completion.Func(func(context.Context, string, *completion.Schema) (string, error) {
		close(entered)
		<-release
		return `{"items":[],"responseText":"ok","intentToPay":false}`, nil
	}), "")
	sess, err := f.svc.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, sess.ID, "  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Send(ctx, sess.ID, "first")
		done <- err
	}()
	<-entered

	_, err = f.svc.Send(ctx, sess.ID, "second")
	assert.True(t, IsBusy(err), "error = %v", err)

	close(release)
	require.NoError(t, <-done)

	_, err = f.svc.Send(ctx, "missing", "hello")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCheckoutUsesSessionCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, completion.NewRulesClient(policy.DefaultOrdering()), "kirana_test_chat_checkout")
	sess, err := f.svc.StartSession(ctx, session.CreateRequest{CustomerName: "Riya", CustomerAddress: "B-402"})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, sess.ID, order.ModeBatch)
	assert.ErrorIs(t, err, cart.ErrEmptyCart)

	_, err = f.svc.Send(ctx, sess.ID, "2 litres milk")
	require.NoError(t, err)

	o, err := f.svc.Checkout(ctx, sess.ID, order.ModeInstant)
	require.NoError(t, err)
	assert.Equal(t, "Riya", o.CustomerName)
	assert.InDelta(t, 138.0, o.Total, 0.001)

	list, err := f.orders.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
