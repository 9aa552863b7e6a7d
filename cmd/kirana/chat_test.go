package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/antoniostano/kirana/internal/app"
	"github.com/antoniostano/kirana/internal/config"
	"github.com/antoniostano/kirana/internal/order"
)

func TestRunChatPlacesOrder(t *testing.T) {
	built, err := app.Build(context.Background(), config.Config{
		SessionInactivityTimeout: time.Minute,
		MetricsNamespace:         fmt.Sprintf("kirana_test_cli_%d", time.Now().UnixNano()),
		CompletionMode:           "rules",
		InterpretTimeout:         time.Second,
		MaxPerItem:               5,
	}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer built.Cleanup()

	in := strings.NewReader("2kg salt\n/cart\n/pay\n/pay\n/quit\n")
	var out bytes.Buffer
	if err := runChat(context.Background(), built.Chat, built.Carts, order.ModeInstant, in, &out); err != nil {
		t.Fatalf("runChat() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"Kiyara: Namaste!", "2 × Tata Salt (Iodized) (1kg)", "Order ORD-", "Within 30 mins", "Your cart is empty."} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}
