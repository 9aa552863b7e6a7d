package completion

import (
	"context"
	"testing"

	"github.com/antoniostano/kirana/internal/policy"
)

func TestNewClientAutoFallsBackToRules(t *testing.T) {
	c, err := NewClient(context.Background(), Config{Mode: "auto", Ordering: policy.DefaultOrdering()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.Name() != "rules" {
		t.Fatalf("Name() = %q, want rules", c.Name())
	}
}

func TestNewClientAutoPrefersHTTPWithoutGeminiKey(t *testing.T) {
	c, err := NewClient(context.Background(), Config{HTTPURL: "http://example.test/v1/chat/completions", HTTPModel: "m"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.Name() != "http:m" {
		t.Fatalf("Name() = %q, want http:m", c.Name())
	}
}

func TestNewClientRejectsMissingSettings(t *testing.T) {
	for _, mode := range []string{"gemini", "http", "carrier-pigeon"} {
		if _, err := NewClient(context.Background(), Config{Mode: mode}); err == nil {
			t.Fatalf("NewClient(%q) expected error", mode)
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		`  {"a":1}  `:             `{"a":1}`,
	}
	for in, want := range cases {
		if got := StripCodeFence(in); got != want {
			t.Fatalf("StripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
