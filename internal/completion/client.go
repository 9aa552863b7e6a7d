// Package completion wraps the text-completion backends the assistant can run on.
// Every backend takes a prompt plus a response schema and returns raw model text;
// interpreting that text is the caller's job.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/kirana/internal/policy"
)

// Client produces schema-constrained text for a prompt.
type Client interface {
	Name() string
	Complete(ctx context.Context, prompt string, schema *Schema) (string, error)
}

// Func adapts a plain function to Client.
type Func func(ctx context.Context, prompt string, schema *Schema) (string, error)

func (f Func) Name() string { return "func" }

func (f Func) Complete(ctx context.Context, prompt string, schema *Schema) (string, error) {
	return f(ctx, prompt, schema)
}

// Schema type names, mirroring JSON Schema.
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
)

// Schema is the backend-neutral subset of JSON Schema used to constrain model output.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Config controls backend construction.
type Config struct {
	Mode string

	GeminiAPIKey string
	GeminiModel  string

	HTTPURL     string
	HTTPAPIKey  string
	HTTPModel   string
	HTTPTimeout time.Duration

	Ordering policy.Ordering
}

// NewClient builds the backend selected by cfg.Mode: auto|gemini|http|rules.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoClient(ctx, cfg)
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, errors.New("gemini api key is required for gemini mode")
		}
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("completion HTTP url is required for http mode")
		}
		return NewHTTPClient(cfg.HTTPURL, cfg.HTTPAPIKey, cfg.HTTPModel, cfg.HTTPTimeout), nil
	case "rules", "mock":
		return NewRulesClient(cfg.Ordering), nil
	default:
		return nil, fmt.Errorf("unsupported completion mode %q", cfg.Mode)
	}
}

func newAutoClient(ctx context.Context, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		return NewHTTPClient(cfg.HTTPURL, cfg.HTTPAPIKey, cfg.HTTPModel, cfg.HTTPTimeout), nil
	}
	return NewRulesClient(cfg.Ordering), nil
}

// StripCodeFence removes ```json ... ``` wrappers models like to add.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
