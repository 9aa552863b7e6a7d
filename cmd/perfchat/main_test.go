package main

import (
	"testing"
	"time"
)

func TestParseFlagsSplitsTexts(t *testing.T) {
	cfg, err := parseFlags([]string{"-base-url", "http://localhost:9000/", "-texts", "2kg salt| |one more", "-turns", "3"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.baseURL != "http://localhost:9000" {
		t.Fatalf("baseURL = %q, want trimmed slash", cfg.baseURL)
	}
	if len(cfg.texts) != 2 || cfg.texts[1] != "one more" {
		t.Fatalf("texts = %v, want [2kg salt one more]", cfg.texts)
	}
}

func TestParseFlagsRejectsZeroTurns(t *testing.T) {
	if _, err := parseFlags([]string{"-turns", "0"}); err == nil {
		t.Fatalf("parseFlags() error = nil, want error")
	}
}

func TestWSURLForSession(t *testing.T) {
	got, err := wsURLForSession("https://shop.example.com/base", "s-1")
	if err != nil {
		t.Fatalf("wsURLForSession() error = %v", err)
	}
	want := "wss://shop.example.com/base/v1/chat/ws?session_id=s-1"
	if got != want {
		t.Fatalf("wsURLForSession() = %q, want %q", got, want)
	}
	if _, err := wsURLForSession("ftp://x", "s-1"); err == nil {
		t.Fatalf("wsURLForSession(ftp) error = nil, want error")
	}
}

func TestSummarize(t *testing.T) {
	samples := []time.Duration{40 * time.Millisecond, 10 * time.Millisecond, 30 * time.Millisecond, 20 * time.Millisecond}
	p50, p95, peak := summarize(samples)
	if p50 != 20*time.Millisecond || p95 != 40*time.Millisecond || peak != 40*time.Millisecond {
		t.Fatalf("summarize() = %s %s %s, want 20ms 40ms 40ms", p50, p95, peak)
	}
}
