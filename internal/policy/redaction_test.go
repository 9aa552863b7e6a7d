package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Pay via rahul.sharma@okaxis, mail rahul@example.com, call +91 98200 12345, card 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_UPI]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIILeavesOrdersAlone(t *testing.T) {
	out, changed := RedactPII("send me 2kg salt and 3 packets of atta")
	if changed {
		t.Fatalf("changed = true for %q", out)
	}
}
