package policy

import (
	"regexp"
	"strings"
)

var (
	checkoutPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bthat'?s\s+(all|it)\b`),
		regexp.MustCompile(`(?i)\bthat\s+is\s+(all|it)\b`),
		regexp.MustCompile(`(?i)\bcheck\s*out\b`),
		regexp.MustCompile(`(?i)\b(let'?s|i\s+want\s+to|ready\s+to)\s+pay\b`),
		regexp.MustCompile(`(?i)\bplace\s+(the\s+|my\s+)?order\b`),
		// "no more" closes the order only when nothing follows it but courtesy.
		regexp.MustCompile(`(?i)\b(nothing|no)\s+(else|more)(\s+(please|thanks|thank\s+you|for\s+now|needed))*\s*$`),
		regexp.MustCompile(`(?i)\bpay(ment)?\s+kar(na|ni|o|enge)\b`),
		regexp.MustCompile(`(?i)\bbas\s+(itna|itnaa|itni|ho\s+gaya)\b`),
		regexp.MustCompile(`બસ|પૈસા\s*ચૂકવ`),
		regexp.MustCompile(`बस\s*इतना|भुगतान|पेमेंट`),
	}
	// A clause that negates or asks about checking out is not a request to do it.
	checkoutGuards = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(don'?t|dont|do\s+not|doesn'?t|not|never|yet|later|how|what|when|where|why|nahi|nahin|mat)\b`),
		regexp.MustCompile(`નથી|નહીં|नहीं|(^|\s)मत(\s|$)`),
	}
	clauseSplit = regexp.MustCompile(`(?i)[,;.!?।]+|\s+(and|but|then)\s+`)

	incrementPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d+|one|two|three|four|five)\s+more\b`),
		regexp.MustCompile(`(?i)\banother\b`),
		regexp.MustCompile(`(?i)\b(ek\s+aur|aur\s+ek)\b`),
	}
)

// LooksLikeCheckout reports closing or checkout language ("that's all", "pay karna hai").
// Each clause is judged on its own, so "I don't want to check out yet, add salt" is not a checkout.
func LooksLikeCheckout(text string) bool {
	for _, clause := range clauseSplit.Split(text, -1) {
		clause = strings.TrimSpace(clause)
		if clause == "" || matchesAny(checkoutGuards, clause) {
			continue
		}
		if matchesAny(checkoutPatterns, clause) {
			return true
		}
	}
	return false
}

// LooksLikeIncrement reports an explicit request for more of something already ordered.
func LooksLikeIncrement(text string) bool {
	return matchesAny(incrementPatterns, strings.TrimSpace(text))
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
