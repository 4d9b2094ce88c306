package protocol

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// SensitivePattern is one heuristic used by ContainsSensitiveData.
type SensitivePattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// SensitivePatterns are the heuristics applied by ContainsSensitiveData. They are
// advisory: false positives and negatives are expected, and callers decide what to
// do with a match.
var SensitivePatterns = []SensitivePattern{
	{Name: "password", Pattern: regexp.MustCompile(`(?i)password[:=\s]+[\w!@#$%^&*()]+`)},
	{Name: "card-number", Pattern: regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
	{Name: "email", Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{Name: "api-key", Pattern: regexp.MustCompile(`(?i)api[_-]?key[:=\s]+[\w-]+`)},
	{Name: "secret", Pattern: regexp.MustCompile(`(?i)secret[:=\s]+[\w-]+`)},
	{Name: "token", Pattern: regexp.MustCompile(`(?i)token[:=\s]+[\w-]+`)},
}

// ContainsSensitiveData reports whether text looks like it carries a credential,
// a card number or an e-mail address.
func ContainsSensitiveData(text string) bool {
	return MatchSensitive(text) != ""
}

// MatchSensitive returns the name of the first pattern matching text, or "".
// Text is NFKC normalized first so full-width digits and letters are caught.
func MatchSensitive(text string) string {
	if text == "" {
		return ""
	}
	normalized := norm.NFKC.String(text)
	for _, p := range SensitivePatterns {
		if p.Pattern.MatchString(normalized) {
			return p.Name
		}
	}
	return ""
}
