// Package filter holds the stateless policy predicate applied to candidate
// texts both before and after enhancement.
package filter

import (
	"fmt"
	"strings"
)

// Classify evaluates text against the rules and reports whether it may be
// posted. Every rule is independently disqualifying; the reason string
// collects the first hit of each rule class in evaluation order.
func Classify(text string, rules *Rules) (bool, string) {
	lower := strings.ToLower(strings.TrimSpace(text))
	var reasons []string

	for _, word := range rules.BlockedKeywords {
		if strings.Contains(lower, strings.ToLower(word)) {
			reasons = append(reasons, fmt.Sprintf("blocked keyword: '%s'", word))
			break
		}
	}

	for i, re := range rules.threadRegexps {
		if re.MatchString(lower) {
			reasons = append(reasons, fmt.Sprintf("thread pattern: '%s'", rules.ThreadPatterns[i]))
			break
		}
	}

	for _, marker := range []string{"http", "@", "#"} {
		if strings.Contains(lower, marker) {
			reasons = append(reasons, "contains link/mention/hashtag")
			break
		}
	}

	if rules.disallowedRe.MatchString(text) {
		reasons = append(reasons, "contains disallowed symbols")
	}

	for i, re := range rules.personalRegexps {
		if re.MatchString(lower) {
			reasons = append(reasons, fmt.Sprintf("personal word: '%s'", strings.TrimSpace(rules.PersonalWords[i])))
			break
		}
	}

	if strings.HasPrefix(lower, "@") {
		reasons = append(reasons, "reply-style post")
	}

	if len(reasons) > 0 {
		return false, strings.Join(reasons, "; ")
	}
	return true, "Allowed"
}
