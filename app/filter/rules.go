package filter

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules is the policy configuration for Classify. A rules file overrides
// the built-in defaults wholesale; there is no per-list merging.
type Rules struct {
	BlockedKeywords []string `yaml:"blocked_keywords"`
	PersonalWords   []string `yaml:"personal_words"`
	ThreadPatterns  []string `yaml:"thread_patterns"`
	AllowSymbols    string   `yaml:"allow_symbols"`

	threadRegexps   []*regexp.Regexp
	disallowedRe    *regexp.Regexp
	personalRegexps []*regexp.Regexp
}

// Default returns the stock rule set aimed at promotional and event-style
// content that reads poorly when reposted verbatim.
func Default() *Rules {
	r := &Rules{
		BlockedKeywords: []string{
			"we'll", "we will", "join us", "tomorrow", "register", "sign up",
			"link below", "spaces", "event", "set reminder",
			"tune in", "livestream", "discussion", "webinar", "follow for more",
			"today", "next week", "morning", "evening", "tonight",
		},
		PersonalWords: []string{"i", "my", "me", "our", "we", "mine", "myself"},
		ThreadPatterns: []string{
			`^\(?\s*1[\./]\s*`, `part\s*\d+`, `thread`,
		},
		AllowSymbols: `[\w\s,.'"!?-]`,
	}
	if err := r.compile(); err != nil {
		// Built-in patterns are static; a failure here is a programming error.
		panic(err)
	}
	return r
}

// LoadFile reads a YAML rules file and compiles its patterns.
func LoadFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if r.AllowSymbols == "" {
		r.AllowSymbols = Default().AllowSymbols
	}
	if err := r.compile(); err != nil {
		return nil, fmt.Errorf("invalid rules in %s: %w", path, err)
	}
	return &r, nil
}

func (r *Rules) compile() error {
	r.threadRegexps = r.threadRegexps[:0]
	for _, pattern := range r.ThreadPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return fmt.Errorf("bad thread pattern %q: %w", pattern, err)
		}
		r.threadRegexps = append(r.threadRegexps, re)
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(r.AllowSymbols, "["), "]")
	re, err := regexp.Compile("[^" + trimmed + "]")
	if err != nil {
		return fmt.Errorf("bad allow_symbols class %q: %w", r.AllowSymbols, err)
	}
	r.disallowedRe = re

	r.personalRegexps = r.personalRegexps[:0]
	for _, word := range r.PersonalWords {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.TrimSpace(word)) + `\b`)
		if err != nil {
			return fmt.Errorf("bad personal word %q: %w", word, err)
		}
		r.personalRegexps = append(r.personalRegexps, re)
	}

	return nil
}
