// Package scan matches message text against the prohibited word set.
//
// Matching is case-folded substring containment over the configured words,
// implemented with an Aho-Corasick automaton so one pass covers the whole
// set. The automaton is immutable; the state layer builds a fresh Matcher
// whenever the word set changes.
package scan

import (
	"fmt"
	"strings"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Matcher answers "does this text contain any prohibited word" queries.
type Matcher struct {
	machine *goahocorasick.Machine
}

// NewMatcher builds a matcher over the given words. Words are lower-cased
// and de-duplicated; empty entries are dropped. A nil machine (no words)
// never matches.
func NewMatcher(words []string) (*Matcher, error) {
	seen := make(map[string]struct{}, len(words))
	patterns := make([][]rune, 0, len(words))

	for _, word := range words {
		folded := Fold(word)
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		patterns = append(patterns, []rune(folded))
	}

	if len(patterns) == 0 {
		return &Matcher{}, nil
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, fmt.Errorf("build word matcher: %w", err)
	}

	return &Matcher{machine: machine}, nil
}

// Fold normalizes a word the way the matcher stores patterns: trimmed and
// lower-cased.
func Fold(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// Match reports the first prohibited word contained in text, case-folded.
// Which word wins when several are present is unspecified; one match is
// enough to trigger moderation.
func (m *Matcher) Match(text string) (string, bool) {
	if m == nil || m.machine == nil || text == "" {
		return "", false
	}

	folded := []rune(strings.ToLower(text))

	terms := m.machine.MultiPatternSearch(folded, true)
	if len(terms) == 0 {
		return "", false
	}

	return string(terms[0].Word), true
}
