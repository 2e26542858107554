package retrieval

import (
	"regexp"
	"strings"
)

// DefaultFallbackTriggers are the formula fragments whose exact spelling
// matters more than tokenized relevance.
var DefaultFallbackTriggers = []string{"PE(", "positional encoding", "sin(", "cos("}

var callSyntax = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*\(`)

// FallbackMatcher routes formula-like queries to literal substring search,
// where tokenization would destroy the symbol sequence.
type FallbackMatcher struct {
	triggers   []string
	callSyntax bool
}

// NewFallbackMatcher builds a matcher over the literal triggers. With
// callSyntax set, any identifier immediately followed by "(" also triggers.
func NewFallbackMatcher(triggers []string, callSyntax bool) *FallbackMatcher {
	cleaned := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if strings.TrimSpace(t) != "" {
			cleaned = append(cleaned, t)
		}
	}
	return &FallbackMatcher{triggers: cleaned, callSyntax: callSyntax}
}

// Expressions returns the trigger expressions present in query, in order of
// first appearance: configured triggers as configured, call syntax as written.
func (m *FallbackMatcher) Expressions(query string) []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var exprs []string
	add := func(e string) {
		if _, ok := seen[e]; ok {
			return
		}
		seen[e] = struct{}{}
		exprs = append(exprs, e)
	}

	lower := strings.ToLower(query)
	for _, t := range m.triggers {
		if strings.Contains(lower, strings.ToLower(t)) {
			add(t)
		}
	}
	if m.callSyntax {
		for _, call := range callSyntax.FindAllString(query, -1) {
			add(call)
		}
	}
	return exprs
}

func (m *FallbackMatcher) Matches(query string) bool {
	return len(m.Expressions(query)) > 0
}

// Find returns, in chunk-id order, every chunk containing one of the query's
// trigger expressions as a case-sensitive substring.
func (m *FallbackMatcher) Find(chunks []Chunk, query string) []Chunk {
	exprs := m.Expressions(query)
	matched := make([]Chunk, 0)
	if len(exprs) == 0 {
		return matched
	}
	for _, chunk := range chunks {
		for _, e := range exprs {
			if strings.Contains(chunk.Text, e) {
				matched = append(matched, chunk)
				break
			}
		}
	}
	return matched
}
