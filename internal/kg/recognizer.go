package kg

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule names one of the built-in recognition rules.
type Rule string

const (
	RulePercent     Rule = "percent"
	RuleDate        Rule = "date"
	RuleAcronym     Rule = "acronym"
	RuleCapitalized Rule = "capitalized"
)

func DefaultRules() []Rule {
	return []Rule{RulePercent, RuleDate, RuleAcronym, RuleCapitalized}
}

func ParseRule(s string) (Rule, error) {
	r := Rule(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RulePercent, RuleDate, RuleAcronym, RuleCapitalized:
		return r, nil
	}
	return "", fmt.Errorf("unknown kg rule %q", s)
}

const months = `(?:January|February|March|April|May|June|July|August|September|October|November|December)`

var (
	percentPattern   = regexp.MustCompile(`\b\d+(?:\.\d+)?(?:\s?%|\s+percent\b)`)
	monthDatePattern = regexp.MustCompile(`\b` + months + `\s+\d{1,2}(?:,\s*\d{4})?\b|\b\d{1,2}\s+` + months + `(?:\s+\d{4})?\b|\b` + months + `\s+\d{4}\b`)
	yearPattern      = regexp.MustCompile(`\b(?:1[5-9]\d{2}|20\d{2})\b`)
	acronymPattern   = regexp.MustCompile(`\b[A-Z]{2,}(?:-?\d+)?\b`)
	capitalPattern   = regexp.MustCompile(`\b[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)*\b`)
)

type gazetteerEntry struct {
	pattern *regexp.Regexp
	label   EntityType
}

// Recognizer is a rule-based named-entity recognizer. Gazetteer phrases are
// matched first and win over any overlapping rule span.
type Recognizer struct {
	gazetteer []gazetteerEntry
	rules     map[Rule]bool
}

func NewRecognizer(gazetteer map[string]EntityType, rules []Rule) *Recognizer {
	phrases := make([]string, 0, len(gazetteer))
	for phrase := range gazetteer {
		if strings.TrimSpace(phrase) != "" {
			phrases = append(phrases, phrase)
		}
	}
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i]) != len(phrases[j]) {
			return len(phrases[i]) > len(phrases[j])
		}
		return phrases[i] < phrases[j]
	})

	r := &Recognizer{rules: make(map[Rule]bool, len(rules))}
	for _, phrase := range phrases {
		r.gazetteer = append(r.gazetteer, gazetteerEntry{
			pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(strings.TrimSpace(phrase))),
			label:   gazetteer[phrase],
		})
	}
	for _, rule := range rules {
		r.rules[rule] = true
	}
	return r
}

// Recognize returns the entities in text ordered by position.
func (r *Recognizer) Recognize(text string) []Entity {
	var spans spanSet

	for _, g := range r.gazetteer {
		for _, loc := range g.pattern.FindAllStringIndex(text, -1) {
			if wordBounded(text, loc[0], loc[1]) {
				spans.claim(text, loc[0], loc[1], g.label)
			}
		}
	}
	if r.rules[RulePercent] {
		spans.claimAll(text, percentPattern, TypePercent)
	}
	if r.rules[RuleDate] {
		spans.claimAll(text, monthDatePattern, TypeDate)
		spans.claimAll(text, yearPattern, TypeDate)
	}
	if r.rules[RuleAcronym] {
		spans.claimAll(text, acronymPattern, TypeOrg)
	}
	if r.rules[RuleCapitalized] {
		for _, loc := range capitalPattern.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if sentenceInitial(text, start) {
				// drop the sentence-initial word and keep the rest of the run
				next := strings.IndexFunc(text[start:end], unicode.IsSpace)
				if next < 0 {
					continue
				}
				start += next
				start += len(text[start:end]) - len(strings.TrimLeftFunc(text[start:end], unicode.IsSpace))
			}
			spans.claim(text, start, end, TypeMisc)
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

type spanSet []Entity

func (s *spanSet) claimAll(text string, re *regexp.Regexp, label EntityType) {
	for _, loc := range re.FindAllStringIndex(text, -1) {
		s.claim(text, loc[0], loc[1], label)
	}
}

func (s *spanSet) claim(text string, start, end int, label EntityType) {
	if start >= end {
		return
	}
	for _, e := range *s {
		if start < e.End && e.Start < end {
			return
		}
	}
	*s = append(*s, Entity{Text: text[start:end], Type: label, Start: start, End: end})
}

func wordBounded(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func sentenceInitial(text string, start int) bool {
	prefix := strings.TrimRightFunc(text[:start], unicode.IsSpace)
	if prefix == "" {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(prefix)
	return r == '.' || r == '!' || r == '?'
}
