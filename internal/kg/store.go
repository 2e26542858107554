package kg

import (
	"strings"
	"unicode"

	"hybridrag/internal/retrieval"
)

// Answer is a direct KG answer for an entity named in a query.
type Answer struct {
	Entity string       `json:"entity"`
	Labels []EntityType `json:"labels"`
}

// Text renders the answer the way it is shown to users.
func (a Answer) Text() string {
	labels := make([]string, len(a.Labels))
	for i, l := range a.Labels {
		labels[i] = string(l)
	}
	return "KG Lookup: " + strings.Join(labels, ", ")
}

// Store is an immutable set of has_label triples keyed by entity text.
type Store struct {
	triples  []Triple
	byEntity map[string][]int
	maxWords int
}

// Build runs rec over every chunk and keeps one triple per (entity, label),
// in first-seen order.
func Build(chunks []retrieval.Chunk, rec *Recognizer) *Store {
	s := &Store{byEntity: make(map[string][]int)}
	if rec == nil {
		return s
	}
	seen := make(map[Triple]struct{})
	for _, chunk := range chunks {
		for _, e := range rec.Recognize(chunk.Text) {
			key := Triple{Entity: e.Text, Relation: RelationHasLabel, Label: e.Type}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			s.add(Triple{Entity: e.Text, Relation: RelationHasLabel, Label: e.Type, ChunkID: chunk.ID})
		}
	}
	return s
}

func (s *Store) add(t Triple) {
	key := normalize(t.Entity)
	if key == "" {
		return
	}
	s.byEntity[key] = append(s.byEntity[key], len(s.triples))
	s.triples = append(s.triples, t)
	if n := len(strings.Fields(key)); n > s.maxWords {
		s.maxWords = n
	}
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.triples)
}

// Triples returns a copy of the stored triples.
func (s *Store) Triples() []Triple {
	if s == nil {
		return []Triple{}
	}
	return append([]Triple{}, s.triples...)
}

// Lookup looks for an entity named in query. Longer n-grams are tried before
// shorter ones and, within one length, earlier positions first. N-grams made
// only of stop words are ignored.
func (s *Store) Lookup(query string) (Answer, bool) {
	if s.Len() == 0 {
		return Answer{}, false
	}
	words := strings.Fields(normalize(query))
	maxN := s.maxWords
	if maxN > len(words) {
		maxN = len(words)
	}
	for n := maxN; n >= 1; n-- {
		for start := 0; start+n <= len(words); start++ {
			gram := words[start : start+n]
			if len(retrieval.Tokenize(strings.Join(gram, " "))) == 0 {
				continue
			}
			idxs, ok := s.byEntity[strings.Join(gram, " ")]
			if !ok {
				continue
			}
			answer := Answer{Entity: s.triples[idxs[0]].Entity}
			for _, i := range idxs {
				answer.Labels = append(answer.Labels, s.triples[i].Label)
			}
			return answer, true
		}
	}
	return Answer{}, false
}

// normalize lowercases, turns punctuation into spaces and collapses runs of
// whitespace. Hyphens and dots inside a word are kept.
func normalize(text string) string {
	runes := []rune(strings.ToLower(text))
	var b strings.Builder
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '%':
			b.WriteRune(r)
		case (r == '-' || r == '.') && i > 0 && i+1 < len(runes) && isWordRune(runes[i-1]) && isWordRune(runes[i+1]):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
