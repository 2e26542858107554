package kg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/retrieval"
)

func testChunks() []retrieval.Chunk {
	return []retrieval.Chunk{
		{ID: 0, Text: "The Transformer relies entirely on attention."},
		{ID: 1, Text: "Results improved by 28.4 BLEU. We thank Google Research for support."},
		{ID: 2, Text: "The Transformer generalizes well to parsing."},
	}
}

func storeOf(triples []Triple) *Store {
	s := &Store{byEntity: make(map[string][]int)}
	for _, t := range triples {
		t.Relation = RelationHasLabel
		s.add(t)
	}
	return s
}

func TestBuild_DeduplicatesByEntityAndLabel(t *testing.T) {
	rec := NewRecognizer(map[string]EntityType{"Transformer": TypeModel}, DefaultRules())
	store := Build(testChunks(), rec)

	count := 0
	for _, tr := range store.Triples() {
		assert.Equal(t, RelationHasLabel, tr.Relation)
		if tr.Entity == "Transformer" {
			count++
			assert.Equal(t, TypeModel, tr.Label)
			assert.Equal(t, 0, tr.ChunkID, "triples remember the first chunk")
		}
	}
	assert.Equal(t, 1, count)
}

func TestLookup_TransformerModel(t *testing.T) {
	rec := NewRecognizer(map[string]EntityType{"Transformer": TypeModel}, DefaultRules())
	store := Build(testChunks(), rec)

	answer, ok := store.Lookup("What is the Transformer?")
	require.True(t, ok)
	assert.Equal(t, "Transformer", answer.Entity)
	assert.Equal(t, []EntityType{TypeModel}, answer.Labels)
	assert.Equal(t, "KG Lookup: MODEL", answer.Text())

	answer, ok = store.Lookup("tell me about the transformer")
	require.True(t, ok, "lookup is case-insensitive")
	assert.Equal(t, "Transformer", answer.Entity)
}

func TestLookup_PrefersLongestNGram(t *testing.T) {
	store := storeOf([]Triple{
		{Entity: "Google", Label: TypeOrg},
		{Entity: "Google Research", Label: TypeOrg},
	})
	answer, ok := store.Lookup("who funds google research?")
	require.True(t, ok)
	assert.Equal(t, "Google Research", answer.Entity)
}

func TestLookup_MultipleLabels(t *testing.T) {
	store := storeOf([]Triple{
		{Entity: "Jordan", Label: TypePerson},
		{Entity: "Jordan", Label: TypeGPE},
	})
	answer, ok := store.Lookup("Jordan")
	require.True(t, ok)
	assert.Equal(t, "KG Lookup: PERSON, GPE", answer.Text())
}

func TestLookup_Misses(t *testing.T) {
	store := storeOf([]Triple{{Entity: "The", Label: TypeMisc}})
	_, ok := store.Lookup("what is the answer")
	assert.False(t, ok, "stop-word grams never match")

	_, ok = Build(nil, NewRecognizer(nil, DefaultRules())).Lookup("anything")
	assert.False(t, ok)

	var empty *Store
	_, ok = empty.Lookup("Transformer")
	assert.False(t, ok)
	assert.Empty(t, empty.Triples())
}
