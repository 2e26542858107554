package kg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entitiesByText(entities []Entity) map[string]EntityType {
	out := make(map[string]EntityType, len(entities))
	for _, e := range entities {
		out[e.Text] = e.Type
	}
	return out
}

func TestRecognizer_Rules(t *testing.T) {
	rec := NewRecognizer(nil, DefaultRules())
	text := "The model was trained by Google Brain in 2017. Accuracy rose by 4.5% on March 3, 2018 according to NIST."

	got := entitiesByText(rec.Recognize(text))
	assert.Equal(t, TypeMisc, got["Google Brain"])
	assert.Equal(t, TypeDate, got["2017"])
	assert.Equal(t, TypePercent, got["4.5%"])
	assert.Equal(t, TypeDate, got["March 3, 2018"])
	assert.Equal(t, TypeOrg, got["NIST"])
	assert.NotContains(t, got, "The")
	assert.NotContains(t, got, "Accuracy")
	assert.NotContains(t, got, "2018", "years inside a full date belong to the date")
}

func TestRecognizer_GazetteerWinsOverlaps(t *testing.T) {
	rec := NewRecognizer(map[string]EntityType{
		"Transformer": TypeModel,
		"Vaswani":     TypePerson,
		"BERT":        TypeModel,
	}, DefaultRules())

	entities := rec.Recognize("We compare the Transformer of Vaswani with BERT and transformers.")
	got := entitiesByText(entities)
	assert.Equal(t, TypeModel, got["Transformer"])
	assert.Equal(t, TypePerson, got["Vaswani"])
	assert.Equal(t, TypeModel, got["BERT"], "gazetteer beats the acronym rule")
	assert.NotContains(t, got, "transformers", "gazetteer phrases match whole words only")

	for i := 1; i < len(entities); i++ {
		assert.Less(t, entities[i-1].Start, entities[i].Start)
	}
}

func TestRecognizer_SentenceInitialRun(t *testing.T) {
	rec := NewRecognizer(nil, []Rule{RuleCapitalized})
	got := entitiesByText(rec.Recognize("Yesterday New York hosted it."))
	assert.Equal(t, map[string]EntityType{"New York": TypeMisc}, got)
}

func TestRecognizer_DisabledRules(t *testing.T) {
	rec := NewRecognizer(nil, nil)
	assert.Empty(t, rec.Recognize("NASA reported 12% growth in 1999 near Paris."))
}

func TestParseEntityType(t *testing.T) {
	typ, err := ParseEntityType(" model ")
	require.NoError(t, err)
	assert.Equal(t, TypeModel, typ)

	_, err = ParseEntityType("ANIMAL")
	assert.ErrorIs(t, err, ErrUnknownEntityType)
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("Acronym")
	require.NoError(t, err)
	assert.Equal(t, RuleAcronym, r)

	_, err = ParseRule("regex")
	assert.Error(t, err)
}
