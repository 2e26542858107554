package kg

import (
	"errors"
	"fmt"
	"strings"
)

// RelationHasLabel is the only relation the graph stores.
const RelationHasLabel = "has_label"

var ErrUnknownEntityType = errors.New("unknown entity type")

// EntityType is the closed label set produced by the recognizer.
type EntityType string

const (
	TypePerson  EntityType = "PERSON"
	TypeOrg     EntityType = "ORG"
	TypeGPE     EntityType = "GPE"
	TypeDate    EntityType = "DATE"
	TypePercent EntityType = "PERCENT"
	TypeModel   EntityType = "MODEL"
	TypeMisc    EntityType = "MISC"
)

var entityTypes = []EntityType{TypePerson, TypeOrg, TypeGPE, TypeDate, TypePercent, TypeModel, TypeMisc}

func ParseEntityType(s string) (EntityType, error) {
	candidate := EntityType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range entityTypes {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
}

// Entity is a recognized span. Start and End are byte offsets into the
// recognized text; Text is the verbatim surface form.
type Entity struct {
	Text  string     `json:"text"`
	Type  EntityType `json:"type"`
	Start int        `json:"start"`
	End   int        `json:"end"`
}

// Triple is an (entity, has_label, label) fact. ChunkID is the first chunk the
// entity was seen in.
type Triple struct {
	Entity   string     `json:"entity"`
	Relation string     `json:"relation"`
	Label    EntityType `json:"label"`
	ChunkID  int        `json:"chunk_id"`
}
