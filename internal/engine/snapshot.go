package engine

import (
	"time"

	"hybridrag/internal/kg"
	"hybridrag/internal/retrieval"
)

// Snapshot is one immutable generation of the index.
type Snapshot struct {
	Chunks  []retrieval.Chunk
	Sparse  *retrieval.SparseIndex
	Dense   *retrieval.DenseIndex
	Graph   *kg.Store
	BuiltAt time.Time

	topK    int
	weights retrieval.FusionWeights
}

type Stats struct {
	Chunks     int       `json:"chunks"`
	Vocabulary int       `json:"vocabulary"`
	KGTriples  int       `json:"kg_triples"`
	BuiltAt    time.Time `json:"built_at"`
}

func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Chunks) == 0
}

func (s *Snapshot) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		Chunks:     len(s.Chunks),
		Vocabulary: s.Dense.VocabularySize(),
		KGTriples:  s.Graph.Len(),
		BuiltAt:    s.BuiltAt,
	}
}

// Retrieve runs hybrid retrieval with the snapshot's top-k and weights.
func (s *Snapshot) Retrieve(query string) []retrieval.Hit {
	if s.Empty() {
		return []retrieval.Hit{}
	}
	return retrieval.Hybrid(s.Chunks, s.Sparse, s.Dense, query, s.topK, s.weights)
}

func (s *Snapshot) LookupEntity(query string) (kg.Answer, bool) {
	if s == nil {
		return kg.Answer{}, false
	}
	return s.Graph.Lookup(query)
}

func (s *Snapshot) FindLiteral(m *retrieval.FallbackMatcher, query string) []retrieval.Chunk {
	if s.Empty() {
		return []retrieval.Chunk{}
	}
	return m.Find(s.Chunks, query)
}
