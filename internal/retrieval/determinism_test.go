package retrieval

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// duplicateCorpus mimics repeated page headers: chunks 1-3 share one long text.
func duplicateCorpus() []Chunk {
	words := make([]string, 60)
	for i := range words {
		words[i] = fmt.Sprintf("header%02d", i)
	}
	header := strings.Join(words, " ")
	texts := []string{"alpha beta", header, header, header}
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{ID: i, DocumentID: 1, DocumentName: "report.pdf", Page: i + 1, Text: text}
	}
	return chunks
}

func scoredIDs(scored []Scored) []int {
	ids := make([]int, len(scored))
	for i, s := range scored {
		ids[i] = s.ChunkID
	}
	return ids
}

func hitIDs(hits []Hit) []int {
	ids := make([]int, len(hits))
	for i, h := range hits {
		ids[i] = h.Chunk.ID
	}
	return ids
}

// withoutID drops id, leaving the relative order of the duplicates.
func withoutID(ids []int, id int) []int {
	out := make([]int, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func TestRebuild_IdenticalRankingOrder(t *testing.T) {
	chunks := duplicateCorpus()
	query := "header03 header17 header42 header59 alpha"

	first := BuildDense(chunks).Query(query, 4)
	require.Len(t, first, 4)
	assert.Equal(t, []int{1, 2, 3}, withoutID(scoredIDs(first), 0))

	byID := make(map[int]float64)
	for _, s := range first {
		byID[s.ChunkID] = s.Score
	}
	assert.Equal(t, byID[1], byID[2], "identical texts score identically")
	assert.Equal(t, byID[2], byID[3], "identical texts score identically")

	firstSparse := scoredIDs(BuildSparse(chunks, DefaultBM25Params()).Query(query, 4))
	assert.Equal(t, []int{1, 2, 3}, withoutID(firstSparse, 0))

	var firstHybrid []int
	for i := 0; i < 100; i++ {
		sparse := BuildSparse(chunks, DefaultBM25Params())
		dense := BuildDense(chunks)

		assert.Equal(t, firstSparse, scoredIDs(sparse.Query(query, 4)), "sparse, rebuild %d", i)
		assert.Equal(t, first, dense.Query(query, 4), "dense, rebuild %d", i)

		hybrid := hitIDs(Hybrid(chunks, sparse, dense, query, 4, DefaultFusionWeights()))
		if firstHybrid == nil {
			firstHybrid = hybrid
			assert.Equal(t, []int{1, 2, 3}, withoutID(hybrid, 0))
		}
		assert.Equal(t, firstHybrid, hybrid, "hybrid, rebuild %d", i)
	}
}
