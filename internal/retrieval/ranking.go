package retrieval

import "sort"

// Scored is one ranked (chunk id, score) pair from a single retriever.
type Scored struct {
	ChunkID int     `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// topK orders by score descending, then by chunk id ascending, and truncates
// to k entries.
func topK(scores map[int]float64, k int) []Scored {
	if k <= 0 || len(scores) == 0 {
		return []Scored{}
	}
	ranked := make([]Scored, 0, len(scores))
	for id, score := range scores {
		if score <= 0 {
			continue
		}
		ranked = append(ranked, Scored{ChunkID: id, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
