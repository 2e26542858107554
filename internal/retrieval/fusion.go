package retrieval

import "sort"

// FusionWeights scales each retriever's rank contribution.
type FusionWeights struct {
	Sparse float64
	Dense  float64
}

// DefaultFusionWeights weighs both retrievers equally.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Sparse: 0.5, Dense: 0.5}
}

// FusedScore records how a chunk's combined score was reached.
type FusedScore struct {
	ChunkID         int     `json:"chunk_id"`
	SparseRankScore float64 `json:"sparse_rank_score"`
	DenseRankScore  float64 `json:"dense_rank_score"`
	CombinedScore   float64 `json:"combined_score"`
}

// Hit is a fused result with its chunk attached for citation.
type Hit struct {
	Chunk Chunk      `json:"chunk"`
	Score FusedScore `json:"score"`
}

// Fuse merges two candidate lists by rank position. A candidate at 0-based
// rank r earns candidates-r from its list and nothing from a list it is absent
// from. Output is ordered by combined score, then chunk id.
func Fuse(sparse, dense []Scored, candidates int, w FusionWeights) []FusedScore {
	byID := make(map[int]*FusedScore)
	get := func(id int) *FusedScore {
		fs, ok := byID[id]
		if !ok {
			fs = &FusedScore{ChunkID: id}
			byID[id] = fs
		}
		return fs
	}
	for rank, s := range sparse {
		get(s.ChunkID).SparseRankScore = rankScore(candidates, rank)
	}
	for rank, s := range dense {
		get(s.ChunkID).DenseRankScore = rankScore(candidates, rank)
	}

	fused := make([]FusedScore, 0, len(byID))
	for _, fs := range byID {
		fs.CombinedScore = w.Sparse*fs.SparseRankScore + w.Dense*fs.DenseRankScore
		fused = append(fused, *fs)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].CombinedScore != fused[j].CombinedScore {
			return fused[i].CombinedScore > fused[j].CombinedScore
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})
	return fused
}

func rankScore(candidates, rank int) float64 {
	if rank >= candidates {
		return 0
	}
	return float64(candidates - rank)
}

// Hybrid asks both retrievers for 2*topK candidates, fuses them and returns
// the best topK chunks.
func Hybrid(chunks []Chunk, sparse *SparseIndex, dense *DenseIndex, query string, topK int, w FusionWeights) []Hit {
	if topK <= 0 || len(chunks) == 0 {
		return []Hit{}
	}
	candidates := 2 * topK
	fused := Fuse(sparse.Query(query, candidates), dense.Query(query, candidates), candidates, w)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	hits := make([]Hit, 0, len(fused))
	for _, fs := range fused {
		if fs.ChunkID < 0 || fs.ChunkID >= len(chunks) {
			continue
		}
		hits = append(hits, Hit{Chunk: chunks[fs.ChunkID], Score: fs})
	}
	return hits
}
