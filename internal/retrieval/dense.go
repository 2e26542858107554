package retrieval

import (
	"math"
	"sort"
)

// termWeight is one non-zero coordinate of a TF-IDF vector.
type termWeight struct {
	Term   int
	Weight float64
}

// DenseIndex holds L2-normalised TF-IDF vectors over a vocabulary learned from
// the indexed chunks. Vectors are stored sparsely, sorted by term column.
type DenseIndex struct {
	vocab   map[string]int
	idf     []float64
	vectors [][]termWeight
}

// BuildDense fits the vocabulary and smoothed IDF weights on chunks and
// materialises one vector per chunk.
func BuildDense(chunks []Chunk) *DenseIndex {
	idx := &DenseIndex{
		vocab:   make(map[string]int),
		vectors: make([][]termWeight, len(chunks)),
	}

	counts := make([]map[string]int, len(chunks))
	df := make(map[string]int)
	for i, chunk := range chunks {
		counts[i] = termCounts(Tokenize(chunk.Text))
		for term := range counts[i] {
			df[term]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(chunks))
	idx.idf = make([]float64, len(terms))
	for col, term := range terms {
		idx.vocab[term] = col
		idx.idf[col] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	for i := range chunks {
		idx.vectors[i] = idx.vectorize(counts[i])
	}
	return idx
}

func (d *DenseIndex) Len() int {
	if d == nil {
		return 0
	}
	return len(d.vectors)
}

func (d *DenseIndex) VocabularySize() int {
	if d == nil {
		return 0
	}
	return len(d.vocab)
}

// Query ranks chunks by cosine similarity to text. Terms outside the
// vocabulary carry no weight; a query without any known term yields nothing.
func (d *DenseIndex) Query(text string, k int) []Scored {
	if d.Len() == 0 || k <= 0 {
		return []Scored{}
	}
	query := d.vectorize(termCounts(Tokenize(text)))
	if len(query) == 0 {
		return []Scored{}
	}

	weights := make(map[int]float64, len(query))
	for _, tw := range query {
		weights[tw.Term] = tw.Weight
	}
	scores := make(map[int]float64)
	for id, vec := range d.vectors {
		var dot float64
		for _, tw := range vec {
			if w, ok := weights[tw.Term]; ok {
				dot += w * tw.Weight
			}
		}
		if dot > 0 {
			scores[id] = dot
		}
	}
	return topK(scores, k)
}

func (d *DenseIndex) vectorize(counts map[string]int) []termWeight {
	vec := make([]termWeight, 0, len(counts))
	for term, tf := range counts {
		col, ok := d.vocab[term]
		if !ok {
			continue
		}
		vec = append(vec, termWeight{Term: col, Weight: float64(tf) * d.idf[col]})
	}
	// Summing in column order keeps norms of identical texts bit-identical.
	sort.Slice(vec, func(i, j int) bool { return vec[i].Term < vec[j].Term })

	var norm float64
	for _, tw := range vec {
		norm += tw.Weight * tw.Weight
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i].Weight /= norm
	}
	return vec
}
