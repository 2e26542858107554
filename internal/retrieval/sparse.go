package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

const sparseIndexFile = "sparse.json"

var (
	ErrIndexMissing = errors.New("sparse index not found")
	ErrIndexCorrupt = errors.New("sparse index is corrupt or stale")
)

// BM25Params holds the term-saturation (K1) and length-normalisation (B)
// parameters.
type BM25Params struct {
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
}

func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75}
}

type Posting struct {
	ChunkID int `json:"c"`
	TF      int `json:"f"`
}

// SparseIndex is an inverted index scored with BM25.
type SparseIndex struct {
	Params      BM25Params           `json:"params"`
	Postings    map[string][]Posting `json:"postings"`
	DocLens     []int                `json:"doc_lens"`
	AvgDocLen   float64              `json:"avg_doc_len"`
	Fingerprint string               `json:"fingerprint"`
}

// BuildSparse indexes chunks from scratch. Chunk ids are expected to equal
// slice positions, as ChunkPages produces them.
func BuildSparse(chunks []Chunk, params BM25Params) *SparseIndex {
	idx := &SparseIndex{
		Params:      params,
		Postings:    make(map[string][]Posting),
		DocLens:     make([]int, len(chunks)),
		Fingerprint: Fingerprint(chunks),
	}

	total := 0
	for i, chunk := range chunks {
		tokens := Tokenize(chunk.Text)
		idx.DocLens[i] = len(tokens)
		total += len(tokens)
		for term, tf := range termCounts(tokens) {
			idx.Postings[term] = append(idx.Postings[term], Posting{ChunkID: i, TF: tf})
		}
	}
	if len(chunks) > 0 {
		idx.AvgDocLen = float64(total) / float64(len(chunks))
	}
	return idx
}

func (s *SparseIndex) Len() int {
	if s == nil {
		return 0
	}
	return len(s.DocLens)
}

// Query scores every chunk sharing at least one term with text and returns the
// best k.
func (s *SparseIndex) Query(text string, k int) []Scored {
	if s.Len() == 0 || k <= 0 {
		return []Scored{}
	}

	n := float64(len(s.DocLens))
	terms := make([]string, 0)
	for term := range termCounts(Tokenize(text)) {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	scores := make(map[int]float64)
	for _, term := range terms {
		postings := s.Postings[term]
		if len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)
		for _, p := range postings {
			tf := float64(p.TF)
			norm := 1.0
			if s.AvgDocLen > 0 {
				norm = 1.0 - s.Params.B + s.Params.B*float64(s.DocLens[p.ChunkID])/s.AvgDocLen
			}
			scores[p.ChunkID] += idf * (tf * (s.Params.K1 + 1.0)) / (tf + s.Params.K1*norm)
		}
	}
	return topK(scores, k)
}

// Save writes the index into dir, replacing any previous file atomically.
func (s *SparseIndex) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir failed: %w", err)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal sparse index failed: %w", err)
	}
	tmp, err := os.CreateTemp(dir, sparseIndexFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file failed: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write sparse index failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close sparse index failed: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, sparseIndexFile)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace sparse index failed: %w", err)
	}
	return nil
}

// LoadSparse reads an index saved by Save. The stored fingerprint must equal
// fingerprint, otherwise the index was built from a different chunk set.
func LoadSparse(dir, fingerprint string) (*SparseIndex, error) {
	raw, err := os.ReadFile(filepath.Join(dir, sparseIndexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrIndexMissing
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	var idx SparseIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	if idx.Fingerprint != fingerprint {
		return nil, fmt.Errorf("%w: fingerprint mismatch", ErrIndexCorrupt)
	}
	for term, postings := range idx.Postings {
		for _, p := range postings {
			if p.ChunkID < 0 || p.ChunkID >= len(idx.DocLens) {
				return nil, fmt.Errorf("%w: posting for %q out of range", ErrIndexCorrupt, term)
			}
		}
	}
	if idx.Postings == nil {
		idx.Postings = make(map[string][]Posting)
	}
	return &idx, nil
}

// Fingerprint identifies a chunk set; it changes whenever any chunk's
// identity, placement or text changes.
func Fingerprint(chunks []Chunk) string {
	h := sha256.New()
	for _, c := range chunks {
		h.Write([]byte(strconv.Itoa(c.ID)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatUint(uint64(c.DocumentID), 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(c.Page)))
		h.Write([]byte{0})
		h.Write([]byte(c.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
