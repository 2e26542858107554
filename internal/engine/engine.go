// Package engine owns the index lifecycle: it builds complete snapshots of
// chunks, sparse and dense indexes and the knowledge graph, and swaps them in
// atomically so readers never see a half-built index.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"hybridrag/internal/kg"
	"hybridrag/internal/metrics"
	"hybridrag/internal/retrieval"
)

type Options struct {
	Chunk    retrieval.ChunkConfig
	BM25     retrieval.BM25Params
	TopK     int
	Weights  retrieval.FusionWeights
	IndexDir string

	Recognizer *kg.Recognizer
	Fallback   *retrieval.FallbackMatcher
}

func DefaultOptions() Options {
	return Options{
		Chunk:      retrieval.DefaultChunkConfig(),
		BM25:       retrieval.DefaultBM25Params(),
		TopK:       3,
		Weights:    retrieval.DefaultFusionWeights(),
		IndexDir:   "data/bm25_index",
		Recognizer: kg.NewRecognizer(nil, kg.DefaultRules()),
		Fallback:   retrieval.NewFallbackMatcher(retrieval.DefaultFallbackTriggers, false),
	}
}

type Engine struct {
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector

	current atomic.Pointer[Snapshot]
	buildMu sync.Mutex
}

func New(opts Options, logger *zap.Logger, collector *metrics.Collector) (*Engine, error) {
	if err := opts.Chunk.Validate(); err != nil {
		return nil, err
	}
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", opts.TopK)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Fallback == nil {
		opts.Fallback = retrieval.NewFallbackMatcher(nil, false)
	}

	e := &Engine{
		opts:    opts,
		logger:  logger.With(zap.String("component", "engine")),
		metrics: collector,
	}
	e.current.Store(e.emptySnapshot())
	return e, nil
}

// Snapshot returns the active snapshot. It is never nil.
func (e *Engine) Snapshot() *Snapshot {
	return e.current.Load()
}

func (e *Engine) Fallback() *retrieval.FallbackMatcher {
	return e.opts.Fallback
}

func (e *Engine) TopK() int {
	return e.opts.TopK
}

// Rebuild chunks pages and builds every index from scratch, persists the sparse
// index and swaps the new snapshot in. The previous snapshot stays active until
// the swap and remains active if building fails.
func (e *Engine) Rebuild(pages []retrieval.Page) (*Snapshot, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	start := time.Now()
	chunks, err := retrieval.ChunkPages(pages, e.opts.Chunk)
	if err != nil {
		return nil, fmt.Errorf("chunk pages failed: %w", err)
	}
	sparse := retrieval.BuildSparse(chunks, e.opts.BM25)
	if e.opts.IndexDir != "" {
		if err := sparse.Save(e.opts.IndexDir); err != nil {
			// the on-disk copy is only a cache; serve from memory regardless
			e.logger.Warn("persist sparse index failed", zap.String("dir", e.opts.IndexDir), zap.Error(err))
		}
	}

	snap := e.assemble(chunks, sparse)
	e.swap(snap, "rebuild", start)
	return snap, nil
}

// Restore brings the engine up from stored pages, reusing the persisted sparse
// index when it matches the chunk set and rebuilding everything otherwise.
func (e *Engine) Restore(pages []retrieval.Page) (*Snapshot, error) {
	e.buildMu.Lock()
	start := time.Now()
	chunks, err := retrieval.ChunkPages(pages, e.opts.Chunk)
	if err != nil {
		e.buildMu.Unlock()
		return nil, fmt.Errorf("chunk pages failed: %w", err)
	}

	var sparse *retrieval.SparseIndex
	if e.opts.IndexDir != "" {
		sparse, err = retrieval.LoadSparse(e.opts.IndexDir, retrieval.Fingerprint(chunks))
	} else {
		err = retrieval.ErrIndexMissing
	}
	if err != nil {
		e.buildMu.Unlock()
		if errors.Is(err, retrieval.ErrIndexCorrupt) {
			e.logger.Warn("sparse index unusable, rebuilding", zap.Error(err))
		} else {
			e.logger.Info("no sparse index on disk, rebuilding", zap.String("dir", e.opts.IndexDir))
		}
		return e.Rebuild(pages)
	}
	if sparse.Params != e.opts.BM25 {
		e.buildMu.Unlock()
		e.logger.Info("bm25 parameters changed, rebuilding")
		return e.Rebuild(pages)
	}
	defer e.buildMu.Unlock()

	snap := e.assemble(chunks, sparse)
	e.swap(snap, "restore", start)
	return snap, nil
}

// Clear swaps in an empty snapshot, then persists an empty sparse index if it can.
func (e *Engine) Clear() {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	start := time.Now()
	snap := e.emptySnapshot()
	e.swap(snap, "clear", start)
	if e.opts.IndexDir != "" {
		if err := snap.Sparse.Save(e.opts.IndexDir); err != nil {
			e.logger.Warn("persist empty index failed", zap.String("dir", e.opts.IndexDir), zap.Error(err))
		}
	}
}

func (e *Engine) assemble(chunks []retrieval.Chunk, sparse *retrieval.SparseIndex) *Snapshot {
	return &Snapshot{
		Chunks:  chunks,
		Sparse:  sparse,
		Dense:   retrieval.BuildDense(chunks),
		Graph:   kg.Build(chunks, e.opts.Recognizer),
		BuiltAt: time.Now(),
		topK:    e.opts.TopK,
		weights: e.opts.Weights,
	}
}

func (e *Engine) emptySnapshot() *Snapshot {
	return e.assemble([]retrieval.Chunk{}, retrieval.BuildSparse(nil, e.opts.BM25))
}

func (e *Engine) swap(snap *Snapshot, mode string, start time.Time) {
	e.current.Store(snap)
	elapsed := time.Since(start)
	e.metrics.RecordIndexBuild(mode, elapsed, len(snap.Chunks), snap.Graph.Len())
	e.logger.Info("index snapshot activated",
		zap.String("mode", mode),
		zap.Int("chunks", len(snap.Chunks)),
		zap.Int("vocabulary", snap.Dense.VocabularySize()),
		zap.Int("kg_triples", snap.Graph.Len()),
		zap.Duration("elapsed", elapsed),
	)
}
