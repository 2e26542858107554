// Package watcher ingests PDFs dropped into an inbox directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"hybridrag/internal/app"
	"hybridrag/internal/engine"
)

const defaultDebounce = 2 * time.Second

// Ingester is the part of the document service the watcher drives.
type Ingester interface {
	Ingest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
	Process(ctx context.Context) (engine.Stats, error)
}

// Watcher batches PDF create/write events in dir. After a quiet period it
// ingests every touched file and rebuilds the index once if anything new
// was stored.
type Watcher struct {
	dir      string
	ingester Ingester
	debounce time.Duration
	logger   *zap.Logger

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(dir string, ingester Ingester, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:      dir,
		ingester: ingester,
		debounce: debounce,
		logger:   logger.With(zap.String("component", "watcher"), zap.String("dir", dir)),
	}
}

// Start picks up PDFs already in the directory and then watches it until
// ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir failed: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher failed: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s failed: %w", w.dir, err)
	}
	w.fsw = fsw

	existing, err := filepath.Glob(filepath.Join(w.dir, "*"))
	if err != nil {
		_ = fsw.Close()
		return fmt.Errorf("scan watch dir failed: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.flush(loopCtx, pdfPaths(existing))
		w.loop(loopCtx)
	}()

	w.logger.Info("watching inbox")
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isPDF(event.Name) || !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", zap.Error(err))
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = make(map[string]struct{})
			w.flush(ctx, paths)
		}
	}
}

// flush ingests paths and processes the corpus when at least one new
// document was stored.
func (w *Watcher) flush(ctx context.Context, paths []string) {
	stored := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("read inbox file failed", zap.String("path", path), zap.Error(err))
			continue
		}
		res, err := w.ingester.Ingest(ctx, app.IngestInput{Name: filepath.Base(path), Data: data})
		if err != nil {
			w.logger.Warn("ingest inbox file failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if !res.Duplicate {
			stored++
		}
	}
	if stored == 0 {
		return
	}

	stats, err := w.ingester.Process(ctx)
	if err != nil && !errors.Is(err, app.ErrNoDocuments) {
		w.logger.Error("process after inbox ingest failed", zap.Error(err))
		return
	}
	w.logger.Info("inbox ingested", zap.Int("stored", stored), zap.Int("chunks", stats.Chunks))
}

func (w *Watcher) Close() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func pdfPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if isPDF(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
