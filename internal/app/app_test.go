package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hybridrag/internal/ai"
	"hybridrag/internal/engine"
	"hybridrag/internal/kg"
	"hybridrag/internal/model"
	"hybridrag/internal/pkg/pdfextract"
	"hybridrag/internal/platform/sqlite"
	"hybridrag/internal/repository"
	"hybridrag/internal/worker"
)

const (
	attentionPDF = "%PDF-attention"
	scannedPDF   = "%PDF-scanned"
	recurrentPDF = "%PDF-recurrent"
)

var fakeCorpus = map[string][]string{
	attentionPDF: {
		"The Transformer architecture relies on attention. Positional encoding uses PE(pos, 2i) = sin(pos / 10000^(2i/d)) for even dimensions.",
		"Recurrent networks process tokens sequentially and struggle with long range dependencies.",
	},
	scannedPDF:   {"", "   "},
	recurrentPDF: {"Gated recurrent units simplify recurrent networks with fewer gates."},
}

type mapExtractor map[string][]string

func (m mapExtractor) ExtractPages(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	pages, ok := m[string(data)]
	if !ok {
		return nil, pdfextract.ErrNotPDF
	}
	return pages, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	err     error
	answer  string
	prompts []ai.Prompt
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(_ context.Context, prompt ai.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type fixture struct {
	db        *gorm.DB
	engine    *engine.Engine
	docs      *DocumentService
	chat      *ChatService
	answers   *AnswerService
	generator *fakeGenerator
	indexDir  string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEngine(t *testing.T, indexDir string) *engine.Engine {
	t.Helper()
	opts := engine.DefaultOptions()
	opts.IndexDir = indexDir
	opts.Recognizer = kg.NewRecognizer(map[string]kg.EntityType{"Transformer": kg.TypeModel}, kg.DefaultRules())
	eng, err := engine.New(opts, zap.NewNop(), nil)
	require.NoError(t, err)
	return eng
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	db := newTestDB(t)
	indexDir := t.TempDir()
	eng := newTestEngine(t, indexDir)

	messageRepo := repository.NewMessageRepository(db)
	chat := NewChatService(
		repository.NewSessionRepository(db),
		messageRepo,
		worker.NewInlinePublisher(messageRepo),
		nil,
		5,
		logger,
	)
	docs := NewDocumentService(
		repository.NewRAGDocumentRepository(db),
		repository.NewRAGPageRepository(db),
		repository.NewKGTripleRepository(db),
		eng,
		mapExtractor(fakeCorpus),
		1<<20,
		nil,
		logger,
	)
	gen := &fakeGenerator{answer: "generated answer"}
	answers := NewAnswerService(eng, chat, gen, nil, nil, logger)

	return &fixture{
		db:        db,
		engine:    eng,
		docs:      docs,
		chat:      chat,
		answers:   answers,
		generator: gen,
		indexDir:  indexDir,
	}
}

func (f *fixture) ingest(t *testing.T, data, name string) *model.RAGDocument {
	t.Helper()
	res, err := f.docs.Ingest(context.Background(), IngestInput{UserID: 1, Name: name, Data: []byte(data)})
	require.NoError(t, err)
	return res.Document
}

func (f *fixture) ingestAndProcess(t *testing.T) *model.RAGDocument {
	t.Helper()
	doc := f.ingest(t, attentionPDF, "attention.pdf")
	_, err := f.docs.Process(context.Background())
	require.NoError(t, err)
	return doc
}

func (f *fixture) session(t *testing.T, userID uint) *model.Session {
	t.Helper()
	s, err := f.chat.CreateSession(CreateSessionInput{UserID: userID, Title: "papers"})
	require.NoError(t, err)
	return s
}

var errBoom = errors.New("boom")
