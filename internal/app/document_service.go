package app

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"hybridrag/internal/engine"
	"hybridrag/internal/metrics"
	"hybridrag/internal/model"
	"hybridrag/internal/pkg/pdfextract"
	"hybridrag/internal/repository"
	"hybridrag/internal/retrieval"
)

var (
	ErrNoDocuments       = errors.New("no documents indexed")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrPageNotFound      = errors.New("page not found")
	ErrNotPDF            = errors.New("file is not a readable pdf")
	ErrNoExtractableText = errors.New("pdf has no extractable text")
	ErrFileTooLarge      = errors.New("file exceeds upload limit")
)

// PageExtractor turns a PDF into one text string per page.
type PageExtractor interface {
	ExtractPages(r io.Reader) ([]string, error)
}

type PDFExtractor struct{}

func (PDFExtractor) ExtractPages(r io.Reader) ([]string, error) {
	return pdfextract.ExtractPages(r)
}

// DocumentService owns the corpus: stored documents and pages on one side,
// the engine's index snapshot on the other. Every corpus mutation is
// followed by a full rebuild.
type DocumentService struct {
	docRepo    *repository.RAGDocumentRepository
	pageRepo   *repository.RAGPageRepository
	tripleRepo *repository.KGTripleRepository
	engine     *engine.Engine
	extractor  PageExtractor
	maxBytes   int64
	metrics    *metrics.Collector
	logger     *zap.Logger

	mu sync.Mutex
}

type IngestInput struct {
	UserID uint
	Name   string
	Data   []byte
}

type IngestResult struct {
	Document  *model.RAGDocument `json:"document"`
	Duplicate bool               `json:"duplicate"`
}

func NewDocumentService(
	docRepo *repository.RAGDocumentRepository,
	pageRepo *repository.RAGPageRepository,
	tripleRepo *repository.KGTripleRepository,
	eng *engine.Engine,
	extractor PageExtractor,
	maxBytes int64,
	collector *metrics.Collector,
	logger *zap.Logger,
) *DocumentService {
	if extractor == nil {
		extractor = PDFExtractor{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		docRepo:    docRepo,
		pageRepo:   pageRepo,
		tripleRepo: tripleRepo,
		engine:     eng,
		extractor:  extractor,
		maxBytes:   maxBytes,
		metrics:    collector,
		logger:     logger.With(zap.String("component", "document_service")),
	}
}

// Ingest extracts and stores one PDF. Identical bytes uploaded again resolve
// to the stored document. Ingest does not touch the index; call Process.
func (s *DocumentService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}
	if s.maxBytes > 0 && int64(len(input.Data)) > s.maxBytes {
		s.metrics.RecordIngest("rejected")
		return nil, ErrFileTooLarge
	}

	sum := md5.Sum(input.Data)
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.docRepo.GetByHash(hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.metrics.RecordIngest("duplicate")
		s.logger.Info("duplicate upload", zap.String("name", name), zap.Uint("document_id", existing.ID))
		return &IngestResult{Document: existing, Duplicate: true}, nil
	}

	texts, err := s.extractor.ExtractPages(bytes.NewReader(input.Data))
	if err != nil {
		s.metrics.RecordIngest("rejected")
		if errors.Is(err, pdfextract.ErrNotPDF) {
			return nil, ErrNotPDF
		}
		return nil, fmt.Errorf("extract %s failed: %w", name, err)
	}
	if !pdfextract.HasText(texts) {
		s.metrics.RecordIngest("rejected")
		return nil, ErrNoExtractableText
	}

	doc := &model.RAGDocument{
		UserID:    input.UserID,
		Name:      name,
		Hash:      hash,
		SizeBytes: int64(len(input.Data)),
		PageCount: len(texts),
	}
	pages := make([]model.RAGPage, len(texts))
	for i, text := range texts {
		pages[i] = model.RAGPage{Number: i + 1, Content: text}
	}
	if err := s.docRepo.CreateWithPages(doc, pages); err != nil {
		return nil, err
	}

	s.metrics.RecordIngest("stored")
	s.logger.Info("document stored",
		zap.String("name", name),
		zap.Uint("document_id", doc.ID),
		zap.Int("pages", doc.PageCount),
	)
	return &IngestResult{Document: doc}, nil
}

// Process rebuilds every index from the stored pages.
func (s *DocumentService) Process(ctx context.Context) (engine.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.docRepo.Count()
	if err != nil {
		return engine.Stats{}, err
	}
	if n == 0 {
		return engine.Stats{}, ErrNoDocuments
	}
	return s.rebuild()
}

// Restore brings the index up at startup, reusing the persisted sparse index
// when it still matches the stored pages.
func (s *DocumentService) Restore(ctx context.Context) (engine.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pages, err := s.corpusPages()
	if err != nil {
		return engine.Stats{}, err
	}
	snap, err := s.engine.Restore(pages)
	if err != nil {
		return engine.Stats{}, fmt.Errorf("restore index failed: %w", err)
	}
	if err := s.saveTriples(snap); err != nil {
		return engine.Stats{}, err
	}
	return snap.Stats(), nil
}

// Delete removes one document and rebuilds the index without it.
func (s *DocumentService) Delete(ctx context.Context, id uint) (engine.Stats, error) {
	if id == 0 {
		return engine.Stats{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docRepo.GetByID(id)
	if err != nil {
		return engine.Stats{}, err
	}
	if doc == nil {
		return engine.Stats{}, ErrDocumentNotFound
	}
	if err := s.docRepo.Delete(id); err != nil {
		return engine.Stats{}, err
	}
	s.logger.Info("document deleted", zap.Uint("document_id", id), zap.String("name", doc.Name))
	return s.rebuild()
}

// Clear drops every document, page, triple and index.
func (s *DocumentService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Retrieval stops serving the old corpus even if the wipe fails.
	s.engine.Clear()
	if err := s.docRepo.DeleteAll(); err != nil {
		return err
	}
	s.logger.Info("corpus cleared")
	return nil
}

func (s *DocumentService) List() ([]model.RAGDocument, error) {
	return s.docRepo.List()
}

func (s *DocumentService) Page(documentID uint, number int) (*model.RAGPage, error) {
	if documentID == 0 || number <= 0 {
		return nil, ErrInvalidInput
	}
	page, err := s.pageRepo.Get(documentID, number)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, ErrPageNotFound
	}
	return page, nil
}

func (s *DocumentService) Triples(limit int) ([]model.KGTriple, error) {
	return s.tripleRepo.List(limit)
}

func (s *DocumentService) Stats() engine.Stats {
	return s.engine.Snapshot().Stats()
}

func (s *DocumentService) rebuild() (engine.Stats, error) {
	pages, err := s.corpusPages()
	if err != nil {
		return engine.Stats{}, err
	}
	snap, err := s.engine.Rebuild(pages)
	if err != nil {
		return engine.Stats{}, fmt.Errorf("rebuild index failed: %w", err)
	}
	if err := s.saveTriples(snap); err != nil {
		return engine.Stats{}, err
	}
	return snap.Stats(), nil
}

// corpusPages loads stored pages in chunk order: documents by id, pages by
// number.
func (s *DocumentService) corpusPages() ([]retrieval.Page, error) {
	docs, err := s.docRepo.List()
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(docs))
	for _, d := range docs {
		names[d.ID] = d.Name
	}

	stored, err := s.pageRepo.ListAll()
	if err != nil {
		return nil, err
	}
	pages := make([]retrieval.Page, 0, len(stored))
	for _, p := range stored {
		name, ok := names[p.DocumentID]
		if !ok {
			s.logger.Warn("page without document skipped", zap.Uint("document_id", p.DocumentID), zap.Int("page", p.Number))
			continue
		}
		pages = append(pages, retrieval.Page{
			DocumentID:   p.DocumentID,
			DocumentName: name,
			Number:       p.Number,
			Text:         p.Content,
		})
	}
	return pages, nil
}

func (s *DocumentService) saveTriples(snap *engine.Snapshot) error {
	triples := snap.Graph.Triples()
	rows := make([]model.KGTriple, len(triples))
	for i, t := range triples {
		rows[i] = model.KGTriple{
			Entity:   t.Entity,
			Relation: t.Relation,
			Label:    string(t.Label),
			ChunkID:  t.ChunkID,
		}
	}
	return s.tripleRepo.ReplaceAll(rows)
}
