package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hybridrag/internal/repository"
)

func TestDocumentService_Ingest(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	ctx := context.Background()

	first, err := f.docs.Ingest(ctx, IngestInput{UserID: 1, Name: "attention.pdf", Data: []byte(attentionPDF)})
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, 2, first.Document.PageCount)
	assert.Len(t, first.Document.Hash, 32)

	again, err := f.docs.Ingest(ctx, IngestInput{UserID: 2, Name: "copy.pdf", Data: []byte(attentionPDF)})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Document.ID, again.Document.ID)

	docs, err := f.docs.List()
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	page, err := f.docs.Page(first.Document.ID, 2)
	require.NoError(t, err)
	assert.Contains(t, page.Content, "Recurrent networks")

	_, err = f.docs.Page(first.Document.ID, 9)
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestDocumentService_IngestRejects(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name  string
		input IngestInput
		want  error
	}{
		{"empty data", IngestInput{Name: "a.pdf"}, ErrInvalidInput},
		{"blank name", IngestInput{Name: " ", Data: []byte(attentionPDF)}, ErrInvalidInput},
		{"not a pdf", IngestInput{Name: "notes.txt", Data: []byte("plain text")}, ErrNotPDF},
		{"scanned pdf", IngestInput{Name: "scan.pdf", Data: []byte(scannedPDF)}, ErrNoExtractableText},
		{"too large", IngestInput{Name: "big.pdf", Data: make([]byte, 2<<20)}, ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.docs.Ingest(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	docs, err := f.docs.List()
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDocumentService_ProcessBuildsIndexAndGraph(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	ctx := context.Background()

	_, err := f.docs.Process(ctx)
	assert.ErrorIs(t, err, ErrNoDocuments)

	f.ingest(t, attentionPDF, "attention.pdf")
	assert.Zero(t, f.docs.Stats().Chunks, "ingest alone does not index")

	stats, err := f.docs.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)
	assert.Positive(t, stats.Vocabulary)
	assert.Equal(t, stats, f.docs.Stats())

	triples, err := f.docs.Triples(0)
	require.NoError(t, err)
	labels := make(map[string]string)
	for _, tr := range triples {
		labels[tr.Entity] = tr.Label
		assert.Equal(t, "has_label", tr.Relation)
	}
	assert.Equal(t, "MODEL", labels["Transformer"])
	assert.Equal(t, "ORG", labels["PE"])
}

func TestDocumentService_DeleteRebuilds(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	ctx := context.Background()

	f.ingest(t, attentionPDF, "attention.pdf")
	gru := f.ingest(t, recurrentPDF, "gru.pdf")
	stats, err := f.docs.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Chunks)

	stats, err = f.docs.Delete(ctx, gru.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)
	for _, c := range f.engine.Snapshot().Chunks {
		assert.NotEqual(t, gru.ID, c.DocumentID)
	}

	_, err = f.docs.Delete(ctx, gru.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	_, err = f.docs.Delete(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDocumentService_Clear(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	ctx := context.Background()
	f.ingestAndProcess(t)

	require.NoError(t, f.docs.Clear(ctx))

	docs, err := f.docs.List()
	require.NoError(t, err)
	assert.Empty(t, docs)
	triples, err := f.docs.Triples(0)
	require.NoError(t, err)
	assert.Empty(t, triples)
	assert.True(t, f.engine.Snapshot().Empty())
}

func TestDocumentService_ClearStopsServingWhenWipeFails(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	ctx := context.Background()
	f.ingestAndProcess(t)
	require.False(t, f.engine.Snapshot().Empty())

	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	assert.Error(t, f.docs.Clear(ctx))
	assert.True(t, f.engine.Snapshot().Empty())
}

func TestDocumentService_RestoreAfterRestart(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	ctx := context.Background()
	f.ingestAndProcess(t)

	restarted := NewDocumentService(
		repository.NewRAGDocumentRepository(f.db),
		repository.NewRAGPageRepository(f.db),
		repository.NewKGTripleRepository(f.db),
		newTestEngine(t, f.indexDir),
		mapExtractor(fakeCorpus),
		0,
		nil,
		nil,
	)
	stats, err := restarted.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, f.docs.Stats().Vocabulary, stats.Vocabulary)
}
