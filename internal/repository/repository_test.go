package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hybridrag/internal/model"
	"hybridrag/internal/platform/sqlite"
)

func setupTestDB(t *testing.T) *gorm.DB {
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

func seedDocument(t *testing.T, repo *RAGDocumentRepository, name, hash string, pages ...string) *model.RAGDocument {
	t.Helper()
	doc := &model.RAGDocument{UserID: 1, Name: name, Hash: hash, PageCount: len(pages)}
	rows := make([]model.RAGPage, len(pages))
	for i, text := range pages {
		rows[i] = model.RAGPage{Number: i + 1, Content: text}
	}
	require.NoError(t, repo.CreateWithPages(doc, rows))
	return doc
}

func TestRAGDocumentRepository_CreateAndLookup(t *testing.T) {
	db := setupTestDB(t)
	docs := NewRAGDocumentRepository(db)
	pages := NewRAGPageRepository(db)

	doc := seedDocument(t, docs, "a.pdf", "hash-a", "first", "second")
	require.NotZero(t, doc.ID)

	byHash, err := docs.GetByHash("hash-a")
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, doc.ID, byHash.ID)

	missing, err := docs.GetByHash("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	page, err := pages.Get(doc.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "second", page.Content)

	n, err := docs.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRAGDocumentRepository_DuplicateHashRejected(t *testing.T) {
	db := setupTestDB(t)
	docs := NewRAGDocumentRepository(db)
	seedDocument(t, docs, "a.pdf", "same", "text")

	err := docs.CreateWithPages(&model.RAGDocument{UserID: 1, Name: "b.pdf", Hash: "same"}, []model.RAGPage{{Number: 1, Content: "x"}})
	assert.Error(t, err)

	all, err := NewRAGPageRepository(db).ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed insert must not leave pages behind")
}

func TestRAGPageRepository_ListAllInCorpusOrder(t *testing.T) {
	db := setupTestDB(t)
	docs := NewRAGDocumentRepository(db)
	first := seedDocument(t, docs, "a.pdf", "h1", "a1", "a2")
	second := seedDocument(t, docs, "b.pdf", "h2", "b1")

	all, err := NewRAGPageRepository(db).ListAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a1", "a2", "b1"}, []string{all[0].Content, all[1].Content, all[2].Content})
	assert.Equal(t, first.ID, all[0].DocumentID)
	assert.Equal(t, second.ID, all[2].DocumentID)
}

func TestRAGDocumentRepository_DeleteAndClear(t *testing.T) {
	db := setupTestDB(t)
	docs := NewRAGDocumentRepository(db)
	pages := NewRAGPageRepository(db)
	triples := NewKGTripleRepository(db)

	first := seedDocument(t, docs, "a.pdf", "h1", "a1")
	seedDocument(t, docs, "b.pdf", "h2", "b1")
	require.NoError(t, triples.ReplaceAll([]model.KGTriple{{Entity: "BERT", Relation: "has_label", Label: "MODEL"}}))

	require.NoError(t, docs.Delete(first.ID))
	all, err := pages.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b1", all[0].Content)

	require.NoError(t, docs.DeleteAll())
	list, err := docs.List()
	require.NoError(t, err)
	assert.Empty(t, list)
	all, err = pages.ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)
	stored, err := triples.List(0)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestKGTripleRepository_ReplaceAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewKGTripleRepository(db)

	require.NoError(t, repo.ReplaceAll([]model.KGTriple{
		{Entity: "Transformer", Relation: "has_label", Label: "MODEL"},
		{Entity: "Google", Relation: "has_label", Label: "ORG", ChunkID: 4},
	}))
	require.NoError(t, repo.ReplaceAll([]model.KGTriple{
		{Entity: "BERT", Relation: "has_label", Label: "MODEL"},
	}))

	stored, err := repo.List(10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "BERT", stored[0].Entity)

	require.NoError(t, repo.ReplaceAll(nil))
	stored, err = repo.List(0)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestMessageRepository_ListRecent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		require.NoError(t, repo.Create(&model.Message{
			SessionID: 1,
			UserID:    1,
			Role:      role,
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Create(&model.Message{SessionID: 2, UserID: 1, Role: model.RoleUser, Content: "other", CreatedAt: base}))

	recent, err := repo.ListRecentBySessionID(1, 4)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, []string{"i", "j", "k", "l"}, []string{recent[0].Content, recent[1].Content, recent[2].Content, recent[3].Content})

	none, err := repo.ListRecentBySessionID(1, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := repo.ListBySessionID(1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 12)
	assert.Equal(t, "a", all[0].Content)

	require.NoError(t, repo.DeleteBySessionID(1))
	all, err = repo.ListBySessionID(1, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMessageRepository_InsertionOrderWinsOverTimestamps(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)

	same := time.Now().Truncate(time.Millisecond)
	stamps := []time.Time{same, same, same.Add(-time.Second), same}
	for i, at := range stamps {
		require.NoError(t, repo.Create(&model.Message{
			SessionID: 1,
			UserID:    1,
			Role:      model.RoleUser,
			Content:   string(rune('a' + i)),
			CreatedAt: at,
		}))
	}

	all, err := repo.ListBySessionID(1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, contents(all))

	recent, err := repo.ListRecentBySessionID(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, contents(recent))
}

func contents(messages []model.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Content
	}
	return out
}

func TestSessionRepository_Touch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)

	older := &model.Session{UserID: 1, Title: "older"}
	newer := &model.Session{UserID: 1, Title: "newer"}
	require.NoError(t, repo.Create(older))
	require.NoError(t, repo.Create(newer))
	require.NoError(t, db.Model(older).Update("updated_at", time.Now().Add(-time.Hour)).Error)
	require.NoError(t, db.Model(newer).Update("updated_at", time.Now().Add(-30*time.Minute)).Error)

	require.NoError(t, repo.Touch(older.ID))
	sessions, err := repo.ListByUserID(1)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "older", sessions[0].Title)

	got, err := repo.GetByIDAndUserID(newer.ID, 2)
	require.NoError(t, err)
	assert.Nil(t, got, "sessions are scoped to their owner")
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	user := &model.User{Username: "ada", Email: "ada@example.com", PasswordHash: "x"}
	require.NoError(t, repo.Create(user))

	byName, err := repo.GetByUsername("ada")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Nil(t, byName.LastLoginAt)

	now := time.Now()
	require.NoError(t, repo.UpdateLastLogin(user.ID, now))
	byID, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	require.NotNil(t, byID.LastLoginAt)
	assert.WithinDuration(t, now, *byID.LastLoginAt, time.Second)

	missing, err := repo.GetByEmail("nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
