package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"hybridrag/internal/model"
)

type RAGDocumentRepository struct {
	db *gorm.DB
}

func NewRAGDocumentRepository(db *gorm.DB) *RAGDocumentRepository {
	return &RAGDocumentRepository{db: db}
}

// CreateWithPages stores a document and its pages in one transaction.
func (r *RAGDocumentRepository) CreateWithPages(doc *model.RAGDocument, pages []model.RAGPage) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("create rag document failed: %w", err)
		}
		if len(pages) == 0 {
			return nil
		}
		for i := range pages {
			pages[i].DocumentID = doc.ID
		}
		if err := tx.CreateInBatches(&pages, 100).Error; err != nil {
			return fmt.Errorf("create rag pages failed: %w", err)
		}
		return nil
	})
}

func (r *RAGDocumentRepository) List() ([]model.RAGDocument, error) {
	var list []model.RAGDocument
	if err := r.db.Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list rag documents failed: %w", err)
	}
	return list, nil
}

func (r *RAGDocumentRepository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&model.RAGDocument{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count rag documents failed: %w", err)
	}
	return n, nil
}

func (r *RAGDocumentRepository) GetByID(id uint) (*model.RAGDocument, error) {
	var doc model.RAGDocument
	if err := r.db.First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rag document failed: %w", err)
	}
	return &doc, nil
}

func (r *RAGDocumentRepository) GetByHash(hash string) (*model.RAGDocument, error) {
	var doc model.RAGDocument
	if err := r.db.Where("hash = ?", hash).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rag document by hash failed: %w", err)
	}
	return &doc, nil
}

// Delete removes a document together with its pages.
func (r *RAGDocumentRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.RAGPage{}).Error; err != nil {
			return fmt.Errorf("delete rag pages failed: %w", err)
		}
		if err := tx.Delete(&model.RAGDocument{}, id).Error; err != nil {
			return fmt.Errorf("delete rag document failed: %w", err)
		}
		return nil
	})
}

// DeleteAll empties the corpus: documents, pages and the knowledge graph.
func (r *RAGDocumentRepository) DeleteAll() error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&model.RAGPage{}, &model.RAGDocument{}, &model.KGTriple{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return fmt.Errorf("clear corpus failed: %w", err)
			}
		}
		return nil
	})
}
