package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"hybridrag/internal/model"
)

type RAGPageRepository struct {
	db *gorm.DB
}

func NewRAGPageRepository(db *gorm.DB) *RAGPageRepository {
	return &RAGPageRepository{db: db}
}

// ListAll returns every page in corpus order: documents by id, pages by number.
func (r *RAGPageRepository) ListAll() ([]model.RAGPage, error) {
	var pages []model.RAGPage
	if err := r.db.Order("document_id ASC").Order("number ASC").Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("list rag pages failed: %w", err)
	}
	return pages, nil
}

func (r *RAGPageRepository) Get(documentID uint, number int) (*model.RAGPage, error) {
	var page model.RAGPage
	if err := r.db.Where("document_id = ? AND number = ?", documentID, number).First(&page).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rag page failed: %w", err)
	}
	return &page, nil
}
