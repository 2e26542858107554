package repository

import (
	"fmt"

	"gorm.io/gorm"

	"hybridrag/internal/model"
)

type KGTripleRepository struct {
	db *gorm.DB
}

func NewKGTripleRepository(db *gorm.DB) *KGTripleRepository {
	return &KGTripleRepository{db: db}
}

// ReplaceAll swaps the stored graph for triples in one transaction.
func (r *KGTripleRepository) ReplaceAll(triples []model.KGTriple) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.KGTriple{}).Error; err != nil {
			return fmt.Errorf("clear kg triples failed: %w", err)
		}
		if len(triples) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&triples, 200).Error; err != nil {
			return fmt.Errorf("create kg triples failed: %w", err)
		}
		return nil
	})
}

func (r *KGTripleRepository) List(limit int) ([]model.KGTriple, error) {
	q := r.db.Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var triples []model.KGTriple
	if err := q.Find(&triples).Error; err != nil {
		return nil, fmt.Errorf("list kg triples failed: %w", err)
	}
	return triples, nil
}
