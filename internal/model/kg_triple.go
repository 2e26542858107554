package model

import "time"

type KGTriple struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Entity    string    `gorm:"size:512;not null;index" json:"entity"`
	Relation  string    `gorm:"size:32;not null" json:"relation"`
	Label     string    `gorm:"size:16;not null" json:"label"`
	ChunkID   int       `gorm:"not null" json:"chunk_id"`
	CreatedAt time.Time `json:"created_at"`
}
