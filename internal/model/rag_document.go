package model

import "time"

// RAGDocument is an uploaded PDF. Hash is the md5 of the file bytes, so the
// same file is stored once no matter how often it is uploaded.
type RAGDocument struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	Hash      string    `gorm:"size:32;not null;uniqueIndex" json:"hash"`
	SizeBytes int64     `gorm:"not null" json:"size_bytes"`
	PageCount int       `gorm:"not null" json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}
