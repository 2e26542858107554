package model

import "time"

// Session groups the chat turns of one conversation. UpdatedAt moves with
// every recorded turn so the newest conversations list first.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllModels lists every table for auto-migration.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Session{},
		&Message{},
		&RAGDocument{},
		&RAGPage{},
		&KGTriple{},
	}
}
