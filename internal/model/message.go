package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn. Route records which answer path produced an
// assistant turn (empty, kg, fallback or hybrid).
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;index" json:"session_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Role      string    `gorm:"size:16;not null;index" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Route     string    `gorm:"size:16" json:"route,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
