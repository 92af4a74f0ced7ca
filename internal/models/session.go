package models

import (
	"time"

	"github.com/lib/pq"
)

// Session is a named, user-owned chat thread. The document association set
// lives on the row as a text[] column; updates to it are full replacements,
// never incremental appends.
type Session struct {
	ID        string         `gorm:"column:id;type:uuid;primaryKey" json:"session_id"`
	UserID    string         `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Name      string         `gorm:"column:name;type:text" json:"name"`
	DocIDs    pq.StringArray `gorm:"column:doc_ids;type:text[]" json:"doc_ids"`
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamptz;index" json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }
