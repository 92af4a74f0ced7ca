package models

import (
	"time"

	"gorm.io/datatypes"
)

// ChatLog is one persisted (prompt, response) pair. A row with an empty
// response is a pending assistant turn; the query flow updates the same row
// in place once an answer (or the fallback error text) exists.
type ChatLog struct {
	ID        string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string         `gorm:"column:session_id;type:uuid;index" json:"session_id"`
	Prompt    string         `gorm:"column:prompt;type:text" json:"prompt"`
	Response  string         `gorm:"column:response;type:text" json:"response"`
	Step      int            `gorm:"column:step" json:"step"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (ChatLog) TableName() string { return "chat_logs" }
