package models

import "time"

const (
	DocStatusProcessing = "processing"
	DocStatusStored     = "stored"
	DocStatusFailed     = "failed"
)

const DefaultContentType = "application/octet-stream"

type Document struct {
	ID          string    `gorm:"column:id;type:uuid;primaryKey" json:"doc_id"`
	UserID      string    `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Filename    string    `gorm:"column:filename;type:text" json:"filename"`
	StoragePath string    `gorm:"column:storage_path;type:text" json:"storage_path"`
	ContentType string    `gorm:"column:content_type;type:text" json:"content_type"`
	Status      string    `gorm:"column:status;type:text" json:"status"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Document) TableName() string { return "documents" }
