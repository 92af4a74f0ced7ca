package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DocumentStatus is the ephemeral ingest-progress record. It mirrors the
// document row's status field but carries the human-readable message and
// expires on its own via a TTL index.
type DocumentStatus struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	DocID     string             `bson:"doc_id" json:"doc_id"`
	Status    string             `bson:"status" json:"status"` // processing|stored|failed
	Message   string             `bson:"message,omitempty" json:"message,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time          `bson:"expires_at" json:"-"` // for TTL index
}
