package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/arifwid/docuchat/internal/models"
	"github.com/arifwid/docuchat/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const statusTTL = 24 * time.Hour

type StatusRepository interface {
	Upsert(ctx context.Context, docID, status, message string) error
	Get(ctx context.Context, docID string) (*models.DocumentStatus, error)
	Delete(ctx context.Context, docID string) error
}

type statusRepo struct {
	col *mongo.Collection
}

func NewStatusRepo(db *mongo.Database) StatusRepository {
	return &statusRepo{col: db.Collection("document_status")}
}

func (r *statusRepo) Upsert(ctx context.Context, docID, status, message string) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx,
		bson.M{"doc_id": docID},
		bson.M{"$set": bson.M{
			"status":     status,
			"message":    message,
			"timestamp":  now,
			"expires_at": now.Add(statusTTL),
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *statusRepo) Get(ctx context.Context, docID string) (*models.DocumentStatus, error) {
	var row models.DocumentStatus
	err := r.col.FindOne(ctx, bson.M{"doc_id": docID}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *statusRepo) Delete(ctx context.Context, docID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"doc_id": docID})
	return err
}
