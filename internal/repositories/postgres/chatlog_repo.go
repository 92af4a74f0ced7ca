package postgres

import (
	"context"
	"errors"

	"github.com/arifwid/docuchat/internal/models"
	"github.com/arifwid/docuchat/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChatLogRepository interface {
	Insert(ctx context.Context, log *models.ChatLog) error
	GetByID(ctx context.Context, id string) (*models.ChatLog, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.ChatLog, error)
	CountBySession(ctx context.Context, sessionID string) (int64, error)
	UpdateResponse(ctx context.Context, id, response string, metadata datatypes.JSON) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

type chatLogRepo struct {
	db *gorm.DB
}

func NewChatLogRepo(db *gorm.DB) ChatLogRepository {
	return &chatLogRepo{db: db}
}

func (r *chatLogRepo) Insert(ctx context.Context, log *models.ChatLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *chatLogRepo) GetByID(ctx context.Context, id string) (*models.ChatLog, error) {
	var row models.ChatLog
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListBySession returns rows ordered by step; rows sharing a step fall back
// to creation time so the sequence is always fully ordered.
func (r *chatLogRepo) ListBySession(ctx context.Context, sessionID string) ([]models.ChatLog, error) {
	var rows []models.ChatLog
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("step ASC, created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *chatLogRepo) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.ChatLog{}).
		Where("session_id = ?", sessionID).
		Count(&n).Error
	return n, err
}

func (r *chatLogRepo) UpdateResponse(ctx context.Context, id, response string, metadata datatypes.JSON) error {
	fields := map[string]any{"response": response}
	if len(metadata) > 0 {
		fields["metadata"] = metadata
	}
	res := r.db.WithContext(ctx).
		Model(&models.ChatLog{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *chatLogRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.ChatLog{}).Error
}
