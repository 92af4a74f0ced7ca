package services

import (
	"context"
	"errors"
	"time"

	"github.com/arifwid/docuchat/internal/models"
	pgrepo "github.com/arifwid/docuchat/internal/repositories/postgres"
	"github.com/arifwid/docuchat/internal/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChatLogService interface {
	// SaveUserMessage persists a prompt with an empty response. The row is
	// later updated in place once the answer (or fallback text) exists.
	SaveUserMessage(ctx context.Context, sessionID, prompt string) (*models.ChatLog, error)
	UpdateResponse(ctx context.Context, chatLogID, response string, metadataJSON []byte) error
	ListBySession(ctx context.Context, sessionID string) ([]models.ChatLog, error)
}

type chatLogService struct {
	chatlogs pgrepo.ChatLogRepository
}

func NewChatLogService(chatlogs pgrepo.ChatLogRepository) ChatLogService {
	return &chatLogService{chatlogs: chatlogs}
}

func (s *chatLogService) SaveUserMessage(ctx context.Context, sessionID, prompt string) (*models.ChatLog, error) {
	const op = "ChatLogService.SaveUserMessage"

	if sessionID == "" || prompt == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and prompt are required", nil)
	}

	n, err := s.chatlogs.CountBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to count chat logs", err)
	}

	row := &models.ChatLog{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Prompt:    prompt,
		Response:  "",
		Step:      int(n) + 1,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.chatlogs.Insert(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert chat log", err)
	}
	return row, nil
}

func (s *chatLogService) UpdateResponse(ctx context.Context, chatLogID, response string, metadataJSON []byte) error {
	const op = "ChatLogService.UpdateResponse"

	if chatLogID == "" || response == "" {
		return utils.E(utils.CodeInvalidArgument, op, "chat_log_id and response are required", nil)
	}
	if err := s.chatlogs.UpdateResponse(ctx, chatLogID, response, datatypes.JSON(metadataJSON)); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "chat log not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to update chat log response", err)
	}
	return nil
}

func (s *chatLogService) ListBySession(ctx context.Context, sessionID string) ([]models.ChatLog, error) {
	const op = "ChatLogService.ListBySession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	rows, err := s.chatlogs.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list chat logs", err)
	}
	return rows, nil
}
