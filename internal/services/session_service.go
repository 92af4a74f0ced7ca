package services

import (
	"context"
	"errors"
	"time"

	"github.com/arifwid/docuchat/internal/models"
	pgrepo "github.com/arifwid/docuchat/internal/repositories/postgres"
	"github.com/arifwid/docuchat/internal/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SessionPatch is a partial update. DocIDs, when set, is a full replacement
// of the association set; callers compute the union themselves.
type SessionPatch struct {
	Name   *string
	DocIDs *[]string
}

type SessionService interface {
	Create(ctx context.Context, userID, name string, docIDs []string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	// Verify loads the session and checks ownership.
	Verify(ctx context.Context, sessionID, userID string) (*models.Session, error)
	Update(ctx context.Context, sessionID string, patch SessionPatch) (*models.Session, error)
	Delete(ctx context.Context, sessionID string) error
	LinkDocument(ctx context.Context, sessionID, docID string) error
	UnlinkDocument(ctx context.Context, sessionID, docID string) error
}

type sessionService struct {
	sessions pgrepo.SessionRepository
	chatlogs pgrepo.ChatLogRepository
}

func NewSessionService(sessions pgrepo.SessionRepository, chatlogs pgrepo.ChatLogRepository) SessionService {
	return &sessionService{sessions: sessions, chatlogs: chatlogs}
}

func (s *sessionService) Create(ctx context.Context, userID, name string, docIDs []string) (*models.Session, error) {
	const op = "SessionService.Create"

	if userID == "" || name == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and name are required", nil)
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		DocIDs:    pq.StringArray(uniqueIDs(docIDs)),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.sessions.Insert(ctx, session); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return session, nil
}

func (s *sessionService) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	const op = "SessionService.ListByUser"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	rows, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return rows, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

func (s *sessionService) Verify(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	const op = "SessionService.Verify"

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "session does not belong to user", nil)
	}
	return session, nil
}

func (s *sessionService) Update(ctx context.Context, sessionID string, patch SessionPatch) (*models.Session, error) {
	const op = "SessionService.Update"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	fields := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, utils.E(utils.CodeInvalidArgument, op, "name must not be empty", nil)
		}
		fields["name"] = *patch.Name
	}
	if patch.DocIDs != nil {
		fields["doc_ids"] = pq.StringArray(uniqueIDs(*patch.DocIDs))
	}

	if err := s.sessions.UpdateFields(ctx, sessionID, fields); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update session", err)
	}
	return s.Get(ctx, sessionID)
}

// Delete removes the session and, as a matched cascade, its chat logs. The
// association set lives on the row, so it goes with it. Documents themselves
// are untouched.
func (s *sessionService) Delete(ctx context.Context, sessionID string) error {
	const op = "SessionService.Delete"

	if sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if err := s.chatlogs.DeleteBySession(ctx, sessionID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete chat logs", err)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to delete session", err)
	}
	return nil
}

func (s *sessionService) LinkDocument(ctx context.Context, sessionID, docID string) error {
	const op = "SessionService.LinkDocument"

	if docID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "document_id is required", nil)
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	merged := uniqueIDs(append(append([]string{}, session.DocIDs...), docID))
	_, err = s.Update(ctx, sessionID, SessionPatch{DocIDs: &merged})
	return err
}

func (s *sessionService) UnlinkDocument(ctx context.Context, sessionID, docID string) error {
	const op = "SessionService.UnlinkDocument"

	if docID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "document_id is required", nil)
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(session.DocIDs))
	for _, id := range session.DocIDs {
		if id != docID {
			kept = append(kept, id)
		}
	}
	_, err = s.Update(ctx, sessionID, SessionPatch{DocIDs: &kept})
	return err
}

// uniqueIDs deduplicates while preserving first-seen order. Every write of a
// document set goes through here.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
