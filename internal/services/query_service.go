package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/arifwid/docuchat/internal/answerer"
	"github.com/arifwid/docuchat/internal/models"
	pgrepo "github.com/arifwid/docuchat/internal/repositories/postgres"
	"github.com/arifwid/docuchat/internal/utils"
)

// FallbackResponse is written into the chat log row whenever answer
// generation fails, so a pending row always reaches a terminal state.
const FallbackResponse = "I'm sorry, I encountered an error while processing your request. Please try again."

type ProcessRequest struct {
	UserID    string
	SessionID string
	Query     string
	DocIDs    []string
	K         int
}

type ProcessResult struct {
	Status          string   `json:"status"` // success | not_ready
	SessionID       string   `json:"session_id"`
	ChatLogID       string   `json:"chat_log_id"`
	Response        string   `json:"response"`
	SourceDocuments []string `json:"source_documents,omitempty"`
	Context         []string `json:"context,omitempty"`
	NotReadyDocs    []string `json:"not_ready_docs,omitempty"`
	Warning         string   `json:"warning,omitempty"`
}

type QueryService interface {
	// Process owns the chat log write end to end: it saves the user row,
	// then updates the same row with the answer, a not-ready notice, or the
	// fallback error text. The row is never left pending.
	Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error)
}

type queryService struct {
	sessions SessionService
	chatlogs ChatLogService
	docs     pgrepo.DocumentRepository
	provider answerer.Provider
	log      *logrus.Logger
}

func NewQueryService(sessions SessionService, chatlogs ChatLogService, docs pgrepo.DocumentRepository, provider answerer.Provider, log *logrus.Logger) QueryService {
	if log == nil {
		log = logrus.New()
	}
	return &queryService{sessions: sessions, chatlogs: chatlogs, docs: docs, provider: provider, log: log}
}

func (s *queryService) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	const op = "QueryService.Process"

	if req.UserID == "" || req.SessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and session_id are required", nil)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "query cannot be empty", nil)
	}

	if _, err := s.sessions.Verify(ctx, req.SessionID, req.UserID); err != nil {
		return nil, err
	}

	row, err := s.chatlogs.SaveUserMessage(ctx, req.SessionID, req.Query)
	if err != nil {
		return nil, err
	}

	if notReady := s.notReadyDocs(ctx, req.DocIDs); len(notReady) > 0 {
		msg := fmt.Sprintf("Some documents are not ready: %s. Please wait for document processing to complete.",
			strings.Join(notReady, ", "))
		if uerr := s.chatlogs.UpdateResponse(ctx, row.ID, msg, nil); uerr != nil {
			s.log.WithError(uerr).WithField("chat_log_id", row.ID).Warn("failed to record not-ready response")
		}
		return &ProcessResult{
			Status:       "not_ready",
			SessionID:    req.SessionID,
			ChatLogID:    row.ID,
			Response:     msg,
			NotReadyDocs: notReady,
		}, nil
	}

	res, err := s.provider.Answer(ctx, answerer.Request{
		Query:  req.Query,
		UserID: req.UserID,
		DocIDs: req.DocIDs,
		K:      req.K,
	})
	if err != nil {
		// terminal state with the fixed fallback text; the user is told to retry
		if uerr := s.chatlogs.UpdateResponse(ctx, row.ID, FallbackResponse, nil); uerr != nil {
			s.log.WithError(uerr).WithField("chat_log_id", row.ID).Error("failed to record fallback response")
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to generate an answer", err)
	}

	metadata, _ := json.Marshal(map[string]any{
		"source_documents": res.SourceDocuments,
		"context_size":     len(res.Context),
	})

	out := &ProcessResult{
		Status:          "success",
		SessionID:       req.SessionID,
		ChatLogID:       row.ID,
		Response:        res.Answer,
		SourceDocuments: res.SourceDocuments,
		Context:         res.Context,
	}
	if uerr := s.chatlogs.UpdateResponse(ctx, row.ID, res.Answer, metadata); uerr != nil {
		s.log.WithError(uerr).WithField("chat_log_id", row.ID).Warn("answer generated but chat log update failed")
		out.Warning = "query processed successfully but failed to update chat log with response"
	}
	return out, nil
}

// notReadyDocs reports requested documents that are still processing or have
// failed. Dangling ids are tolerated and skipped.
func (s *queryService) notReadyDocs(ctx context.Context, docIDs []string) []string {
	var notReady []string
	for _, id := range docIDs {
		doc, err := s.docs.GetByID(ctx, id)
		if err != nil {
			if !errors.Is(err, utils.ErrNotFound) {
				s.log.WithError(err).WithField("doc_id", id).Warn("document readiness check failed")
			}
			continue
		}
		switch doc.Status {
		case models.DocStatusProcessing:
			notReady = append(notReady, id+" (processing)")
		case models.DocStatusFailed:
			notReady = append(notReady, id+" (failed)")
		}
	}
	return notReady
}
