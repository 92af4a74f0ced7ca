package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/arifwid/docuchat/internal/cache"
	"github.com/arifwid/docuchat/internal/models"
	mongorepo "github.com/arifwid/docuchat/internal/repositories/mongo"
	pgrepo "github.com/arifwid/docuchat/internal/repositories/postgres"
	"github.com/arifwid/docuchat/internal/storage"
	"github.com/arifwid/docuchat/internal/utils"
	"github.com/arifwid/docuchat/internal/workers"
)

type DocumentService interface {
	// Upload stashes the file locally, records the document with status
	// "processing", and enqueues the ingest job. Content extraction and the
	// move into object storage happen asynchronously.
	Upload(ctx context.Context, userID, sessionID, docID, filename, contentType string, r io.Reader) (*models.Document, error)
	ListByUser(ctx context.Context, userID string) ([]models.Document, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Document, error)
	Get(ctx context.Context, docID string) (*models.Document, error)
	Status(ctx context.Context, docID string) (*models.DocumentStatus, error)
	SignedURL(ctx context.Context, docID string) (string, error)
	// Delete removes the document id from every owning session's set
	// (best-effort), then the storage object, then the metadata row.
	Delete(ctx context.Context, docID, userID string) error
}

type documentService struct {
	docs     pgrepo.DocumentRepository
	sessions pgrepo.SessionRepository
	statuses mongorepo.StatusRepository
	store    storage.ObjectStore
	cache    cache.Cache
	queue    workers.Enqueuer

	uploadDir string
	urlTTL    time.Duration
	log       *logrus.Logger
}

type DocumentServiceDeps struct {
	Docs     pgrepo.DocumentRepository
	Sessions pgrepo.SessionRepository
	Statuses mongorepo.StatusRepository
	Store    storage.ObjectStore
	Cache    cache.Cache
	Queue    workers.Enqueuer

	UploadDir string
	URLTTL    time.Duration
	Logger    *logrus.Logger
}

func NewDocumentService(d DocumentServiceDeps) DocumentService {
	if d.URLTTL <= 0 {
		d.URLTTL = 10 * time.Minute
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	return &documentService{
		docs:      d.Docs,
		sessions:  d.Sessions,
		statuses:  d.Statuses,
		store:     d.Store,
		cache:     d.Cache,
		queue:     d.Queue,
		uploadDir: d.UploadDir,
		urlTTL:    d.URLTTL,
		log:       d.Logger,
	}
}

func (s *documentService) Upload(ctx context.Context, userID, sessionID, docID, filename, contentType string, r io.Reader) (*models.Document, error) {
	const op = "DocumentService.Upload"

	if userID == "" || sessionID == "" || filename == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id, session_id, and filename are required", nil)
	}
	if docID == "" {
		docID = uuid.NewString()
	}
	if contentType == "" {
		contentType = models.DefaultContentType
	}

	objectName := fmt.Sprintf("%s/%s/%s_%s", userID, sessionID, docID, filename)
	localPath := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s_%s_%s", userID, sessionID, docID, filename))

	f, err := os.Create(localPath)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to stage upload", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(localPath)
		return nil, utils.E(utils.CodeInternal, op, "failed to stage upload", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(localPath)
		return nil, utils.E(utils.CodeInternal, op, "failed to stage upload", err)
	}

	doc := &models.Document{
		ID:          docID,
		UserID:      userID,
		Filename:    filename,
		StoragePath: objectName,
		ContentType: contentType,
		Status:      models.DocStatusProcessing,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.docs.Insert(ctx, doc); err != nil {
		_ = os.Remove(localPath)
		return nil, utils.E(utils.CodeInternal, op, "failed to persist document metadata", err)
	}

	if s.statuses != nil {
		if err := s.statuses.Upsert(ctx, docID, models.DocStatusProcessing, "Document uploaded, processing started"); err != nil {
			s.log.WithError(err).WithField("doc_id", docID).Warn("failed to record initial status")
		}
	}

	if err := s.queue.Enqueue(ctx, workers.IngestJob{
		DocID:       docID,
		UserID:      userID,
		SessionID:   sessionID,
		Filename:    filename,
		ContentType: contentType,
		LocalPath:   localPath,
		ObjectName:  objectName,
	}); err != nil {
		if s.statuses != nil {
			_ = s.statuses.Upsert(ctx, docID, models.DocStatusFailed, "Failed to queue document for processing")
		}
		_ = s.docs.UpdateStatus(ctx, docID, models.DocStatusFailed)
		return nil, utils.E(utils.CodeUnavailable, op, "failed to queue document for processing", err)
	}

	return doc, nil
}

func (s *documentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	const op = "DocumentService.ListByUser"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	rows, err := s.docs.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list documents", err)
	}
	return rows, nil
}

func (s *documentService) ListByIDs(ctx context.Context, ids []string) ([]models.Document, error) {
	const op = "DocumentService.ListByIDs"

	rows, err := s.docs.ListByIDs(ctx, ids)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to resolve document ids", err)
	}
	return rows, nil
}

func (s *documentService) Get(ctx context.Context, docID string) (*models.Document, error) {
	const op = "DocumentService.Get"

	if docID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "document_id is required", nil)
	}
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "document not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get document", err)
	}
	return doc, nil
}

// Status prefers the ephemeral ingest record (it carries the message); once
// that has expired the durable row's status field answers.
func (s *documentService) Status(ctx context.Context, docID string) (*models.DocumentStatus, error) {
	const op = "DocumentService.Status"

	if docID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "document_id is required", nil)
	}
	if s.statuses != nil {
		if st, err := s.statuses.Get(ctx, docID); err == nil {
			return st, nil
		} else if !errors.Is(err, utils.ErrNotFound) {
			s.log.WithError(err).WithField("doc_id", docID).Warn("status record lookup failed")
		}
	}

	doc, err := s.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &models.DocumentStatus{
		DocID:     doc.ID,
		Status:    doc.Status,
		Timestamp: doc.CreatedAt,
	}, nil
}

func (s *documentService) SignedURL(ctx context.Context, docID string) (string, error) {
	const op = "DocumentService.SignedURL"

	doc, err := s.Get(ctx, docID)
	if err != nil {
		return "", err
	}

	key := cache.DocURLKey(docID)
	if s.cache != nil {
		var cached string
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit && cached != "" {
			return cached, nil
		}
	}

	url, err := s.store.SignedGetURL(doc.StoragePath, s.urlTTL)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to sign document URL", err)
	}

	if s.cache != nil {
		// cache slightly shorter than the URL's own lifetime
		ttl := s.urlTTL - 30*time.Second
		if ttl <= 0 {
			ttl = s.urlTTL / 2
		}
		if err := s.cache.SetJSON(ctx, key, url, ttl); err != nil {
			s.log.WithError(err).WithField("doc_id", docID).Warn("failed to cache signed URL")
		}
	}
	return url, nil
}

func (s *documentService) Delete(ctx context.Context, docID, userID string) error {
	const op = "DocumentService.Delete"

	doc, err := s.Get(ctx, docID)
	if err != nil {
		return err
	}
	if doc.UserID != userID {
		return utils.E(utils.CodeForbidden, op, "document does not belong to user", nil)
	}

	// Unlink from every owning session first. A single failing session must
	// not stop the others from being cleaned up.
	var unlinkFailures int
	sessions, err := s.sessions.ContainingDoc(ctx, docID)
	if err != nil {
		s.log.WithError(err).WithField("doc_id", docID).Warn("failed to enumerate owning sessions")
	}
	for _, session := range sessions {
		kept := make([]string, 0, len(session.DocIDs))
		for _, id := range session.DocIDs {
			if id != docID {
				kept = append(kept, id)
			}
		}
		uerr := s.sessions.UpdateFields(ctx, session.ID, map[string]any{
			"doc_ids":    pq.StringArray(kept),
			"updated_at": time.Now().UTC(),
		})
		if uerr != nil {
			unlinkFailures++
			s.log.WithError(uerr).WithFields(logrus.Fields{
				"doc_id":     docID,
				"session_id": session.ID,
			}).Warn("failed to unlink document from session")
		}
	}

	if err := s.store.Delete(ctx, doc.StoragePath); err != nil {
		s.log.WithError(err).WithField("doc_id", docID).Warn("failed to delete storage object")
	}
	if s.statuses != nil {
		_ = s.statuses.Delete(ctx, docID)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, cache.DocURLKey(docID))
	}

	if err := s.docs.Delete(ctx, docID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete document metadata", err)
	}
	if unlinkFailures > 0 {
		return utils.E(utils.CodeInternal, op,
			fmt.Sprintf("document deleted but %d session(s) could not be unlinked", unlinkFailures), nil)
	}
	return nil
}
