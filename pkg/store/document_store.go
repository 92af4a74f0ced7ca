package store

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/arifwid/docuchat/pkg/gateway"
)

// DocumentStore caches every document the user owns. Keeping the global
// list (rather than walking per-conversation sets) is what lets orphan
// adoption see documents no conversation references yet.
type DocumentStore struct {
	notifier

	gw     *gateway.Client
	userID string
	log    *logrus.Logger

	mu    sync.RWMutex
	items []gateway.Document
}

func NewDocumentStore(gw *gateway.Client, userID string, log *logrus.Logger) *DocumentStore {
	if log == nil {
		log = logrus.New()
	}
	return &DocumentStore{gw: gw, userID: userID, log: log}
}

func (s *DocumentStore) Documents() []gateway.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]gateway.Document, len(s.items))
	copy(out, s.items)
	return out
}

func (s *DocumentStore) Get(docID string) (gateway.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.items {
		if d.ID == docID {
			return d, true
		}
	}
	return gateway.Document{}, false
}

// Refresh re-fetches the user's documents. On failure the cached list stays.
func (s *DocumentStore) Refresh(ctx context.Context) []gateway.Document {
	docs, err := s.gw.UserDocuments(ctx, s.userID)
	if err != nil {
		s.log.WithError(err).Warn("document refresh failed, keeping cached list")
		return s.Documents()
	}
	s.mu.Lock()
	s.items = docs
	s.mu.Unlock()
	s.notify()
	return s.Documents()
}

// Upload sends the file and refreshes the list. The returned document is in
// the processing state; associating it with a conversation is the caller's
// job.
func (s *DocumentStore) Upload(ctx context.Context, conversationID, filename, contentType string, r io.Reader) (*gateway.Document, error) {
	if s.userID == "" {
		return nil, gateway.ErrAuthRequired
	}
	doc, err := s.gw.UploadDocument(ctx, s.userID, conversationID, filename, contentType, r)
	if err != nil {
		return nil, err
	}
	s.Refresh(ctx)
	return doc, nil
}

// ConversationDocuments fetches the documents linked to one conversation,
// skipping identifiers whose rows no longer exist.
func (s *DocumentStore) ConversationDocuments(ctx context.Context, conversationID string) ([]gateway.Document, error) {
	return s.gw.SessionDocuments(ctx, conversationID, s.userID)
}

// Delete removes the backend document row, its stored object, and its
// server-side conversation links, then refreshes the cache.
func (s *DocumentStore) Delete(ctx context.Context, docID string) error {
	if err := s.gw.DeleteDocument(ctx, docID, s.userID); err != nil {
		return err
	}
	s.Refresh(ctx)
	return nil
}
