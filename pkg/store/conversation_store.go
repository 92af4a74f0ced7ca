// Package store holds the client-side caches over the backend API:
// conversations, chat turns, and documents. Each store keeps a snapshot that
// survives transient backend failures and notifies subscribers on change.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/arifwid/docuchat/pkg/gateway"
)

// ConversationStore caches the user's conversations. Reads are soft: a
// failed refresh keeps the previous snapshot so the list never blanks out
// on a flaky backend. Writes are hard: mutation errors propagate.
type ConversationStore struct {
	notifier

	gw     *gateway.Client
	userID string
	log    *logrus.Logger

	mu    sync.RWMutex
	items []gateway.Conversation
}

func NewConversationStore(gw *gateway.Client, userID string, log *logrus.Logger) *ConversationStore {
	if log == nil {
		log = logrus.New()
	}
	return &ConversationStore{gw: gw, userID: userID, log: log}
}

// Conversations returns the cached snapshot, most recently updated first.
func (s *ConversationStore) Conversations() []gateway.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]gateway.Conversation, len(s.items))
	copy(out, s.items)
	return out
}

// Get looks up a conversation in the cached snapshot.
func (s *ConversationStore) Get(id string) (gateway.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.items {
		if c.ID == id {
			return c, true
		}
	}
	return gateway.Conversation{}, false
}

// Refresh re-fetches the list. On failure it logs and returns the cached
// snapshot unchanged.
func (s *ConversationStore) Refresh(ctx context.Context) []gateway.Conversation {
	convs, err := s.gw.ListSessions(ctx, s.userID)
	if err != nil {
		s.log.WithError(err).Warn("conversation refresh failed, keeping cached list")
		return s.Conversations()
	}
	s.mu.Lock()
	s.items = convs
	s.mu.Unlock()
	s.notify()
	return s.Conversations()
}

// Create makes a new conversation and re-fetches the list so the snapshot
// reflects server-assigned fields.
func (s *ConversationStore) Create(ctx context.Context, name string, docIDs []string) (*gateway.Conversation, error) {
	if s.userID == "" {
		return nil, fmt.Errorf("create conversation: %w", gateway.ErrAuthRequired)
	}
	conv, err := s.gw.CreateSession(ctx, s.userID, name, docIDs)
	if err != nil {
		return nil, err
	}
	s.Refresh(ctx)
	return conv, nil
}

// Update applies a patch. A DocIDs patch replaces the whole association set.
func (s *ConversationStore) Update(ctx context.Context, id string, patch gateway.ConversationPatch) error {
	if _, err := s.gw.UpdateSession(ctx, id, s.userID, patch); err != nil {
		return err
	}
	s.Refresh(ctx)
	return nil
}

func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	if err := s.gw.DeleteSession(ctx, id, s.userID); err != nil {
		return err
	}
	s.Refresh(ctx)
	return nil
}
