package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arifwid/docuchat/pkg/gateway"
)

// Turn is one rendered message. Each persisted log row expands to a user
// turn and, once the response lands, an assistant turn.
type Turn struct {
	Role      string // "user" or "assistant"
	Text      string
	RowID     string
	Step      int
	CreatedAt time.Time
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatStore caches the turn list of the currently viewed conversation.
type ChatStore struct {
	notifier

	gw     *gateway.Client
	userID string
	log    *logrus.Logger

	mu             sync.RWMutex
	conversationID string
	turns          []Turn
}

func NewChatStore(gw *gateway.Client, userID string, log *logrus.Logger) *ChatStore {
	if log == nil {
		log = logrus.New()
	}
	return &ChatStore{gw: gw, userID: userID, log: log}
}

func (s *ChatStore) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

func (s *ChatStore) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Refresh loads the history of conversationID. An empty id clears the view
// without a backend round trip. On fetch failure the previous turns stay.
func (s *ChatStore) Refresh(ctx context.Context, conversationID string) []Turn {
	if conversationID == "" {
		s.mu.Lock()
		s.conversationID = ""
		s.turns = nil
		s.mu.Unlock()
		s.notify()
		return nil
	}

	rows, err := s.gw.ChatHistory(ctx, conversationID, s.userID)
	if err != nil {
		s.log.WithError(err).WithField("conversation_id", conversationID).
			Warn("chat history refresh failed, keeping cached turns")
		return s.Turns()
	}

	turns := ExpandTurns(rows)
	s.mu.Lock()
	s.conversationID = conversationID
	s.turns = turns
	s.mu.Unlock()
	s.notify()
	return s.Turns()
}

// ExpandTurns orders rows by their ordinal (timestamp breaks ties, and
// carries rows that predate ordinals) and expands each into one or two
// turns. A row with an empty response contributes only its user turn; the
// assistant turn appears on a later refresh once the answer is written.
func ExpandTurns(rows []gateway.LogRow) []Turn {
	sorted := make([]gateway.LogRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Step != sorted[j].Step {
			return sorted[i].Step < sorted[j].Step
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	turns := make([]Turn, 0, 2*len(sorted))
	for _, row := range sorted {
		turns = append(turns, Turn{
			Role:      RoleUser,
			Text:      row.Prompt,
			RowID:     row.ID,
			Step:      row.Step,
			CreatedAt: row.CreatedAt,
		})
		if row.Response != "" {
			turns = append(turns, Turn{
				Role:      RoleAssistant,
				Text:      row.Response,
				RowID:     row.ID,
				Step:      row.Step,
				CreatedAt: row.CreatedAt,
			})
		}
	}
	return turns
}
