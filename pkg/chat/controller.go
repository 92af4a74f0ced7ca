// Package chat coordinates the conversation workflow on top of the stores:
// sending a turn, routing uploads into a conversation, and tearing down
// documents across every place that references them.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arifwid/docuchat/pkg/assoc"
	"github.com/arifwid/docuchat/pkg/gateway"
	"github.com/arifwid/docuchat/pkg/store"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSendInFlight rejects a second send into a conversation whose
	// previous turn has not resolved yet.
	ErrSendInFlight = errors.New("a message is already being processed for this conversation")
	ErrCancelled    = errors.New("cancelled by user")
	// ErrURLInFlight rejects overlapping link requests for one document.
	ErrURLInFlight = errors.New("a link request for this document is already running")
)

// retrievalK is how many chunks the answerer retrieves per query.
const retrievalK = 4

// signedURLTTL is how long a fetched document link is reused before a fresh
// one is requested. Kept below the backend's link lifetime so a cached URL
// never outlives the signature.
const signedURLTTL = 9 * time.Minute

type cachedURL struct {
	url     string
	expires time.Time
}

// Controller drives one user's session: which conversation is active, which
// documents are selected for analysis, and the in-flight state of sends and
// link fetches.
type Controller struct {
	gw            *gateway.Client
	conversations *store.ConversationStore
	chat          *store.ChatStore
	docs          *store.DocumentStore
	userID        string
	log           *logrus.Logger

	// Confirm guards destructive actions. Nil means proceed without asking.
	Confirm func(prompt string) bool

	mu       sync.Mutex
	activeID string
	selected map[string]struct{}
	sending  map[string]bool
	viewerID string
	urls     map[string]cachedURL
	urlBusy  map[string]bool
	healthy  bool

	now func() time.Time
}

func NewController(gw *gateway.Client, convs *store.ConversationStore, chat *store.ChatStore, docs *store.DocumentStore, userID string, log *logrus.Logger) *Controller {
	if log == nil {
		log = logrus.New()
	}
	return &Controller{
		gw:            gw,
		conversations: convs,
		chat:          chat,
		docs:          docs,
		userID:        userID,
		log:           log,
		selected:      make(map[string]struct{}),
		sending:       make(map[string]bool),
		urls:          make(map[string]cachedURL),
		urlBusy:       make(map[string]bool),
		healthy:       true,
		now:           time.Now,
	}
}

// --- conversation focus ---

func (ctl *Controller) ActiveConversation() string {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.activeID
}

// SelectConversation switches the active conversation and loads its turns.
// An empty id deselects and clears the chat view.
func (ctl *Controller) SelectConversation(ctx context.Context, id string) {
	ctl.mu.Lock()
	ctl.activeID = id
	ctl.mu.Unlock()
	ctl.chat.Refresh(ctx, id)
}

// DeleteConversation removes a conversation after confirmation. Deleting
// the active conversation clears the chat view.
func (ctl *Controller) DeleteConversation(ctx context.Context, id string) error {
	if ctl.Confirm != nil && !ctl.Confirm("Delete this conversation and its history?") {
		return ErrCancelled
	}
	if err := ctl.conversations.Delete(ctx, id); err != nil {
		return err
	}
	ctl.mu.Lock()
	wasActive := ctl.activeID == id
	if wasActive {
		ctl.activeID = ""
	}
	ctl.mu.Unlock()
	if wasActive {
		ctl.chat.Refresh(ctx, "")
	}
	return nil
}

// --- document selection ---

// SelectForAnalysis adds a document to the explicit analysis set.
func (ctl *Controller) SelectForAnalysis(docID string) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.selected[docID] = struct{}{}
}

func (ctl *Controller) Deselect(docID string) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	delete(ctl.selected, docID)
}

func (ctl *Controller) SelectedDocIDs() []string {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	out := make([]string, 0, len(ctl.selected))
	for id := range ctl.selected {
		out = append(out, id)
	}
	return out
}

// IsSending reports whether a turn is pending in the given conversation.
func (ctl *Controller) IsSending(conversationID string) bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.sending[conversationID]
}

// --- send ---

// Send runs one turn: resolve the document set from mentions and explicit
// selection, route the message into the active (or a new) conversation,
// sync the association set, and issue the query. The chat view is refreshed
// afterwards regardless of outcome, since the backend records a terminal
// response for the turn even when answering fails.
func (ctl *Controller) Send(ctx context.Context, text string) (*gateway.QueryResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !ctl.Healthy() {
		return nil, fmt.Errorf("send: %w", gateway.ErrUnavailable)
	}

	convs := ctl.conversations.Refresh(ctx)
	known := ctl.docs.Documents()

	mentioned := assoc.DetectMentions(text, known)
	docIDs := assoc.MergeIDs(mentioned, ctl.SelectedDocIDs())

	ctl.mu.Lock()
	activeID := ctl.activeID
	ctl.mu.Unlock()

	var convID string
	if activeID == "" {
		// No active conversation: start one. Adoption of unattached
		// documents only happens here, and only when the message named
		// nothing and selected nothing explicitly.
		if len(docIDs) == 0 && assoc.WantsAdoption(text) {
			docIDs = assoc.Unassociated(known, convs)
		}
		created, err := ctl.conversations.Create(ctx, assoc.TitleFromMessage(text), docIDs)
		if err != nil {
			return nil, err
		}
		convID = created.ID
		ctl.mu.Lock()
		ctl.activeID = convID
		ctl.mu.Unlock()
	} else {
		conv, ok := ctl.conversations.Get(activeID)
		if !ok {
			return nil, fmt.Errorf("conversation %s: %w", activeID, gateway.ErrNotFound)
		}
		convID = conv.ID

		// First message into an auto-named conversation renames it.
		if assoc.IsGenericTitle(conv.Name) {
			if rows, err := ctl.gw.ChatHistory(ctx, convID, ctl.userID); err == nil && len(rows) == 0 {
				name := assoc.TitleFromMessage(text)
				if err := ctl.conversations.Update(ctx, convID, gateway.ConversationPatch{Name: &name}); err != nil {
					ctl.log.WithError(err).Warn("conversation rename failed")
				}
			}
		}

		merged := assoc.MergeIDs(conv.DocIDs, docIDs)
		if len(merged) != len(conv.DocIDs) {
			if err := ctl.conversations.Update(ctx, convID, gateway.ConversationPatch{DocIDs: &merged}); err != nil {
				return nil, fmt.Errorf("associate documents: %w", err)
			}
		}
		docIDs = merged
	}

	ctl.mu.Lock()
	if ctl.sending[convID] {
		ctl.mu.Unlock()
		return nil, ErrSendInFlight
	}
	ctl.sending[convID] = true
	ctl.mu.Unlock()
	defer func() {
		ctl.mu.Lock()
		delete(ctl.sending, convID)
		ctl.mu.Unlock()
	}()

	res, qerr := ctl.gw.Query(ctx, gateway.QueryRequest{
		Query:     text,
		SessionID: convID,
		UserID:    ctl.userID,
		DocIDs:    docIDs,
		K:         retrievalK,
	})

	ctl.chat.Refresh(ctx, convID)
	if qerr != nil {
		return nil, qerr
	}
	return res, nil
}

// --- upload ---

// Upload stores a file and attaches it to a conversation. With no active
// conversation it reuses the most recent one that has no documents and no
// messages, and otherwise creates a fresh one named after the file.
func (ctl *Controller) Upload(ctx context.Context, filename, contentType string, r io.Reader) (*gateway.Document, error) {
	ctl.mu.Lock()
	convID := ctl.activeID
	ctl.mu.Unlock()

	if convID == "" {
		convs := ctl.conversations.Refresh(ctx)
		convID = ctl.reusableConversation(ctx, convs)
		if convID == "" {
			created, err := ctl.conversations.Create(ctx, assoc.TitleForUpload([]string{filename}), nil)
			if err != nil {
				return nil, err
			}
			convID = created.ID
		}
		ctl.mu.Lock()
		ctl.activeID = convID
		ctl.mu.Unlock()
		ctl.chat.Refresh(ctx, convID)
	}

	doc, err := ctl.docs.Upload(ctx, convID, filename, contentType, r)
	if err != nil {
		return nil, err
	}

	if conv, ok := ctl.conversations.Get(convID); ok {
		merged := assoc.MergeIDs(conv.DocIDs, []string{doc.ID})
		if len(merged) != len(conv.DocIDs) {
			if err := ctl.conversations.Update(ctx, convID, gateway.ConversationPatch{DocIDs: &merged}); err != nil {
				return doc, fmt.Errorf("link uploaded document: %w", err)
			}
		}
	}
	return doc, nil
}

// reusableConversation finds the most recent conversation with no documents
// and no messages. History fetch failures skip the candidate rather than
// blocking the upload.
func (ctl *Controller) reusableConversation(ctx context.Context, convs []gateway.Conversation) string {
	for _, c := range convs {
		if len(c.DocIDs) != 0 {
			continue
		}
		rows, err := ctl.gw.ChatHistory(ctx, c.ID, ctl.userID)
		if err != nil {
			continue
		}
		if len(rows) == 0 {
			return c.ID
		}
	}
	return ""
}

// --- document deletion ---

// DeleteDocument removes a document everywhere it is referenced: unlink it
// from every conversation, drop it from the analysis selection, close the
// viewer if it shows the document, delete the backend record, then refresh.
// The local cleanup steps are never rolled back; failures are collected and
// reported together at the end.
func (ctl *Controller) DeleteDocument(ctx context.Context, docID string) error {
	var errs []error

	for _, conv := range ctl.conversations.Conversations() {
		if !containsID(conv.DocIDs, docID) {
			continue
		}
		kept := assoc.RemoveID(conv.DocIDs, docID)
		if err := ctl.conversations.Update(ctx, conv.ID, gateway.ConversationPatch{DocIDs: &kept}); err != nil {
			ctl.log.WithError(err).WithField("conversation_id", conv.ID).Warn("unlink during delete failed")
			errs = append(errs, fmt.Errorf("unlink from conversation %s: %w", conv.ID, err))
		}
	}

	ctl.mu.Lock()
	delete(ctl.selected, docID)
	delete(ctl.urls, docID)
	if ctl.viewerID == docID {
		ctl.viewerID = ""
	}
	ctl.mu.Unlock()

	if err := ctl.docs.Delete(ctx, docID); err != nil {
		ctl.log.WithError(err).WithField("doc_id", docID).Error("document delete failed")
		errs = append(errs, fmt.Errorf("delete document: %w", err))
	}

	ctl.docs.Refresh(ctx)
	ctl.conversations.Refresh(ctx)

	return errors.Join(errs...)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// --- document viewer ---

func (ctl *Controller) OpenDocument(docID string) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.viewerID = docID
}

func (ctl *Controller) CloseViewer() {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.viewerID = ""
}

func (ctl *Controller) ViewerDocument() string {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.viewerID
}

// DocumentURL returns a short-lived link for viewing a document, reusing a
// cached one until it nears expiry. Concurrent fetches for the same
// document are rejected rather than duplicated.
func (ctl *Controller) DocumentURL(ctx context.Context, docID string) (string, error) {
	ctl.mu.Lock()
	if cached, ok := ctl.urls[docID]; ok && ctl.now().Before(cached.expires) {
		ctl.mu.Unlock()
		return cached.url, nil
	}
	if ctl.urlBusy[docID] {
		ctl.mu.Unlock()
		return "", ErrURLInFlight
	}
	ctl.urlBusy[docID] = true
	ctl.mu.Unlock()

	defer func() {
		ctl.mu.Lock()
		delete(ctl.urlBusy, docID)
		ctl.mu.Unlock()
	}()

	u, err := ctl.gw.DocumentURL(ctx, docID, ctl.userID)
	if err != nil {
		return "", err
	}

	ctl.mu.Lock()
	ctl.urls[docID] = cachedURL{url: u, expires: ctl.now().Add(signedURLTTL)}
	ctl.mu.Unlock()
	return u, nil
}

// --- health ---

// Healthy reports the last observed backend health. It starts true so sends
// are not blocked before the first poll completes.
func (ctl *Controller) Healthy() bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.healthy
}

// StartHealthPolling checks backend health at the given interval until ctx
// is cancelled. While unhealthy, Send refuses new turns.
func (ctl *Controller) StartHealthPolling(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		ctl.checkHealth(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ctl.checkHealth(ctx)
			}
		}
	}()
}

func (ctl *Controller) checkHealth(ctx context.Context) {
	h, err := ctl.gw.Health(ctx)
	ok := err == nil && h.Status == "ok"

	ctl.mu.Lock()
	changed := ctl.healthy != ok
	ctl.healthy = ok
	ctl.mu.Unlock()

	if changed {
		if ok {
			ctl.log.Info("backend healthy")
		} else {
			ctl.log.WithError(err).Warn("backend unhealthy, sends disabled")
		}
	}
}
