package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arifwid/docuchat/pkg/gateway"
	"github.com/arifwid/docuchat/pkg/store"
)

// fakeBackend is an in-memory stand-in for the docuchat API, covering the
// routes the controller exercises.
type fakeBackend struct {
	mu      sync.Mutex
	convs   map[string]*gateway.Conversation
	order   []string // creation order, newest appended last
	docs    map[string]*gateway.Document
	history map[string][]gateway.LogRow
	nextID  int

	patchFail map[string]bool // conversation ids whose PATCH fails
	degraded  bool

	queries  []gateway.QueryRequest
	urlCalls int

	queryStarted chan struct{}
	queryRelease chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		convs:     make(map[string]*gateway.Conversation),
		docs:      make(map[string]*gateway.Document),
		history:   make(map[string][]gateway.LogRow),
		patchFail: make(map[string]bool),
	}
}

func (f *fakeBackend) addConv(name string, docIDs ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	f.convs[id] = &gateway.Conversation{ID: id, UserID: "u1", Name: name, DocIDs: docIDs}
	f.order = append(f.order, id)
	return id
}

func (f *fakeBackend) addDoc(filename string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("d%d", f.nextID)
	f.docs[id] = &gateway.Document{ID: id, UserID: "u1", Filename: filename, Status: "stored"}
	return id
}

func (f *fakeBackend) addRow(convID, prompt, response string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.history[convID]
	f.history[convID] = append(rows, gateway.LogRow{
		ID: fmt.Sprintf("r%d", len(rows)+1), SessionID: convID,
		Prompt: prompt, Response: response, Step: len(rows) + 1, CreatedAt: time.Now(),
	})
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions/{$}", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			UserID string   `json:"user_id"`
			Name   string   `json:"name"`
			DocIDs []string `json:"doc_ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		f.nextID++
		id := fmt.Sprintf("c%d", f.nextID)
		f.convs[id] = &gateway.Conversation{ID: id, UserID: in.UserID, Name: in.Name, DocIDs: in.DocIDs}
		f.order = append(f.order, id)
		conv := *f.convs[id]
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(conv)
	})

	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		out := []gateway.Conversation{}
		for i := len(f.order) - 1; i >= 0; i-- { // newest first
			if c, ok := f.convs[f.order[i]]; ok {
				out = append(out, *c)
			}
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"sessions": out})
	})

	mux.HandleFunc("PATCH /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.patchFail[id] {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "internal", "message": "boom"})
			return
		}
		c, ok := f.convs[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var patch gateway.ConversationPatch
		_ = json.NewDecoder(r.Body).Decode(&patch)
		if patch.Name != nil {
			c.Name = *patch.Name
		}
		if patch.DocIDs != nil {
			c.DocIDs = *patch.DocIDs
		}
		_ = json.NewEncoder(w).Encode(c)
	})

	mux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		delete(f.convs, r.PathValue("id"))
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	})

	mux.HandleFunc("GET /sessions/{id}/chat-history", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		rows := append([]gateway.LogRow{}, f.history[r.PathValue("id")]...)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"chat_history": rows})
	})

	mux.HandleFunc("POST /documents/upload", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		_, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.nextID++
		id := fmt.Sprintf("d%d", f.nextID)
		f.docs[id] = &gateway.Document{ID: id, UserID: r.FormValue("user_id"), Filename: hdr.Filename, Status: "processing"}
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"doc_id": id, "filename": hdr.Filename, "status": "processing"})
	})

	// "GET /documents/user/{id}" and "GET /documents/{id}/url" conflict under
	// the Go 1.22+ ServeMux precedence rules, so both live behind one pattern.
	mux.HandleFunc("GET /documents/{first}/{second}", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.PathValue("first") == "user":
			f.mu.Lock()
			out := []gateway.Document{}
			for _, d := range f.docs {
				out = append(out, *d)
			}
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"documents": out})
		case r.PathValue("second") == "url":
			f.mu.Lock()
			f.urlCalls++
			n := f.urlCalls
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"url": fmt.Sprintf("https://signed.example/%s?n=%d", r.PathValue("first"), n)})
		default:
			http.NotFound(w, r)
		}
	})

	mux.HandleFunc("DELETE /documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		delete(f.docs, r.PathValue("id"))
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	})

	mux.HandleFunc("POST /query/", func(w http.ResponseWriter, r *http.Request) {
		var req gateway.QueryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.queries = append(f.queries, req)
		started, release := f.queryStarted, f.queryRelease
		f.mu.Unlock()

		if started != nil {
			started <- struct{}{}
			<-release
		}

		f.addRow(req.SessionID, req.Query, "an answer")
		_ = json.NewEncoder(w).Encode(gateway.QueryResult{
			Status: "ok", SessionID: req.SessionID, Response: "an answer",
		})
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		degraded := f.degraded
		f.mu.Unlock()
		status := "ok"
		if degraded {
			status = "degraded"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(gateway.HealthStatus{Status: status})
	})

	return mux
}

func newTestController(t *testing.T, f *fakeBackend) *Controller {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	gw := gateway.New(srv.URL, nil, nil)
	convs := store.NewConversationStore(gw, "u1", nil)
	chatStore := store.NewChatStore(gw, "u1", nil)
	docs := store.NewDocumentStore(gw, "u1", nil)

	ctl := NewController(gw, convs, chatStore, docs, "u1", nil)
	convs.Refresh(context.Background())
	docs.Refresh(context.Background())
	return ctl
}

func (f *fakeBackend) conv(t *testing.T, id string) gateway.Conversation {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	require.True(t, ok, "conversation %s missing", id)
	return *c
}

func TestSendCreatesConversationFromMention(t *testing.T) {
	f := newFakeBackend()
	docID := f.addDoc("report.pdf")
	ctl := newTestController(t, f)

	res, err := ctl.Send(context.Background(), "Summarize report.pdf for me please")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)

	convID := ctl.ActiveConversation()
	require.NotEmpty(t, convID)

	conv := f.conv(t, convID)
	assert.Equal(t, []string{docID}, conv.DocIDs)
	assert.Equal(t, "Summarize report.pdf for...", conv.Name)

	require.Len(t, f.queries, 1)
	assert.Equal(t, []string{docID}, f.queries[0].DocIDs)
	assert.Equal(t, 4, f.queries[0].K)

	// Chat view reflects the stored turn.
	turns := ctl.chat.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "an answer", turns[1].Text)
}

func TestSendAdoptsUnattachedDocuments(t *testing.T) {
	f := newFakeBackend()
	docID := f.addDoc("notes.txt")
	ctl := newTestController(t, f)

	_, err := ctl.Send(context.Background(), "please analyze everything I sent you")
	require.NoError(t, err)

	conv := f.conv(t, ctl.ActiveConversation())
	assert.Equal(t, []string{docID}, conv.DocIDs, "orphan document should be adopted into the new conversation")
}

func TestSendSkipsAdoptionWhenSelectionExplicit(t *testing.T) {
	f := newFakeBackend()
	wanted := f.addDoc("alpha.bin")
	f.addDoc("orphan.bin")
	ctl := newTestController(t, f)
	ctl.docs.Refresh(context.Background())

	ctl.SelectForAnalysis(wanted)
	_, err := ctl.Send(context.Background(), "analyze this")
	require.NoError(t, err)

	conv := f.conv(t, ctl.ActiveConversation())
	assert.Equal(t, []string{wanted}, conv.DocIDs, "explicit selection must suppress adoption")
}

func TestSendMergesMentionIntoActiveConversation(t *testing.T) {
	f := newFakeBackend()
	d1 := f.addDoc("first.pdf")
	d2 := f.addDoc("second.pdf")
	convID := f.addConv("My research", d1)
	f.addRow(convID, "earlier question", "earlier answer")
	ctl := newTestController(t, f)
	ctl.SelectConversation(context.Background(), convID)

	_, err := ctl.Send(context.Background(), "now compare with second.pdf")
	require.NoError(t, err)

	conv := f.conv(t, convID)
	assert.Equal(t, []string{d1, d2}, conv.DocIDs, "mentioned document joins the existing set")
	assert.Equal(t, "My research", conv.Name, "non-generic titles are never rewritten")

	require.Len(t, f.queries, 1)
	assert.ElementsMatch(t, []string{d1, d2}, f.queries[0].DocIDs)
}

func TestSendRenamesGenericTitleOnFirstMessage(t *testing.T) {
	f := newFakeBackend()
	convID := f.addConv("Document: report.pdf")
	ctl := newTestController(t, f)
	ctl.SelectConversation(context.Background(), convID)

	_, err := ctl.Send(context.Background(), "What does the contract say?")
	require.NoError(t, err)

	assert.Equal(t, "What does the...", f.conv(t, convID).Name)
}

func TestSendKeepsGenericTitleAfterFirstMessage(t *testing.T) {
	f := newFakeBackend()
	convID := f.addConv("Document: report.pdf")
	f.addRow(convID, "already asked", "already answered")
	ctl := newTestController(t, f)
	ctl.SelectConversation(context.Background(), convID)

	_, err := ctl.Send(context.Background(), "follow-up question here")
	require.NoError(t, err)

	assert.Equal(t, "Document: report.pdf", f.conv(t, convID).Name,
		"rename only applies to the first message")
}

func TestSendRejectsConcurrentTurn(t *testing.T) {
	f := newFakeBackend()
	convID := f.addConv("busy one")
	f.queryStarted = make(chan struct{})
	f.queryRelease = make(chan struct{})
	ctl := newTestController(t, f)
	ctl.SelectConversation(context.Background(), convID)

	done := make(chan error, 1)
	go func() {
		_, err := ctl.Send(context.Background(), "slow question")
		done <- err
	}()

	<-f.queryStarted
	assert.True(t, ctl.IsSending(convID))

	_, err := ctl.Send(context.Background(), "impatient second question")
	assert.ErrorIs(t, err, ErrSendInFlight)

	close(f.queryRelease)
	require.NoError(t, <-done)
	assert.False(t, ctl.IsSending(convID))
}

func TestSendEmptyMessage(t *testing.T) {
	ctl := newTestController(t, newFakeBackend())
	_, err := ctl.Send(context.Background(), "   \n ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendBlockedWhileUnhealthy(t *testing.T) {
	f := newFakeBackend()
	f.degraded = true
	ctl := newTestController(t, f)

	ctl.checkHealth(context.Background())
	assert.False(t, ctl.Healthy())

	_, err := ctl.Send(context.Background(), "hello?")
	assert.ErrorIs(t, err, gateway.ErrUnavailable)

	f.mu.Lock()
	f.degraded = false
	f.mu.Unlock()
	ctl.checkHealth(context.Background())
	assert.True(t, ctl.Healthy())
}

func TestUploadReusesEmptyConversation(t *testing.T) {
	f := newFakeBackend()
	emptyID := f.addConv("New Chat")
	usedID := f.addConv("Old one")
	f.addRow(usedID, "q", "a")
	ctl := newTestController(t, f)

	doc, err := ctl.Upload(context.Background(), "report.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	assert.Equal(t, emptyID, ctl.ActiveConversation(), "empty conversation should be reused, not a new one created")
	assert.Equal(t, []string{doc.ID}, f.conv(t, emptyID).DocIDs)
	assert.Equal(t, "processing", doc.Status)
}

func TestUploadCreatesConversationNamedAfterFile(t *testing.T) {
	f := newFakeBackend()
	busyID := f.addConv("Not reusable", "d-something")
	_ = busyID
	ctl := newTestController(t, f)

	doc, err := ctl.Upload(context.Background(), "report.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	convID := ctl.ActiveConversation()
	require.NotEmpty(t, convID)
	conv := f.conv(t, convID)
	assert.Equal(t, "Document: report.pdf", conv.Name)
	assert.Equal(t, []string{doc.ID}, conv.DocIDs)
}

func TestUploadIntoActiveConversation(t *testing.T) {
	f := newFakeBackend()
	d1 := f.addDoc("old.pdf")
	convID := f.addConv("Working set", d1)
	ctl := newTestController(t, f)
	ctl.SelectConversation(context.Background(), convID)

	doc, err := ctl.Upload(context.Background(), "new.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	assert.Equal(t, []string{d1, doc.ID}, f.conv(t, convID).DocIDs)
}

func TestDeleteDocumentCleansEverywhere(t *testing.T) {
	f := newFakeBackend()
	docID := f.addDoc("doomed.pdf")
	keepID := f.addDoc("kept.pdf")
	c1 := f.addConv("one", docID, keepID)
	c2 := f.addConv("two", docID)
	f.patchFail[c2] = true // unlink from c2 will fail

	ctl := newTestController(t, f)
	ctl.SelectForAnalysis(docID)
	ctl.OpenDocument(docID)

	err := ctl.DeleteDocument(context.Background(), docID)
	require.Error(t, err, "the failed unlink must surface")

	// Local cleanup ran despite the failure.
	assert.Empty(t, ctl.SelectedDocIDs())
	assert.Empty(t, ctl.ViewerDocument())

	// The reachable conversation lost the link; the backend row is gone.
	assert.Equal(t, []string{keepID}, f.conv(t, c1).DocIDs)
	f.mu.Lock()
	_, stillThere := f.docs[docID]
	f.mu.Unlock()
	assert.False(t, stillThere, "backend delete must run even when an unlink failed")

	for _, d := range ctl.docs.Documents() {
		assert.NotEqual(t, docID, d.ID, "deleted document must leave the cache")
	}
}

func TestDeleteConversationConfirmDeclined(t *testing.T) {
	f := newFakeBackend()
	convID := f.addConv("precious")
	ctl := newTestController(t, f)
	ctl.Confirm = func(string) bool { return false }

	err := ctl.DeleteConversation(context.Background(), convID)
	assert.ErrorIs(t, err, ErrCancelled)
	f.mu.Lock()
	_, exists := f.convs[convID]
	f.mu.Unlock()
	assert.True(t, exists)
}

func TestDeleteActiveConversationClearsChatView(t *testing.T) {
	f := newFakeBackend()
	convID := f.addConv("going away")
	f.addRow(convID, "q", "a")
	ctl := newTestController(t, f)
	ctl.SelectConversation(context.Background(), convID)
	require.NotEmpty(t, ctl.chat.Turns())

	require.NoError(t, ctl.DeleteConversation(context.Background(), convID))
	assert.Empty(t, ctl.ActiveConversation())
	assert.Empty(t, ctl.chat.Turns())
}

func TestDocumentURLCachedUntilExpiry(t *testing.T) {
	f := newFakeBackend()
	docID := f.addDoc("viewme.pdf")
	ctl := newTestController(t, f)

	current := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	ctl.now = func() time.Time { return current }

	u1, err := ctl.DocumentURL(context.Background(), docID)
	require.NoError(t, err)
	u2, err := ctl.DocumentURL(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, u1, u2)
	assert.Equal(t, 1, f.urlCalls, "second call within the TTL must hit the cache")

	current = current.Add(signedURLTTL + time.Second)
	u3, err := ctl.DocumentURL(context.Background(), docID)
	require.NoError(t, err)
	assert.NotEqual(t, u1, u3)
	assert.Equal(t, 2, f.urlCalls)
}
