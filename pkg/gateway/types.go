package gateway

import "time"

// Conversation is a user-owned chat thread together with its associated
// document-identifier set.
type Conversation struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	DocIDs    []string  `json:"doc_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogRow is one persisted (prompt, response) pair. An empty response means
// the assistant turn is still pending.
type LogRow struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Step      int       `json:"step"`
	CreatedAt time.Time `json:"created_at"`
}

type Document struct {
	ID          string    `json:"doc_id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type ConversationPatch struct {
	Name *string `json:"name,omitempty"`
	// DocIDs is a full replacement of the association set, never a diff.
	DocIDs *[]string `json:"doc_ids,omitempty"`
}

type QueryRequest struct {
	Query     string   `json:"query"`
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id"`
	DocIDs    []string `json:"doc_ids"`
	K         int      `json:"k"`
}

type QueryResult struct {
	Status          string   `json:"status"`
	SessionID       string   `json:"session_id"`
	ChatLogID       string   `json:"chat_log_id"`
	Response        string   `json:"response"`
	SourceDocuments []string `json:"source_documents,omitempty"`
	Context         []string `json:"context,omitempty"`
	NotReadyDocs    []string `json:"not_ready_docs,omitempty"`
	Warning         string   `json:"warning,omitempty"`
}

type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

type DocumentStatus struct {
	DocID     string    `json:"doc_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	IsReady   bool      `json:"is_ready"`
}
