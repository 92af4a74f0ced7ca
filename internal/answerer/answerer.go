// Package answerer talks to the external retrieval/generation engine. None
// of the retrieval, ranking, or generation logic lives in this repo; the
// provider is a thin, swappable client.
package answerer

import "context"

type Request struct {
	Query  string   `json:"query"`
	UserID string   `json:"user_id"`
	DocIDs []string `json:"doc_ids"`
	K      int      `json:"k"`
}

type Result struct {
	Answer          string   `json:"answer"`
	Context         []string `json:"context,omitempty"`
	SourceDocuments []string `json:"source_documents,omitempty"`
}

type Provider interface {
	Answer(ctx context.Context, req Request) (*Result, error)
}
