package answerer

import (
	"context"
	"fmt"
)

// MockProvider echoes a canned answer. Used in tests and when no engine
// endpoint is configured (local development without the retrieval backend).
type MockProvider struct {
	Fail bool
	Text string
}

func (m *MockProvider) Answer(_ context.Context, req Request) (*Result, error) {
	if m.Fail {
		return nil, fmt.Errorf("mock answerer failure")
	}
	text := m.Text
	if text == "" {
		text = fmt.Sprintf("mock answer for %q over %d document(s)", req.Query, len(req.DocIDs))
	}
	return &Result{Answer: text, SourceDocuments: req.DocIDs}, nil
}
