package answerer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type HTTPProvider struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
}

func NewHTTPProvider(endpoint, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

// wire response: some engine builds answer under "response", others under
// "answer"; accept both.
type wireResult struct {
	Response        string   `json:"response"`
	Answer          string   `json:"answer"`
	Context         []string `json:"context"`
	SourceDocuments []string `json:"source_documents"`
}

func (p *HTTPProvider) Answer(ctx context.Context, req Request) (*Result, error) {
	if req.K <= 0 {
		req.K = 4
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/answer", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("answerer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out wireResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	answer := out.Response
	if answer == "" {
		answer = out.Answer
	}
	if answer == "" {
		return nil, fmt.Errorf("answerer returned an empty answer")
	}

	return &Result{
		Answer:          answer,
		Context:         out.Context,
		SourceDocuments: out.SourceDocuments,
	}, nil
}
