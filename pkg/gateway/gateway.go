// Package gateway is the typed client for the docuchat backend API. Every
// request carries the bearer credential of the active session; non-2xx
// responses are normalized into a small error taxonomy so callers never
// inspect status codes themselves.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrAuthRequired signals a missing or rejected credential. Redirecting
	// to a login flow is the caller's concern; the gateway only reports it.
	ErrAuthRequired = errors.New("authentication required")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("backend unavailable")
)

// APIError carries a backend rejection that is none of the sentinel cases.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// TokenSource yields the current bearer token; it is consulted per request
// so refreshed credentials take effect without rebuilding the client.
type TokenSource func() string

type Client struct {
	baseURL string
	httpc   *http.Client
	token   TokenSource
	log     *logrus.Logger
}

func New(baseURL string, token TokenSource, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 120 * time.Second},
		token:   token,
		log:     log,
	}
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	var we wireError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&we)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		c.log.WithFields(logrus.Fields{"path": path, "code": we.Code}).Warn("authentication required")
		return fmt.Errorf("%w: %s", ErrAuthRequired, we.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, we.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrUnavailable, we.Message)
	default:
		return &APIError{Status: resp.StatusCode, Code: we.Code, Message: we.Message}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, query, body, contentType, out)
}

func userQuery(userID string) url.Values {
	return url.Values{"user_id": []string{userID}}
}

// --- sessions ---

func (c *Client) CreateSession(ctx context.Context, userID, name string, docIDs []string) (*Conversation, error) {
	in := map[string]any{"user_id": userID, "name": name, "doc_ids": docIDs}
	var out Conversation
	if err := c.doJSON(ctx, http.MethodPost, "/sessions/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListSessions(ctx context.Context, userID string) ([]Conversation, error) {
	var out struct {
		Sessions []Conversation `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/sessions/"+url.PathEscape(userID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) UpdateSession(ctx context.Context, sessionID, userID string, patch ConversationPatch) (*Conversation, error) {
	var out Conversation
	err := c.doJSON(ctx, http.MethodPatch, "/sessions/"+url.PathEscape(sessionID), userQuery(userID), patch, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID, userID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), userQuery(userID), nil, nil)
}

func (c *Client) ChatHistory(ctx context.Context, sessionID, userID string) ([]LogRow, error) {
	var out struct {
		ChatHistory []LogRow `json:"chat_history"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/chat-history", userQuery(userID), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.ChatHistory, nil
}

func (c *Client) SessionDocuments(ctx context.Context, sessionID, userID string) ([]Document, error) {
	var out struct {
		Documents []Document `json:"documents"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/documents", userQuery(userID), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *Client) LinkDocument(ctx context.Context, sessionID, docID, userID string) error {
	q := userQuery(userID)
	q.Set("document_id", docID)
	return c.doJSON(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/link-document", q, nil, nil)
}

func (c *Client) UnlinkDocument(ctx context.Context, sessionID, docID, userID string) error {
	q := userQuery(userID)
	q.Set("document_id", docID)
	return c.doJSON(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID)+"/unlink-document", q, nil, nil)
}

// --- documents ---

func (c *Client) UploadDocument(ctx context.Context, userID, sessionID, filename, contentType string, r io.Reader) (*Document, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, err
	}
	_ = mw.WriteField("user_id", userID)
	_ = mw.WriteField("session_id", sessionID)
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out struct {
		DocID    string `json:"doc_id"`
		Filename string `json:"filename"`
		Status   string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/documents/upload", nil, &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &Document{
		ID:          out.DocID,
		UserID:      userID,
		Filename:    out.Filename,
		ContentType: contentType,
		Status:      out.Status,
	}, nil
}

func (c *Client) UserDocuments(ctx context.Context, userID string) ([]Document, error) {
	var out struct {
		Documents []Document `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/documents/user/"+url.PathEscape(userID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *Client) DocumentStatus(ctx context.Context, docID, userID string) (*DocumentStatus, error) {
	var out DocumentStatus
	err := c.doJSON(ctx, http.MethodGet, "/documents/"+url.PathEscape(docID)+"/status", userQuery(userID), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DocumentURL(ctx context.Context, docID, userID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/documents/"+url.PathEscape(docID)+"/url", userQuery(userID), nil, &out)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) DeleteDocument(ctx context.Context, docID, userID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/documents/"+url.PathEscape(docID), userQuery(userID), nil, nil)
}

// --- query & health ---

func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	var out QueryResult
	if err := c.doJSON(ctx, http.MethodPost, "/query/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
