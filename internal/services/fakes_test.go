package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/arifwid/docuchat/internal/answerer"
	"github.com/arifwid/docuchat/internal/models"
	"github.com/arifwid/docuchat/internal/utils"
	"github.com/arifwid/docuchat/internal/workers"
)

// In-memory repository doubles mirroring the postgres/mongo behavior the
// services rely on, including the ErrNotFound contracts.

type memSessionRepo struct {
	mu         sync.Mutex
	rows       map[string]*models.Session
	failUpdate map[string]bool
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{rows: make(map[string]*models.Session), failUpdate: make(map[string]bool)}
}

func (r *memSessionRepo) Insert(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memSessionRepo) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Session
	for _, row := range r.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memSessionRepo) UpdateFields(_ context.Context, id string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate[id] {
		return errors.New("update rejected")
	}
	row, ok := r.rows[id]
	if !ok {
		return utils.ErrNotFound
	}
	if v, ok := fields["name"]; ok {
		row.Name = v.(string)
	}
	if v, ok := fields["doc_ids"]; ok {
		row.DocIDs = v.(pq.StringArray)
	}
	if v, ok := fields["updated_at"]; ok {
		row.UpdatedAt = v.(time.Time)
	}
	return nil
}

func (r *memSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return utils.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memSessionRepo) ContainingDoc(_ context.Context, docID string) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Session
	for _, row := range r.rows {
		for _, id := range row.DocIDs {
			if id == docID {
				out = append(out, *row)
				break
			}
		}
	}
	return out, nil
}

type memChatLogRepo struct {
	mu   sync.Mutex
	rows map[string]*models.ChatLog
}

func newMemChatLogRepo() *memChatLogRepo {
	return &memChatLogRepo{rows: make(map[string]*models.ChatLog)}
}

func (r *memChatLogRepo) Insert(_ context.Context, log *models.ChatLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	r.rows[log.ID] = &cp
	return nil
}

func (r *memChatLogRepo) GetByID(_ context.Context, id string) (*models.ChatLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memChatLogRepo) ListBySession(_ context.Context, sessionID string) ([]models.ChatLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ChatLog
	for _, row := range r.rows {
		if row.SessionID == sessionID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Step != out[j].Step {
			return out[i].Step < out[j].Step
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memChatLogRepo) CountBySession(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (r *memChatLogRepo) UpdateResponse(_ context.Context, id, response string, metadata datatypes.JSON) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return utils.ErrNotFound
	}
	row.Response = response
	if len(metadata) > 0 {
		row.Metadata = metadata
	}
	return nil
}

func (r *memChatLogRepo) DeleteBySession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.SessionID == sessionID {
			delete(r.rows, id)
		}
	}
	return nil
}

type memDocRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Document
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{rows: make(map[string]*models.Document)}
}

func (r *memDocRepo) Insert(_ context.Context, d *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.rows[d.ID] = &cp
	return nil
}

func (r *memDocRepo) GetByID(_ context.Context, id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memDocRepo) ListByUser(_ context.Context, userID string) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Document
	for _, row := range r.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memDocRepo) ListByIDs(_ context.Context, ids []string) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Document
	for _, id := range ids {
		if row, ok := r.rows[id]; ok {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memDocRepo) UpdateStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return utils.ErrNotFound
	}
	row.Status = status
	return nil
}

func (r *memDocRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return utils.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

type memStatusRepo struct {
	mu   sync.Mutex
	rows map[string]*models.DocumentStatus
}

func newMemStatusRepo() *memStatusRepo {
	return &memStatusRepo{rows: make(map[string]*models.DocumentStatus)}
}

func (r *memStatusRepo) Upsert(_ context.Context, docID, status, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[docID] = &models.DocumentStatus{
		DocID: docID, Status: status, Message: message, Timestamp: time.Now().UTC(),
	}
	return nil
}

func (r *memStatusRepo) Get(_ context.Context, docID string) (*models.DocumentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[docID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memStatusRepo) Delete(_ context.Context, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, docID)
	return nil
}

type memObjectStore struct {
	mu       sync.Mutex
	uploaded map[string]bool
	deleted  []string
	signed   int
	failSign bool
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{uploaded: make(map[string]bool)}
}

func (s *memObjectStore) Upload(_ context.Context, objectName, _ string, _ io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[objectName] = true
	return nil
}

func (s *memObjectStore) SignedGetURL(objectName string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSign {
		return "", errors.New("signing failed")
	}
	s.signed++
	return fmt.Sprintf("https://signed.example/%s?n=%d", objectName, s.signed), nil
}

func (s *memObjectStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectName)
	return nil
}

type memCache struct {
	mu   sync.Mutex
	vals map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{vals: make(map[string][]byte)}
}

func (c *memCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.vals[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.vals[key] = b
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.vals, k)
	}
	return nil
}

type memQueue struct {
	mu   sync.Mutex
	jobs []workers.IngestJob
	fail bool
}

func (q *memQueue) Enqueue(_ context.Context, job workers.IngestJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return errors.New("queue unavailable")
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// stubProvider counts calls so tests can assert the engine was (not) hit.
type stubProvider struct {
	mu    sync.Mutex
	calls int
	fail  bool
	text  string
	ctxs  []string
}

func (p *stubProvider) Answer(_ context.Context, req answerer.Request) (*answerer.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return nil, errors.New("engine exploded")
	}
	return &answerer.Result{Answer: p.text, SourceDocuments: req.DocIDs, Context: p.ctxs}, nil
}
