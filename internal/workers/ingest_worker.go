package workers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/arifwid/docuchat/internal/models"
	mongorepo "github.com/arifwid/docuchat/internal/repositories/mongo"
	pgrepo "github.com/arifwid/docuchat/internal/repositories/postgres"
	"github.com/arifwid/docuchat/internal/storage"
)

// IngestWorkerPool consumes upload jobs from a redis stream, moves the file
// bytes into object storage, flips the document's status, links the document
// to its session, and publishes a status event for live listeners.
type IngestWorkerPool struct {
	Redis      *redis.Client
	Docs       pgrepo.DocumentRepository
	Sessions   pgrepo.SessionRepository
	Statuses   mongorepo.StatusRepository
	Store      storage.ObjectStore
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *IngestWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Docs == nil || p.Sessions == nil || p.Store == nil {
		return errors.New("IngestWorkerPool missing dependency: Redis/Docs/Sessions/Store must be set")
	}
	if p.Stream == "" {
		p.Stream = "documents:ingest"
	}
	if p.Group == "" {
		p.Group = "ingest-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 3
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *IngestWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *IngestWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	job := IngestJob{
		DocID:       getStr("doc_id"),
		UserID:      getStr("user_id"),
		SessionID:   getStr("session_id"),
		Filename:    getStr("filename"),
		ContentType: getStr("content_type"),
		LocalPath:   getStr("local_path"),
		ObjectName:  getStr("object_name"),
	}
	if job.DocID == "" || job.LocalPath == "" || job.ObjectName == "" {
		return
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":   msg.ID,
		"doc_id":     job.DocID,
		"session_id": job.SessionID,
	})

	if err := p.ingest(ctx, job); err != nil {
		log.WithError(err).Error("document ingest failed")
		p.markStatus(ctx, job, models.DocStatusFailed, "Error processing document: "+err.Error())
	} else {
		log.Info("document stored")
		p.markStatus(ctx, job, models.DocStatusStored, "Document stored successfully")
		p.linkToSession(ctx, job, log)
	}

	if err := os.Remove(job.LocalPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to remove local upload file")
	}
}

func (p *IngestWorkerPool) ingest(ctx context.Context, job IngestJob) error {
	f, err := os.Open(job.LocalPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return p.Store.Upload(ctx, job.ObjectName, job.ContentType, f)
}

func (p *IngestWorkerPool) linkToSession(ctx context.Context, job IngestJob, log *logrus.Entry) {
	if job.SessionID == "" {
		return
	}
	session, err := p.Sessions.GetByID(ctx, job.SessionID)
	if err != nil {
		log.WithError(err).Warn("failed to load session for linking")
		return
	}
	for _, id := range session.DocIDs {
		if id == job.DocID {
			return // already linked
		}
	}
	merged := append(append([]string{}, session.DocIDs...), job.DocID)
	err = p.Sessions.UpdateFields(ctx, job.SessionID, map[string]any{
		"doc_ids":    pq.StringArray(merged),
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		log.WithError(err).Warn("failed to link document to session")
	}
}

func (p *IngestWorkerPool) markStatus(ctx context.Context, job IngestJob, status, message string) {
	if err := p.Docs.UpdateStatus(ctx, job.DocID, status); err != nil {
		p.Logger.WithError(err).WithField("doc_id", job.DocID).Warn("failed to update document status")
	}
	if p.Statuses != nil {
		if err := p.Statuses.Upsert(ctx, job.DocID, status, message); err != nil {
			p.Logger.WithError(err).WithField("doc_id", job.DocID).Warn("failed to upsert status record")
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"type":     "document_status",
		"doc_id":   job.DocID,
		"filename": job.Filename,
		"status":   status,
		"message":  message,
	})
	_ = p.Redis.Publish(ctx, SessionEventsChannel(job.SessionID), string(payload)).Err()
}

// SessionEventsChannel is the pub/sub channel carrying document status events
// for one session; the websocket handler forwards it to connected clients.
func SessionEventsChannel(sessionID string) string {
	return "session:" + sessionID + ":events"
}
