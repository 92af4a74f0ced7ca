package workers

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// IngestJob describes one uploaded file waiting to be moved into object
// storage. The file sits in the local upload dir until a worker picks it up.
type IngestJob struct {
	DocID       string
	UserID      string
	SessionID   string
	Filename    string
	ContentType string
	LocalPath   string
	ObjectName  string
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job IngestJob) error
}

type IngestQueue struct {
	rdb    *redis.Client
	stream string
}

func NewIngestQueue(rdb *redis.Client, stream string) *IngestQueue {
	if stream == "" {
		stream = "documents:ingest"
	}
	return &IngestQueue{rdb: rdb, stream: stream}
}

func (q *IngestQueue) Enqueue(ctx context.Context, job IngestJob) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"doc_id":       job.DocID,
			"user_id":      job.UserID,
			"session_id":   job.SessionID,
			"filename":     job.Filename,
			"content_type": job.ContentType,
			"local_path":   job.LocalPath,
			"object_name":  job.ObjectName,
		},
	}).Err()
}
