package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// DocURLKey is the cache key for a document's signed access URL.
func DocURLKey(docID string) string { return "doc:" + docID + ":url" }
