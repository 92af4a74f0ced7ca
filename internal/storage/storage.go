package storage

import (
	"context"
	"io"
	"time"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) error
}

type Signer interface {
	SignedGetURL(objectName string, ttl time.Duration) (string, error)
}

type Deleter interface {
	Delete(ctx context.Context, objectName string) error
}

// ObjectStore is what the document flows need end to end.
type ObjectStore interface {
	Uploader
	Signer
	Deleter
}
