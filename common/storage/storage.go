package storage

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned when a requested object does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// BlobInfo carries object metadata without the bytes.
type BlobInfo struct {
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Store is the blob storage surface the engine consumes. Persisted objects
// live under (bucket, key) and survive indefinitely; temp objects carry
// generated keys and a bounded TTL, holding media between pipeline stages
// until some terminal node exports them.
//
// All implementations must be context-aware and thread-safe.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Info(ctx context.Context, bucket, key string) (*BlobInfo, error)
	PutTemp(ctx context.Context, data []byte, contentType string) (string, error)
	GetTemp(ctx context.Context, tempKey string) ([]byte, error)
	TempInfo(ctx context.Context, tempKey string) (*BlobInfo, error)
}
