package storage

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisWrapper "github.com/framefold/canvas/common/redis"
)

// RedisStore keeps blobs in Redis. Persisted objects live under
// blob:{bucket}:{key} with no expiry; temp objects are content-addressed
// (SHA256 of the bytes) under blob:temp:{hash} with a bounded TTL, so
// re-rendering the same intermediate media refreshes the existing entry
// instead of duplicating it.
type RedisStore struct {
	redis   *redisWrapper.Client
	tempTTL time.Duration
	logger  Logger
}

// NewRedisStore creates a Redis-backed blob store
func NewRedisStore(redis *redisWrapper.Client, tempTTL time.Duration, logger Logger) *RedisStore {
	return &RedisStore{
		redis:   redis,
		tempTTL: tempTTL,
		logger:  logger,
	}
}

// Put stores a persisted object and its metadata (single round-trip)
func (s *RedisStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	meta, err := json.Marshal(BlobInfo{ContentType: contentType, Size: int64(len(data))})
	if err != nil {
		return fmt.Errorf("failed to marshal blob metadata: %w", err)
	}

	pipe := s.redis.NewPipeline()
	pipe.Set(ctx, blobKey(bucket, key), string(data), 0)
	pipe.Set(ctx, blobKey(bucket, key)+":meta", string(meta), 0)
	if err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to store blob", "bucket", bucket, "key", key, "error", err)
		return fmt.Errorf("failed to store blob %s/%s: %w", bucket, key, err)
	}

	s.logger.Debug("stored blob", "bucket", bucket, "key", key, "size", len(data))
	return nil
}

// Get retrieves a persisted object's bytes
func (s *RedisStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, blobKey(bucket, key))
	if err != nil {
		if errors.Is(err, redisWrapper.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrBlobNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to get blob %s/%s: %w", bucket, key, err)
	}
	return []byte(data), nil
}

// Info retrieves a persisted object's metadata without the bytes
func (s *RedisStore) Info(ctx context.Context, bucket, key string) (*BlobInfo, error) {
	raw, err := s.redis.Get(ctx, blobKey(bucket, key)+":meta")
	if err != nil {
		if errors.Is(err, redisWrapper.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrBlobNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to get blob metadata %s/%s: %w", bucket, key, err)
	}

	var info BlobInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal blob metadata %s/%s: %w", bucket, key, err)
	}
	return &info, nil
}

// PutTemp stores a temp object and returns its content-addressed key
func (s *RedisStore) PutTemp(ctx context.Context, data []byte, contentType string) (string, error) {
	hash := fmt.Sprintf("sha256:%x", sha256.Sum256(data))

	meta, err := json.Marshal(BlobInfo{ContentType: contentType, Size: int64(len(data))})
	if err != nil {
		return "", fmt.Errorf("failed to marshal blob metadata: %w", err)
	}

	pipe := s.redis.NewPipeline()
	pipe.Set(ctx, tempKey(hash), string(data), s.tempTTL)
	pipe.Set(ctx, tempKey(hash)+":meta", string(meta), s.tempTTL)
	if err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to store temp blob", "temp_key", hash, "error", err)
		return "", fmt.Errorf("failed to store temp blob: %w", err)
	}

	s.logger.Debug("stored temp blob", "temp_key", hash, "size", len(data), "ttl", s.tempTTL)
	return hash, nil
}

// GetTemp retrieves a temp object's bytes
func (s *RedisStore) GetTemp(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, tempKey(key))
	if err != nil {
		if errors.Is(err, redisWrapper.ErrKeyNotFound) {
			s.logger.Warn("temp blob not found, likely expired", "temp_key", key)
			return nil, fmt.Errorf("%w: temp %s", ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("failed to get temp blob %s: %w", key, err)
	}
	return []byte(data), nil
}

// TempInfo retrieves a temp object's metadata without the bytes
func (s *RedisStore) TempInfo(ctx context.Context, key string) (*BlobInfo, error) {
	raw, err := s.redis.Get(ctx, tempKey(key)+":meta")
	if err != nil {
		if errors.Is(err, redisWrapper.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: temp %s", ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("failed to get temp blob metadata %s: %w", key, err)
	}

	var info BlobInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal temp blob metadata %s: %w", key, err)
	}
	return &info, nil
}

func blobKey(bucket, key string) string {
	return fmt.Sprintf("blob:%s:%s", bucket, key)
}

func tempKey(key string) string {
	return fmt.Sprintf("blob:temp:%s", key)
}
