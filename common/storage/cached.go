package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/framefold/canvas/common/cache"
)

// CachedStore wraps a Store with a read-through cache. Fan-out graphs load
// the same upstream media once per consumer; the cache absorbs the repeats
// within a batch.
type CachedStore struct {
	store  Store
	cache  cache.Cache
	ttl    time.Duration
	logger Logger
}

// NewCachedStore wraps store with a read-through cache
func NewCachedStore(store Store, c cache.Cache, ttl time.Duration, logger Logger) *CachedStore {
	return &CachedStore{
		store:  store,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Get retrieves a persisted object, serving repeats from cache
func (s *CachedStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	cacheKey := blobKey(bucket, key)
	if data, found, err := s.cache.Get(ctx, cacheKey); err == nil && found {
		s.logger.Debug("blob cache hit", "bucket", bucket, "key", key)
		return data, nil
	}

	data, err := s.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, data, s.ttl); err != nil {
		s.logger.Warn("failed to cache blob", "bucket", bucket, "key", key, "error", err)
	}
	return data, nil
}

// Put writes through to the underlying store and primes the cache
func (s *CachedStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := s.store.Put(ctx, bucket, key, data, contentType); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, blobKey(bucket, key), data, s.ttl); err != nil {
		s.logger.Warn("failed to cache blob", "bucket", bucket, "key", key, "error", err)
	}
	return nil
}

// Info passes through; metadata reads are cheap enough to skip caching
func (s *CachedStore) Info(ctx context.Context, bucket, key string) (*BlobInfo, error) {
	return s.store.Info(ctx, bucket, key)
}

// PutTemp writes through and primes the cache under the returned key
func (s *CachedStore) PutTemp(ctx context.Context, data []byte, contentType string) (string, error) {
	key, err := s.store.PutTemp(ctx, data, contentType)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, tempKey(key), data, s.ttl); err != nil {
		s.logger.Warn("failed to cache temp blob", "temp_key", key, "error", err)
	}
	return key, nil
}

// GetTemp retrieves a temp object, serving repeats from cache
func (s *CachedStore) GetTemp(ctx context.Context, key string) ([]byte, error) {
	cacheKey := tempKey(key)
	if data, found, err := s.cache.Get(ctx, cacheKey); err == nil && found {
		s.logger.Debug("temp blob cache hit", "temp_key", key)
		return data, nil
	}

	data, err := s.store.GetTemp(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, data, s.ttl); err != nil {
		s.logger.Warn("failed to cache temp blob", "temp_key", key, "error", err)
	}
	return data, nil
}

// TempInfo retrieves temp metadata, serving repeats from cache
func (s *CachedStore) TempInfo(ctx context.Context, key string) (*BlobInfo, error) {
	cacheKey := tempKey(key) + ":meta"
	if raw, found, err := s.cache.Get(ctx, cacheKey); err == nil && found {
		var info BlobInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			return &info, nil
		}
	}

	info, err := s.store.TempInfo(ctx, key)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(info); err == nil {
		if err := s.cache.Set(ctx, cacheKey, raw, s.ttl); err != nil {
			s.logger.Warn("failed to cache temp blob metadata", "temp_key", key, "error", err)
		}
	}
	return info, nil
}
