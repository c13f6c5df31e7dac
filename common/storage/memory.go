package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	infos map[string]BlobInfo
}

// NewMemoryStore creates an empty in-memory blob store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
		infos: make(map[string]BlobInfo),
	}
}

func (s *MemoryStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := blobKey(bucket, key)
	s.blobs[k] = append([]byte(nil), data...)
	s.infos[k] = BlobInfo{ContentType: contentType, Size: int64(len(data))}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[blobKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrBlobNotFound, bucket, key)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Info(ctx context.Context, bucket, key string) (*BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.infos[blobKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrBlobNotFound, bucket, key)
	}
	return &info, nil
}

func (s *MemoryStore) PutTemp(ctx context.Context, data []byte, contentType string) (string, error) {
	hash := fmt.Sprintf("sha256:%x", sha256.Sum256(data))
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tempKey(hash)
	s.blobs[k] = append([]byte(nil), data...)
	s.infos[k] = BlobInfo{ContentType: contentType, Size: int64(len(data))}
	return hash, nil
}

func (s *MemoryStore) GetTemp(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[tempKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: temp %s", ErrBlobNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) TempInfo(ctx context.Context, key string) (*BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.infos[tempKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: temp %s", ErrBlobNotFound, key)
	}
	return &info, nil
}
