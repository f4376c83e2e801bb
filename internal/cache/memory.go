package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	defaultMaxEntries = 1024
	defaultMaxBytes   = 256 << 20
)

// MemoryConfig bounds the in-process store. Chat responses stay small but
// the converted requests that key them carry inline images and audio, so
// the store is bounded by bytes as well as by entry count.
type MemoryConfig struct {
	MaxEntries int   // default 1024
	MaxBytes   int64 // default 256 MiB; values larger than this are not cached
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store: an LRU with per-entry expiry and a
// byte budget. Expired entries are dropped when read or when evicted.
type MemoryStore struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, memoryEntry]
	bytes    int64
	maxBytes int64
}

func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}

	s := &MemoryStore{maxBytes: cfg.MaxBytes}

	// only fails for a non-positive size
	s.lru, _ = simplelru.NewLRU[string, memoryEntry](cfg.MaxEntries, func(_ string, e memoryEntry) {
		s.bytes -= int64(len(e.value))
	})

	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		s.lru.Remove(key)
		return nil, false, nil
	}

	return entry.value, true, nil
}

// Set stores a copy of value. A non-positive ttl removes the key, and a
// value over the byte budget is not stored.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// replacing must release the old entry's bytes
	s.lru.Remove(key)

	size := int64(len(value))
	if ttl <= 0 || size > s.maxBytes {
		return nil
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	s.lru.Add(key, memoryEntry{
		value:     valueCopy,
		expiresAt: time.Now().Add(ttl),
	})
	s.bytes += size

	for s.bytes > s.maxBytes {
		if _, _, ok := s.lru.RemoveOldest(); !ok {
			break
		}
	}

	return nil
}

// Len returns the number of items currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Bytes returns the total size of the held values.
func (s *MemoryStore) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}
