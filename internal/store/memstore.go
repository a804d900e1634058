package store

import (
	"bytes"
	"sync"

	"github.com/heysubinoy/pyazkv/pkg/kv"
	"github.com/spaolacci/murmur3"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 16

type shard struct {
	mu   sync.RWMutex
	data map[string]kv.Value
}

// MemStore is an in-memory implementation of the kv.Store interface.
// Keys are spread over shards by their murmur3 hash; each shard is a map
// protected by its own RWMutex.
type MemStore struct {
	shards []*shard
}

// Compile-time check to ensure MemStore implements kv.Store.
var _ kv.Store = (*MemStore)(nil)

// NewMemStore creates and returns a new MemStore with n shards.
// n < 1 falls back to DefaultShards.
func NewMemStore(n int) *MemStore {
	if n < 1 {
		n = DefaultShards
	}
	s := &MemStore{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{data: make(map[string]kv.Value)}
	}
	return s
}

func (s *MemStore) shardFor(key string) *shard {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	h := murmur3.Sum32([]byte(key))
	return s.shards[h%uint32(len(s.shards))]
}

// Get retrieves a copy of the value stored under key.
func (s *MemStore) Get(key string) (kv.Value, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	val, ok := sh.data[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(val), true
}

// Set stores a copy of value under key and reports whether the key is new.
func (s *MemStore) Set(key string, value kv.Value) (bool, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	_, exists := sh.data[key]
	sh.data[key] = bytes.Clone(value)
	return !exists, nil
}

// Delete removes key, returning kv.ErrNotFound if it was not present.
func (s *MemStore) Delete(key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.data[key]; !ok {
		return kv.ErrNotFound
	}
	delete(sh.data, key)
	return nil
}

// All read-locks every shard in index order before copying, so the result
// is a single consistent cut across shards.
func (s *MemStore) All() map[string]kv.Value {
	for _, sh := range s.shards {
		sh.mu.RLock()
	}
	defer func() {
		for _, sh := range s.shards {
			sh.mu.RUnlock()
		}
	}()

	n := 0
	for _, sh := range s.shards {
		n += len(sh.data)
	}
	out := make(map[string]kv.Value, n)
	for _, sh := range s.shards {
		for k, v := range sh.data {
			out[k] = bytes.Clone(v)
		}
	}
	return out
}

// Len returns the number of stored keys.
func (s *MemStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.data)
		sh.mu.RUnlock()
	}
	return n
}

// Replace discards the current contents and loads data in their place.
func (s *MemStore) Replace(data map[string]kv.Value) {
	for _, sh := range s.shards {
		sh.mu.Lock()
	}
	defer func() {
		for _, sh := range s.shards {
			sh.mu.Unlock()
		}
	}()

	for _, sh := range s.shards {
		sh.data = make(map[string]kv.Value)
	}
	for k, v := range data {
		s.shardFor(k).data[k] = bytes.Clone(v)
	}
}
