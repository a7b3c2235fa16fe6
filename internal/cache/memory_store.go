package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback used when no Redis is configured,
// and the workhorse of the gateway tests.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]map[string]*Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, bucket, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.buckets[bucket][key]
	if !ok {
		return nil, ErrMiss
	}
	copied := *entry
	return &copied, nil
}

func (s *MemoryStore) Put(ctx context.Context, bucket, key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string]*Entry)
	}
	copied := *entry
	if copied.StoredAt.IsZero() {
		copied.StoredAt = s.now()
	}
	s.buckets[bucket][key] = &copied
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
	return nil
}

func (s *MemoryStore) Buckets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) PurgeBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, bucket)
	return nil
}

func (s *MemoryStore) Trim(ctx context.Context, bucket string, policy Policy) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.buckets[bucket]
	if len(entries) == 0 {
		return 0, nil
	}

	now := s.now()
	evicted := 0
	for key, entry := range entries {
		if policy.Expired(entry.StoredAt, now) {
			delete(entries, key)
			evicted++
		}
	}

	if policy.MaxEntries > 0 && len(entries) > policy.MaxEntries {
		type aged struct {
			key      string
			storedAt time.Time
		}
		byAge := make([]aged, 0, len(entries))
		for key, entry := range entries {
			byAge = append(byAge, aged{key, entry.StoredAt})
		}
		sort.Slice(byAge, func(i, j int) bool {
			return byAge[i].storedAt.Before(byAge[j].storedAt)
		})
		for _, a := range byAge[:len(entries)-policy.MaxEntries] {
			delete(entries, a.key)
			evicted++
		}
	}

	return evicted, nil
}

func (s *MemoryStore) Close() error { return nil }
