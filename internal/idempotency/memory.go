package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// MemoryStore keeps keys in process memory. Expired keys are swept on
// Reserve at most once per TTL.
type MemoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
	entries   map[string]memoryEntry
}

// NewMemoryStore constructs a store; ttl <= 0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(ctx context.Context, key, requestHash string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if entry, ok := s.entries[key]; ok && now.Before(entry.expiresAt) {
		record := entry.record
		return resolve(&record, requestHash)
	}
	s.entries[key] = memoryEntry{
		record:    Record{Key: key, RequestHash: requestHash, Status: StatusInProgress},
		expiresAt: now.Add(s.ttl),
	}
	return nil, nil
}

func (s *MemoryStore) sweep(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.nextSweep = now.Add(s.ttl)
}

// Complete implements Store.
func (s *MemoryStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	entry.record.Status = StatusCompleted
	entry.record.ResponseStatus = status
	entry.record.ResponseBody = append([]byte(nil), body...)
	entry.expiresAt = s.now().Add(s.ttl)
	s.entries[key] = entry
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
