package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process cache tier.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty memory-backed cache tier.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get implements the Store interface.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set implements the Store interface.
func (s *MemoryStore) Set(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Key] = entry
	return nil
}

// Delete implements the Store interface. Deleting an absent key is a no-op.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// DeleteByScope removes every entry belonging to the tenant's resource class.
func (s *MemoryStore) DeleteByScope(_ context.Context, tenantID, class string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if entry.TenantID == tenantID && entry.Class == class {
			delete(s.entries, key)
		}
	}
	return nil
}

// CleanupExpired implements the Store interface.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	removed := 0
	for key, entry := range s.entries {
		if !entry.Expired(now) {
			continue
		}
		delete(s.entries, key)
		removed++
		if removed >= limit {
			break
		}
	}
	return removed, nil
}

// Len reports the number of resident entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
