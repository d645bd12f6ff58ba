package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	entry  Entry
	dropAt time.Time
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory returns an in-process snapshot store. Entries are physically
// dropped once their retention horizon passes; until then logically expired
// entries remain visible for stale serving.
func NewMemory() SnapshotStore {
	return &memoryStore{entries: make(map[string]memoryEntry)}
}

func (s *memoryStore) Lookup(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if time.Now().After(held.dropAt) {
		delete(s.entries, key)
		return Entry{}, false, nil
	}
	return cloneEntry(held.entry), true, nil
}

func (s *memoryStore) Store(_ context.Context, key string, entry Entry, retain time.Duration) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	if entry.ExpiresAt.IsZero() || entry.ExpiresAt.Before(entry.StoredAt) {
		entry.ExpiresAt = entry.StoredAt
	}
	dropAt := entry.StoredAt.Add(retain)
	if dropAt.Before(entry.ExpiresAt) {
		dropAt = entry.ExpiresAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{entry: cloneEntry(entry), dropAt: dropAt}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memoryStore) Size(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

func cloneEntry(in Entry) Entry {
	out := Entry{
		StoredAt:     in.StoredAt,
		ExpiresAt:    in.ExpiresAt,
		SourceHealth: in.SourceHealth,
	}
	if len(in.Payload) > 0 {
		out.Payload = make([]byte, len(in.Payload))
		copy(out.Payload, in.Payload)
	}
	return out
}
