package cache

import (
	"context"
	"time"
)

// Entry is an immutable snapshot of one expensive computation or API pull.
// ExpiresAt bounds logical freshness; backends may physically retain the
// entry past it so the manager can serve stale data while the upstream is
// degraded. Replacement is atomic: a new entry fully supersedes the old one
// under the same key, readers never observe a partial write.
type Entry struct {
	Payload      []byte    `json:"payload"`
	StoredAt     time.Time `json:"storedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	SourceHealth string    `json:"sourceHealth"`
}

// Fresh reports whether the entry is servable without refresh.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// SnapshotStore persists cache entries. Lookup returns logically expired
// entries as long as the backend still retains them; freshness decisions
// belong to the manager. retain bounds physical retention measured from the
// entry's StoredAt and always covers the logical TTL plus the stale-serve
// grace.
type SnapshotStore interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry, retain time.Duration) error
	Delete(ctx context.Context, key string) error
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}
