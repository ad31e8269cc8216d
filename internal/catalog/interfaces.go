package catalog

import (
	"context"
	"io"
	"time"
)

// Cache is the persistent associative store for resolved records.
type Cache interface {
	// Find returns the first cached record matching the selection's
	// constraints, or nil when nothing matches. Implementations degrade
	// storage failures to a miss so a resolvable VID is never blocked by a
	// broken cache. A hit advances the record's recency stamp.
	Find(ctx context.Context, sel Selection) (*Record, error)

	// Insert persists a freshly resolved record. It is idempotent on VID:
	// inserting an already-known VID is a no-op, not an error.
	Insert(ctx context.Context, rec *Record) error

	// Stats reports the cache size overall and per series.
	Stats(ctx context.Context) (Stats, error)
}

// Resolver fetches a VID from the live catalog. It returns ErrNoVID when the
// catalog has no matching vehicle and a TransientError when the fetch itself
// failed and may be retried.
type Resolver interface {
	Resolve(ctx context.Context, sel Selection) (*Record, error)
}

// Clock abstracts time.Now for testable timestamps.
type Clock interface {
	Now() time.Time
}

// Publisher delivers notifications about freshly resolved records.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// SnapshotStore archives page artifacts (rendered HTML of failed
// resolutions) for offline diagnosis. It returns the stored object's URI.
type SnapshotStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
