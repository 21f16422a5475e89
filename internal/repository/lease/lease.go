package lease

import (
	"context"
	"time"
)

// Manager is a lease-based mutual-exclusion primitive over a shared store.
// It guarantees at-most-one live lease per key across any number of
// processes; leases self-expire after their TTL so a crashed holder never
// wedges a key for longer than that.
type Manager interface {
	// Acquire attempts to take the lease for key. It returns true only if
	// no live lease exists; the existence check and the write are a single
	// atomic statement, so concurrent callers cannot both win.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release deletes the lease. Idempotent: releasing an expired or never
	// held lease is not an error.
	Release(ctx context.Context, key string) error
}
