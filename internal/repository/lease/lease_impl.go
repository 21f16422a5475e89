package lease

import (
	"context"
	"time"

	apperrors "github.com/mindsift/mindsift/internal/errors"
	"github.com/mindsift/mindsift/internal/repository/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool interface for abstracting pgx connection pool
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// leaseManager implements Manager on a PostgreSQL table
type leaseManager struct {
	pool Pool
}

// NewManager creates a new instance of Manager
func NewManager(pool Pool) Manager {
	return &leaseManager{
		pool: pool,
	}
}

// Acquire takes the lease for key if no live lease exists. The insert and
// the takeover of an expired row are one conditional statement: exactly one
// of any set of concurrent callers gets a row affected.
func (m *leaseManager) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, apperrors.New(apperrors.CodeInvalidArg, "lease key must not be empty")
	}
	if ttl <= 0 {
		return false, apperrors.New(apperrors.CodeInvalidArg, "lease TTL must be positive")
	}

	sql := `INSERT INTO ingestion_locks (key, acquired_at, expires_at)
		VALUES ($1, now(), now() + make_interval(secs => $2))
		ON CONFLICT (key) DO UPDATE
		SET acquired_at = now(), expires_at = now() + make_interval(secs => $2)
		WHERE ingestion_locks.expires_at <= now()`
	tag, err := m.pool.Exec(ctx, sql, key, ttl.Seconds())
	if err != nil {
		return false, common.HandlePostgreSQLError(err, "failed to acquire ingestion lease")
	}

	return tag.RowsAffected() == 1, nil
}

// Release deletes the lease row; deleting a missing row is fine
func (m *leaseManager) Release(ctx context.Context, key string) error {
	sql := "DELETE FROM ingestion_locks WHERE key = $1"
	_, err := m.pool.Exec(ctx, sql, key)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to release ingestion lease")
	}
	return nil
}
