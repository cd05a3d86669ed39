package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrIdempotencyConflict indicates the (module, key) pair was already used.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyExecutor is the slice of a pgx pool the store needs.
type IdempotencyExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IdempotencyStore reserves client-supplied request keys so a retried write
// is detected instead of applied twice. Keys are scoped per module: the same
// Idempotency-Key header can appear once in inventory and once in logistics
// without colliding.
type IdempotencyStore struct {
	db IdempotencyExecutor
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db IdempotencyExecutor) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Reserve claims the pair for the caller. A second reservation of the same
// pair returns ErrIdempotencyConflict.
func (s *IdempotencyStore) Reserve(ctx context.Context, module, key string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO idempotency_keys (module, key, created_at)
		VALUES ($1, $2, NOW())`, module, key)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrIdempotencyConflict
	}
	return err
}

// Release frees the pair after the guarded write failed, so the client's
// retry is not mistaken for a duplicate.
func (s *IdempotencyStore) Release(ctx context.Context, module, key string) error {
	if s == nil {
		return nil
	}
	if module == "" || key == "" {
		return errors.New("idempotency module and key required")
	}
	_, err := s.db.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE module = $1 AND key = $2`, module, key)
	return err
}

// Sweep removes reservations older than retention. Clients do not retry
// across days, so expired pairs only cost table space.
func (s *IdempotencyStore) Sweep(ctx context.Context, retention time.Duration) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE created_at < $1`, time.Now().Add(-retention))
	return err
}
