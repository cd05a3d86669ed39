package shared

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type pairKey struct {
	module string
	key    string
}

type fakeExecer struct {
	pairs map[pairKey]time.Time
}

func newFakeExecer() *fakeExecer {
	return &fakeExecer{pairs: make(map[pairKey]time.Time)}
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case strings.HasPrefix(strings.TrimSpace(sql), "INSERT"):
		pair := pairKey{args[0].(string), args[1].(string)}
		if _, ok := f.pairs[pair]; ok {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", ConstraintName: "idempotency_keys_pkey"}
		}
		f.pairs[pair] = time.Now()
	case len(args) == 2:
		delete(f.pairs, pairKey{args[0].(string), args[1].(string)})
	default:
		cutoff := args[0].(time.Time)
		for pair, at := range f.pairs {
			if at.Before(cutoff) {
				delete(f.pairs, pair)
			}
		}
	}
	return pgconn.CommandTag{}, nil
}

func TestReserveDetectsDuplicate(t *testing.T) {
	store := NewIdempotencyStore(newFakeExecer())
	ctx := context.Background()

	require.NoError(t, store.Reserve(ctx, "inventory", "req-1"))
	require.ErrorIs(t, store.Reserve(ctx, "inventory", "req-1"), ErrIdempotencyConflict)
}

func TestReserveScopesKeysPerModule(t *testing.T) {
	store := NewIdempotencyStore(newFakeExecer())
	ctx := context.Background()

	require.NoError(t, store.Reserve(ctx, "inventory", "req-1"))
	require.NoError(t, store.Reserve(ctx, "logistics", "req-1"))
}

func TestReleaseAllowsRetry(t *testing.T) {
	store := NewIdempotencyStore(newFakeExecer())
	ctx := context.Background()

	require.NoError(t, store.Reserve(ctx, "inventory", "req-1"))
	require.NoError(t, store.Release(ctx, "inventory", "req-1"))
	require.NoError(t, store.Reserve(ctx, "inventory", "req-1"))
}

func TestReserveRequiresModuleAndKey(t *testing.T) {
	store := NewIdempotencyStore(newFakeExecer())
	ctx := context.Background()

	require.Error(t, store.Reserve(ctx, "", "req-1"))
	require.Error(t, store.Reserve(ctx, "inventory", ""))
}

func TestSweepRemovesExpiredPairs(t *testing.T) {
	execer := newFakeExecer()
	store := NewIdempotencyStore(execer)
	ctx := context.Background()

	require.NoError(t, store.Reserve(ctx, "inventory", "old"))
	execer.pairs[pairKey{"inventory", "old"}] = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Reserve(ctx, "inventory", "fresh"))

	require.NoError(t, store.Sweep(ctx, 24*time.Hour))
	require.ErrorIs(t, store.Reserve(ctx, "inventory", "fresh"), ErrIdempotencyConflict)
	require.NoError(t, store.Reserve(ctx, "inventory", "old"))
}
