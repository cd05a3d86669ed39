package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ionlife/ionlife/internal/shared"
)

type stockKey struct {
	warehouseID int64
	productID   int64
}

type memoryRepo struct {
	movements []Movement
	levels    map[stockKey]*StockLevel
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{levels: map[stockKey]*StockLevel{}, nextID: 1}
}

func (m *memoryRepo) RecordMovement(_ context.Context, mov Movement) (Movement, int64, error) {
	mov.ID = m.nextID
	m.nextID++
	mov.CreatedAt = time.Now()
	m.movements = append(m.movements, mov)

	key := stockKey{mov.WarehouseID, mov.ProductID}
	level, ok := m.levels[key]
	if !ok {
		level = &StockLevel{WarehouseID: mov.WarehouseID, ProductID: mov.ProductID}
		m.levels[key] = level
	}
	level.Qty += mov.Qty
	level.UpdatedAt = mov.CreatedAt
	return mov, level.Qty, nil
}

func (m *memoryRepo) ListMovements(_ context.Context, filter MovementFilter) ([]Movement, error) {
	var out []Movement
	for _, mov := range m.movements {
		if filter.WarehouseID != nil && mov.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.ProductID != nil && mov.ProductID != *filter.ProductID {
			continue
		}
		if filter.Kind != nil && mov.Kind != *filter.Kind {
			continue
		}
		out = append(out, mov)
	}
	return out, nil
}

func (m *memoryRepo) ListStockLevels(_ context.Context, filter StockFilter) ([]StockLevel, error) {
	var out []StockLevel
	for _, level := range m.levels {
		if filter.WarehouseID != nil && level.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.ProductID != nil && level.ProductID != *filter.ProductID {
			continue
		}
		out = append(out, *level)
	}
	return out, nil
}

func (m *memoryRepo) AggregateAvailable(_ context.Context, productID int64) (int64, error) {
	var total int64
	for _, level := range m.levels {
		if level.ProductID == productID {
			total += level.Qty
		}
	}
	return total, nil
}

func (m *memoryRepo) LowStock(_ context.Context) ([]StockLevel, error) {
	var out []StockLevel
	for _, level := range m.levels {
		if level.MinQty > 0 && level.Qty < level.MinQty {
			out = append(out, *level)
		}
	}
	return out, nil
}

func (m *memoryRepo) SetMinQty(_ context.Context, warehouseID, productID, minQty int64) error {
	level, ok := m.levels[stockKey{warehouseID, productID}]
	if !ok {
		return shared.ErrNotFound
	}
	level.MinQty = minQty
	return nil
}

func (m *memoryRepo) Rebuild(_ context.Context) error {
	for _, level := range m.levels {
		level.Qty = 0
	}
	for _, mov := range m.movements {
		m.levels[stockKey{mov.WarehouseID, mov.ProductID}].Qty += mov.Qty
	}
	return nil
}

func TestRecordMovementUpdatesAggregate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	result, err := svc.RecordMovement(ctx, MovementInput{WarehouseID: 1, ProductID: 7, Qty: 50, Kind: MovementIn, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, int64(50), result.ResultingQty)

	result, err = svc.RecordMovement(ctx, MovementInput{WarehouseID: 1, ProductID: 7, Qty: -20, Kind: MovementOut, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, int64(30), result.ResultingQty)

	total, err := svc.AggregateAvailable(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(30), total)
}

func TestRecordMovementAllowsNegativeResult(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	result, err := svc.RecordMovement(context.Background(), MovementInput{WarehouseID: 1, ProductID: 7, Qty: -5, Kind: MovementAdjustment, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, int64(-5), result.ResultingQty)
}

func TestRecordMovementValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, MovementInput{WarehouseID: 0, ProductID: 7, Qty: 1, Kind: MovementIn})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.RecordMovement(ctx, MovementInput{WarehouseID: 1, ProductID: 7, Qty: 0, Kind: MovementIn})
	require.ErrorIs(t, err, ErrZeroQty)

	_, err = svc.RecordMovement(ctx, MovementInput{WarehouseID: 1, ProductID: 7, Qty: 1, Kind: MovementKind("BOGUS")})
	require.ErrorAs(t, err, &verr)
}

func TestAggregateMatchesMovementSum(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	deltas := []int64{40, -10, 25, -5}
	warehouses := []int64{1, 1, 2, 2}
	var sum int64
	for i, delta := range deltas {
		kind := MovementIn
		if delta < 0 {
			kind = MovementOut
		}
		_, err := svc.RecordMovement(ctx, MovementInput{WarehouseID: warehouses[i], ProductID: 9, Qty: delta, Kind: kind, ActorID: 1})
		require.NoError(t, err)
		sum += delta
	}

	total, err := svc.AggregateAvailable(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, sum, total)
}

func TestLowStockThreshold(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, MovementInput{WarehouseID: 1, ProductID: 7, Qty: 3, Kind: MovementIn, ActorID: 1})
	require.NoError(t, err)
	require.NoError(t, svc.SetMinQty(ctx, 1, 1, 7, 10))

	low, err := svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, int64(7), low[0].ProductID)

	_, err = svc.RecordMovement(ctx, MovementInput{WarehouseID: 1, ProductID: 7, Qty: 20, Kind: MovementIn, ActorID: 1})
	require.NoError(t, err)

	low, err = svc.LowStock(ctx)
	require.NoError(t, err)
	require.Empty(t, low)
}
