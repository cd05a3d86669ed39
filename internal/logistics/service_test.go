package logistics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ionlife/ionlife/internal/inventory"
	"github.com/ionlife/ionlife/internal/masterdata"
	"github.com/ionlife/ionlife/internal/orders"
	"github.com/ionlife/ionlife/internal/shared"
)

const centralWarehouseID = int64(1)

type stubDirectory struct{}

func (stubDirectory) Truck(_ context.Context, id int64) (masterdata.Truck, error) {
	if id != 1 && id != 2 {
		return masterdata.Truck{}, shared.ErrNotFound
	}
	return masterdata.Truck{ID: id, Plate: "ABC-123"}, nil
}

func (stubDirectory) Driver(_ context.Context, id int64) (masterdata.Driver, error) {
	if id != 1 {
		return masterdata.Driver{}, shared.ErrNotFound
	}
	return masterdata.Driver{ID: id, Name: "Marco"}, nil
}

func (stubDirectory) CentralWarehouseID(_ context.Context) (int64, error) {
	return centralWarehouseID, nil
}

type stockKey struct {
	warehouseID int64
	productID   int64
}

type memStore struct {
	orders      map[int64]*orders.Order
	deliveries  map[int64]*Delivery
	byOrder     map[int64]int64
	history     []orders.StatusHistory
	movements   []inventory.Movement
	stock       map[stockKey]int64
	settlements []ReturnSettlement
	incidents   map[int64][]DeliveryIncident
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{
		orders:     make(map[int64]*orders.Order),
		deliveries: make(map[int64]*Delivery),
		byOrder:    make(map[int64]int64),
		stock:      make(map[stockKey]int64),
		incidents:  make(map[int64][]DeliveryIncident),
	}
}

func (m *memStore) addOrder(id int64, status orders.Status, lines ...orders.OrderLine) {
	for i := range lines {
		lines[i].OrderID = id
	}
	m.orders[id] = &orders.Order{ID: id, Status: status, Lines: lines}
}

func (m *memStore) aggregate(productID int64) int64 {
	var total int64
	for k, qty := range m.stock {
		if k.productID == productID {
			total += qty
		}
	}
	return total
}

func (m *memStore) outMovementsForOrder(orderID int64) int {
	var n int
	for _, mv := range m.movements {
		if mv.Kind == inventory.MovementOut && mv.OrderID != nil && *mv.OrderID == orderID {
			n++
		}
	}
	return n
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, (*memTx)(m))
}

func (m *memStore) GetDelivery(_ context.Context, id int64) (Delivery, error) {
	d, ok := m.deliveries[id]
	if !ok {
		return Delivery{}, shared.ErrNotFound
	}
	return *d, nil
}

func (m *memStore) DeliveryByOrder(_ context.Context, orderID int64) (Delivery, error) {
	id, ok := m.byOrder[orderID]
	if !ok {
		return Delivery{}, shared.ErrNotFound
	}
	return *m.deliveries[id], nil
}

func (m *memStore) ListDeliveries(_ context.Context, _ DeliveryFilter) ([]Delivery, error) {
	var out []Delivery
	for _, d := range m.deliveries {
		out = append(out, *d)
	}
	return out, nil
}

func (m *memStore) InsertIncident(_ context.Context, inc DeliveryIncident) (DeliveryIncident, error) {
	m.nextID++
	inc.ID = m.nextID
	inc.CreatedAt = time.Now()
	m.incidents[inc.DeliveryID] = append(m.incidents[inc.DeliveryID], inc)
	return inc, nil
}

func (m *memStore) ListIncidents(_ context.Context, deliveryID int64) ([]DeliveryIncident, error) {
	return m.incidents[deliveryID], nil
}

func (m *memStore) TruckRoute(_ context.Context, truckID int64, _ time.Time) ([]RouteStop, error) {
	var stops []RouteStop
	for _, d := range m.deliveries {
		if d.TruckID != truckID {
			continue
		}
		o := m.orders[d.OrderID]
		stop := RouteStop{DeliveryID: d.ID, OrderID: o.ID, Status: o.Status}
		for _, l := range o.Lines {
			stop.Items += l.Qty
			stop.Total = stop.Total.Add(l.LineTotal())
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

func (m *memStore) TruckSummary(_ context.Context, truckID int64, day time.Time) (TruckSummary, error) {
	summary := TruckSummary{TruckID: truckID, Date: day}
	for _, d := range m.deliveries {
		if d.TruckID != truckID {
			continue
		}
		summary.TotalOrders++
		for _, l := range m.orders[d.OrderID].Lines {
			summary.TotalItems += l.Qty
			summary.TotalValue = summary.TotalValue.Add(l.LineTotal())
		}
	}
	return summary, nil
}

func (m *memStore) ListSettlements(_ context.Context, truckID int64, _ time.Time) ([]ReturnSettlement, error) {
	var out []ReturnSettlement
	for _, s := range m.settlements {
		if s.TruckID == truckID {
			out = append(out, s)
		}
	}
	return out, nil
}

type memTx memStore

func (m *memTx) GetOrderForUpdate(_ context.Context, id int64) (orders.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return orders.Order{}, &shared.NotFoundError{Entity: "order", ID: id}
	}
	return *o, nil
}

func (m *memTx) UpdateOrderStatus(_ context.Context, orderID int64, status orders.Status, _ int64) error {
	o, ok := m.orders[orderID]
	if !ok {
		return &shared.NotFoundError{Entity: "order", ID: orderID}
	}
	o.Status = status
	return nil
}

func (m *memTx) InsertHistory(_ context.Context, h orders.StatusHistory) error {
	m.history = append(m.history, h)
	return nil
}

func (m *memTx) DeliveryByOrderForUpdate(_ context.Context, orderID int64) (Delivery, bool, error) {
	id, ok := m.byOrder[orderID]
	if !ok {
		return Delivery{}, false, nil
	}
	return *m.deliveries[id], true, nil
}

func (m *memTx) InsertDelivery(_ context.Context, d Delivery) (int64, error) {
	m.nextID++
	d.ID = m.nextID
	m.deliveries[d.ID] = &d
	m.byOrder[d.OrderID] = d.ID
	return d.ID, nil
}

func (m *memTx) UpdateDelivery(_ context.Context, d Delivery) error {
	stored, ok := m.deliveries[d.ID]
	if !ok {
		return &shared.NotFoundError{Entity: "delivery", ID: d.ID}
	}
	*stored = d
	return nil
}

func (m *memTx) HasOpenOut(_ context.Context, orderID int64) (bool, error) {
	var open bool
	for _, mv := range m.movements {
		if mv.OrderID == nil || *mv.OrderID != orderID {
			continue
		}
		switch mv.Kind {
		case inventory.MovementOut:
			open = true
		case inventory.MovementReturn:
			open = false
		}
	}
	return open, nil
}

func (m *memTx) PickSource(_ context.Context, productID int64) (int64, int64, error) {
	var bestWarehouse, bestQty int64
	for k, qty := range m.stock {
		if k.productID != productID {
			continue
		}
		if bestWarehouse == 0 || qty > bestQty || (qty == bestQty && k.warehouseID < bestWarehouse) {
			bestWarehouse, bestQty = k.warehouseID, qty
		}
	}
	return bestWarehouse, bestQty, nil
}

func (m *memTx) ApplyMovement(_ context.Context, mv inventory.Movement) (int64, error) {
	m.movements = append(m.movements, mv)
	key := stockKey{mv.WarehouseID, mv.ProductID}
	m.stock[key] += mv.Qty
	return m.stock[key], nil
}

func (m *memTx) DeliveredSalesTotal(_ context.Context, truckID int64, from, to time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, d := range m.deliveries {
		if d.TruckID != truckID || d.DeliveredAt == nil {
			continue
		}
		if d.DeliveredAt.Before(from) || !d.DeliveredAt.Before(to) {
			continue
		}
		o := m.orders[d.OrderID]
		if o.Status != orders.StatusEntregado {
			continue
		}
		for _, l := range o.Lines {
			total = total.Add(l.LineTotal())
		}
	}
	return total, nil
}

func (m *memTx) InsertSettlement(_ context.Context, s ReturnSettlement) (ReturnSettlement, error) {
	m.nextID++
	s.ID = m.nextID
	s.CreatedAt = time.Now()
	m.settlements = append(m.settlements, s)
	return s, nil
}

var (
	_ Repository   = (*memStore)(nil)
	_ TxRepository = (*memTx)(nil)
)

func line(productID, qty int64, price string) orders.OrderLine {
	return orders.OrderLine{ProductID: productID, Qty: qty, UnitPrice: decimal.RequireFromString(price)}
}

func newTestService(store *memStore) *Service {
	return NewService(store, stubDirectory{}, nil, nil)
}

func TestAssignSingle(t *testing.T) {
	store := newMemStore()
	store.addOrder(10, orders.StatusPendiente, line(1, 5, "12.00"))
	svc := newTestService(store)

	d, err := svc.AssignSingle(context.Background(), 1, AssignInput{OrderID: 10, TruckID: 1, DriverID: 1})
	require.NoError(t, err)
	require.Equal(t, orders.StatusDespachado, d.Status)
	require.Equal(t, orders.StatusDespachado, store.orders[10].Status)
	require.Len(t, store.history, 1)
	require.Equal(t, orders.StatusDespachado, store.history[0].Status)
}

func TestAssignSingleRejectsDispatchedOrder(t *testing.T) {
	store := newMemStore()
	store.addOrder(10, orders.StatusPendiente, line(1, 5, "12.00"))
	svc := newTestService(store)

	_, err := svc.AssignSingle(context.Background(), 1, AssignInput{OrderID: 10, TruckID: 1, DriverID: 1})
	require.NoError(t, err)

	// An order already on a truck cannot be dispatched again.
	_, err = svc.AssignSingle(context.Background(), 1, AssignInput{OrderID: 10, TruckID: 2, DriverID: 1})
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)

	d, err := store.DeliveryByOrder(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), d.TruckID)
}

func TestAssignBulkPartialSuccess(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, orders.StatusPendiente, line(1, 2, "10.00"))
	store.addOrder(2, orders.StatusPendiente, line(1, 3, "10.00"))
	store.addOrder(3, orders.StatusPendiente, line(1, 4, "10.00"))
	svc := newTestService(store)

	existing, err := svc.AssignSingle(context.Background(), 1, AssignInput{OrderID: 2, TruckID: 2, DriverID: 1})
	require.NoError(t, err)

	result, err := svc.AssignBulk(context.Background(), 1, BulkAssignInput{OrderIDs: []int64{1, 2, 3}, TruckID: 1, DriverID: 1})
	require.NoError(t, err)
	require.Equal(t, 2, result.Assigned)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, []int64{2}, result.SkippedOrderIDs)

	// Order 2 keeps its original delivery untouched.
	unchanged, err := store.DeliveryByOrder(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, existing.ID, unchanged.ID)
	require.Equal(t, int64(2), unchanged.TruckID)
}

func TestConfirmDeliveryIdempotent(t *testing.T) {
	store := newMemStore()
	store.addOrder(10, orders.StatusPendiente, line(1, 4, "12.00"), line(2, 2, "5.00"))
	store.stock[stockKey{2, 1}] = 10
	store.stock[stockKey{2, 2}] = 10
	svc := newTestService(store)

	_, err := svc.AssignSingle(context.Background(), 1, AssignInput{OrderID: 10, TruckID: 1, DriverID: 1})
	require.NoError(t, err)

	d, err := svc.ConfirmDelivery(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, orders.StatusEntregado, d.Status)
	require.NotNil(t, d.DeliveredAt)
	require.Equal(t, orders.StatusEntregado, store.orders[10].Status)
	require.Equal(t, 2, store.outMovementsForOrder(10))
	require.Equal(t, int64(6), store.stock[stockKey{2, 1}])
	require.Equal(t, int64(8), store.stock[stockKey{2, 2}])

	firstDeliveredAt := *d.DeliveredAt

	// A second confirmation changes nothing in the ledger.
	again, err := svc.ConfirmDelivery(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, store.outMovementsForOrder(10))
	require.Equal(t, int64(6), store.stock[stockKey{2, 1}])
	require.Equal(t, firstDeliveredAt, *again.DeliveredAt)
}

func TestConfirmDeliveryPerWarehouseCheck(t *testing.T) {
	store := newMemStore()
	store.addOrder(10, orders.StatusPendiente, line(1, 10, "12.00"))
	// Aggregate availability covers the line, but no single warehouse does.
	store.stock[stockKey{1, 1}] = 6
	store.stock[stockKey{2, 1}] = 5
	svc := newTestService(store)

	_, err := svc.AssignSingle(context.Background(), 1, AssignInput{OrderID: 10, TruckID: 1, DriverID: 1})
	require.NoError(t, err)

	_, err = svc.ConfirmDelivery(context.Background(), 1, 10)
	var cerr *shared.ConflictError
	require.ErrorAs(t, err, &cerr)
	shortages := cerr.Meta.(map[string]any)["shortages"].([]orders.Shortage)
	require.Len(t, shortages, 1)
	require.Equal(t, int64(6), shortages[0].Available)
	require.Equal(t, int64(10), shortages[0].Required)

	// Nothing shipped.
	require.Zero(t, store.outMovementsForOrder(10))
	require.Equal(t, int64(6), store.stock[stockKey{1, 1}])
	require.Equal(t, int64(5), store.stock[stockKey{2, 1}])
	require.Equal(t, orders.StatusDespachado, store.orders[10].Status)
}

func deliverOrder(t *testing.T, svc *Service, store *memStore, orderID, truckID int64) {
	t.Helper()
	_, err := svc.AssignSingle(context.Background(), 1, AssignInput{OrderID: orderID, TruckID: truckID, DriverID: 1})
	require.NoError(t, err)
	_, err = svc.ConfirmDelivery(context.Background(), 1, orderID)
	require.NoError(t, err)
}

func TestRecordReturnCashMismatch(t *testing.T) {
	store := newMemStore()
	store.addOrder(10, orders.StatusPendiente, line(1, 4, "12.50"))
	store.stock[stockKey{2, 1}] = 10
	svc := newTestService(store)

	deliverOrder(t, svc, store, 10, 1)
	movementsBefore := len(store.movements)

	// Delivered total is 50.00, expenses 10.00, so expected cash is 40.00.
	_, err := svc.RecordReturn(context.Background(), 1, ReturnInput{
		OrderID:    10,
		TruckID:    1,
		CashAmount: decimal.RequireFromString("39.00"),
		Expenses:   Expenses{Fuel: decimal.RequireFromString("10.00")},
	})
	var cerr *shared.ConflictError
	require.ErrorAs(t, err, &cerr)
	meta := cerr.Meta.(map[string]any)
	require.Equal(t, "40.00", meta["expected"])
	require.Equal(t, "39.00", meta["given"])

	// Zero rows written.
	require.Len(t, store.movements, movementsBefore)
	require.Empty(t, store.settlements)
	require.Equal(t, orders.StatusEntregado, store.orders[10].Status)
}

func TestRecordReturnRoundTrip(t *testing.T) {
	store := newMemStore()
	store.addOrder(10, orders.StatusPendiente, line(1, 4, "12.50"), line(2, 3, "5.00"))
	store.stock[stockKey{2, 1}] = 10
	store.stock[stockKey{2, 2}] = 10
	svc := newTestService(store)

	preDelivery1 := store.aggregate(1)
	preDelivery2 := store.aggregate(2)
	deliverOrder(t, svc, store, 10, 1)

	// Delivered total 65.00, expenses 5.00 + 3.00.
	settlement, err := svc.RecordReturn(context.Background(), 1, ReturnInput{
		OrderID:    10,
		TruckID:    1,
		CashAmount: decimal.RequireFromString("57.00"),
		Expenses:   Expenses{Fuel: decimal.RequireFromString("5.00"), Meal: decimal.RequireFromString("3.00")},
	})
	require.NoError(t, err)
	require.NotEmpty(t, settlement.Reference)
	require.True(t, settlement.Expected.Equal(decimal.RequireFromString("57.00")))

	// A full return restores each product's aggregate stock, with the
	// returned units now at the central warehouse.
	require.Equal(t, preDelivery1, store.aggregate(1))
	require.Equal(t, preDelivery2, store.aggregate(2))
	require.Equal(t, int64(4), store.stock[stockKey{centralWarehouseID, 1}])
	require.Equal(t, int64(3), store.stock[stockKey{centralWarehouseID, 2}])

	require.Equal(t, orders.StatusReprogramado, store.orders[10].Status)
	delivery, err := store.DeliveryByOrder(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, orders.StatusReprogramado, delivery.Status)
}

func TestAssignAfterReturnRedispatches(t *testing.T) {
	store := newMemStore()
	store.addOrder(10, orders.StatusPendiente, line(1, 4, "10.00"))
	store.stock[stockKey{2, 1}] = 10
	svc := newTestService(store)

	deliverOrder(t, svc, store, 10, 1)
	_, err := svc.RecordReturn(context.Background(), 1, ReturnInput{
		OrderID:    10,
		TruckID:    1,
		CashAmount: decimal.RequireFromString("40.00"),
	})
	require.NoError(t, err)

	first, err := store.DeliveryByOrder(context.Background(), 10)
	require.NoError(t, err)

	// A returned order goes out again on the next trip, reusing its
	// delivery row with the new truck and a cleared delivery stamp.
	d, err := svc.AssignSingle(context.Background(), 1, AssignInput{OrderID: 10, TruckID: 2, DriverID: 1})
	require.NoError(t, err)
	require.Equal(t, first.ID, d.ID)
	require.Equal(t, int64(2), d.TruckID)
	require.Equal(t, orders.StatusDespachado, d.Status)
	require.Nil(t, d.DeliveredAt)
	require.Equal(t, orders.StatusDespachado, store.orders[10].Status)

	// The second trip ships fresh OUT movements from the fullest warehouse.
	confirmed, err := svc.ConfirmDelivery(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, orders.StatusEntregado, confirmed.Status)
	require.NotNil(t, confirmed.DeliveredAt)
	require.Equal(t, 2, store.outMovementsForOrder(10))
	require.Equal(t, int64(2), store.stock[stockKey{2, 1}])
	require.Equal(t, int64(6), store.aggregate(1))
}

func TestConfirmAfterReturnRequiresRedispatch(t *testing.T) {
	store := newMemStore()
	store.addOrder(10, orders.StatusPendiente, line(1, 4, "10.00"))
	store.stock[stockKey{2, 1}] = 10
	svc := newTestService(store)

	deliverOrder(t, svc, store, 10, 1)
	_, err := svc.RecordReturn(context.Background(), 1, ReturnInput{
		OrderID:    10,
		TruckID:    1,
		CashAmount: decimal.RequireFromString("40.00"),
	})
	require.NoError(t, err)

	// The return compensated the OUT movements, so confirming without a
	// new dispatch is a state error, not a silent re-delivery.
	_, err = svc.ConfirmDelivery(context.Background(), 1, 10)
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, orders.StatusReprogramado, store.orders[10].Status)
	require.Equal(t, 1, store.outMovementsForOrder(10))
}

func TestRecordReturnExpectedFloorsAtZero(t *testing.T) {
	store := newMemStore()
	store.addOrder(10, orders.StatusPendiente, line(1, 1, "10.00"))
	store.stock[stockKey{2, 1}] = 5
	svc := newTestService(store)

	deliverOrder(t, svc, store, 10, 1)

	// Expenses exceed the delivered total, so expected cash is zero.
	settlement, err := svc.RecordReturn(context.Background(), 1, ReturnInput{
		OrderID:    10,
		TruckID:    1,
		CashAmount: decimal.Zero,
		Expenses:   Expenses{Fuel: decimal.RequireFromString("25.00")},
	})
	require.NoError(t, err)
	require.True(t, settlement.Expected.IsZero())
}

func TestRecordIncidentRequiresDelivery(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.RecordIncident(context.Background(), 1, IncidentInput{DeliveryID: 99, Kind: "flat_tire"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
