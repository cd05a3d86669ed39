package orders

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ionlife/ionlife/internal/shared"
)

type priceKey struct {
	productID   int64
	priceTypeID int64
}

type stubCatalog struct {
	products  map[int64]CatalogProduct
	customers map[int64]CatalogCustomer
	prices    map[priceKey]decimal.Decimal
}

func (c *stubCatalog) Product(_ context.Context, id int64) (CatalogProduct, error) {
	p, ok := c.products[id]
	if !ok {
		return CatalogProduct{}, shared.ErrNotFound
	}
	return p, nil
}

func (c *stubCatalog) Customer(_ context.Context, id int64) (CatalogCustomer, error) {
	cust, ok := c.customers[id]
	if !ok {
		return CatalogCustomer{}, shared.ErrNotFound
	}
	return cust, nil
}

func (c *stubCatalog) FixedPrice(_ context.Context, productID, priceTypeID int64) (decimal.Decimal, error) {
	price, ok := c.prices[priceKey{productID, priceTypeID}]
	if !ok {
		return decimal.Decimal{}, shared.ErrNotFound
	}
	return price, nil
}

type memoryRepo struct {
	orders  map[int64]Order
	lines   map[int64][]OrderLine
	history []StatusHistory
	stock   map[int64]int64
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders: make(map[int64]Order),
		lines:  make(map[int64][]OrderLine),
		stock:  make(map[int64]int64),
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, (*memoryTx)(m))
}

func (m *memoryRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, shared.ErrNotFound
	}
	o.Lines = m.lines[id]
	o.Total = linesTotal(o.Lines)
	return o, nil
}

func (m *memoryRepo) ListOrders(_ context.Context, _ OrderFilter) ([]Order, shared.Pagination, error) {
	var out []Order
	for id := range m.orders {
		o, _ := m.GetOrder(context.Background(), id)
		out = append(out, o)
	}
	return out, shared.NewPagination(1, 20, len(out)), nil
}

func (m *memoryRepo) ListHistory(_ context.Context, orderID int64) ([]StatusHistory, error) {
	var out []StatusHistory
	for _, h := range m.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memoryTx memoryRepo

func (m *memoryTx) InsertOrder(_ context.Context, o Order) (int64, error) {
	m.nextID++
	o.ID = m.nextID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	m.orders[o.ID] = o
	return o.ID, nil
}

func (m *memoryTx) InsertLines(_ context.Context, orderID int64, lines []OrderLine) error {
	for i := range lines {
		lines[i].OrderID = orderID
	}
	m.lines[orderID] = append(m.lines[orderID], lines...)
	return nil
}

func (m *memoryTx) ReplaceLines(ctx context.Context, orderID int64, lines []OrderLine) error {
	m.lines[orderID] = nil
	return m.InsertLines(ctx, orderID, lines)
}

func (m *memoryTx) GetOrderForUpdate(_ context.Context, id int64) (Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, shared.ErrNotFound
	}
	o.Lines = m.lines[id]
	return o, nil
}

func (m *memoryTx) UpdateOrderHeader(_ context.Context, o Order) error {
	stored, ok := m.orders[o.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Address = o.Address
	stored.PaymentMethod = o.PaymentMethod
	stored.Priority = o.Priority
	stored.Notes = o.Notes
	stored.ScheduledDate = o.ScheduledDate
	stored.UpdatedBy = o.UpdatedBy
	m.orders[o.ID] = stored
	return nil
}

func (m *memoryTx) UpdateOrderStatus(_ context.Context, orderID int64, status Status, actorID int64) error {
	o, ok := m.orders[orderID]
	if !ok {
		return shared.ErrNotFound
	}
	o.Status = status
	o.UpdatedBy = actorID
	m.orders[orderID] = o
	return nil
}

func (m *memoryTx) InsertHistory(_ context.Context, h StatusHistory) error {
	h.ID = int64(len(m.history) + 1)
	h.CreatedAt = time.Now()
	m.history = append(m.history, h)
	return nil
}

func (m *memoryTx) AggregateAvailable(_ context.Context, productID int64) (int64, error) {
	return m.stock[productID], nil
}

func (m *memoryTx) PendingDemand(_ context.Context, productID, excludeOrderID int64) (int64, error) {
	var qty int64
	for id, o := range m.orders {
		if id == excludeOrderID {
			continue
		}
		switch o.Status {
		case StatusPendiente, StatusDespachado, StatusReprogramado:
			for _, l := range m.lines[id] {
				if l.ProductID == productID {
					qty += l.Qty
				}
			}
		}
	}
	return qty, nil
}

func (m *memoryTx) UpdateDeliveryStatusForOrder(_ context.Context, _ int64, _ Status) (bool, error) {
	return false, nil
}

func newTestService(repo *memoryRepo, catalog Catalog) *Service {
	return NewService(repo, catalog, nil, nil)
}

func defaultCatalog() *stubCatalog {
	return &stubCatalog{
		products: map[int64]CatalogProduct{
			1: {ID: 1, Name: "Bidon 20L", BasePrice: decimal.NewFromInt(10), IsActive: true},
			2: {ID: 2, Name: "Botella 3L", BasePrice: decimal.NewFromInt(4), IsActive: true},
		},
		customers: map[int64]CatalogCustomer{
			7: {ID: 7, Name: "Tienda Sol", Address: "Av. Central 42", IsActive: true},
		},
		prices: map[priceKey]decimal.Decimal{
			{1, 1}: decimal.RequireFromString("12.50"),
		},
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateOrderFreezesFixedPrice(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 100
	catalog := defaultCatalog()
	catalog.customers[7] = CatalogCustomer{
		ID: 7, Name: "Tienda Sol", Address: "Av. Central 42",
		DiscountPerUnit: decimal.RequireFromString("0.50"), IsActive: true,
	}
	svc := newTestService(repo, catalog)

	order, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 3, PriceTypeID: ptr(int64(1))}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPendiente, order.Status)
	require.Len(t, order.Lines, 1)
	require.True(t, order.Lines[0].UnitPrice.Equal(decimal.RequireFromString("12.00")),
		"got %s", order.Lines[0].UnitPrice)
	require.True(t, order.Total.Equal(decimal.RequireFromString("36.00")), "got %s", order.Total)
	require.Equal(t, "Av. Central 42", order.Address)
}

func TestCreateOrderDiscountFloorsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[2] = 50
	catalog := defaultCatalog()
	catalog.customers[7] = CatalogCustomer{
		ID: 7, Name: "Tienda Sol", DiscountPerUnit: decimal.NewFromInt(100), IsActive: true,
	}
	svc := newTestService(repo, catalog)

	order, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 2, Qty: 2, UnitPrice: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)
	require.True(t, order.Lines[0].UnitPrice.IsZero(), "got %s", order.Lines[0].UnitPrice)
	require.True(t, order.Total.IsZero())
}

func TestCreateOrderPriceTypeWithoutMapping(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[2] = 50
	svc := newTestService(repo, defaultCatalog())

	_, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 2, Qty: 1, PriceTypeID: ptr(int64(1))}},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields["lines[0].price_type_id"], "Botella 3L")
	require.Empty(t, repo.orders, "a pricing failure must not persist anything")
}

func TestCreateOrderRequiresPositivePriceWithoutType(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 10
	svc := newTestService(repo, defaultCatalog())

	_, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 1}},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "lines[0].unit_price")
}

func TestCreateOrderBoundaryAdmission(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 10
	svc := newTestService(repo, defaultCatalog())

	// One unit over the available quantity fails with the product named.
	_, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 11, UnitPrice: decimal.NewFromInt(10)}},
	})
	var cerr *shared.ConflictError
	require.ErrorAs(t, err, &cerr)
	meta, ok := cerr.Meta.(map[string]any)
	require.True(t, ok)
	shortages, ok := meta["shortages"].([]Shortage)
	require.True(t, ok)
	require.Len(t, shortages, 1)
	require.Equal(t, Shortage{ProductID: 1, Name: "Bidon 20L", Available: 10, Required: 11}, shortages[0])
	require.Empty(t, repo.orders)

	// Exactly the available quantity is admissible.
	order, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 10, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPendiente, order.Status)
}

func TestCreateOrderCountsPendingDemand(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 10
	svc := newTestService(repo, defaultCatalog())

	_, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 10, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	// The admitted order has not shipped, so its demand still counts.
	_, err = svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	var cerr *shared.ConflictError
	require.ErrorAs(t, err, &cerr)
	shortages := cerr.Meta.(map[string]any)["shortages"].([]Shortage)
	require.Equal(t, Shortage{ProductID: 1, Name: "Bidon 20L", Available: 10, Required: 11}, shortages[0])
}

func TestCreateOrderAggregatesRequirementAcrossLines(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 10
	svc := newTestService(repo, defaultCatalog())

	// Two lines of the same product are summed before the check.
	_, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines: []LineInput{
			{ProductID: 1, Qty: 6, UnitPrice: decimal.NewFromInt(10)},
			{ProductID: 1, Qty: 5, UnitPrice: decimal.NewFromInt(10)},
		},
	})
	var cerr *shared.ConflictError
	require.ErrorAs(t, err, &cerr)
	shortages := cerr.Meta.(map[string]any)["shortages"].([]Shortage)
	require.Equal(t, int64(11), shortages[0].Required)
}

func TestCreateOrderRejectsInactiveCustomer(t *testing.T) {
	repo := newMemoryRepo()
	catalog := defaultCatalog()
	catalog.customers[7] = CatalogCustomer{ID: 7, Name: "Tienda Sol", IsActive: false}
	svc := newTestService(repo, catalog)

	_, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 1, UnitPrice: decimal.NewFromInt(1)}},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "customer_id")
}

func TestUpdateOrderRejectsTerminalStatus(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 100
	svc := newTestService(repo, defaultCatalog())

	order, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	stored := repo.orders[order.ID]
	stored.Status = StatusEntregado
	repo.orders[order.ID] = stored

	_, err = svc.UpdateOrder(context.Background(), 1, order.ID, UpdateOrderInput{
		Lines: []LineInput{{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(10)}},
	})
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, string(StatusEntregado), serr.Current)
}

func TestUpdateOrderReplacesLines(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 100
	repo.stock[2] = 100
	svc := newTestService(repo, defaultCatalog())

	order, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateOrder(context.Background(), 2, order.ID, UpdateOrderInput{
		Address: "Calle Nueva 9",
		Lines:   []LineInput{{ProductID: 2, Qty: 5, UnitPrice: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	require.Equal(t, int64(2), updated.Lines[0].ProductID)
	require.Equal(t, "Calle Nueva 9", updated.Address)
	require.True(t, updated.Total.Equal(decimal.NewFromInt(20)), "got %s", updated.Total)
}

func TestCancelPendingOrder(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 100
	svc := newTestService(repo, defaultCatalog())

	order, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 4, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), 3, order.ID, "customer closed")
	require.NoError(t, err)
	require.Equal(t, StatusCancelado, cancelled.Status)

	// Cancellation before delivery never touches stock.
	require.Equal(t, int64(100), repo.stock[1])

	history, err := repo.ListHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelado, history[len(history)-1].Status)
	require.Equal(t, "customer closed", history[len(history)-1].Note)
}

func TestCancelRejectsDeliveredOrder(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 100
	svc := newTestService(repo, defaultCatalog())

	order, err := svc.CreateOrder(context.Background(), 1, CreateOrderInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 1, Qty: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	stored := repo.orders[order.ID]
	stored.Status = StatusEntregado
	repo.orders[order.ID] = stored

	_, err = svc.Cancel(context.Background(), 1, order.ID, "")
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)
}

func TestStatusTransitions(t *testing.T) {
	require.True(t, StatusPendiente.CanTransition(StatusDespachado))
	require.True(t, StatusDespachado.CanTransition(StatusReprogramado))
	require.True(t, StatusEntregado.CanTransition(StatusReprogramado))
	require.True(t, StatusReprogramado.CanTransition(StatusPendiente))
	require.False(t, StatusPendiente.CanTransition(StatusEntregado))
	require.False(t, StatusCancelado.CanTransition(StatusPendiente))
	require.False(t, StatusEntregado.CanTransition(StatusDespachado))
}
