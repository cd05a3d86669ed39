package reports

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "github.com/ionlife/ionlife/testing"
)

type mockRepo struct {
	salesRows    []SalesByDay
	salesCalls   int
	statusRows   []StatusCount
	statusCalls  int
	truckRows    []TruckDeliveries
	truckCalls   int
	driverRows   []DriverPerformance
	driverCalls  int
	summary      OrdersSummary
	summaryCalls int
}

func (m *mockRepo) SalesByDay(_ context.Context, _ DateRange) ([]SalesByDay, error) {
	m.salesCalls++
	return m.salesRows, nil
}

func (m *mockRepo) OrdersByStatus(_ context.Context, _ DateRange) ([]StatusCount, error) {
	m.statusCalls++
	return m.statusRows, nil
}

func (m *mockRepo) DeliveriesPerTruck(_ context.Context, _ DateRange) ([]TruckDeliveries, error) {
	m.truckCalls++
	return m.truckRows, nil
}

func (m *mockRepo) DriverPerformance(_ context.Context, _ DateRange) ([]DriverPerformance, error) {
	m.driverCalls++
	return m.driverRows, nil
}

func (m *mockRepo) OrdersSummary(_ context.Context, _ DateRange) (OrdersSummary, error) {
	m.summaryCalls++
	return m.summary, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(repo, NewCache(client, time.Minute))
}

func TestSalesByDayCachesSecondCall(t *testing.T) {
	repo := &mockRepo{salesRows: []SalesByDay{{
		Day:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Orders: 3,
		Items:  12,
		Value:  decimal.RequireFromString("150.00"),
	}}}
	svc := newTestService(t, repo)
	rng := DateRange{From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)}

	first, err := svc.SalesByDay(context.Background(), rng)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, repo.salesCalls)

	second, err := svc.SalesByDay(context.Background(), rng)
	require.NoError(t, err)
	require.Equal(t, 1, repo.salesCalls, "second call must come from cache")
	require.True(t, second[0].Value.Equal(first[0].Value))
}

func TestDifferentRangesUseDifferentKeys(t *testing.T) {
	repo := &mockRepo{summary: OrdersSummary{TotalOrders: 9}}
	svc := newTestService(t, repo)

	_, err := svc.OrdersSummary(context.Background(), DateRange{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = svc.OrdersSummary(context.Background(), DateRange{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, 2, repo.summaryCalls)
}

func TestInvalidateBumpsVersion(t *testing.T) {
	repo := &mockRepo{statusRows: []StatusCount{{Status: "Pendiente", Count: 4}}}
	svc := newTestService(t, repo)
	rng := DateRange{From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)}

	_, err := svc.OrdersByStatus(context.Background(), rng)
	require.NoError(t, err)
	_, err = svc.OrdersByStatus(context.Background(), rng)
	require.NoError(t, err)
	require.Equal(t, 1, repo.statusCalls)

	require.NoError(t, svc.Invalidate(context.Background()))

	_, err = svc.OrdersByStatus(context.Background(), rng)
	require.NoError(t, err)
	require.Equal(t, 2, repo.statusCalls, "bump must orphan the old key")
}

func TestDashboardCombinesReports(t *testing.T) {
	repo := &mockRepo{
		summary:    OrdersSummary{TotalOrders: 12, PendingOrders: 3},
		salesRows:  []SalesByDay{{Day: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Orders: 4}},
		statusRows: []StatusCount{{Status: "Pendiente", Count: 3}, {Status: "Entregado", Count: 7}},
		truckRows:  []TruckDeliveries{{TruckID: 1, Plate: "ABC-123", Total: 5, Delivered: 4, Returned: 1}},
	}
	svc := newTestService(t, repo)
	rng := DateRange{From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)}

	d, err := svc.Dashboard(context.Background(), rng)
	require.NoError(t, err)
	require.Equal(t, int64(12), d.Summary.TotalOrders)
	require.Len(t, d.SalesByDay, 1)
	require.Len(t, d.OrdersByStatus, 2)
	require.Len(t, d.DeliveriesPerTruck, 1)

	// Every component is cached individually, so a second dashboard load
	// hits redis only.
	_, err = svc.Dashboard(context.Background(), rng)
	require.NoError(t, err)
	require.Equal(t, 1, repo.summaryCalls)
	require.Equal(t, 1, repo.salesCalls)
	require.Equal(t, 1, repo.statusCalls)
	require.Equal(t, 1, repo.truckCalls)
}

func TestNilCacheRunsLoaderDirectly(t *testing.T) {
	repo := &mockRepo{driverRows: []DriverPerformance{{DriverID: 1, DriverName: "Marco", Deliveries: 5}}}
	svc := NewService(repo, nil)

	out, err := svc.DriverPerformance(context.Background(), DateRange{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 1, repo.driverCalls)

	_, err = svc.DriverPerformance(context.Background(), DateRange{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.driverCalls)
}
