package reports

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Service coordinates report queries with the cache layer. Every report is
// cached under a versioned key; mutating modules call Invalidate through the
// cache bump when freshness matters.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func rangeTokens(r DateRange) (string, string) {
	from, to := r.bounds()
	return from.Format("2006-01-02"), to.Format("2006-01-02")
}

// SalesByDay returns the delivered sales series, cached.
func (s *Service) SalesByDay(ctx context.Context, r DateRange) ([]SalesByDay, error) {
	from, to := rangeTokens(r)
	key, err := s.cache.BuildKey(ctx, "reports", "sales_by_day", from, to)
	if err != nil {
		return nil, err
	}
	var out []SalesByDay
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.SalesByDay(ctx, r)
	})
	return out, err
}

// OrdersByStatus returns order counts per status, cached.
func (s *Service) OrdersByStatus(ctx context.Context, r DateRange) ([]StatusCount, error) {
	from, to := rangeTokens(r)
	key, err := s.cache.BuildKey(ctx, "reports", "orders_by_status", from, to)
	if err != nil {
		return nil, err
	}
	var out []StatusCount
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.OrdersByStatus(ctx, r)
	})
	return out, err
}

// DeliveriesPerTruck returns per-truck delivery outcomes, cached.
func (s *Service) DeliveriesPerTruck(ctx context.Context, r DateRange) ([]TruckDeliveries, error) {
	from, to := rangeTokens(r)
	key, err := s.cache.BuildKey(ctx, "reports", "deliveries_per_truck", from, to)
	if err != nil {
		return nil, err
	}
	var out []TruckDeliveries
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.DeliveriesPerTruck(ctx, r)
	})
	return out, err
}

// DriverPerformance returns delivered value per driver, cached.
func (s *Service) DriverPerformance(ctx context.Context, r DateRange) ([]DriverPerformance, error) {
	from, to := rangeTokens(r)
	key, err := s.cache.BuildKey(ctx, "reports", "driver_performance", from, to)
	if err != nil {
		return nil, err
	}
	var out []DriverPerformance
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.DriverPerformance(ctx, r)
	})
	return out, err
}

// OrdersSummary returns the headline block, cached.
func (s *Service) OrdersSummary(ctx context.Context, r DateRange) (OrdersSummary, error) {
	from, to := rangeTokens(r)
	key, err := s.cache.BuildKey(ctx, "reports", "orders_summary", from, to)
	if err != nil {
		return OrdersSummary{}, err
	}
	var out OrdersSummary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.OrdersSummary(ctx, r)
	})
	return out, err
}

// Dashboard bundles the headline summary with the charts the front page
// renders. The four loads are independent, so they run concurrently; a
// failure in any of them fails the whole response.
func (s *Service) Dashboard(ctx context.Context, r DateRange) (Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, err := s.OrdersSummary(ctx, r)
		if err != nil {
			return err
		}
		d.Summary = summary
		return nil
	})
	g.Go(func() error {
		sales, err := s.SalesByDay(ctx, r)
		if err != nil {
			return err
		}
		d.SalesByDay = sales
		return nil
	})
	g.Go(func() error {
		statuses, err := s.OrdersByStatus(ctx, r)
		if err != nil {
			return err
		}
		d.OrdersByStatus = statuses
		return nil
	})
	g.Go(func() error {
		trucks, err := s.DeliveriesPerTruck(ctx, r)
		if err != nil {
			return err
		}
		d.DeliveriesPerTruck = trucks
		return nil
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// Invalidate discards every cached report.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
