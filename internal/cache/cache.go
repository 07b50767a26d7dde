package cache

import (
	"context"
	"time"

	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
)

// MetricsCache stores computed dashboard snapshots. Delete exists so
// writes that change a day's numbers can invalidate it ahead of the TTL.
type MetricsCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardMetrics, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardMetrics, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopMetricsCache struct{}

func (NoopMetricsCache) Get(_ context.Context, _ string) (*domain.DashboardMetrics, bool, error) {
	return nil, false, nil
}

func (NoopMetricsCache) Set(_ context.Context, _ string, _ *domain.DashboardMetrics, _ time.Duration) error {
	return nil
}

func (NoopMetricsCache) Delete(_ context.Context, _ string) error {
	return nil
}
