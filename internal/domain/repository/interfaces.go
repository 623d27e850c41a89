package repository

import (
	"context"
	"time"

	"CropCast/internal/domain/models"
)

// MarketDataSource fetches daily market metrics from an upstream provider.
// Implementations are poll-based, must respect the context deadline, and
// return rows date-ascending.
type MarketDataSource interface {
	Name() string
	FetchDaily(ctx context.Context, commodity string, from, to time.Time) ([]models.DailyMetric, error)
}

// MetricStore persists and reads the daily metric rows that feed the model.
type MetricStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, m *models.DailyMetric) error
	StoreBatch(ctx context.Context, rows []*models.DailyMetric) error
	Window(ctx context.Context, commodity string, end time.Time, days int) ([]models.DailyMetric, error)
	History(ctx context.Context, commodity string, from, to time.Time, limit int) ([]models.DailyMetric, error)
	LatestDate(ctx context.Context, commodity string) (time.Time, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// ForecastStore persists prediction runs and serves them back. LatestRun
// returns nil without error when no run matches.
type ForecastStore interface {
	Init(ctx context.Context) error
	StoreRun(ctx context.Context, run *models.ForecastRun) error
	LatestRun(ctx context.Context, commodity, kind string) (*models.ForecastRun, error)
	Runs(ctx context.Context, commodity string, from, to time.Time, limit int) ([]*models.ForecastRun, error)
	Close() error
}

// Publisher announces completed forecast runs downstream.
type Publisher interface {
	PublishRun(ctx context.Context, run *models.ForecastRun) error
	Close() error
}

// Metrics records operational counters and gauges.
type Metrics interface {
	RecordIngest(commodity string, rows int)
	RecordError(kind string)
	RecordLastPrice(commodity string, price float64)
	RecordLatency(op string, seconds float64)
	RecordForecast(commodity, kind string)
}
