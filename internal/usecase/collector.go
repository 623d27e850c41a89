package usecase

import (
	"context"
	"fmt"
	"time"

	"CropCast/internal/domain/models"
	drepo "CropCast/internal/domain/repository"
	"CropCast/internal/services/features"
	"CropCast/pkg/logger"
)

// CollectorUseCase pulls daily metrics from the configured sources and
// persists them. Sources are tried in order; the first one that returns rows
// wins.
type CollectorUseCase struct {
	sources    []drepo.MarketDataSource
	store      drepo.MetricStore
	metrics    drepo.Metrics
	invalidate func(commodity string)
	backoff    int // days fetched when the store is empty
	l          *logger.Logger
}

type CollectorOption func(*CollectorUseCase)

// WithCollectorInvalidator installs a callback run after new rows are stored,
// used to drop the commodity's cached windows.
func WithCollectorInvalidator(fn func(commodity string)) CollectorOption {
	return func(uc *CollectorUseCase) {
		uc.invalidate = fn
	}
}

func NewCollectorUseCase(
	sources []drepo.MarketDataSource,
	store drepo.MetricStore,
	metrics drepo.Metrics,
	lgr *logger.Logger,
	opts ...CollectorOption,
) *CollectorUseCase {
	uc := &CollectorUseCase{
		sources: sources,
		store:   store,
		metrics: metrics,
		backoff: 2 * features.EncoderLength,
		l:       lgr,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Collect fetches the rows between the last stored day and today. It returns
// the latest stored date after the run, so callers can anchor follow-up work
// on fresh data. An up-to-date store is not an error: the date comes back
// with zero new rows.
func (uc *CollectorUseCase) Collect(ctx context.Context, commodity string) (time.Time, int, error) {
	if commodity == "" {
		return time.Time{}, 0, fmt.Errorf("commodity required")
	}

	latest, err := uc.store.LatestDate(ctx, commodity)
	if err != nil {
		uc.metrics.RecordError("collect_latest")
		return time.Time{}, 0, fmt.Errorf("latest date %s: %w", commodity, err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -uc.backoff)
	if !latest.IsZero() {
		from = latest.AddDate(0, 0, 1)
	}
	if from.After(today) {
		return latest, 0, nil
	}

	rows, src := uc.fetch(ctx, commodity, from, today)
	if len(rows) == 0 {
		uc.l.Warn("no source returned rows",
			logger.String("commodity", commodity),
			logger.String("from", from.Format("2006-01-02")),
			logger.String("to", today.Format("2006-01-02")))
		return latest, 0, nil
	}

	ptrs := make([]*models.DailyMetric, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	if err := uc.store.StoreBatch(ctx, ptrs); err != nil {
		uc.metrics.RecordError("collect_store")
		return latest, 0, fmt.Errorf("store %d rows for %s: %w", len(rows), commodity, err)
	}

	newest := rows[len(rows)-1].Date
	if newest.Before(latest) {
		newest = latest
	}
	uc.metrics.RecordIngest(commodity, len(rows))
	if uc.invalidate != nil {
		uc.invalidate(commodity)
	}
	uc.l.Info("metrics collected",
		logger.String("commodity", commodity),
		logger.String("source", src),
		logger.Int("rows", len(rows)),
		logger.String("latest", newest.Format("2006-01-02")))

	return newest, len(rows), nil
}

func (uc *CollectorUseCase) fetch(ctx context.Context, commodity string, from, to time.Time) ([]models.DailyMetric, string) {
	for _, src := range uc.sources {
		rows, err := src.FetchDaily(ctx, commodity, from, to)
		if err != nil {
			uc.metrics.RecordError("collect_fetch")
			uc.l.Warn("source fetch failed",
				logger.String("source", src.Name()),
				logger.String("commodity", commodity),
				logger.Error(err))
			continue
		}
		if len(rows) > 0 {
			return rows, src.Name()
		}
	}
	return nil, ""
}
