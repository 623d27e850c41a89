package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CropCast/internal/domain/models"
	drepo "CropCast/internal/domain/repository"
	domsvc "CropCast/internal/domain/service"
	"CropCast/internal/services/features"
	"CropCast/pkg/logger"
)

// PredictorUseCase produces and persists single short-horizon forecast runs.
type PredictorUseCase struct {
	windows    domsvc.WindowProvider
	forecaster domsvc.Forecaster
	store      drepo.ForecastStore
	pub        drepo.Publisher
	metrics    drepo.Metrics
	lookback   int
	strict     bool
	l          *logger.Logger
}

type PredictorOption func(*PredictorUseCase)

// WithPredictorWindow sets the lookback window length in days.
func WithPredictorWindow(days int) PredictorOption {
	return func(uc *PredictorUseCase) {
		if days > 0 {
			uc.lookback = days
		}
	}
}

// WithPredictorStrictWindow rejects histories shorter than the lookback window.
func WithPredictorStrictWindow(strict bool) PredictorOption {
	return func(uc *PredictorUseCase) { uc.strict = strict }
}

func NewPredictorUseCase(
	windows domsvc.WindowProvider,
	forecaster domsvc.Forecaster,
	store drepo.ForecastStore,
	pub drepo.Publisher,
	metrics drepo.Metrics,
	lgr *logger.Logger,
	opts ...PredictorOption,
) *PredictorUseCase {
	uc := &PredictorUseCase{
		windows:    windows,
		forecaster: forecaster,
		store:      store,
		pub:        pub,
		metrics:    metrics,
		lookback:   features.EncoderLength,
		l:          lgr,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type RunForecastParams struct {
	Commodity string
	BaseDate  time.Time // zero means the latest stored day
}

// Run forecasts the next decoder-length days for a commodity, persists the
// run, and announces it. Publish failures do not fail the run: the stored row
// is the source of truth, the announcement is advisory.
func (uc *PredictorUseCase) Run(ctx context.Context, p RunForecastParams) (*models.ForecastRun, error) {
	if p.Commodity == "" {
		return nil, fmt.Errorf("commodity required")
	}

	start := time.Now()

	history, err := uc.windows.Window(ctx, p.Commodity, p.BaseDate, uc.lookback)
	if err != nil {
		uc.metrics.RecordError("forecast_window")
		return nil, fmt.Errorf("load window: %w", err)
	}
	if history.Len() == 0 {
		return nil, fmt.Errorf("no historical data for %s", p.Commodity)
	}
	if history.Len() < uc.lookback {
		if uc.strict {
			return nil, fmt.Errorf("window has %d days, need %d", history.Len(), uc.lookback)
		}
		uc.l.Warn("short window, missing steps zero-fill",
			logger.String("commodity", p.Commodity),
			logger.Int("have", history.Len()),
			logger.Int("want", uc.lookback))
	}

	steps, err := uc.forecaster.Forecast(ctx, p.Commodity, history, nil)
	if err != nil {
		uc.metrics.RecordError("forecast")
		return nil, fmt.Errorf("forecast %s: %w", p.Commodity, err)
	}

	run := &models.ForecastRun{
		RunID:     uuid.NewString(),
		Commodity: p.Commodity,
		BaseDate:  history.LastDate(),
		Kind:      "daily",
		Steps:     steps,
		CreatedAt: time.Now().UTC(),
	}

	if err := uc.store.StoreRun(ctx, run); err != nil {
		uc.metrics.RecordError("forecast_store")
		return nil, fmt.Errorf("store run: %w", err)
	}
	if uc.pub != nil {
		if err := uc.pub.PublishRun(ctx, run); err != nil {
			uc.metrics.RecordError("forecast_publish")
			uc.l.Warn("publish run failed",
				logger.String("commodity", p.Commodity),
				logger.String("run_id", run.RunID),
				logger.Error(err))
		}
	}

	if len(steps) > 0 {
		uc.metrics.RecordLastPrice(p.Commodity, steps[0].Price)
	}
	uc.metrics.RecordForecast(p.Commodity, "daily")
	uc.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	uc.l.Info("forecast run stored",
		logger.String("commodity", p.Commodity),
		logger.String("run_id", run.RunID),
		logger.Int("steps", len(steps)))

	return run, nil
}

// Latest returns the most recent stored daily run, producing one on the fly
// when the store has none yet.
func (uc *PredictorUseCase) Latest(ctx context.Context, commodity string) (*models.ForecastRun, error) {
	if commodity == "" {
		return nil, fmt.Errorf("commodity required")
	}
	run, err := uc.store.LatestRun(ctx, commodity, "daily")
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	if run != nil {
		return run, nil
	}
	return uc.Run(ctx, RunForecastParams{Commodity: commodity})
}
