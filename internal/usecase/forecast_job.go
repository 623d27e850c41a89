package usecase

import (
	"context"
	"fmt"

	"CropCast/internal/services/scheduler"
	"CropCast/pkg/logger"
)

// ForecastJob is the daily maintenance task: pull fresh metrics and refresh
// the stored forecast for every configured commodity.
type ForecastJob struct {
	commodities []string
	collector   *CollectorUseCase
	predictor   *PredictorUseCase
	l           *logger.Logger
}

func NewForecastJob(commodities []string, collector *CollectorUseCase, predictor *PredictorUseCase, lgr *logger.Logger) *ForecastJob {
	return &ForecastJob{
		commodities: commodities,
		collector:   collector,
		predictor:   predictor,
		l:           lgr,
	}
}

// Job adapts the task to a scheduler entry with the given cron spec.
func (j *ForecastJob) Job(spec string) scheduler.Job {
	return scheduler.Job{Name: "daily_forecast", Spec: spec, Run: j.Run}
}

// Run collects and forecasts each commodity in turn. A failing commodity does
// not stop the others; the first error comes back after all have run.
func (j *ForecastJob) Run(ctx context.Context) (err error) {
	for _, commodity := range j.commodities {
		base, rows, cErr := j.collector.Collect(ctx, commodity)
		if cErr != nil {
			// forecast from stored history even when the pull fails
			j.l.Warn("collect failed, forecasting from stored history",
				logger.String("commodity", commodity),
				logger.Error(cErr))
		} else if rows > 0 {
			j.l.Info("collected fresh rows",
				logger.String("commodity", commodity),
				logger.Int("rows", rows))
		}

		if _, rErr := j.predictor.Run(ctx, RunForecastParams{Commodity: commodity, BaseDate: base}); rErr != nil {
			j.l.Error("daily forecast failed",
				logger.String("commodity", commodity),
				logger.Error(rErr))
			if err == nil {
				err = fmt.Errorf("forecast %s: %w", commodity, rErr)
			}
		}
	}
	return err
}
