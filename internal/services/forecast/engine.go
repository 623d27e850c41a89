package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"CropCast/internal/domain/models"
	domsvc "CropCast/internal/domain/service"
	"CropCast/internal/services/features"
	"CropCast/internal/services/inference"
	"CropCast/pkg/logger"
)

// Engine turns a feature window into one short-horizon price forecast: build
// tensors, run the model, denormalize the quantiles back to real prices.
type Engine struct {
	builder *features.Builder
	runner  inference.Runner
	l       *logger.Logger
}

var _ domsvc.Forecaster = (*Engine)(nil)

func NewEngine(builder *features.Builder, runner inference.Runner, lgr *logger.Logger) *Engine {
	return &Engine{builder: builder, runner: runner, l: lgr}
}

// Forecast produces one decoder-length forecast for the given window. Steps
// are dated sequentially after the window's last date and every price is
// finite; non-finite model output is replaced with 0.
func (e *Engine) Forecast(ctx context.Context, commodity string, history *models.TimeSeries, overrides map[string]float64) ([]models.ForecastStep, error) {
	tensors, params, err := e.builder.Build(history, overrides, commodity)
	if err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}

	raw, err := e.runner.Run(ctx, tensors)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	medians := make([]float64, len(raw))
	lowers := make([]float64, len(raw))
	uppers := make([]float64, len(raw))
	for i, s := range raw {
		medians[i] = s.Median
		lowers[i] = s.Lower
		uppers[i] = s.Upper
	}
	prices := params.Denormalize(medians)
	lo := params.Denormalize(lowers)
	hi := params.Denormalize(uppers)

	anchor := history.LastDate()
	if anchor.IsZero() {
		anchor = time.Now().UTC()
	}

	steps := make([]models.ForecastStep, len(raw))
	for i := range raw {
		steps[i] = models.ForecastStep{
			TargetDate: anchor.AddDate(0, 0, i+1),
			Price:      finite(prices[i]),
			Lower:      finite(lo[i]),
			Upper:      finite(hi[i]),
		}
	}

	e.l.Debug("forecast produced",
		logger.String("commodity", commodity),
		logger.Int("steps", len(steps)),
		logger.String("norm_mode", string(params.Mode)))

	return steps, nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
