package service

import (
	"context"
	"time"

	"CropCast/internal/domain/models"
)

// WindowProvider supplies the trailing daily feature window for a commodity.
// A zero end time means "up to the latest stored day". Implementations may
// serve from cache, storage, or an upstream fetch, but the returned series is
// always date-ascending.
type WindowProvider interface {
	Window(ctx context.Context, commodity string, end time.Time, days int) (*models.TimeSeries, error)
}

// Forecaster produces one short-horizon forecast from a feature window.
type Forecaster interface {
	Forecast(ctx context.Context, commodity string, history *models.TimeSeries, overrides map[string]float64) ([]models.ForecastStep, error)
}
