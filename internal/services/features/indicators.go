package features

import (
	"math"
	"time"

	"CropCast/internal/domain/models"
)

// EMA computes the exponentially weighted moving average with the given span,
// matching the adjusted weighting the upstream pipeline produces
// (alpha = 2/(span+1), weights normalized over the observed prefix).
// Returns a slice the same length as values, or nil for empty input.
func EMA(values []float64, span int) []float64 {
	if len(values) == 0 || span <= 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1.0)
	decay := 1.0 - alpha

	out := make([]float64, len(values))
	num := 0.0
	den := 0.0
	for i, v := range values {
		num = v + decay*num
		den = 1 + decay*den
		out[i] = num / den
	}
	return out
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Log1pSeries applies math.Log1p elementwise in place.
func Log1pSeries(values []float64) {
	for i, v := range values {
		values[i] = math.Log1p(v)
	}
}

// FromMetrics converts stored daily metric rows (ascending by date) into a
// TimeSeries keyed by model channel names. A missing EMA column (zero for the
// whole series) is recomputed from close with the default span.
func FromMetrics(rows []models.DailyMetric, emaSpan int) *models.TimeSeries {
	ts := models.NewTimeSeries()
	if len(rows) == 0 {
		return ts
	}

	n := len(rows)
	ts.Dates = make([]time.Time, n)
	for _, name := range Order {
		if IsKnown(name) {
			continue
		}
		ts.Features[name] = make([]float64, n)
	}

	emaSeen := false
	for i, row := range rows {
		ts.Dates[i] = row.Date
		ts.Features[FeatClose][i] = row.Close
		ts.Features[FeatOpen][i] = row.Open
		ts.Features[FeatHigh][i] = row.High
		ts.Features[FeatLow][i] = row.Low
		ts.Features[FeatVolume][i] = row.Volume
		ts.Features[FeatEMA][i] = row.EMA
		ts.Features[FeatPDSI][i] = row.PDSI
		ts.Features[FeatSPI30D][i] = row.SPI30D
		ts.Features[FeatSPI90D][i] = row.SPI90D
		ts.Features[FeatYield10Y][i] = row.Yield10Y
		ts.Features[FeatUSDIndex][i] = row.USDIndex
		ts.Features[FeatLambdaPrice][i] = row.LambdaPrice
		ts.Features[FeatLambdaNews][i] = row.LambdaNews
		ts.Features[FeatNewsCount][i] = row.NewsCount
		for c := 0; c < NewsPCAComponents; c++ {
			if c < len(row.NewsPCA) {
				ts.Features[NewsPCAName(c)][i] = row.NewsPCA[c]
			}
		}
		if row.EMA != 0 {
			emaSeen = true
		}
	}

	if !emaSeen {
		ts.Features[FeatEMA] = EMA(ts.Features[FeatClose], emaSpan)
	}
	return ts
}
