package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"CropCast/internal/domain/models"
	drepo "CropCast/internal/domain/repository"
	domsvc "CropCast/internal/domain/service"
	"CropCast/internal/services/features"
	"CropCast/pkg/logger"
)

// SimulatorUseCase runs what-if price simulations. The model only forecasts a
// short horizon per call, so a long horizon is covered by rolling the input
// window forward cycle by cycle. Two histories advance in lockstep: a baseline
// with no overrides and a simulated one with the override set, so the per-day
// delta isolates the override's effect under the model.
type SimulatorUseCase struct {
	windows    domsvc.WindowProvider
	forecaster domsvc.Forecaster
	metrics    drepo.Metrics
	lookback   int
	horizon    int
	maxHorizon int
	strict     bool
	l          *logger.Logger
}

type SimulatorOption func(*SimulatorUseCase)

// WithSimulatorWindow sets the lookback window length in days.
func WithSimulatorWindow(days int) SimulatorOption {
	return func(uc *SimulatorUseCase) {
		if days > 0 {
			uc.lookback = days
		}
	}
}

// WithSimulatorHorizon sets the per-cycle forecast length in days.
func WithSimulatorHorizon(days int) SimulatorOption {
	return func(uc *SimulatorUseCase) {
		if days > 0 {
			uc.horizon = days
		}
	}
}

// WithStrictWindow rejects histories shorter than the lookback window instead
// of letting short windows zero-fill.
func WithStrictWindow(strict bool) SimulatorOption {
	return func(uc *SimulatorUseCase) { uc.strict = strict }
}

func NewSimulatorUseCase(
	windows domsvc.WindowProvider,
	forecaster domsvc.Forecaster,
	metrics drepo.Metrics,
	lgr *logger.Logger,
	opts ...SimulatorOption,
) *SimulatorUseCase {
	uc := &SimulatorUseCase{
		windows:    windows,
		forecaster: forecaster,
		metrics:    metrics,
		lookback:   features.EncoderLength,
		horizon:    features.DecoderLength,
		maxHorizon: 180,
		strict:     false,
		l:          lgr,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type SimulateParams struct {
	Commodity   string
	BaseDate    time.Time
	HorizonDays int
	Overrides   map[string]float64

	// RunID, when set, names the result. Async submitters assign it at
	// enqueue time so clients can poll before the run finishes.
	RunID string

	// Progress, when set, is called after each completed cycle. Long
	// simulations stream it to clients; it must not block.
	Progress func(cycle, total int)
}

// Simulate forecasts HorizonDays of prices twice, with and without the
// override set, and returns the per-day comparison plus summary statistics
// and a per-feature attribution of the mean delta.
func (uc *SimulatorUseCase) Simulate(ctx context.Context, p SimulateParams) (*models.SimulationResult, error) {
	if p.Commodity == "" {
		return nil, fmt.Errorf("commodity required")
	}
	if bad := features.InvalidOverrideKeys(p.Overrides); len(bad) > 0 {
		return nil, fmt.Errorf("features not adjustable: %v (adjustable: %v)", bad, features.Adjustable())
	}
	if p.HorizonDays <= 0 {
		p.HorizonDays = 60
	}
	if p.HorizonDays > uc.maxHorizon {
		p.HorizonDays = uc.maxHorizon
	}

	start := time.Now()

	history, err := uc.windows.Window(ctx, p.Commodity, p.BaseDate, uc.lookback)
	if err != nil {
		uc.metrics.RecordError("simulate_window")
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
	if p.BaseDate.IsZero() {
		p.BaseDate = history.LastDate()
	}

	days, err := uc.rollForward(ctx, p, history)
	if err != nil {
		uc.metrics.RecordError("simulate")
		return nil, err
	}

	summary := summarize(days)
	impacts := attributeImpacts(history, p.Overrides, summary.AvgDelta)

	uc.metrics.RecordForecast(p.Commodity, "simulation")
	uc.metrics.RecordLatency("simulate", time.Since(start).Seconds())
	uc.l.Info("simulation complete",
		logger.String("commodity", p.Commodity),
		logger.Int("days", len(days)),
		logger.Int("overrides", len(p.Overrides)),
		logger.Float64("avg_delta", summary.AvgDelta))

	runID := p.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return &models.SimulationResult{
		RunID:       runID,
		Commodity:   p.Commodity,
		BaseDate:    p.BaseDate,
		HorizonDays: p.HorizonDays,
		Days:        days,
		Summary:     summary,
		Impacts:     impacts,
	}, nil
}

// rollForward runs the per-cycle forecast pair and advances both rolling
// histories between cycles. Cycles run strictly in order: each depends on the
// previous cycle's window update. A failed inference call aborts the whole
// simulation rather than returning partial results.
func (uc *SimulatorUseCase) rollForward(ctx context.Context, p SimulateParams, history *models.TimeSeries) ([]models.SimulationDay, error) {
	cycles := (p.HorizonDays + uc.horizon - 1) / uc.horizon

	baseline := history.Clone()
	simulated := history.Clone()

	days := make([]models.SimulationDay, 0, cycles*uc.horizon)
	date := p.BaseDate

	for cycle := 0; cycle < cycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("simulation %s aborted at cycle %d/%d: %w", p.Commodity, cycle+1, cycles, err)
		}

		baseSteps, err := uc.forecaster.Forecast(ctx, p.Commodity, baseline, nil)
		if err != nil {
			return nil, fmt.Errorf("simulation %s cycle %d/%d baseline: %w", p.Commodity, cycle+1, cycles, err)
		}
		simSteps, err := uc.forecaster.Forecast(ctx, p.Commodity, simulated, p.Overrides)
		if err != nil {
			return nil, fmt.Errorf("simulation %s cycle %d/%d simulated: %w", p.Commodity, cycle+1, cycles, err)
		}

		basePrices := stepPrices(baseSteps)
		simPrices := stepPrices(simSteps)

		n := len(basePrices)
		if len(simPrices) < n {
			n = len(simPrices)
		}
		for i := 0; i < n; i++ {
			date = date.AddDate(0, 0, 1)
			b := finite(basePrices[i])
			s := finite(simPrices[i])
			delta := finite(s - b)
			pct := 0.0
			if b != 0 {
				pct = finite(delta / b * 100)
			}
			days = append(days, models.SimulationDay{
				Date:           date,
				BaselinePrice:  b,
				SimulatedPrice: s,
				Delta:          delta,
				DeltaPercent:   pct,
			})
		}

		if cycle+1 < cycles {
			advanceWindow(baseline, basePrices, nil)
			advanceWindow(simulated, simPrices, p.Overrides)
		}
		if p.Progress != nil {
			p.Progress(cycle+1, cycles)
		}
	}

	if len(days) > p.HorizonDays {
		days = days[:p.HorizonDays]
	}
	return days, nil
}

// advanceWindow slides the rolling history one forecast forward: the oldest
// len(forecast) days drop off and the same number of new days append, keeping
// the window length constant. Per feature the new days are reconstructed as:
//
//   - close: the forecasted price for that day
//   - open/high/low: the dropped day's ratio to close, scaled onto the new close
//   - volume: the mean of the last 7 retained days
//   - overridden features: the override constant
//   - everything else: the last retained value, repeated
func advanceWindow(ts *models.TimeSeries, forecast []float64, overrides map[string]float64) {
	h := len(forecast)
	if h == 0 || ts.Len() <= h {
		return
	}

	oldClose := ts.Features[features.FeatClose]

	for name, vals := range ts.Features {
		out := make([]float64, 0, len(vals))
		out = append(out, vals[h:]...)

		switch name {
		case features.FeatClose:
			for j := 0; j < h; j++ {
				out = append(out, finite(forecast[j]))
			}
		case features.FeatOpen, features.FeatHigh, features.FeatLow:
			for j := 0; j < h; j++ {
				ratio := 1.0
				if j < len(vals) && j < len(oldClose) {
					if c := oldClose[j]; c != 0 && !math.IsNaN(c) && !math.IsInf(c, 0) {
						ratio = vals[j] / c
					}
				}
				out = append(out, finite(ratio*forecast[j]))
			}
		case features.FeatVolume:
			m := tailMean(out, 7)
			for j := 0; j < h; j++ {
				out = append(out, m)
			}
		default:
			if pin, ok := overrides[name]; ok {
				for j := 0; j < h; j++ {
					out = append(out, pin)
				}
				break
			}
			last := 0.0
			if len(out) > 0 {
				last = out[len(out)-1]
			}
			for j := 0; j < h; j++ {
				out = append(out, last)
			}
		}

		ts.Features[name] = out
	}

	if len(ts.Dates) > h {
		last := ts.Dates[len(ts.Dates)-1]
		dates := make([]time.Time, 0, len(ts.Dates))
		dates = append(dates, ts.Dates[h:]...)
		for j := 1; j <= h; j++ {
			dates = append(dates, last.AddDate(0, 0, j))
		}
		ts.Dates = dates
	}
}

func stepPrices(steps []models.ForecastStep) []float64 {
	out := make([]float64, len(steps))
	for i, s := range steps {
		out[i] = s.Price
	}
	return out
}

func tailMean(vals []float64, n int) float64 {
	if len(vals) == 0 || n <= 0 {
		return 0
	}
	if n > len(vals) {
		n = len(vals)
	}
	sum := 0.0
	for _, v := range vals[len(vals)-n:] {
		sum += v
	}
	return sum / float64(n)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
