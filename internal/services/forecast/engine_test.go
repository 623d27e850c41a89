package forecast

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"CropCast/internal/domain/models"
	"CropCast/internal/services/features"
	"CropCast/internal/services/inference"
	"CropCast/internal/services/normalize"
	"CropCast/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func testEngine(t *testing.T, runner inference.Runner) *Engine {
	t.Helper()
	lgr := testLogger(t)
	r := normalize.NewResolver("", lgr,
		normalize.WithTarget(features.FeatClose),
		normalize.WithKnownChannels(features.Known()),
		normalize.WithFallbackOrder(features.Unknown()))
	return NewEngine(features.NewBuilder(r, lgr), runner, lgr)
}

// engineHistory builds a dated history ending on end with every unknown
// channel populated.
func engineHistory(n int, end time.Time) *models.TimeSeries {
	ts := models.NewTimeSeries()
	ts.Dates = make([]time.Time, n)
	for _, name := range features.Order {
		if features.IsKnown(name) {
			continue
		}
		ts.Features[name] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		ts.Dates[i] = end.AddDate(0, 0, i-(n-1))
		closeV := 450.0 + 0.5*float64(i)
		ts.Features[features.FeatClose][i] = closeV
		ts.Features[features.FeatOpen][i] = closeV - 1
		ts.Features[features.FeatHigh][i] = closeV + 2
		ts.Features[features.FeatLow][i] = closeV - 2
		ts.Features[features.FeatVolume][i] = 1000 + 10*float64(i)
		ts.Features[features.FeatEMA][i] = closeV - 0.2
		for c, name := range features.Order {
			if features.IsKnown(name) || features.IsLogScaled(name) {
				continue
			}
			ts.Features[name][i] = 0.1*float64(c) + 0.05*float64(i)
		}
	}
	return ts
}

func TestForecastShapesAndDates(t *testing.T) {
	eng := testEngine(t, inference.NewStubRunner())
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	steps, err := eng.Forecast(context.Background(), "corn", engineHistory(60, end), nil)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if len(steps) != features.DecoderLength {
		t.Fatalf("steps = %d, want %d", len(steps), features.DecoderLength)
	}
	for i, s := range steps {
		want := end.AddDate(0, 0, i+1)
		if !s.TargetDate.Equal(want) {
			t.Fatalf("step %d date = %v, want %v", i, s.TargetDate, want)
		}
		if s.Price <= 0 {
			t.Fatalf("step %d price = %v, want positive", i, s.Price)
		}
		if s.Lower > s.Price || s.Price > s.Upper {
			t.Fatalf("step %d band [%v, %v] does not contain %v", i, s.Lower, s.Upper, s.Price)
		}
		if s.Lower >= s.Upper {
			t.Fatalf("step %d band [%v, %v] is empty", i, s.Lower, s.Upper)
		}
	}
}

func TestForecastDeterministic(t *testing.T) {
	eng := testEngine(t, inference.NewStubRunner())
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := eng.Forecast(context.Background(), "corn", engineHistory(60, end), nil)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	second, err := eng.Forecast(context.Background(), "corn", engineHistory(60, end), nil)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("step %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestForecastEmptyHistory(t *testing.T) {
	eng := testEngine(t, inference.NewStubRunner())

	steps, err := eng.Forecast(context.Background(), "corn", models.NewTimeSeries(), nil)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if len(steps) != features.DecoderLength {
		t.Fatalf("steps = %d, want %d", len(steps), features.DecoderLength)
	}
	for i, s := range steps {
		if s.TargetDate.IsZero() {
			t.Fatalf("step %d has zero date", i)
		}
		if i > 0 && !s.TargetDate.After(steps[i-1].TargetDate) {
			t.Fatalf("step %d date %v not after %v", i, s.TargetDate, steps[i-1].TargetDate)
		}
	}
}

type failRunner struct{}

func (failRunner) Run(context.Context, *inference.Tensors) ([]inference.Step, error) {
	return nil, errors.New("model sidecar down")
}

func TestForecastRunnerErrorWrapped(t *testing.T) {
	eng := testEngine(t, failRunner{})
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := eng.Forecast(context.Background(), "corn", engineHistory(60, end), nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "inference") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestForecastNonFiniteOutputClamped(t *testing.T) {
	eng := testEngine(t, nanRunner{})
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	steps, err := eng.Forecast(context.Background(), "corn", engineHistory(60, end), nil)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	for i, s := range steps {
		if s.Price != 0 || s.Lower != 0 || s.Upper != 0 {
			t.Fatalf("step %d = %+v, want zeroed prices", i, s)
		}
	}
}

type nanRunner struct{}

func (nanRunner) Run(_ context.Context, tns *inference.Tensors) ([]inference.Step, error) {
	steps := make([]inference.Step, len(tns.DecoderCont))
	for i := range steps {
		nan := math.NaN()
		steps[i] = inference.Step{Median: nan, Lower: nan, Upper: nan}
	}
	return steps, nil
}
