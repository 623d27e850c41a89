package models

import (
	"testing"
	"time"
)

func TestTimeSeriesCloneIsDeep(t *testing.T) {
	ts := NewTimeSeries()
	ts.Dates = []time.Time{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ts.Features["close"] = []float64{450}

	c := ts.Clone()
	c.Features["close"][0] = 999
	c.Dates[0] = c.Dates[0].AddDate(0, 0, 5)

	if ts.Features["close"][0] != 450 {
		t.Fatalf("clone mutation leaked into original values")
	}
	if ts.Dates[0].Day() != 1 {
		t.Fatalf("clone mutation leaked into original dates")
	}
}

func TestPinConstantReplacesWholeSeries(t *testing.T) {
	ts := NewTimeSeries()
	ts.Features["pdsi"] = []float64{-1, 0, 1, 2}

	if !ts.PinConstant("pdsi", 2.5) {
		t.Fatalf("expected pin to succeed")
	}
	for i, v := range ts.Features["pdsi"] {
		if v != 2.5 {
			t.Fatalf("pdsi[%d] = %v, want 2.5", i, v)
		}
	}
	if ts.PinConstant("missing", 1) {
		t.Fatalf("pin must not create features")
	}
}

func TestLastHelpers(t *testing.T) {
	ts := NewTimeSeries()
	if !ts.LastDate().IsZero() {
		t.Fatalf("empty series should have zero last date")
	}
	if _, ok := ts.Last("close"); ok {
		t.Fatalf("expected no last value")
	}

	ts.Dates = []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	ts.Features["close"] = []float64{450, 451}

	if v, ok := ts.Last("close"); !ok || v != 451 {
		t.Fatalf("last close = %v/%v", v, ok)
	}
	if ts.LastDate().Day() != 2 {
		t.Fatalf("last date = %v", ts.LastDate())
	}
}
