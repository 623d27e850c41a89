package models

import "time"

// TimeSeries is an ordered daily series: one calendar date per step and, per
// feature name, one value per date. Every feature slice has the same length as
// Dates; callers index features and dates in lockstep.
type TimeSeries struct {
	Dates    []time.Time
	Features map[string][]float64
}

// NewTimeSeries allocates an empty series.
func NewTimeSeries() *TimeSeries {
	return &TimeSeries{Features: make(map[string][]float64)}
}

// Len returns the number of steps (dates).
func (ts *TimeSeries) Len() int {
	return len(ts.Dates)
}

// Feature returns the named series. ok is false when the feature is absent.
func (ts *TimeSeries) Feature(name string) ([]float64, bool) {
	v, ok := ts.Features[name]
	return v, ok
}

// Last returns the most recent value of the named series.
func (ts *TimeSeries) Last(name string) (float64, bool) {
	v, ok := ts.Features[name]
	if !ok || len(v) == 0 {
		return 0, false
	}
	return v[len(v)-1], true
}

// LastDate returns the most recent date, or zero time for an empty series.
func (ts *TimeSeries) LastDate() time.Time {
	if len(ts.Dates) == 0 {
		return time.Time{}
	}
	return ts.Dates[len(ts.Dates)-1]
}

// Clone deep-copies dates and every feature slice. Mutating the clone never
// touches the original.
func (ts *TimeSeries) Clone() *TimeSeries {
	out := &TimeSeries{
		Dates:    make([]time.Time, len(ts.Dates)),
		Features: make(map[string][]float64, len(ts.Features)),
	}
	copy(out.Dates, ts.Dates)
	for name, vals := range ts.Features {
		c := make([]float64, len(vals))
		copy(c, vals)
		out.Features[name] = c
	}
	return out
}

// PinConstant replaces every value of the named series with v. Returns false
// when the feature does not exist (nothing is created).
func (ts *TimeSeries) PinConstant(name string, v float64) bool {
	vals, ok := ts.Features[name]
	if !ok {
		return false
	}
	for i := range vals {
		vals[i] = v
	}
	return true
}
