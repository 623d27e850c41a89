package models

import "time"

// ForecastStep is one forecast day with its confidence band.
type ForecastStep struct {
	TargetDate time.Time
	Price      float64
	Lower      float64
	Upper      float64
}

// FactorImpact names one driving factor and its contribution, stored as the
// top1..top5 columns of a prediction run.
type FactorImpact struct {
	Factor string
	Impact float64
}

// ForecastRun is a persisted prediction run: one short-horizon inference or
// one day-slice of a simulation.
type ForecastRun struct {
	RunID     string
	Commodity string
	BaseDate  time.Time
	Kind      string // "daily" | "simulation"
	Steps     []ForecastStep
	Factors   []FactorImpact // up to five, may be empty for daily runs
	CreatedAt time.Time
}

// SimulationDay compares the baseline and overridden forecast for one date.
type SimulationDay struct {
	Date           time.Time
	BaselinePrice  float64
	SimulatedPrice float64
	Delta          float64
	DeltaPercent   float64
}

// SimulationSummary aggregates a simulation's daily deltas.
type SimulationSummary struct {
	TotalDays       int
	AvgDelta        float64
	MaxDelta        float64
	MinDelta        float64
	AvgDeltaPercent float64
}

// FeatureImpact attributes a share of the mean price delta to one overridden
// feature. Contribution is a proportional, signed heuristic, not an exact
// sensitivity.
type FeatureImpact struct {
	Feature       string
	CurrentValue  float64
	OverrideValue float64
	Contribution  float64
}

// SimulationResult is the full outcome of a what-if simulation.
type SimulationResult struct {
	RunID       string
	Commodity   string
	BaseDate    time.Time
	HorizonDays int
	Days        []SimulationDay
	Summary     SimulationSummary
	Impacts     []FeatureImpact
}
