package models

import "github.com/shopspring/decimal"

// roundPrice snaps a model output to cents. Raw predictions carry float
// noise well past any quotable precision.
func roundPrice(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// NewForecastResponse converts a stored run to its wire shape.
func NewForecastResponse(run *ForecastRun) *ForecastResponse {
	if run == nil {
		return nil
	}
	steps := make([]ForecastStepResponse, 0, len(run.Steps))
	for _, s := range run.Steps {
		steps = append(steps, ForecastStepResponse{
			TargetDate: s.TargetDate.Format("2006-01-02"),
			Price:      roundPrice(s.Price),
			Lower:      roundPrice(s.Lower),
			Upper:      roundPrice(s.Upper),
		})
	}
	return &ForecastResponse{
		RunID:     run.RunID,
		Commodity: run.Commodity,
		BaseDate:  run.BaseDate.Format("2006-01-02"),
		Kind:      run.Kind,
		Steps:     steps,
	}
}

// NewMetricDayResponse converts one stored metric row for the history
// endpoint.
func NewMetricDayResponse(m DailyMetric) MetricDayResponse {
	return MetricDayResponse{
		Date:        m.Date.Format("2006-01-02"),
		Close:       roundPrice(m.Close),
		Open:        roundPrice(m.Open),
		High:        roundPrice(m.High),
		Low:         roundPrice(m.Low),
		Volume:      m.Volume,
		EMA:         roundPrice(m.EMA),
		PDSI:        roundTo(m.PDSI, 4),
		SPI30D:      roundTo(m.SPI30D, 4),
		SPI90D:      roundTo(m.SPI90D, 4),
		Yield10Y:    roundTo(m.Yield10Y, 4),
		USDIndex:    roundTo(m.USDIndex, 4),
		LambdaPrice: roundTo(m.LambdaPrice, 4),
		LambdaNews:  roundTo(m.LambdaNews, 4),
		NewsCount:   m.NewsCount,
	}
}

// NewSimulationResponse converts a simulation outcome to its wire shape.
func NewSimulationResponse(r *SimulationResult) *SimulationResponse {
	if r == nil {
		return nil
	}
	days := make([]SimulationDayResponse, 0, len(r.Days))
	for _, d := range r.Days {
		days = append(days, SimulationDayResponse{
			Date:           d.Date.Format("2006-01-02"),
			BaselinePrice:  roundPrice(d.BaselinePrice),
			SimulatedPrice: roundPrice(d.SimulatedPrice),
			Delta:          roundPrice(d.Delta),
			DeltaPercent:   roundTo(d.DeltaPercent, 2),
		})
	}
	impacts := make([]FeatureImpactResponse, 0, len(r.Impacts))
	for _, im := range r.Impacts {
		impacts = append(impacts, FeatureImpactResponse{
			Feature:       im.Feature,
			CurrentValue:  roundTo(im.CurrentValue, 4),
			OverrideValue: roundTo(im.OverrideValue, 4),
			Contribution:  roundTo(im.Contribution, 4),
		})
	}
	return &SimulationResponse{
		RunID:       r.RunID,
		Commodity:   r.Commodity,
		BaseDate:    r.BaseDate.Format("2006-01-02"),
		HorizonDays: r.HorizonDays,
		Results:     days,
		Summary: SimulationSummaryResponse{
			TotalDays:       r.Summary.TotalDays,
			AvgDelta:        roundPrice(r.Summary.AvgDelta),
			MaxDelta:        roundPrice(r.Summary.MaxDelta),
			MinDelta:        roundPrice(r.Summary.MinDelta),
			AvgDeltaPercent: roundTo(r.Summary.AvgDeltaPercent, 2),
		},
		Impacts: impacts,
	}
}
