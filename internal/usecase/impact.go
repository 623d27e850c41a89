package usecase

import (
	"math"
	"sort"

	"CropCast/internal/domain/models"
)

// summarize aggregates the per-day deltas of a simulation.
func summarize(days []models.SimulationDay) models.SimulationSummary {
	if len(days) == 0 {
		return models.SimulationSummary{}
	}

	sum := models.SimulationSummary{
		TotalDays: len(days),
		MaxDelta:  days[0].Delta,
		MinDelta:  days[0].Delta,
	}
	totalDelta := 0.0
	totalPct := 0.0
	for _, d := range days {
		totalDelta += d.Delta
		totalPct += d.DeltaPercent
		if d.Delta > sum.MaxDelta {
			sum.MaxDelta = d.Delta
		}
		if d.Delta < sum.MinDelta {
			sum.MinDelta = d.Delta
		}
	}
	sum.AvgDelta = totalDelta / float64(len(days))
	sum.AvgDeltaPercent = totalPct / float64(len(days))
	return sum
}

// attributeImpacts splits the mean price delta across the overridden features
// in proportion to each feature's absolute value change versus its last
// observed value. This is a linear heuristic, not a causal decomposition, but
// the contributions always sum to the mean delta. When no feature actually
// changed value the delta is split evenly.
func attributeImpacts(history *models.TimeSeries, overrides map[string]float64, avgDelta float64) []models.FeatureImpact {
	if len(overrides) == 0 {
		return nil
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	current := make(map[string]float64, len(names))
	totalAbs := 0.0
	for _, name := range names {
		v, ok := history.Last(name)
		if !ok {
			v = 0.0
		}
		current[name] = v
		totalAbs += math.Abs(overrides[name] - v)
	}

	impacts := make([]models.FeatureImpact, 0, len(names))
	for _, name := range names {
		share := 1.0 / float64(len(names))
		if totalAbs > 0 {
			share = math.Abs(overrides[name]-current[name]) / totalAbs
		}
		impacts = append(impacts, models.FeatureImpact{
			Feature:       name,
			CurrentValue:  current[name],
			OverrideValue: overrides[name],
			Contribution:  avgDelta * share,
		})
	}
	return impacts
}
