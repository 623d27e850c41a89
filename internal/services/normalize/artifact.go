package normalize

import (
	"encoding/json"
	"fmt"
	"os"
)

// Artifact is the preprocessing state exported by the training pipeline as
// JSON. Both blocks are optional; the resolver decides which tier to use.
type Artifact struct {
	GroupNormalizer *GroupNormalizerBlock `json:"group_normalizer,omitempty"`
	StandardScaler  *StandardScalerBlock  `json:"standard_scaler,omitempty"`
}

// GroupNormalizerBlock mirrors a trained group-aware target normalizer:
// transformation kind, optional global center/scale, per-group statistics.
type GroupNormalizerBlock struct {
	Transformation string                `json:"transformation"`
	Center         *float64              `json:"center,omitempty"`
	Scale          *float64              `json:"scale,omitempty"`
	Groups         map[string]groupEntry `json:"groups,omitempty"`
}

type groupEntry struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// StandardScalerBlock mirrors a fitted per-feature scaler. Features may be
// empty, in which case Mean/Std map positionally onto the caller's fallback
// order.
type StandardScalerBlock struct {
	Features []string  `json:"features,omitempty"`
	Mean     []float64 `json:"mean"`
	Std      []float64 `json:"std"`
}

// LoadArtifact reads and decodes the artifact file. Errors here are soft from
// the resolver's point of view: the caller falls through to the next tier.
func LoadArtifact(path string) (*Artifact, error) {
	if path == "" {
		return nil, fmt.Errorf("artifact path not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}

// GroupParams constructs scaler parameters from the group-normalizer block.
// Returns an error instead of probing: a missing block, unknown transformation
// kind, or empty content is "not constructible" and the resolver moves on.
func (a *Artifact) GroupParams() (ScalerParams, error) {
	if a == nil || a.GroupNormalizer == nil {
		return ScalerParams{}, fmt.Errorf("no group_normalizer block")
	}
	b := a.GroupNormalizer

	kind, ok := ParseTransformation(b.Transformation)
	if !ok {
		return ScalerParams{}, fmt.Errorf("unknown transformation %q", b.Transformation)
	}

	p := ScalerParams{Transformation: kind}
	if b.Center != nil {
		p.Center = *b.Center
		p.HasCenter = true
	}
	if b.Scale != nil {
		p.Scale = *b.Scale
		p.HasScale = true
	}
	if len(b.Groups) > 0 {
		p.Groups = make(map[string]GroupStats, len(b.Groups))
		for id, g := range b.Groups {
			p.Groups[id] = GroupStats{Mean: g.Mean, Std: g.Std}
		}
	}
	if !p.HasCenter && !p.HasScale && p.Groups == nil {
		return ScalerParams{}, fmt.Errorf("group_normalizer block carries no parameters")
	}
	return p, nil
}

// ScalerStats constructs the per-feature z-score map from the standard-scaler
// block. When the block has no feature names, Mean/Std are zipped with
// fallbackOrder (truncated to the shorter side).
func (a *Artifact) ScalerStats(fallbackOrder []string) (map[string]Stats, error) {
	if a == nil || a.StandardScaler == nil {
		return nil, fmt.Errorf("no standard_scaler block")
	}
	b := a.StandardScaler

	if len(b.Mean) == 0 || len(b.Mean) != len(b.Std) {
		return nil, fmt.Errorf("scaler mean/std arrays empty or mismatched (%d/%d)", len(b.Mean), len(b.Std))
	}

	names := b.Features
	if len(names) == 0 {
		names = fallbackOrder
	} else if len(names) != len(b.Mean) {
		return nil, fmt.Errorf("scaler feature names mismatch stats (%d/%d)", len(names), len(b.Mean))
	}

	n := len(names)
	if len(b.Mean) < n {
		n = len(b.Mean)
	}
	out := make(map[string]Stats, n)
	for i := 0; i < n; i++ {
		out[names[i]] = Stats{Mean: b.Mean[i], Std: b.Std[i]}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("scaler block yields no feature stats")
	}
	return out, nil
}
