// Package normalize implements the serving-time normalization engine: the
// scaler transform chain, the preprocessing artifact loader, and the
// three-tier resolver that picks group, scaler, or dynamic statistics per
// inference call.
package normalize

import "math"

// Transformation is the nonlinear stage of the scaler chain.
type Transformation string

const (
	TransformSoftplus Transformation = "softplus"
	TransformLog1p    Transformation = "log1p"
	TransformNone     Transformation = "none"
)

// ParseTransformation maps artifact spellings onto a known kind. ok is false
// for anything unrecognized.
func ParseTransformation(s string) (Transformation, bool) {
	switch s {
	case "softplus":
		return TransformSoftplus, true
	case "log1p", "log":
		return TransformLog1p, true
	case "none", "":
		return TransformNone, true
	default:
		return "", false
	}
}

// GroupStats is the per-group standardization pair.
type GroupStats struct {
	Mean float64
	Std  float64
}

// ScalerParams parameterizes one transform chain: nonlinear kind, optional
// global center/scale, optional per-group statistics.
type ScalerParams struct {
	Transformation Transformation
	Center         float64
	Scale          float64
	HasCenter      bool
	HasScale       bool
	Groups         map[string]GroupStats
}

// softplusOverflow is the cutoff above which softplus and its inverse are
// replaced by the identity to avoid exp overflow.
const softplusOverflow = 20.0

// epsScale is the degeneracy threshold: any |scale| or |std| below it divides
// as 1.0 instead.
const epsScale = 1e-8

func softplus(x float64) float64 {
	if x > softplusOverflow {
		return x
	}
	return math.Log1p(math.Exp(x))
}

func inverseSoftplus(y float64) float64 {
	if y > softplusOverflow {
		return y
	}
	return math.Log(math.Expm1(y))
}

// SafeScale guards a divisor: zero, near-zero, or NaN scales become 1.0.
func SafeScale(s float64) float64 {
	if math.IsNaN(s) || math.Abs(s) < epsScale {
		return 1.0
	}
	return s
}

// Transform applies the chain to one value: nonlinear kind, minus center,
// divide scale, then group standardization. An unknown groupID skips the group
// stage.
func Transform(x float64, p ScalerParams, groupID string) float64 {
	switch p.Transformation {
	case TransformSoftplus:
		x = softplus(x)
	case TransformLog1p:
		x = math.Log1p(x)
	}
	if p.HasCenter {
		x -= p.Center
	}
	if p.HasScale {
		x /= SafeScale(p.Scale)
	}
	if groupID != "" && p.Groups != nil {
		if gs, ok := p.Groups[groupID]; ok {
			x = (x - gs.Mean) / SafeScale(gs.Std)
		}
	}
	return x
}

// InverseTransform mirrors Transform in exact reverse order: group
// destandardization, scale multiplication, center addition, inverse nonlinear.
func InverseTransform(y float64, p ScalerParams, groupID string) float64 {
	if groupID != "" && p.Groups != nil {
		if gs, ok := p.Groups[groupID]; ok {
			y = y*SafeScale(gs.Std) + gs.Mean
		}
	}
	if p.HasScale {
		y *= SafeScale(p.Scale)
	}
	if p.HasCenter {
		y += p.Center
	}
	switch p.Transformation {
	case TransformSoftplus:
		y = inverseSoftplus(y)
	case TransformLog1p:
		y = math.Expm1(y)
	}
	return y
}

// TransformSlice applies Transform elementwise, returning a new slice.
func TransformSlice(xs []float64, p ScalerParams, groupID string) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = Transform(x, p, groupID)
	}
	return out
}

// InverseTransformSlice applies InverseTransform elementwise, returning a new
// slice.
func InverseTransformSlice(ys []float64, p ScalerParams, groupID string) []float64 {
	out := make([]float64, len(ys))
	for i, y := range ys {
		out[i] = InverseTransform(y, p, groupID)
	}
	return out
}

// Stats is a mean/std pair for z-score normalization.
type Stats struct {
	Mean float64
	Std  float64
}

// MeanStd computes the mean and population standard deviation over values.
// A zero or NaN deviation is substituted with 1.0. ok is false for empty
// input.
func MeanStd(values []float64) (Stats, bool) {
	if len(values) == 0 {
		return Stats{}, false
	}
	n := float64(len(values))
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	sq := 0.0
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / n)
	if math.IsNaN(std) || std < epsScale {
		std = 1.0
	}
	return Stats{Mean: mean, Std: std}, true
}
