package normalize

import (
	"math"
	"testing"
)

func approxEqual(a, b, tol float64) bool {
	if a == b {
		return true
	}
	d := math.Abs(a - b)
	m := math.Max(math.Abs(a), math.Abs(b))
	if m < 1 {
		return d < tol
	}
	return d/m < tol
}

func TestRoundTripSoftplus(t *testing.T) {
	p := ScalerParams{
		Transformation: TransformSoftplus,
		Center:         3.0,
		Scale:          2.0,
		HasCenter:      true,
		HasScale:       true,
		Groups:         map[string]GroupStats{"corn": {Mean: 1.2, Std: 0.4}},
	}
	for _, x := range []float64{-5, -1, -0.5, 0, 0.3, 1, 2.5, 7, 19, 21, 30, 450} {
		y := Transform(x, p, "corn")
		back := InverseTransform(y, p, "corn")
		if !approxEqual(back, x, 1e-5) {
			t.Fatalf("softplus round trip %v -> %v -> %v", x, y, back)
		}
	}
}

func TestRoundTripLog1p(t *testing.T) {
	p := ScalerParams{
		Transformation: TransformLog1p,
		Center:         0.5,
		HasCenter:      true,
	}
	for _, x := range []float64{0, 0.3, 1, 2.5, 120, 450, 1e6} {
		back := InverseTransform(Transform(x, p, ""), p, "")
		if !approxEqual(back, x, 1e-5) {
			t.Fatalf("log1p round trip %v -> %v", x, back)
		}
	}
}

func TestRoundTripNone(t *testing.T) {
	p := ScalerParams{Transformation: TransformNone, Scale: 7.5, HasScale: true}
	for _, x := range []float64{-100, -1, 0, 42, 1e9} {
		back := InverseTransform(Transform(x, p, ""), p, "")
		if !approxEqual(back, x, 1e-5) {
			t.Fatalf("identity round trip %v -> %v", x, back)
		}
	}
}

func TestSoftplusOverflowRegionIsLinear(t *testing.T) {
	p := ScalerParams{Transformation: TransformSoftplus}
	x := 25.0
	y := Transform(x, p, "")
	if y != x {
		t.Fatalf("expected linear fallback above cutoff, got %v", y)
	}
	if got := InverseTransform(y, p, ""); got != x {
		t.Fatalf("expected linear inverse above cutoff, got %v", got)
	}
}

func TestZeroScaleNeverDivides(t *testing.T) {
	for _, s := range []float64{0, 1e-9, -1e-9, math.NaN()} {
		p := ScalerParams{Transformation: TransformNone, Scale: s, HasScale: true}
		y := Transform(10, p, "")
		if math.IsNaN(y) || math.IsInf(y, 0) {
			t.Fatalf("scale %v produced non-finite %v", s, y)
		}
		if y != 10 {
			t.Fatalf("degenerate scale should divide by 1.0, got %v", y)
		}
	}
}

func TestZeroGroupStdGuarded(t *testing.T) {
	p := ScalerParams{
		Transformation: TransformNone,
		Groups:         map[string]GroupStats{"corn": {Mean: 2, Std: 0}},
	}
	y := Transform(5, p, "corn")
	if y != 3 {
		t.Fatalf("expected (5-2)/1.0 = 3, got %v", y)
	}
}

func TestUnknownGroupSkipsGroupStage(t *testing.T) {
	p := ScalerParams{
		Transformation: TransformNone,
		Center:         1.0,
		HasCenter:      true,
		Groups:         map[string]GroupStats{"corn": {Mean: 10, Std: 2}},
	}
	if got := Transform(4, p, "wheat"); got != 3 {
		t.Fatalf("unknown group must pass through globally-normalized value, got %v", got)
	}
}

func TestTransformSliceMatchesScalar(t *testing.T) {
	p := ScalerParams{Transformation: TransformSoftplus, Center: 1, HasCenter: true}
	xs := []float64{-2, 0, 3.5, 25}
	ys := TransformSlice(xs, p, "")
	if len(ys) != len(xs) {
		t.Fatalf("length mismatch")
	}
	for i, x := range xs {
		if ys[i] != Transform(x, p, "") {
			t.Fatalf("slice element %d diverges from scalar transform", i)
		}
	}
}

func TestMeanStd(t *testing.T) {
	stats, ok := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if !ok {
		t.Fatalf("expected ok")
	}
	if !approxEqual(stats.Mean, 5.0, 1e-12) {
		t.Fatalf("mean = %v", stats.Mean)
	}
	if !approxEqual(stats.Std, 2.0, 1e-12) {
		t.Fatalf("population std = %v", stats.Std)
	}
}

func TestMeanStdFlatSeries(t *testing.T) {
	stats, ok := MeanStd([]float64{450, 450, 450})
	if !ok {
		t.Fatalf("expected ok")
	}
	if stats.Std != 1.0 {
		t.Fatalf("flat series std must substitute 1.0, got %v", stats.Std)
	}
	if stats.Mean != 450 {
		t.Fatalf("mean = %v", stats.Mean)
	}
}

func TestMeanStdEmpty(t *testing.T) {
	if _, ok := MeanStd(nil); ok {
		t.Fatalf("expected not ok for empty input")
	}
}
