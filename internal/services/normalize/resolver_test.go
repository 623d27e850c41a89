package normalize

import (
	"math"
	"os"
	"path/filepath"
	"testing"

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

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "preprocessing.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

const fullArtifact = `{
  "group_normalizer": {
    "transformation": "softplus",
    "center": 6.1,
    "scale": 0.2,
    "groups": {"corn": {"mean": 6.11, "std": 0.15}}
  },
  "standard_scaler": {
    "features": ["close", "pdsi"],
    "mean": [6.1, 0.2],
    "std": [0.3, 1.1]
  }
}`

const scalerOnlyArtifact = `{
  "standard_scaler": {
    "features": ["close", "pdsi"],
    "mean": [6.1, 0.2],
    "std": [0.3, 1.1]
  }
}`

func flatWindow(name string, v float64, n int) map[string][]float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = v
	}
	return map[string][]float64{name: vals}
}

func TestResolveDynamicWhenArtifactMissing(t *testing.T) {
	r := NewResolver("", testLogger(t), WithTarget("close"))
	p := r.Resolve(flatWindow("close", 1.0, 10), 10, "corn")
	if p.Mode != ModeDynamic {
		t.Fatalf("expected dynamic mode, got %s", p.Mode)
	}
}

func TestResolveGroupModeFirst(t *testing.T) {
	path := writeArtifact(t, fullArtifact)
	r := NewResolver(path, testLogger(t), WithTarget("close"))
	p := r.Resolve(flatWindow("close", 1.0, 10), 10, "corn")
	if p.Mode != ModeGroup {
		t.Fatalf("expected group mode, got %s", p.Mode)
	}
	if p.Group.Transformation != TransformSoftplus {
		t.Fatalf("transformation = %s", p.Group.Transformation)
	}
	if _, ok := p.Feature["pdsi"]; !ok {
		t.Fatalf("group mode should still carry scaler stats for other features")
	}
}

func TestResolveFallsThroughBrokenGroupBlock(t *testing.T) {
	path := writeArtifact(t, `{
      "group_normalizer": {"transformation": "quantile"},
      "standard_scaler": {"features": ["close"], "mean": [6.1], "std": [0.3]}
    }`)
	r := NewResolver(path, testLogger(t), WithTarget("close"))
	p := r.Resolve(flatWindow("close", 1.0, 10), 10, "corn")
	if p.Mode != ModeScaler {
		t.Fatalf("broken group block must fall through to scaler, got %s", p.Mode)
	}
}

func TestResolveFallsThroughGarbageArtifact(t *testing.T) {
	path := writeArtifact(t, `{broken`)
	r := NewResolver(path, testLogger(t), WithTarget("close"))
	p := r.Resolve(flatWindow("close", 1.0, 10), 10, "corn")
	if p.Mode != ModeDynamic {
		t.Fatalf("garbage artifact must land on dynamic, got %s", p.Mode)
	}
}

func TestScalerStatsPositionalFallback(t *testing.T) {
	path := writeArtifact(t, `{
      "standard_scaler": {"mean": [6.1, 0.2], "std": [0.3, 1.1]}
    }`)
	r := NewResolver(path, testLogger(t),
		WithTarget("close"),
		WithFallbackOrder([]string{"close", "pdsi"}))
	p := r.Resolve(flatWindow("close", 1.0, 10), 10, "corn")
	if p.Mode != ModeScaler {
		t.Fatalf("expected scaler mode, got %s", p.Mode)
	}
	if s := p.Feature["pdsi"]; s.Mean != 0.2 || s.Std != 1.1 {
		t.Fatalf("positional mapping wrong: %+v", s)
	}
}

func TestDynamicZScoreInvariant(t *testing.T) {
	vals := []float64{4.2, 4.9, 5.1, 4.4, 5.6, 6.0, 3.9, 5.2, 4.8, 5.5}
	window := map[string][]float64{"pdsi": append([]float64(nil), vals...)}

	r := NewResolver("", testLogger(t), WithTarget("close"))
	p := r.Resolve(window, len(vals), "corn")
	p.Normalize(window)

	normalized := window["pdsi"]
	stats, _ := MeanStd(normalized)
	if math.Abs(stats.Mean) > 1e-6 {
		t.Fatalf("normalized mean = %v, want ~0", stats.Mean)
	}
	if math.Abs(stats.Std-1.0) > 1e-6 {
		t.Fatalf("normalized std = %v, want ~1", stats.Std)
	}
}

func TestKnownChannelsNeverNormalized(t *testing.T) {
	window := map[string][]float64{
		"time_idx": {0, 1, 2, 3},
		"pdsi":     {1, 2, 3, 4},
	}
	r := NewResolver("", testLogger(t),
		WithTarget("close"),
		WithKnownChannels([]string{"time_idx"}))
	p := r.Resolve(window, 4, "corn")
	p.Normalize(window)

	want := []float64{0, 1, 2, 3}
	for i, v := range window["time_idx"] {
		if v != want[i] {
			t.Fatalf("known channel was normalized: %v", window["time_idx"])
		}
	}
}

func TestFlatSeriesZerosAndExactReconstruction(t *testing.T) {
	// 60 days of constant 450.0, entering the resolver after log1p as the
	// pipeline does.
	logged := math.Log1p(450.0)
	window := flatWindow("close", logged, 60)

	r := NewResolver("", testLogger(t), WithTarget("close"))
	p := r.Resolve(window, 60, "corn")

	if s := p.Feature["close"]; s.Std != 1.0 {
		t.Fatalf("flat series dynamic std must be 1.0, got %v", s.Std)
	}

	p.Normalize(window)
	for i, v := range window["close"] {
		if v != 0 {
			t.Fatalf("normalized flat series must be all zeros, index %d = %v", i, v)
		}
	}

	back := p.Denormalize([]float64{0, 0, 0})
	for _, v := range back {
		if math.Abs(v-450.0) > 1e-9 {
			t.Fatalf("reconstruction = %v, want 450.0", v)
		}
	}
}

func TestDenormalizeAlwaysAppliesExpm1(t *testing.T) {
	path := writeArtifact(t, scalerOnlyArtifact)
	r := NewResolver(path, testLogger(t), WithTarget("close"))
	p := r.Resolve(flatWindow("close", 6.1, 10), 10, "corn")

	out := p.Denormalize([]float64{0.0})
	want := math.Expm1(0.0*0.3 + 6.1)
	if math.Abs(out[0]-want) > 1e-9 {
		t.Fatalf("denormalize = %v, want %v", out[0], want)
	}
}

func TestDenormalizeGroupModeRoundTrip(t *testing.T) {
	path := writeArtifact(t, fullArtifact)
	r := NewResolver(path, testLogger(t), WithTarget("close"))

	raw := 450.0
	logged := math.Log1p(raw)
	window := flatWindow("close", logged, 10)
	p := r.Resolve(window, 10, "corn")
	if p.Mode != ModeGroup {
		t.Fatalf("expected group mode")
	}

	p.Normalize(window)
	back := p.Denormalize([]float64{window["close"][0]})
	if !approxEqual(back[0], raw, 1e-5) {
		t.Fatalf("group round trip = %v, want %v", back[0], raw)
	}
}

func TestTargetScalePriority(t *testing.T) {
	// Group stats win when present for the group id.
	path := writeArtifact(t, fullArtifact)
	r := NewResolver(path, testLogger(t), WithTarget("close"))
	p := r.Resolve(flatWindow("close", 6.1, 10), 10, "corn")
	c, s, ok := p.TargetScale()
	if !ok || c != 6.11 || s != 0.15 {
		t.Fatalf("group target scale = %v/%v ok=%v", c, s, ok)
	}

	// Unknown group id falls back to the scaler's close stats.
	p = r.Resolve(flatWindow("close", 6.1, 10), 10, "wheat")
	c, s, ok = p.TargetScale()
	if !ok || c != 6.1 || s != 0.3 {
		t.Fatalf("scaler target scale = %v/%v ok=%v", c, s, ok)
	}

	// Dynamic mode uses window stats.
	r = NewResolver("", testLogger(t), WithTarget("close"))
	p = r.Resolve(flatWindow("close", 6.1, 10), 10, "corn")
	c, s, ok = p.TargetScale()
	if !ok || c != 6.1 || s != 1.0 {
		t.Fatalf("dynamic target scale = %v/%v ok=%v", c, s, ok)
	}

	// No close anywhere: not available.
	p = r.Resolve(map[string][]float64{}, 10, "corn")
	if _, _, ok = p.TargetScale(); ok {
		t.Fatalf("expected no target scale without close stats")
	}
}
