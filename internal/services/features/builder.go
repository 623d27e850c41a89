package features

import (
	"fmt"
	"math"
	"time"

	"CropCast/internal/domain/models"
	"CropCast/internal/services/inference"
	"CropCast/internal/services/normalize"
	"CropCast/pkg/logger"
)

// Builder assembles the model's input tensors from a raw history window:
// log scaling, override substitution, normalization, then the fixed-order
// per-step channel vectors for encoder and decoder.
type Builder struct {
	resolver *normalize.Resolver
	lookback int
	horizon  int
	l        *logger.Logger
}

// BuilderOption configures Builder.
type BuilderOption func(*Builder)

// WithLookback sets the encoder window length.
func WithLookback(n int) BuilderOption {
	return func(b *Builder) {
		b.lookback = n
	}
}

// WithHorizon sets the decoder window length.
func WithHorizon(n int) BuilderOption {
	return func(b *Builder) {
		b.horizon = n
	}
}

// NewBuilder creates a Builder. Defaults match the trained model: 60-day
// lookback, 7-day horizon.
func NewBuilder(resolver *normalize.Resolver, lgr *logger.Logger, opts ...BuilderOption) *Builder {
	b := &Builder{
		resolver: resolver,
		lookback: EncoderLength,
		horizon:  DecoderLength,
		l:        lgr,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Lookback returns the encoder window length.
func (b *Builder) Lookback() int { return b.lookback }

// Horizon returns the decoder window length.
func (b *Builder) Horizon() int { return b.horizon }

// Build produces the input tensors and the call-scoped normalization params
// for one inference. The caller's history is never mutated. Override keys
// absent from the history are logged and ignored; key validation against the
// adjustable set happens at the API boundary, not here.
func (b *Builder) Build(history *models.TimeSeries, overrides map[string]float64, groupID string) (*inference.Tensors, *normalize.Params, error) {
	if b.lookback <= 0 || b.horizon <= 0 {
		return nil, nil, fmt.Errorf("invalid window: lookback=%d horizon=%d", b.lookback, b.horizon)
	}
	if history == nil {
		history = models.NewTimeSeries()
	}

	work := history.Clone()

	for name := range work.Features {
		if IsLogScaled(name) {
			Log1pSeries(work.Features[name])
		}
	}

	for name, v := range overrides {
		if !work.PinConstant(name, v) {
			b.l.Warn("override ignored, feature absent from history",
				logger.String("feature", name))
		}
	}

	params := b.resolver.Resolve(work.Features, b.lookback, groupID)

	// Snapshot the target's window stats in log space before normalization
	// rewrites the series; they are the third target-scale tier.
	closeStats, hasClose := windowStats(work.Features[FeatClose], b.lookback)

	params.Normalize(work.Features)

	enc := make([][]float32, b.lookback)
	for i := range enc {
		enc[i] = b.stepVector(work, i, false)
	}
	dec := make([][]float32, b.horizon)
	for j := range dec {
		dec[j] = b.stepVector(work, b.lookback+j, true)
	}

	center, scale, ok := params.TargetScale()
	if !ok && hasClose {
		center, scale, ok = closeStats.Mean, closeStats.Std, true
	}
	if !ok {
		center, scale = DefaultTargetCenter, DefaultTargetScale
	}

	return &inference.Tensors{
		EncoderCont:  enc,
		DecoderCont:  dec,
		TargetCenter: center,
		TargetScale:  scale,
	}, params, nil
}

// stepVector fills one 52-channel vector at the given global step index
// (0-based, continuous across encoder and decoder).
func (b *Builder) stepVector(work *models.TimeSeries, idx int, decoder bool) []float32 {
	total := b.lookback + b.horizon
	closeVals := work.Features[FeatClose]

	vec := make([]float32, len(Order))
	for c, name := range Order {
		var v float64
		switch name {
		case FeatEncoderLength:
			v = float64(b.lookback)
		case FeatCloseScale:
			v = 1.0
		case FeatCloseCenter:
			v = valueAt(closeVals, idx)
		case FeatTimeIdx:
			v = float64(idx)
		case FeatRelativeIdx:
			v = float64(idx) / float64(total)
		case FeatDayOfYear:
			v = float64(b.stepDate(work, idx).YearDay())
		default:
			// Unknown time-varying channels are masked at decoder steps to
			// match training-time masking, even when data exists.
			if decoder {
				v = 0.0
			} else {
				v = valueAt(work.Features[name], idx)
			}
		}
		vec[c] = finite32(v)
	}
	return vec
}

// stepDate maps a global step index onto a calendar date anchored at the
// history's last date: encoder steps count backward from the anchor, decoder
// steps forward. An undated history anchors on the wall clock.
func (b *Builder) stepDate(work *models.TimeSeries, idx int) time.Time {
	anchor := work.LastDate()
	if anchor.IsZero() {
		anchor = time.Now().UTC()
	}
	return anchor.AddDate(0, 0, idx-(b.lookback-1))
}

func windowStats(vals []float64, lookback int) (normalize.Stats, bool) {
	n := lookback
	if n > len(vals) {
		n = len(vals)
	}
	return normalize.MeanStd(vals[:n])
}

func valueAt(vals []float64, idx int) float64 {
	if idx < 0 || idx >= len(vals) {
		return 0.0
	}
	return vals[idx]
}

func finite32(v float64) float32 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return float32(v)
}
