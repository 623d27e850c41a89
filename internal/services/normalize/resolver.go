package normalize

import (
	"math"
	"sync"

	"CropCast/pkg/logger"
)

// Mode identifies the active normalization tier for one call.
type Mode string

const (
	ModeGroup   Mode = "group_normalizer"
	ModeScaler  Mode = "standard_scaler"
	ModeDynamic Mode = "dynamic"
)

// Resolver picks normalization parameters per inference call: the artifact's
// group normalizer, else its standard scaler, else dynamic window statistics.
// The artifact is loaded once and shared read-only across calls; dynamic
// statistics are recomputed per call and never cached.
type Resolver struct {
	path     string
	l        *logger.Logger
	target   string
	known    map[string]struct{}
	fallback []string

	loadOnce sync.Once
	artifact *Artifact
}

// ResolverOption configures Resolver.
type ResolverOption func(*Resolver)

// WithTarget sets the target (price) channel name.
func WithTarget(name string) ResolverOption {
	return func(r *Resolver) {
		r.target = name
	}
}

// WithKnownChannels marks channels that are never normalized.
func WithKnownChannels(names []string) ResolverOption {
	return func(r *Resolver) {
		for _, n := range names {
			r.known[n] = struct{}{}
		}
	}
}

// WithFallbackOrder sets the positional feature order used when the artifact's
// scaler stats carry no names.
func WithFallbackOrder(names []string) ResolverOption {
	return func(r *Resolver) {
		r.fallback = names
	}
}

// NewResolver creates a resolver over the given artifact path. An empty path
// simply means the dynamic tier always wins.
func NewResolver(artifactPath string, lgr *logger.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		path:   artifactPath,
		l:      lgr,
		target: "close",
		known:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) loadArtifact() *Artifact {
	r.loadOnce.Do(func() {
		a, err := LoadArtifact(r.path)
		if err != nil {
			r.l.Debug("preprocessing artifact unavailable", logger.Error(err))
			return
		}
		r.artifact = a
	})
	return r.artifact
}

// Params is the call-scoped resolution result. It is never shared across
// calls with different input windows.
type Params struct {
	Mode    Mode
	GroupID string
	Group   ScalerParams
	Feature map[string]Stats

	target string
	known  map[string]struct{}
}

// Resolve commits to the first constructible tier for the given lookback
// window. The window must already carry the log-scaled, override-applied
// series; dynamic statistics are computed over exactly the first lookback
// values of each feature.
func (r *Resolver) Resolve(window map[string][]float64, lookback int, groupID string) *Params {
	p := &Params{GroupID: groupID, target: r.target, known: r.known}

	if a := r.loadArtifact(); a != nil {
		gp, err := a.GroupParams()
		if err == nil {
			p.Mode = ModeGroup
			p.Group = gp
			// Non-target channels still z-score off the scaler block when present.
			if stats, serr := a.ScalerStats(r.fallback); serr == nil {
				p.Feature = stats
			}
			r.l.Debug("normalization resolved",
				logger.String("mode", string(ModeGroup)),
				logger.String("group", groupID))
			return p
		}
		r.l.Debug("group normalizer not constructible", logger.Error(err))

		stats, serr := a.ScalerStats(r.fallback)
		if serr == nil {
			p.Mode = ModeScaler
			p.Feature = stats
			r.l.Debug("normalization resolved", logger.String("mode", string(ModeScaler)))
			return p
		}
		r.l.Debug("standard scaler not constructible", logger.Error(serr))
	}

	p.Mode = ModeDynamic
	p.Feature = dynamicStats(window, lookback, r.known)
	r.l.Debug("normalization resolved",
		logger.String("mode", string(ModeDynamic)),
		logger.Int("features", len(p.Feature)))
	return p
}

// dynamicStats computes mean and population std per non-known feature over the
// first lookback values of its series.
func dynamicStats(window map[string][]float64, lookback int, known map[string]struct{}) map[string]Stats {
	out := make(map[string]Stats, len(window))
	for name, vals := range window {
		if _, ok := known[name]; ok {
			continue
		}
		n := lookback
		if n > len(vals) {
			n = len(vals)
		}
		if stats, ok := MeanStd(vals[:n]); ok {
			out[name] = stats
		}
	}
	return out
}

// Normalize z-scores every non-known feature in place. In group mode the
// target channel goes through the full group transform; every other channel
// uses the per-feature stats when present and passes through otherwise. Known
// channels are never touched.
func (p *Params) Normalize(feats map[string][]float64) {
	for name, vals := range feats {
		if _, ok := p.known[name]; ok {
			continue
		}
		if p.Mode == ModeGroup && name == p.target {
			feats[name] = TransformSlice(vals, p.Group, p.GroupID)
			continue
		}
		stats, ok := p.Feature[name]
		if !ok {
			continue
		}
		std := SafeScale(stats.Std)
		for i, v := range vals {
			vals[i] = (v - stats.Mean) / std
		}
	}
}

// Denormalize maps the model's raw target outputs back to price space: the
// inverse of the active tier, then expm1 for the log1p applied at input time.
// The expm1 step is unconditional regardless of mode.
func (p *Params) Denormalize(values []float64) []float64 {
	var out []float64
	if p.Mode == ModeGroup {
		out = InverseTransformSlice(values, p.Group, p.GroupID)
	} else {
		out = make([]float64, len(values))
		stats, ok := p.Feature[p.target]
		for i, v := range values {
			if ok {
				v = v*SafeScale(stats.Std) + stats.Mean
			}
			out[i] = v
		}
	}
	for i, v := range out {
		out[i] = math.Expm1(v)
	}
	return out
}

// TargetScale returns the denormalization pair for the target channel: the
// group statistics for the resolved group id, else the per-feature target
// stats. ok is false when neither is available; the caller falls back to
// window statistics or configured defaults.
func (p *Params) TargetScale() (center, scale float64, ok bool) {
	if p.Mode == ModeGroup && p.Group.Groups != nil {
		if gs, found := p.Group.Groups[p.GroupID]; found {
			return gs.Mean, SafeScale(gs.Std), true
		}
	}
	if stats, found := p.Feature[p.target]; found {
		return stats.Mean, SafeScale(stats.Std), true
	}
	return 0, 0, false
}
