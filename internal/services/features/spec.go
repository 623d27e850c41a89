package features

import (
	"sort"
	"strconv"
)

// Channel names referenced throughout the pipeline. The news PCA components are
// news_pca_0..news_pca_31 and are generated, not listed as constants.
const (
	FeatClose       = "close"
	FeatOpen        = "open"
	FeatHigh        = "high"
	FeatLow         = "low"
	FeatVolume      = "volume"
	FeatEMA         = "EMA"
	FeatPDSI        = "pdsi"
	FeatSPI30D      = "spi30d"
	FeatSPI90D      = "spi90d"
	FeatYield10Y    = "10Y_Yield"
	FeatUSDIndex    = "USD_Index"
	FeatLambdaPrice = "lambda_price"
	FeatLambdaNews  = "lambda_news"
	FeatNewsCount   = "news_count"

	FeatTimeIdx     = "time_idx"
	FeatDayOfYear   = "day_of_year"
	FeatRelativeIdx = "relative_time_idx"

	FeatEncoderLength = "encoder_length"
	FeatCloseCenter   = "close_center"
	FeatCloseScale    = "close_scale"
)

// NewsPCAComponents is the number of news embedding channels.
const NewsPCAComponents = 32

// NumChannels is the model's continuous channel count. The order below is a
// contract with the trained model and must never be reordered or filtered.
const NumChannels = 52

// Window dimensions fixed by the trained artifact: the model reads 60 days of
// context and forecasts 7.
const (
	EncoderLength = 60
	DecoderLength = 7
)

// Default target denormalization pair, used when no normalization tier can
// provide price statistics.
const (
	DefaultTargetCenter = 450.0
	DefaultTargetScale  = 10.0
)

// Order is the fixed model channel order: 46 unknown time-varying, then 3 known
// time-varying, then 3 static channels.
var Order = buildOrder()

func buildOrder() []string {
	names := []string{FeatClose, FeatOpen, FeatHigh, FeatLow, FeatVolume, FeatEMA}
	for i := 0; i < NewsPCAComponents; i++ {
		names = append(names, NewsPCAName(i))
	}
	names = append(names,
		FeatPDSI, FeatSPI30D, FeatSPI90D,
		FeatYield10Y, FeatUSDIndex,
		FeatLambdaPrice, FeatLambdaNews, FeatNewsCount,
		FeatTimeIdx, FeatDayOfYear, FeatRelativeIdx,
		FeatEncoderLength, FeatCloseCenter, FeatCloseScale,
	)
	return names
}

// NewsPCAName returns the channel name of news PCA component i.
func NewsPCAName(i int) string {
	return "news_pca_" + strconv.Itoa(i)
}

var (
	timeFeatures = map[string]struct{}{
		FeatTimeIdx:     {},
		FeatDayOfYear:   {},
		FeatRelativeIdx: {},
	}

	staticFeatures = map[string]struct{}{
		FeatEncoderLength: {},
		FeatCloseCenter:   {},
		FeatCloseScale:    {},
	}

	// logScaled channels are log1p-transformed before normalization; the model
	// was trained on log-scaled price and volume inputs.
	logScaled = map[string]struct{}{
		FeatClose:  {},
		FeatOpen:   {},
		FeatHigh:   {},
		FeatLow:    {},
		FeatVolume: {},
		FeatEMA:    {},
	}

	// adjustable is the closed set of externally overridable macro/climate
	// features for what-if simulation.
	adjustable = map[string]struct{}{
		FeatYield10Y: {},
		FeatUSDIndex: {},
		FeatPDSI:     {},
		FeatSPI30D:   {},
		FeatSPI90D:   {},
	}

	orderIndex = buildOrderIndex()
)

func buildOrderIndex() map[string]int {
	m := make(map[string]int, len(Order))
	for i, name := range Order {
		m[name] = i
	}
	return m
}

// IsKnown reports whether the channel is known at forecast time (TIME or
// STATIC). Known channels are never normalized.
func IsKnown(name string) bool {
	if _, ok := timeFeatures[name]; ok {
		return true
	}
	_, ok := staticFeatures[name]
	return ok
}

// IsLogScaled reports whether the channel receives log1p before normalization.
func IsLogScaled(name string) bool {
	_, ok := logScaled[name]
	return ok
}

// IsAdjustable reports whether the feature may be overridden in simulations.
func IsAdjustable(name string) bool {
	_, ok := adjustable[name]
	return ok
}

// Index returns the channel position in the model order.
func Index(name string) (int, bool) {
	i, ok := orderIndex[name]
	return i, ok
}

// Unknown returns the 46 unknown time-varying channel names in model order.
// Used as the fallback feature mapping when a scaler artifact carries stats
// without names.
func Unknown() []string {
	out := make([]string, 0, NumChannels-6)
	for _, name := range Order {
		if !IsKnown(name) {
			out = append(out, name)
		}
	}
	return out
}

// Known returns the known time-varying and static channel names in model
// order. Known channels are never normalized.
func Known() []string {
	out := make([]string, 0, 6)
	for _, name := range Order {
		if IsKnown(name) {
			out = append(out, name)
		}
	}
	return out
}

// Adjustable returns the overridable feature names, sorted.
func Adjustable() []string {
	out := make([]string, 0, len(adjustable))
	for name := range adjustable {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// InvalidOverrideKeys returns the override keys outside the adjustable set,
// sorted for stable error messages. Empty means the set is valid.
func InvalidOverrideKeys(overrides map[string]float64) []string {
	var bad []string
	for name := range overrides {
		if !IsAdjustable(name) {
			bad = append(bad, name)
		}
	}
	sort.Strings(bad)
	return bad
}
