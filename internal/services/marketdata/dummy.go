package marketdata

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"CropCast/internal/domain/models"
	domrepo "CropCast/internal/domain/repository"
	"CropCast/internal/services/features"
)

// The close walk and the news embedding walks start here so that the same
// (commodity, date) yields the same row regardless of the requested range.
var walkEpoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

const emaSpan = 20

// DummySource generates plausible bars for offline and test runs: the close
// is a clamped random walk around 450 cents/bushel, macro and climate series
// are drawn per day, and the news embedding drifts in small steps.
type DummySource struct {
	basePrice float64
}

var _ domrepo.MarketDataSource = (*DummySource)(nil)

func NewDummySource() *DummySource { return &DummySource{basePrice: 450} }

func (s *DummySource) Name() string { return "dummy" }

// FetchDaily generates weekday rows for [from, to], date-ascending. Each day
// draws from a PRNG seeded by (commodity, date), so repeated fetches agree.
func (s *DummySource) FetchDaily(_ context.Context, commodity string, from, to time.Time) ([]models.DailyMetric, error) {
	fromW := from.UTC().Truncate(24 * time.Hour)
	toW := to.UTC().Truncate(24 * time.Hour)

	init := rand.New(rand.NewSource(daySeed(commodity, walkEpoch.AddDate(0, 0, -1))))
	cl := s.basePrice
	pca := make([]float64, features.NewsPCAComponents)
	for i := range pca {
		pca[i] = init.NormFloat64()
	}

	alpha := 2.0 / float64(emaSpan+1)
	ema := 0.0
	first := true

	var out []models.DailyMetric
	for day := walkEpoch; !day.After(toW); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		r := rand.New(rand.NewSource(daySeed(commodity, day)))

		// State-advancing draws come first so skipped days stay cheap
		// without shifting later draws.
		cl = clamp(400, 500, cl+r.NormFloat64()*5)
		for i := range pca {
			pca[i] += r.NormFloat64() * 0.1
		}
		if first {
			ema = cl
			first = false
		} else {
			ema += alpha * (cl - ema)
		}
		if day.Before(fromW) {
			continue
		}

		out = append(out, models.DailyMetric{
			Date:        day,
			Commodity:   commodity,
			Close:       cl,
			Open:        cl + uniform(r, -2, 2),
			High:        cl + uniform(r, 2, 5),
			Low:         cl - uniform(r, 2, 5),
			Volume:      float64(50000 + r.Intn(100000)),
			EMA:         ema,
			PDSI:        uniform(r, -3, 3),
			SPI30D:      uniform(r, -1, 1),
			SPI90D:      uniform(r, -1, 1),
			Yield10Y:    uniform(r, 3.5, 4.5),
			USDIndex:    uniform(r, 100, 110),
			LambdaPrice: uniform(r, 0.1, 0.5),
			LambdaNews:  uniform(r, 0.1, 0.5),
			NewsCount:   float64(5 + r.Intn(10)),
			NewsPCA:     append([]float64(nil), pca...),
		})
	}
	return out, nil
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func daySeed(commodity string, day time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(commodity))
	h.Write([]byte(day.Format("2006-01-02")))
	return int64(h.Sum64())
}
