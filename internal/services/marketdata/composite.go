package marketdata

import (
	"context"
	"time"

	"CropCast/internal/domain/models"
	domrepo "CropCast/internal/domain/repository"
	"CropCast/pkg/logger"
)

// CompositeSource decorates a market source with the FRED macro series,
// forward-filling yield and USD index onto each bar. FRED failures degrade to
// plain market rows rather than failing the fetch.
type CompositeSource struct {
	market domrepo.MarketDataSource
	fred   *FREDClient
	l      *logger.Logger
}

var _ domrepo.MarketDataSource = (*CompositeSource)(nil)

func NewCompositeSource(market domrepo.MarketDataSource, fred *FREDClient, lgr *logger.Logger) *CompositeSource {
	return &CompositeSource{market: market, fred: fred, l: lgr}
}

func (s *CompositeSource) Name() string { return s.market.Name() + "+fred" }

func (s *CompositeSource) FetchDaily(ctx context.Context, commodity string, from, to time.Time) ([]models.DailyMetric, error) {
	rows, err := s.market.FetchDaily(ctx, commodity, from, to)
	if err != nil || len(rows) == 0 || s.fred == nil {
		return rows, err
	}

	yields, yErr := s.fred.Series(ctx, SeriesYield10Y, from, to)
	if yErr != nil {
		s.l.Warn("fred yield series unavailable", logger.Error(yErr))
	}
	usd, uErr := s.fred.Series(ctx, SeriesUSDIndex, from, to)
	if uErr != nil {
		s.l.Warn("fred usd series unavailable", logger.Error(uErr))
	}
	if len(yields) == 0 && len(usd) == 0 {
		return rows, nil
	}

	var lastYield, lastUSD float64
	for i := range rows {
		key := rows[i].Date.Format("2006-01-02")
		if v, ok := yields[key]; ok {
			lastYield = v
		}
		if v, ok := usd[key]; ok {
			lastUSD = v
		}
		rows[i].Yield10Y = lastYield
		rows[i].USDIndex = lastUSD
	}
	return rows, nil
}
