// Package marketdata implements the poll-based upstream providers: Yahoo
// Finance for futures OHLCV, FRED for the macro series, and a deterministic
// generator for offline runs.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"CropCast/internal/domain/models"
	domrepo "CropCast/internal/domain/repository"
	xhttp "CropCast/pkg/http"
	"CropCast/pkg/logger"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/%s"

// defaultTickers maps commodity names to their front-month futures symbols.
var defaultTickers = map[string]string{
	"corn":    "ZC=F",
	"wheat":   "ZW=F",
	"soybean": "ZS=F",
}

// YahooSource pulls daily OHLCV bars from the Yahoo Finance chart API.
type YahooSource struct {
	client  *xhttp.Client
	base    string
	tickers map[string]string
	l       *logger.Logger
}

var _ domrepo.MarketDataSource = (*YahooSource)(nil)

type YahooOption func(*YahooSource)

// WithTickers replaces the commodity-to-symbol map.
func WithTickers(m map[string]string) YahooOption {
	return func(s *YahooSource) {
		if len(m) > 0 {
			s.tickers = m
		}
	}
}

// WithYahooBaseURL overrides the chart endpoint, for tests.
func WithYahooBaseURL(u string) YahooOption {
	return func(s *YahooSource) {
		if u != "" {
			s.base = u
		}
	}
}

// WithYahooTimeout sets the request timeout.
func WithYahooTimeout(d time.Duration) YahooOption {
	return func(s *YahooSource) {
		if d > 0 {
			s.client = xhttp.NewClient(xhttp.WithTimeout(d))
		}
	}
}

func NewYahooSource(lgr *logger.Logger, opts ...YahooOption) *YahooSource {
	s := &YahooSource{
		client:  xhttp.NewClient(xhttp.WithTimeout(15 * time.Second)),
		base:    yahooChartURL,
		tickers: defaultTickers,
		l:       lgr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *YahooSource) Name() string { return "yahoo" }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDaily returns daily bars for [from, to], date-ascending. Days Yahoo
// reports with a null close (holidays, partial sessions) are skipped.
func (s *YahooSource) FetchDaily(ctx context.Context, commodity string, from, to time.Time) ([]models.DailyMetric, error) {
	ticker, ok := s.tickers[commodity]
	if !ok {
		return nil, fmt.Errorf("no ticker mapped for commodity %q", commodity)
	}

	var resp yahooChartResponse
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    fmt.Sprintf(s.base, ticker),
		Headers: map[string]string{
			"User-Agent": "Mozilla/5.0 (X11; Linux x86_64)",
		},
		QueryParams: map[string][]string{
			"period1":  {fmt.Sprintf("%d", from.Unix())},
			"period2":  {fmt.Sprintf("%d", to.AddDate(0, 0, 1).Unix())},
			"interval": {"1d"},
			"events":   {"history"},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", ticker, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart %s: %s (%s)", ticker, resp.Chart.Error.Description, resp.Chart.Error.Code)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	out := make([]models.DailyMetric, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		day := time.Unix(ts, 0).UTC().Truncate(24 * time.Hour)
		m := models.DailyMetric{
			Date:      day,
			Commodity: commodity,
			Close:     *quote.Close[i],
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			m.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			m.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			m.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			m.Volume = float64(*quote.Volume[i])
		}
		out = append(out, m)
	}
	s.l.Debug("yahoo daily bars fetched",
		logger.String("commodity", commodity),
		logger.String("ticker", ticker),
		logger.Int("rows", len(out)),
	)
	return out, nil
}
