package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	xhttp "CropCast/pkg/http"
	"CropCast/pkg/logger"
)

const fredObservationsURL = "https://api.stlouisfed.org/fred/series/observations"

// FRED series the model consumes.
const (
	SeriesYield10Y = "DGS10"    // 10-year treasury constant maturity
	SeriesUSDIndex = "DTWEXBGS" // trade-weighted USD index, broad goods
)

// FREDClient fetches macro series observations from the St. Louis Fed API.
type FREDClient struct {
	apiKey string
	base   string
	client *xhttp.Client
	l      *logger.Logger
}

type FREDOption func(*FREDClient)

// WithFREDBaseURL overrides the API endpoint, for tests.
func WithFREDBaseURL(u string) FREDOption {
	return func(c *FREDClient) {
		if u != "" {
			c.base = u
		}
	}
}

func NewFREDClient(apiKey string, lgr *logger.Logger, opts ...FREDOption) *FREDClient {
	c := &FREDClient{
		apiKey: apiKey,
		base:   fredObservationsURL,
		client: xhttp.NewClient(xhttp.WithTimeout(15 * time.Second)),
		l:      lgr,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type fredResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Series returns observed values keyed by date ("2006-01-02"). FRED reports
// missing days with value ".", which are skipped.
func (c *FREDClient) Series(ctx context.Context, seriesID string, from, to time.Time) (map[string]float64, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("fred api key not configured")
	}

	var resp fredResponse
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.base,
		QueryParams: map[string][]string{
			"series_id":         {seriesID},
			"api_key":           {c.apiKey},
			"file_type":         {"json"},
			"observation_start": {from.Format("2006-01-02")},
			"observation_end":   {to.Format("2006-01-02")},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fred %s: %w", seriesID, err)
	}

	out := make(map[string]float64, len(resp.Observations))
	for _, obs := range resp.Observations {
		if obs.Value == "." || obs.Value == "" {
			continue
		}
		v, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		out[obs.Date] = v
	}
	c.l.Debug("fred series fetched",
		logger.String("series", seriesID),
		logger.Int("observations", len(out)),
	)
	return out, nil
}
