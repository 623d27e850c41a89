package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CropCast/pkg/logger"
)

func mdLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

const chartBody = `{
  "chart": {
    "result": [{
      "timestamp": [1740960000, 1741046400, 1741132800],
      "indicators": {
        "quote": [{
          "open":   [455.0, 457.5, null],
          "high":   [460.0, 462.0, null],
          "low":    [452.0, 455.0, null],
          "close":  [458.25, 461.0, null],
          "volume": [81234, 90110, null]
        }]
      }
    }],
    "error": null
  }
}`

func TestYahooFetchDaily(t *testing.T) {
	var gotPath, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	src := NewYahooSource(mdLogger(t), WithYahooBaseURL(srv.URL+"/v8/finance/chart/%s"))
	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	rows, err := src.FetchDaily(context.Background(), "corn", from, from.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if !strings.HasSuffix(gotPath, "/ZC=F") {
		t.Fatalf("request path = %s, want corn mapped to ZC=F", gotPath)
	}
	if gotInterval != "1d" {
		t.Fatalf("interval = %q", gotInterval)
	}
	// third day has a null close and is dropped
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Close != 458.25 || rows[1].Close != 461.0 {
		t.Fatalf("closes = %f/%f", rows[0].Close, rows[1].Close)
	}
	if rows[0].Commodity != "corn" {
		t.Fatalf("commodity = %q", rows[0].Commodity)
	}
	if rows[0].Volume != 81234 {
		t.Fatalf("volume = %f", rows[0].Volume)
	}
	if !rows[1].Date.After(rows[0].Date) {
		t.Fatal("dates not ascending")
	}
}

func TestYahooUnknownCommodity(t *testing.T) {
	src := NewYahooSource(mdLogger(t))
	if _, err := src.FetchDaily(context.Background(), "uranium", time.Now().AddDate(0, 0, -5), time.Now()); err == nil {
		t.Fatal("expected error for unmapped commodity")
	}
}

func TestYahooAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	src := NewYahooSource(mdLogger(t), WithYahooBaseURL(srv.URL+"/v8/finance/chart/%s"))
	if _, err := src.FetchDaily(context.Background(), "corn", time.Now().AddDate(0, 0, -5), time.Now()); err == nil {
		t.Fatal("expected error from chart error payload")
	}
}
