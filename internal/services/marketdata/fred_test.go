package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const fredBody = `{
  "observations": [
    {"date": "2025-03-03", "value": "4.57"},
    {"date": "2025-03-04", "value": "."},
    {"date": "2025-03-05", "value": "4.61"}
  ]
}`

func TestFREDSeries(t *testing.T) {
	var gotSeries, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSeries = r.URL.Query().Get("series_id")
		gotKey = r.URL.Query().Get("api_key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fredBody))
	}))
	defer srv.Close()

	c := NewFREDClient("test-key", mdLogger(t), WithFREDBaseURL(srv.URL))
	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	vals, err := c.Series(context.Background(), SeriesYield10Y, from, from.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("series: %v", err)
	}

	if gotSeries != "DGS10" || gotKey != "test-key" {
		t.Fatalf("request series/key = %q/%q", gotSeries, gotKey)
	}
	// the "." placeholder day is skipped
	if len(vals) != 2 {
		t.Fatalf("observations = %d, want 2", len(vals))
	}
	if vals["2025-03-03"] != 4.57 || vals["2025-03-05"] != 4.61 {
		t.Fatalf("values = %v", vals)
	}
}

func TestFREDRequiresKey(t *testing.T) {
	c := NewFREDClient("", mdLogger(t))
	if _, err := c.Series(context.Background(), SeriesYield10Y, time.Now().AddDate(0, 0, -5), time.Now()); err == nil {
		t.Fatal("expected error without api key")
	}
}
