package marketdata

import (
	"context"
	"testing"
	"time"

	"CropCast/internal/services/features"
)

func TestDummyDeterministic(t *testing.T) {
	src := NewDummySource()
	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 13)

	a, err := src.FetchDaily(context.Background(), "corn", from, to)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, err := src.FetchDaily(context.Background(), "corn", from, to)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("row counts = %d/%d", len(a), len(b))
	}
	for i := range a {
		if a[i].Close != b[i].Close || a[i].PDSI != b[i].PDSI || !a[i].Date.Equal(b[i].Date) {
			t.Fatalf("row %d differs between fetches", i)
		}
	}

	other, err := src.FetchDaily(context.Background(), "wheat", from, to)
	if err != nil {
		t.Fatalf("wheat fetch: %v", err)
	}
	if other[0].Close == a[0].Close {
		t.Fatal("different commodities produced identical rows")
	}
}

func TestDummySkipsWeekends(t *testing.T) {
	src := NewDummySource()
	// Monday through Sunday
	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 6)

	rows, err := src.FetchDaily(context.Background(), "corn", from, to)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5 weekdays", len(rows))
	}
	for _, r := range rows {
		if wd := r.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("weekend row at %s", r.Date.Format("2006-01-02"))
		}
	}
}

func TestDummyRowShape(t *testing.T) {
	src := NewDummySource()
	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	rows, err := src.FetchDaily(context.Background(), "corn", from, from.AddDate(0, 0, 30))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	prev := time.Time{}
	for i, r := range rows {
		if !prev.IsZero() && !r.Date.After(prev) {
			t.Fatalf("dates not ascending at row %d", i)
		}
		prev = r.Date
		if r.Close < 400 || r.Close > 500 {
			t.Fatalf("close %f outside the clamped walk", r.Close)
		}
		if r.High < r.Low {
			t.Fatalf("high %f below low %f", r.High, r.Low)
		}
		if r.Volume < 50000 || r.Volume >= 150000 {
			t.Fatalf("volume %f out of band", r.Volume)
		}
		if r.Yield10Y < 3.5 || r.Yield10Y > 4.5 {
			t.Fatalf("yield %f out of band", r.Yield10Y)
		}
		if r.NewsCount < 5 || r.NewsCount > 14 {
			t.Fatalf("news count %f out of band", r.NewsCount)
		}
		if r.EMA < 400 || r.EMA > 500 {
			t.Fatalf("ema %f outside the close band", r.EMA)
		}
		if len(r.NewsPCA) != features.NewsPCAComponents {
			t.Fatalf("news pca components = %d", len(r.NewsPCA))
		}
	}
}

// Overlapping ranges must agree on shared days: the walk runs from a fixed
// epoch, not from the start of the request.
func TestDummyStableAcrossRanges(t *testing.T) {
	src := NewDummySource()
	day := time.Date(2025, 5, 7, 0, 0, 0, 0, time.UTC) // Wednesday

	wide, err := src.FetchDaily(context.Background(), "corn", day.AddDate(0, 0, -30), day)
	if err != nil {
		t.Fatalf("wide fetch: %v", err)
	}
	narrow, err := src.FetchDaily(context.Background(), "corn", day, day)
	if err != nil {
		t.Fatalf("narrow fetch: %v", err)
	}
	if len(narrow) != 1 {
		t.Fatalf("narrow rows = %d, want 1", len(narrow))
	}
	last := wide[len(wide)-1]
	if !last.Date.Equal(narrow[0].Date) {
		t.Fatalf("dates differ: %s vs %s", last.Date, narrow[0].Date)
	}
	if last.Close != narrow[0].Close || last.EMA != narrow[0].EMA || last.NewsPCA[3] != narrow[0].NewsPCA[3] {
		t.Fatal("shared day differs between ranges")
	}
}
