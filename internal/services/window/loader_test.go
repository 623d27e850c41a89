package window

import (
	"context"
	"errors"
	"testing"
	"time"

	"CropCast/internal/domain/models"
	cachesvc "CropCast/internal/service/cache"
	"CropCast/internal/services/features"
	"CropCast/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func metricRows(n int, end time.Time) []models.DailyMetric {
	rows := make([]models.DailyMetric, n)
	for i := 0; i < n; i++ {
		close := 450.0 + float64(i)
		rows[i] = models.DailyMetric{
			Date:      end.AddDate(0, 0, i-(n-1)),
			Commodity: "corn",
			Close:     close,
			Open:      close - 1,
			High:      close + 2,
			Low:       close - 2,
			Volume:    1000,
			EMA:       close - 0.5,
			PDSI:      1.1,
		}
	}
	return rows
}

type fakeStore struct {
	rows        []models.DailyMetric
	windowCalls int
	stored      []*models.DailyMetric
	err         error
}

func (f *fakeStore) Init(context.Context) error { return nil }
func (f *fakeStore) Store(_ context.Context, m *models.DailyMetric) error {
	f.stored = append(f.stored, m)
	return nil
}
func (f *fakeStore) StoreBatch(_ context.Context, rows []*models.DailyMetric) error {
	f.stored = append(f.stored, rows...)
	return nil
}
func (f *fakeStore) Window(_ context.Context, _ string, _ time.Time, days int) ([]models.DailyMetric, error) {
	f.windowCalls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) > days {
		return f.rows[len(f.rows)-days:], nil
	}
	return f.rows, nil
}
func (f *fakeStore) History(_ context.Context, _ string, _, _ time.Time, _ int) ([]models.DailyMetric, error) {
	return f.rows, nil
}
func (f *fakeStore) LatestDate(_ context.Context, _ string) (time.Time, error) {
	if len(f.rows) == 0 {
		return time.Time{}, nil
	}
	return f.rows[len(f.rows)-1].Date, nil
}
func (f *fakeStore) Health(context.Context) error { return nil }
func (f *fakeStore) Close() error                 { return nil }

type fakeSource struct {
	name  string
	rows  []models.DailyMetric
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) FetchDaily(_ context.Context, _ string, _, _ time.Time) ([]models.DailyMetric, error) {
	f.calls++
	return f.rows, f.err
}

func TestWindowFromStore(t *testing.T) {
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: metricRows(80, end)}
	src := &fakeSource{name: "yahoo"}
	l := NewLoader(store, testLogger(t), WithSources(src))

	ts, err := l.Window(context.Background(), "corn", time.Time{}, 60)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if ts.Len() != 60 {
		t.Fatalf("got %d days, want 60", ts.Len())
	}
	if src.calls != 0 {
		t.Fatalf("source must not be hit when the store covers the window")
	}
	if !ts.LastDate().Equal(end) {
		t.Fatalf("last date = %v, want %v", ts.LastDate(), end)
	}
	if _, ok := ts.Feature(features.FeatClose); !ok {
		t.Fatalf("close channel missing")
	}
}

func TestWindowServedFromCache(t *testing.T) {
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: metricRows(60, end)}
	l := NewLoader(store, testLogger(t), WithCache(cachesvc.NewTTLCache()))

	first, err := l.Window(context.Background(), "corn", end, 60)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	second, err := l.Window(context.Background(), "corn", end, 60)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if store.windowCalls != 1 {
		t.Fatalf("store queried %d times, want 1", store.windowCalls)
	}
	if second.Len() != first.Len() || !second.LastDate().Equal(first.LastDate()) {
		t.Fatalf("cached window differs: %d vs %d days", second.Len(), first.Len())
	}
	v1, _ := first.Last(features.FeatClose)
	v2, _ := second.Last(features.FeatClose)
	if v1 != v2 {
		t.Fatalf("cached close %v, want %v", v2, v1)
	}
}

func TestWindowBackfillWhenShort(t *testing.T) {
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: metricRows(10, end)}
	src := &fakeSource{name: "yahoo", rows: metricRows(70, end)}
	l := NewLoader(store, testLogger(t), WithSources(src))

	ts, err := l.Window(context.Background(), "corn", end, 60)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if ts.Len() != 60 {
		t.Fatalf("got %d days after backfill, want 60", ts.Len())
	}
	if src.calls != 1 {
		t.Fatalf("source calls = %d, want 1", src.calls)
	}
	if len(store.stored) != 70 {
		t.Fatalf("fetched rows not written back: %d", len(store.stored))
	}
}

func TestWindowSourceOrderAndFailure(t *testing.T) {
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: metricRows(5, end)}
	broken := &fakeSource{name: "yahoo", err: errors.New("upstream down")}
	backup := &fakeSource{name: "dummy", rows: metricRows(60, end)}
	l := NewLoader(store, testLogger(t), WithSources(broken, backup))

	ts, err := l.Window(context.Background(), "corn", end, 60)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if broken.calls != 1 || backup.calls != 1 {
		t.Fatalf("source calls = %d/%d, want 1/1", broken.calls, backup.calls)
	}
	if ts.Len() != 60 {
		t.Fatalf("got %d days, want 60", ts.Len())
	}
}

func TestWindowAllSourcesFailReturnsStored(t *testing.T) {
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: metricRows(5, end)}
	broken := &fakeSource{name: "yahoo", err: errors.New("upstream down")}
	l := NewLoader(store, testLogger(t), WithSources(broken))

	ts, err := l.Window(context.Background(), "corn", end, 60)
	if err != nil {
		t.Fatalf("short windows are the caller's decision, got error: %v", err)
	}
	if ts.Len() != 5 {
		t.Fatalf("got %d days, want the 5 stored", ts.Len())
	}
}

func TestWindowRejectsEmptyCommodity(t *testing.T) {
	l := NewLoader(&fakeStore{}, testLogger(t))
	if _, err := l.Window(context.Background(), "", time.Time{}, 60); err == nil {
		t.Fatalf("expected error for empty commodity")
	}
}

func TestMergeRows(t *testing.T) {
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	stored := metricRows(3, end)
	fetched := metricRows(5, end)
	fetched[4].Close = 999 // same date as stored[2], fetched wins

	merged := mergeRows(stored, fetched, 4)
	if len(merged) != 4 {
		t.Fatalf("got %d rows, want 4", len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if !merged[i].Date.After(merged[i-1].Date) {
			t.Fatalf("rows not ascending at %d", i)
		}
	}
	if merged[3].Close != 999 {
		t.Fatalf("fetched row should win on date collision, got close %v", merged[3].Close)
	}
}
