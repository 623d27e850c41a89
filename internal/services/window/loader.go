// Package window assembles the model's input window from cache, storage, and
// upstream market-data sources.
package window

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"CropCast/internal/domain/models"
	drepo "CropCast/internal/domain/repository"
	domsvc "CropCast/internal/domain/service"
	cachesvc "CropCast/internal/service/cache"
	"CropCast/internal/services/features"
	"CropCast/pkg/logger"
)

const dateLayout = "2006-01-02"

// Loader serves feature windows. Lookup order is cache, then the metric
// store; when the store holds fewer days than requested the configured
// sources backfill the gap and the fetched rows are written back.
type Loader struct {
	store   drepo.MetricStore
	sources []drepo.MarketDataSource
	cache   cachesvc.BytesCache
	emaSpan int
	ttl     time.Duration
	l       *logger.Logger
}

var _ domsvc.WindowProvider = (*Loader)(nil)

type LoaderOption func(*Loader)

// WithCache serves repeated window requests from a byte cache.
func WithCache(c cachesvc.BytesCache) LoaderOption {
	return func(l *Loader) { l.cache = c }
}

// WithSources sets the backfill sources, tried in order.
func WithSources(srcs ...drepo.MarketDataSource) LoaderOption {
	return func(l *Loader) { l.sources = srcs }
}

// WithCacheTTL sets how long cached windows stay valid.
func WithCacheTTL(ttl time.Duration) LoaderOption {
	return func(l *Loader) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithEMASpan sets the EMA span used when recomputing the indicator.
func WithEMASpan(span int) LoaderOption {
	return func(l *Loader) {
		if span > 0 {
			l.emaSpan = span
		}
	}
}

func NewLoader(store drepo.MetricStore, lgr *logger.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:   store,
		emaSpan: 20,
		ttl:     time.Hour,
		l:       lgr,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window returns up to days of trailing feature history ending at end. A zero
// end means the latest stored day. The result may be shorter than days when
// neither storage nor the sources cover the range; callers decide whether
// that is acceptable.
func (l *Loader) Window(ctx context.Context, commodity string, end time.Time, days int) (*models.TimeSeries, error) {
	if commodity == "" {
		return nil, fmt.Errorf("commodity required")
	}
	if days <= 0 {
		days = features.EncoderLength
	}

	key := l.cacheKey(commodity, end, days)
	if l.cache != nil {
		if b, ok, err := l.cache.GetBytes(key); err == nil && ok {
			var ts models.TimeSeries
			if json.Unmarshal(b, &ts) == nil && ts.Len() > 0 {
				return &ts, nil
			}
		}
	}

	rows, err := l.store.Window(ctx, commodity, end, days)
	if err != nil {
		return nil, fmt.Errorf("window query %s: %w", commodity, err)
	}

	if len(rows) < days && len(l.sources) > 0 {
		rows = l.backfill(ctx, commodity, end, days, rows)
	}

	ts := features.FromMetrics(rows, l.emaSpan)
	if ts.Len() == 0 {
		return ts, nil
	}

	if l.cache != nil {
		if b, err := json.Marshal(ts); err == nil {
			if err := l.cache.SetBytes(key, b, l.ttl); err != nil {
				l.l.Debug("window cache write failed", logger.String("key", key), logger.Error(err))
			}
		}
	}
	return ts, nil
}

// backfill asks the sources for the missing range and merges the result with
// the stored rows, newest fetch winning per date. Fetched rows are written
// back best-effort so the next request is served from storage.
func (l *Loader) backfill(ctx context.Context, commodity string, end time.Time, days int, stored []models.DailyMetric) []models.DailyMetric {
	to := end
	if to.IsZero() {
		to = time.Now().UTC()
	}
	// fetch double the window; upstream calendars skip non-trading days
	from := to.AddDate(0, 0, -2*days)

	for _, src := range l.sources {
		fetched, err := src.FetchDaily(ctx, commodity, from, to)
		if err != nil {
			l.l.Warn("source fetch failed",
				logger.String("source", src.Name()),
				logger.String("commodity", commodity),
				logger.Error(err))
			continue
		}
		if len(fetched) == 0 {
			continue
		}
		l.l.Info("window backfilled",
			logger.String("source", src.Name()),
			logger.String("commodity", commodity),
			logger.Int("rows", len(fetched)))

		ptrs := make([]*models.DailyMetric, len(fetched))
		for i := range fetched {
			ptrs[i] = &fetched[i]
		}
		if err := l.store.StoreBatch(ctx, ptrs); err != nil {
			l.l.Warn("backfill store failed", logger.String("commodity", commodity), logger.Error(err))
		}

		return mergeRows(stored, fetched, days)
	}
	return stored
}

// mergeRows combines stored and fetched rows by date, fetched winning, and
// keeps the trailing days in ascending date order.
func mergeRows(stored, fetched []models.DailyMetric, days int) []models.DailyMetric {
	byDate := make(map[string]models.DailyMetric, len(stored)+len(fetched))
	for _, r := range stored {
		byDate[r.Date.Format(dateLayout)] = r
	}
	for _, r := range fetched {
		byDate[r.Date.Format(dateLayout)] = r
	}

	out := make([]models.DailyMetric, 0, len(byDate))
	for _, r := range byDate {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) > days {
		out = out[len(out)-days:]
	}
	return out
}

// CacheKeyPrefix is the key prefix under which windows for the commodity are
// cached. Deleting it invalidates every cached window after fresh rows land.
func CacheKeyPrefix(commodity string) string {
	return "window:" + commodity + ":"
}

func (l *Loader) cacheKey(commodity string, end time.Time, days int) string {
	day := "latest"
	if !end.IsZero() {
		day = end.Format(dateLayout)
	}
	return fmt.Sprintf("%s%s:%d", CacheKeyPrefix(commodity), day, days)
}
