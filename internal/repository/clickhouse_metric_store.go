package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CropCast/internal/domain/models"
	domrepo "CropCast/internal/domain/repository"
	pkgch "CropCast/pkg/clickhouse"
	applogger "CropCast/pkg/logger"
)

const metricsTable = "cropcast.daily_metrics"

const metricCols = "date, commodity, close, open, high, low, volume, ema, pdsi, spi30d, spi90d, yield_10y, usd_index, lambda_price, lambda_news, news_count, news_pca, ingested_at"

// CHMetricStore implements MetricStore backed by ClickHouse. The table is a
// ReplacingMergeTree keyed by (commodity, date), so re-ingesting a day
// replaces it; reads use FINAL to collapse duplicates.
type CHMetricStore struct {
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.MetricStore = (*CHMetricStore)(nil)

func NewCHMetricStore(ch *pkgch.Client, l *applogger.Logger) *CHMetricStore {
	return &CHMetricStore{db: ch.DB(), l: l}
}

func (s *CHMetricStore) Init(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHMetricStore) Store(ctx context.Context, m *models.DailyMetric) error {
	return s.StoreBatch(ctx, []*models.DailyMetric{m})
}

func (s *CHMetricStore) StoreBatch(ctx context.Context, rows []*models.DailyMetric) error {
	if len(rows) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*18)
		for _, m := range rows[start:end] {
			if m == nil || m.Commodity == "" || m.Date.IsZero() {
				continue
			}
			ingested := m.IngestedAt
			if ingested.IsZero() {
				ingested = time.Now().UTC()
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				m.Date,
				m.Commodity,
				m.Close,
				m.Open,
				m.High,
				m.Low,
				m.Volume,
				m.EMA,
				m.PDSI,
				m.SPI30D,
				m.SPI90D,
				m.Yield10Y,
				m.USDIndex,
				m.LambdaPrice,
				m.LambdaNews,
				m.NewsCount,
				m.NewsPCA,
				ingested,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", metricsTable, metricCols, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse metric batch insert error",
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("store metrics: %w", err)
		}
	}
	return nil
}

// Window returns the last days rows for the commodity on or before end,
// date-ascending. A zero end means the latest stored day.
func (s *CHMetricStore) Window(ctx context.Context, commodity string, end time.Time, days int) ([]models.DailyMetric, error) {
	start := time.Now()
	var (
		q    string
		args []interface{}
	)
	if end.IsZero() {
		q = fmt.Sprintf("SELECT %s FROM %s FINAL WHERE commodity = ? ORDER BY date DESC LIMIT ?", metricCols, metricsTable)
		args = []interface{}{commodity, days}
	} else {
		q = fmt.Sprintf("SELECT %s FROM %s FINAL WHERE commodity = ? AND date <= ? ORDER BY date DESC LIMIT ?", metricCols, metricsTable)
		args = []interface{}{commodity, end, days}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse window query error",
			applogger.String("commodity", commodity),
			applogger.Int("days", days),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("window query: %w", err)
	}
	defer rows.Close()

	out, err := scanMetrics(rows, days)
	if err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse window ok",
		applogger.String("commodity", commodity),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHMetricStore) History(ctx context.Context, commodity string, from, to time.Time, limit int) ([]models.DailyMetric, error) {
	if limit <= 0 {
		limit = 10000
	}
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE commodity = ? AND date >= ? AND date <= ? ORDER BY date ASC LIMIT ?", metricCols, metricsTable)
	rows, err := s.db.QueryContext(ctx, q, commodity, from, to, limit)
	if err != nil {
		s.l.Error("clickhouse history query error",
			applogger.String("commodity", commodity),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()
	return scanMetrics(rows, limit)
}

func (s *CHMetricStore) LatestDate(ctx context.Context, commodity string) (time.Time, error) {
	q := fmt.Sprintf("SELECT max(date) FROM %s WHERE commodity = ?", metricsTable)
	var latest time.Time
	if err := s.db.QueryRowContext(ctx, q, commodity).Scan(&latest); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("latest date: %w", err)
	}
	// max() over an empty set comes back as the epoch
	if latest.Unix() <= 0 {
		return time.Time{}, nil
	}
	return latest, nil
}

func (s *CHMetricStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHMetricStore) Close() error {
	return nil // pool owned by pkg client
}

func scanMetrics(rows *sql.Rows, sizeHint int) ([]models.DailyMetric, error) {
	if sizeHint <= 0 || sizeHint > 10000 {
		sizeHint = 256
	}
	out := make([]models.DailyMetric, 0, sizeHint)
	for rows.Next() {
		var m models.DailyMetric
		if err := rows.Scan(
			&m.Date,
			&m.Commodity,
			&m.Close,
			&m.Open,
			&m.High,
			&m.Low,
			&m.Volume,
			&m.EMA,
			&m.PDSI,
			&m.SPI30D,
			&m.SPI90D,
			&m.Yield10Y,
			&m.USDIndex,
			&m.LambdaPrice,
			&m.LambdaNews,
			&m.NewsCount,
			&m.NewsPCA,
			&m.IngestedAt,
		); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
