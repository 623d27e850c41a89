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

const predictionsTable = "cropcast.tft_predictions"

const predictionCols = "run_id, commodity, kind, base_date, target_date, price_pred, conf_lower, conf_upper, " +
	"top1_factor, top1_impact, top2_factor, top2_impact, top3_factor, top3_impact, top4_factor, top4_impact, top5_factor, top5_impact, created_at"

const maxFactors = 5

// CHForecastStore persists prediction runs as one row per forecast day,
// the run's top factors denormalized onto every row.
type CHForecastStore struct {
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.ForecastStore = (*CHForecastStore)(nil)

func NewCHForecastStore(ch *pkgch.Client, l *applogger.Logger) *CHForecastStore {
	return &CHForecastStore{db: ch.DB(), l: l}
}

func (s *CHForecastStore) Init(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHForecastStore) StoreRun(ctx context.Context, run *models.ForecastRun) error {
	if run == nil || run.RunID == "" {
		return fmt.Errorf("run missing id")
	}
	if len(run.Steps) == 0 {
		return fmt.Errorf("run %s has no steps", run.RunID)
	}

	var factors [maxFactors]models.FactorImpact
	for i := 0; i < maxFactors && i < len(run.Factors); i++ {
		factors[i] = run.Factors[i]
	}

	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	values := make([]string, 0, len(run.Steps))
	args := make([]interface{}, 0, len(run.Steps)*19)
	for _, step := range run.Steps {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			run.RunID,
			run.Commodity,
			run.Kind,
			run.BaseDate,
			step.TargetDate,
			step.Price,
			step.Lower,
			step.Upper,
			factors[0].Factor, factors[0].Impact,
			factors[1].Factor, factors[1].Impact,
			factors[2].Factor, factors[2].Impact,
			factors[3].Factor, factors[3].Impact,
			factors[4].Factor, factors[4].Impact,
			created,
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", predictionsTable, predictionCols, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse forecast insert error",
			applogger.String("run_id", run.RunID),
			applogger.String("commodity", run.Commodity),
			applogger.Error(err),
		)
		return fmt.Errorf("store run: %w", err)
	}
	s.l.Debug("forecast run stored",
		applogger.String("run_id", run.RunID),
		applogger.String("commodity", run.Commodity),
		applogger.String("kind", run.Kind),
		applogger.Int("steps", len(run.Steps)),
	)
	return nil
}

// LatestRun returns the newest run for the commodity and kind, or nil when
// none is stored.
func (s *CHForecastStore) LatestRun(ctx context.Context, commodity, kind string) (*models.ForecastRun, error) {
	q := fmt.Sprintf("SELECT run_id FROM %s WHERE commodity = ? AND kind = ? ORDER BY created_at DESC LIMIT 1", predictionsTable)
	var runID string
	if err := s.db.QueryRowContext(ctx, q, commodity, kind).Scan(&runID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest run id: %w", err)
	}

	q = fmt.Sprintf("SELECT %s FROM %s WHERE run_id = ? ORDER BY target_date ASC", predictionCols, predictionsTable)
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("latest run rows: %w", err)
	}
	defer rows.Close()

	runs, err := collectRuns(rows, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// Runs lists runs whose creation time falls in [from, to], newest first.
func (s *CHForecastStore) Runs(ctx context.Context, commodity string, from, to time.Time, limit int) ([]*models.ForecastRun, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE commodity = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at DESC, run_id, target_date ASC",
		predictionCols, predictionsTable,
	)
	rows, err := s.db.QueryContext(ctx, q, commodity, from, to)
	if err != nil {
		s.l.Error("clickhouse runs query error",
			applogger.String("commodity", commodity),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("runs query: %w", err)
	}
	defer rows.Close()
	return collectRuns(rows, limit)
}

func (s *CHForecastStore) Close() error {
	return nil // pool owned by pkg client
}

// collectRuns groups row-per-day results back into runs. Rows must arrive
// grouped by run_id with target dates ascending inside each run.
func collectRuns(rows *sql.Rows, limit int) ([]*models.ForecastRun, error) {
	var (
		runs    []*models.ForecastRun
		current *models.ForecastRun
	)
	for rows.Next() {
		var (
			run     models.ForecastRun
			step    models.ForecastStep
			factors [maxFactors]models.FactorImpact
		)
		if err := rows.Scan(
			&run.RunID,
			&run.Commodity,
			&run.Kind,
			&run.BaseDate,
			&step.TargetDate,
			&step.Price,
			&step.Lower,
			&step.Upper,
			&factors[0].Factor, &factors[0].Impact,
			&factors[1].Factor, &factors[1].Impact,
			&factors[2].Factor, &factors[2].Impact,
			&factors[3].Factor, &factors[3].Impact,
			&factors[4].Factor, &factors[4].Impact,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}

		if current == nil || current.RunID != run.RunID {
			if len(runs) >= limit {
				break
			}
			for _, f := range factors {
				if f.Factor != "" {
					run.Factors = append(run.Factors, f)
				}
			}
			current = &run
			runs = append(runs, current)
		}
		current.Steps = append(current.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return runs, nil
}
