package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CropCast/internal/domain/models"
	cachesvc "CropCast/internal/service/cache"
	"CropCast/pkg/logger"
	"CropCast/pkg/queue"

	"github.com/google/uuid"
)

const (
	SimulationJobName = "simulation_run"
	SimulationJobType = "simulation.run"
)

// Async run states, in order. A retried run moves failed -> running again.
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

const runKeyPrefix = "simrun:"

// SimulationJobPayload is one queued simulation request.
type SimulationJobPayload struct {
	RunID       string             `json:"run_id"`
	Commodity   string             `json:"commodity"`
	BaseDate    string             `json:"base_date,omitempty"`
	HorizonDays int                `json:"horizon_days"`
	Overrides   map[string]float64 `json:"overrides,omitempty"`
}

// SimulationJob runs queued simulations and keeps a pollable status record
// for each, so clients can submit long runs without holding a connection.
type SimulationJob struct {
	sim      *SimulatorUseCase
	queue    queue.QueueService
	statuses cachesvc.BytesCache
	ttl      time.Duration
	l        *logger.Logger
}

func NewSimulationJob(
	sim *SimulatorUseCase,
	q queue.QueueService,
	statuses cachesvc.BytesCache,
	resultTTL time.Duration,
	lgr *logger.Logger,
) *SimulationJob {
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	return &SimulationJob{
		sim:      sim,
		queue:    q,
		statuses: statuses,
		ttl:      resultTTL,
		l:        lgr,
	}
}

func (j *SimulationJob) Name() string { return SimulationJobName }

func (j *SimulationJob) Type() string { return SimulationJobType }

// Submit queues a run and records it as pending. The returned run ID is
// pollable immediately.
func (j *SimulationJob) Submit(ctx context.Context, p SimulateParams) (string, error) {
	runID := uuid.NewString()
	payload := SimulationJobPayload{
		RunID:       runID,
		Commodity:   p.Commodity,
		HorizonDays: p.HorizonDays,
		Overrides:   p.Overrides,
	}
	if !p.BaseDate.IsZero() {
		payload.BaseDate = p.BaseDate.Format("2006-01-02")
	}

	if err := j.put(&models.SimulationRunStatus{RunID: runID, Status: RunStatusPending}); err != nil {
		return "", fmt.Errorf("record pending run: %w", err)
	}
	if err := j.queue.PublishMessage(ctx, SimulationJobType, payload); err != nil {
		return "", fmt.Errorf("enqueue simulation: %w", err)
	}

	j.l.Info("simulation queued",
		logger.String("run_id", runID),
		logger.String("commodity", p.Commodity),
		logger.Int("horizon_days", p.HorizonDays))
	return runID, nil
}

func (j *SimulationJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[SimulationJobPayload](payload)
	if err != nil {
		return fmt.Errorf("simulation payload: %w", err)
	}
	if p.RunID == "" || p.Commodity == "" {
		return fmt.Errorf("simulation payload missing run_id or commodity")
	}

	params := SimulateParams{
		RunID:       p.RunID,
		Commodity:   p.Commodity,
		HorizonDays: p.HorizonDays,
		Overrides:   p.Overrides,
	}
	if p.BaseDate != "" {
		d, perr := time.Parse("2006-01-02", p.BaseDate)
		if perr != nil {
			// Poison payload, retrying cannot fix it.
			return j.put(&models.SimulationRunStatus{
				RunID:  p.RunID,
				Status: RunStatusFailed,
				Error:  "bad base_date: " + p.BaseDate,
			})
		}
		params.BaseDate = d
	}

	if err := j.put(&models.SimulationRunStatus{RunID: p.RunID, Status: RunStatusRunning}); err != nil {
		j.l.Warn("run status write failed", logger.String("run_id", p.RunID), logger.Error(err))
	}

	res, err := j.sim.Simulate(ctx, params)
	if err != nil {
		j.l.Error("async simulation failed",
			logger.String("run_id", p.RunID),
			logger.String("commodity", p.Commodity),
			logger.Error(err))
		if perr := j.put(&models.SimulationRunStatus{
			RunID:  p.RunID,
			Status: RunStatusFailed,
			Error:  err.Error(),
		}); perr != nil {
			j.l.Warn("run status write failed", logger.String("run_id", p.RunID), logger.Error(perr))
		}
		// Returning the error hands the message to the queue's retry path.
		return err
	}

	return j.put(&models.SimulationRunStatus{
		RunID:  p.RunID,
		Status: RunStatusDone,
		Result: models.NewSimulationResponse(res),
	})
}

// RunStatus returns the recorded status, or nil when the run ID is unknown
// or its record has expired.
func (j *SimulationJob) RunStatus(runID string) (*models.SimulationRunStatus, error) {
	b, ok, err := j.statuses.GetBytes(runKeyPrefix + runID)
	if err != nil || !ok {
		return nil, err
	}
	var st models.SimulationRunStatus
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode run status: %w", err)
	}
	return &st, nil
}

func (j *SimulationJob) put(st *models.SimulationRunStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return j.statuses.SetBytes(runKeyPrefix+st.RunID, b, j.ttl)
}
