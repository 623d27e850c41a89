package api

import (
	"net/http"
	"time"

	models "CropCast/internal/domain/models"
	"CropCast/internal/service/metrics"
	"CropCast/internal/service/ratelimit"
	"CropCast/internal/services/features"
	"CropCast/internal/usecase"
	xhttp "CropCast/pkg/http"
	applogger "CropCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SimulateHandler serves the what-if simulation endpoints: synchronous runs,
// queued async runs with pollable status, and the WebSocket progress stream.
type SimulateHandler struct {
	sim *usecase.SimulatorUseCase
	job *usecase.SimulationJob
	rl  *ratelimit.Limiter
	l   *applogger.Logger
}

func NewSimulateHandler(sim *usecase.SimulatorUseCase, job *usecase.SimulationJob, lgr *applogger.Logger) *SimulateHandler {
	metrics.Register()
	return &SimulateHandler{
		sim: sim,
		job: job,
		rl:  ratelimit.New(),
		l:   lgr,
	}
}

func (h *SimulateHandler) Register(g *echo.Group) {
	g.POST("/simulate", h.Simulate)
	g.POST("/simulate/async", h.SimulateAsync)
	g.GET("/simulate/runs/:id", h.RunStatus)
	g.GET("/simulate/ws", h.Stream)
}

// readSimulateRequest binds and validates the body, then checks the override
// keys against the adjustable set so the caller sees every bad key at once.
func (h *SimulateHandler) readSimulateRequest(c echo.Context) (*models.SimulateRequest, error) {
	req := &models.SimulateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return nil, xhttp.BadRequestResponse(c, verr)
	}
	if bad := features.InvalidOverrideKeys(req.Overrides); len(bad) > 0 {
		appErr := xhttp.BadRequestErrorf("features not adjustable: %v", bad).
			WithParam("invalid", bad).
			WithParam("adjustable", features.Adjustable())
		return nil, xhttp.AppErrorResponse(c, appErr)
	}
	return req, nil
}

// Simulate runs a simulation in the request and returns the full comparison.
// A simulation costs two inference calls per 7-day cycle, so this endpoint is
// rate limited; long horizons belong on the async path.
func (h *SimulateHandler) Simulate(c echo.Context) error {
	start := time.Now()
	endpoint := "simulate"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req, err := h.readSimulateRequest(c)
	if req == nil {
		return err
	}
	if !h.rl.Allow(c.RealIP()+":simulate", 3, 0.5) {
		h.l.Warn("simulate rate_limited", applogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many simulations", http.StatusTooManyRequests))
	}

	res, err := h.sim.Simulate(c.Request().Context(), usecase.SimulateParams{
		Commodity:   req.Commodity,
		HorizonDays: req.HorizonDays,
		Overrides:   req.Overrides,
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("simulation failed",
			applogger.String("commodity", req.Commodity),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, models.NewSimulationResponse(res))
}

// SimulateAsync queues the run and answers immediately with its id.
func (h *SimulateHandler) SimulateAsync(c echo.Context) error {
	start := time.Now()
	endpoint := "simulate_async"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req, err := h.readSimulateRequest(c)
	if req == nil {
		return err
	}
	if !h.rl.Allow(c.RealIP()+":simulate_async", 5, 1) {
		h.l.Warn("simulate async rate_limited", applogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many simulations", http.StatusTooManyRequests))
	}

	id, err := h.job.Submit(c.Request().Context(), usecase.SimulateParams{
		Commodity:   req.Commodity,
		HorizonDays: req.HorizonDays,
		Overrides:   req.Overrides,
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("simulation enqueue failed",
			applogger.String("commodity", req.Commodity),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, echo.Map{"run_id": id, "status": usecase.RunStatusPending})
}

// RunStatus reports a queued run: pending/running/done/failed, with the full
// result once done.
func (h *SimulateHandler) RunStatus(c echo.Context) error {
	start := time.Now()
	endpoint := "simulate_status"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.RunStatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	st, err := h.job.RunStatus(req.RunID)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("run status lookup failed", applogger.String("run_id", req.RunID), applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if st == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("run %s not found", req.RunID))
	}
	return xhttp.SuccessResponse(c, st)
}
