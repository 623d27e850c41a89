package api

import (
	"errors"
	"net/http"
	"time"

	models "CropCast/internal/domain/models"
	drepo "CropCast/internal/domain/repository"
	"CropCast/internal/service/metrics"
	"CropCast/internal/service/ratelimit"
	"CropCast/internal/usecase"
	pkgcache "CropCast/pkg/cache"
	xhttp "CropCast/pkg/http"
	applogger "CropCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ForecastHandler serves the stored daily forecasts and the metric history
// behind them.
type ForecastHandler struct {
	predictor *usecase.PredictorUseCase
	store     drepo.MetricStore
	runs      drepo.ForecastStore
	cache     pkgcache.Service
	cacheTTL  time.Duration
	rl        *ratelimit.Limiter
	l         *applogger.Logger
}

func NewForecastHandler(
	predictor *usecase.PredictorUseCase,
	store drepo.MetricStore,
	runs drepo.ForecastStore,
	lgr *applogger.Logger,
) *ForecastHandler {
	metrics.Register()
	return &ForecastHandler{
		predictor: predictor,
		store:     store,
		runs:      runs,
		cacheTTL:  time.Minute,
		rl:        ratelimit.New(),
		l:         lgr,
	}
}

// SetResponseCache turns on latest-forecast response caching. Entries are
// dropped whenever a new run is triggered through this handler.
func (h *ForecastHandler) SetResponseCache(c pkgcache.Service, ttl time.Duration) {
	h.cache = c
	if ttl > 0 {
		h.cacheTTL = ttl
	}
}

func (h *ForecastHandler) Register(g *echo.Group) {
	g.GET("/forecast/:commodity", h.Latest)
	g.POST("/forecast/:commodity/run", h.Run)
	g.GET("/forecast/:commodity/runs", h.RunHistory)
	g.GET("/metrics-history/:commodity", h.History)
}

func latestForecastKey(commodity string) string { return "forecast:latest:" + commodity }

// Latest returns the most recent stored daily forecast, producing one on the
// fly when the store is empty.
func (h *ForecastHandler) Latest(c echo.Context) error {
	start := time.Now()
	endpoint := "forecast_latest"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.RunForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	key := latestForecastKey(req.Commodity)
	if h.cache != nil {
		var cached models.ForecastResponse
		err := h.cache.Get(ctx, key, &cached)
		if err == nil {
			metrics.CacheHits.WithLabelValues(endpoint).Inc()
			h.l.Debug("forecast cache_hit", applogger.String("key", key))
			return xhttp.SuccessResponse(c, &cached)
		}
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			h.l.Warn("forecast cache_get_error", applogger.Error(err))
		}
	}

	run, err := h.predictor.Latest(ctx, req.Commodity)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("latest forecast failed",
			applogger.String("commodity", req.Commodity),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	resp := models.NewForecastResponse(run)
	if h.cache != nil {
		if err := h.cache.Set(ctx, key, resp, h.cacheTTL); err != nil {
			h.l.Warn("forecast cache_set_error", applogger.Error(err))
		}
	}
	return xhttp.SuccessResponse(c, resp)
}

// Run triggers a fresh short-horizon forecast, persists and publishes it.
func (h *ForecastHandler) Run(c echo.Context) error {
	start := time.Now()
	endpoint := "forecast_run"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.RunForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":run", 5, 1) {
		h.l.Warn("forecast run rate_limited", applogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many forecast runs", http.StatusTooManyRequests))
	}

	ctx := c.Request().Context()
	run, err := h.predictor.Run(ctx, usecase.RunForecastParams{Commodity: req.Commodity})
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("forecast run failed",
			applogger.String("commodity", req.Commodity),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if h.cache != nil {
		if err := h.cache.Delete(ctx, latestForecastKey(req.Commodity)); err != nil {
			h.l.Warn("forecast cache_delete_error", applogger.Error(err))
		}
	}
	return xhttp.CreatedResponse(c, models.NewForecastResponse(run))
}

// RunHistory lists stored forecast runs for a commodity, newest first.
func (h *ForecastHandler) RunHistory(c echo.Context) error {
	start := time.Now()
	endpoint := "forecast_runs"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ForecastRunsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, verr := parseRange(req.From, req.To)
	if verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}

	runs, err := h.runs.Runs(c.Request().Context(), req.Commodity, from, to, req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("run history failed",
			applogger.String("commodity", req.Commodity),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	rows := make([]*models.ForecastResponse, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, models.NewForecastResponse(r))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// History serves stored daily metric rows in ascending date order.
func (h *ForecastHandler) History(c echo.Context) error {
	start := time.Now()
	endpoint := "metrics_history"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.MetricsHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, verr := parseRange(req.From, req.To)
	if verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}

	metricRows, err := h.store.History(c.Request().Context(), req.Commodity, from, to, req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("metrics history failed",
			applogger.String("commodity", req.Commodity),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	rows := make([]models.MetricDayResponse, 0, len(metricRows))
	for _, m := range metricRows {
		rows = append(rows, models.NewMetricDayResponse(m))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// parseRange resolves optional from/to query values into a whole-day range.
// Empty to means today, empty from means one year before to.
func parseRange(fromStr, toStr string) (from, to time.Time, verr *xhttp.AppError) {
	to = time.Now().UTC()
	if toStr != "" {
		v, ok := xhttp.ParseTime(toStr)
		if !ok {
			return from, to, xhttp.BadRequestErrorf("bad to date: %q, want YYYY-MM-DD", toStr)
		}
		to = v
	}
	from = to.AddDate(-1, 0, 0)
	if fromStr != "" {
		v, ok := xhttp.ParseTime(fromStr)
		if !ok {
			return from, to, xhttp.BadRequestErrorf("bad from date: %q, want YYYY-MM-DD", fromStr)
		}
		from = v
	}
	from, to = xhttp.AlignDays(from, to)
	if from.After(to) {
		return from, to, xhttp.BadRequestError("from is after to")
	}
	return from, to, nil
}
