package api

import (
	"context"
	"net/http"
	"time"

	xhttp "CropCast/pkg/http"

	"github.com/labstack/echo/v4"
)

// HealthCheck names one dependency probe run by the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Router registers the public API surface under /api/v1 plus /health.
type Router struct {
	forecast *ForecastHandler
	simulate *SimulateHandler
	checks   []HealthCheck
}

func NewRouter(forecast *ForecastHandler, simulate *SimulateHandler, checks ...HealthCheck) *Router {
	return &Router{forecast: forecast, simulate: simulate, checks: checks}
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", r.Health)
	g := e.Group("/api/v1")
	r.forecast.Register(g)
	r.simulate.Register(g)
}

// Health reports liveness plus the state of each registered dependency.
func (r *Router) Health(c echo.Context) error {
	type report struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}
	rep := report{Status: "ok"}
	if len(r.checks) > 0 {
		rep.Checks = make(map[string]string, len(r.checks))
	}
	status := http.StatusOK
	for _, hc := range r.checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		err := hc.Check(ctx)
		cancel()
		if err != nil {
			rep.Checks[hc.Name] = err.Error()
			rep.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[hc.Name] = "ok"
	}
	return xhttp.DataResponse(c, status, rep)
}
