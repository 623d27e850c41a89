package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	models "CropCast/internal/domain/models"
	"CropCast/internal/service/metrics"
	"CropCast/internal/services/features"
	"CropCast/internal/usecase"
	xhttp "CropCast/pkg/http"
	applogger "CropCast/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsRequestWait  = 30 * time.Second
)

// Stream upgrades to a WebSocket, reads one simulate request off the socket,
// then streams per-cycle progress frames while the run advances and closes
// with a result or error frame. A client that disconnects mid-run cancels
// the simulation at the next cycle boundary.
func (h *SimulateHandler) Stream(c echo.Context) error {
	start := time.Now()
	endpoint := "simulate_ws"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":simulate_ws", 2, 0.2) {
		h.l.Warn("simulate ws rate_limited", applogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many simulations", http.StatusTooManyRequests))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return nil
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsRequestWait))

	var req models.SimulateRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeFrame(conn, &models.SimStreamFrame{Type: "error", Error: "bad request: " + err.Error()})
		return nil
	}
	if req.Commodity == "" {
		h.writeFrame(conn, &models.SimStreamFrame{Type: "error", Error: "commodity required"})
		return nil
	}
	if bad := features.InvalidOverrideKeys(req.Overrides); len(bad) > 0 {
		h.writeFrame(conn, &models.SimStreamFrame{
			Type:  "error",
			Error: fmt.Sprintf("features not adjustable: %v (adjustable: %v)", bad, features.Adjustable()),
		})
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Watch the socket so a vanished client stops the run instead of
	// burning inference calls into the void.
	_ = conn.SetReadDeadline(time.Time{})
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	res, err := h.sim.Simulate(ctx, usecase.SimulateParams{
		Commodity:   req.Commodity,
		HorizonDays: req.HorizonDays,
		Overrides:   req.Overrides,
		Progress: func(cycle, total int) {
			if werr := h.writeFrame(conn, &models.SimStreamFrame{Type: "progress", Cycle: cycle, Total: total}); werr != nil {
				cancel()
			}
		},
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("ws simulation failed",
			applogger.String("commodity", req.Commodity),
			applogger.Error(err))
		h.writeFrame(conn, &models.SimStreamFrame{Type: "error", Error: err.Error()})
		return nil
	}

	if werr := h.writeFrame(conn, &models.SimStreamFrame{Type: "result", Result: models.NewSimulationResponse(res)}); werr != nil {
		h.l.Warn("ws result write failed", applogger.Error(werr))
		return nil
	}
	deadline := time.Now().Add(wsWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return nil
}

func (h *SimulateHandler) writeFrame(conn *websocket.Conn, f *models.SimStreamFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(f)
}
