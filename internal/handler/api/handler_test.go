package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"CropCast/internal/domain/models"
	"CropCast/internal/services/features"
	"CropCast/internal/usecase"
	pkgcache "CropCast/pkg/cache"
	"CropCast/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

// mkHistory builds an n-day history ending on end with every unknown channel
// populated.
func mkHistory(n int, end time.Time) *models.TimeSeries {
	ts := models.NewTimeSeries()
	ts.Dates = make([]time.Time, n)
	for _, name := range features.Order {
		if features.IsKnown(name) {
			continue
		}
		ts.Features[name] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		ts.Dates[i] = end.AddDate(0, 0, i-(n-1))
		closeV := 450.0 + 0.25*float64(i)
		ts.Features[features.FeatClose][i] = closeV
		ts.Features[features.FeatOpen][i] = closeV - 1
		ts.Features[features.FeatHigh][i] = closeV + 2
		ts.Features[features.FeatLow][i] = closeV - 2
		ts.Features[features.FeatVolume][i] = 1000
		ts.Features[features.FeatEMA][i] = closeV - 0.2
	}
	return ts
}

type stubWindows struct {
	ts  *models.TimeSeries
	err error
}

func (s *stubWindows) Window(context.Context, string, time.Time, int) (*models.TimeSeries, error) {
	return s.ts, s.err
}

// stubForecaster returns a fixed price with float noise so tests can assert
// response rounding.
type stubForecaster struct {
	mu    sync.Mutex
	calls int
	boost float64 // added when overrides are present
	err   error
}

func (s *stubForecaster) Forecast(_ context.Context, _ string, history *models.TimeSeries, overrides map[string]float64) ([]models.ForecastStep, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	anchor := history.LastDate()
	last, _ := history.Last(features.FeatClose)
	steps := make([]models.ForecastStep, features.DecoderLength)
	for i := range steps {
		p := last + 0.333333*float64(i+1)
		if len(overrides) > 0 {
			p += s.boost
		}
		steps[i] = models.ForecastStep{
			TargetDate: anchor.AddDate(0, 0, i+1),
			Price:      p,
			Lower:      p - 2.345678,
			Upper:      p + 2.345678,
		}
	}
	return steps, nil
}

func (s *stubForecaster) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubForecastStore struct {
	mu     sync.Mutex
	stored []*models.ForecastRun
	latest *models.ForecastRun
	runs   []*models.ForecastRun
	err    error
}

func (s *stubForecastStore) Init(context.Context) error { return nil }
func (s *stubForecastStore) Close() error               { return nil }

func (s *stubForecastStore) StoreRun(_ context.Context, run *models.ForecastRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, run)
	return s.err
}

func (s *stubForecastStore) LatestRun(context.Context, string, string) (*models.ForecastRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.err
}

func (s *stubForecastStore) Runs(context.Context, string, time.Time, time.Time, int) ([]*models.ForecastRun, error) {
	return s.runs, s.err
}

type stubMetricStore struct {
	rows []models.DailyMetric
	err  error
}

func (s *stubMetricStore) Init(context.Context) error                              { return nil }
func (s *stubMetricStore) Store(context.Context, *models.DailyMetric) error        { return nil }
func (s *stubMetricStore) StoreBatch(context.Context, []*models.DailyMetric) error { return nil }
func (s *stubMetricStore) Health(context.Context) error                            { return nil }
func (s *stubMetricStore) Close() error                                            { return nil }

func (s *stubMetricStore) Window(context.Context, string, time.Time, int) ([]models.DailyMetric, error) {
	return s.rows, s.err
}

func (s *stubMetricStore) History(context.Context, string, time.Time, time.Time, int) ([]models.DailyMetric, error) {
	return s.rows, s.err
}

func (s *stubMetricStore) LatestDate(context.Context, string) (time.Time, error) {
	if len(s.rows) == 0 {
		return time.Time{}, nil
	}
	return s.rows[len(s.rows)-1].Date, nil
}

type noMetrics struct{}

func (noMetrics) RecordIngest(string, int)        {}
func (noMetrics) RecordError(string)              {}
func (noMetrics) RecordLastPrice(string, float64) {}
func (noMetrics) RecordLatency(string, float64)   {}
func (noMetrics) RecordForecast(string, string)   {}

type apiEnv struct {
	echo       *echo.Echo
	forecaster *stubForecaster
	runs       *stubForecastStore
	metrics    *stubMetricStore
	cache      pkgcache.Service
	job        *usecase.SimulationJob
	queue      *captureQueue
}

type captureQueue struct {
	mu        sync.Mutex
	published []interface{}
}

func (q *captureQueue) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, payload)
	return nil
}

func (q *captureQueue) last() interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.published) == 0 {
		return nil
	}
	return q.published[len(q.published)-1]
}

type memStatusCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *memStatusCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *memStatusCache) SetBytes(key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	c.m[key] = cp
	return nil
}

func (c *memStatusCache) DeleteByPrefix(string) error { return nil }

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	l := testLogger(t)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	windows := &stubWindows{ts: mkHistory(60, end)}
	fc := &stubForecaster{boost: 2}
	runs := &stubForecastStore{}
	metricRows := &stubMetricStore{}

	predictor := usecase.NewPredictorUseCase(windows, fc, runs, nil, noMetrics{}, l)
	sim := usecase.NewSimulatorUseCase(windows, fc, noMetrics{}, l)
	q := &captureQueue{}
	job := usecase.NewSimulationJob(sim, q, &memStatusCache{m: make(map[string][]byte)}, time.Hour, l)

	fh := NewForecastHandler(predictor, metricRows, runs, l)
	cache := pkgcache.NewMemoryCache()
	fh.SetResponseCache(cache, time.Minute)
	sh := NewSimulateHandler(sim, job, l)

	e := echo.New()
	NewRouter(fh, sh).RegisterRoutes(e)

	return &apiEnv{echo: e, forecaster: fc, runs: runs, metrics: metricRows, cache: cache, job: job, queue: q}
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("bad envelope: %v\n%s", err, rec.Body.String())
	}
	return env
}

func TestSimulateEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	rec := doJSON(t, env.echo, http.MethodPost, "/api/v1/simulate",
		`{"commodity":"corn","horizon_days":7,"overrides":{"pdsi":1.5}}`)

	got := decodeEnvelope(t, rec)
	if got.Status != http.StatusOK {
		t.Fatalf("status = %d, body %s", got.Status, rec.Body.String())
	}
	var res models.SimulationResponse
	if err := json.Unmarshal(got.Data, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Results) != 7 {
		t.Fatalf("got %d days, want 7", len(res.Results))
	}
	if res.Summary.AvgDelta != 2 {
		t.Fatalf("avg delta = %v, want 2", res.Summary.AvgDelta)
	}
	for i, d := range res.Results {
		cents := d.BaselinePrice * 100
		if math.Abs(cents-math.Round(cents)) > 1e-6 {
			t.Fatalf("day %d baseline %v not rounded to cents", i, d.BaselinePrice)
		}
	}
}

func TestSimulateEnumeratesBadOverrides(t *testing.T) {
	env := newAPIEnv(t)

	rec := doJSON(t, env.echo, http.MethodPost, "/api/v1/simulate",
		`{"commodity":"corn","horizon_days":7,"overrides":{"soil_moisture":1,"pdsi":0.5}}`)

	got := decodeEnvelope(t, rec)
	if got.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", got.Status)
	}
	if !strings.Contains(rec.Body.String(), "soil_moisture") {
		t.Fatalf("response does not name the bad key: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "adjustable") {
		t.Fatalf("response should list the adjustable set: %s", rec.Body.String())
	}
	if env.forecaster.callCount() != 0 {
		t.Fatal("forecaster ran despite invalid overrides")
	}
}

func TestSimulateValidation(t *testing.T) {
	env := newAPIEnv(t)

	rec := doJSON(t, env.echo, http.MethodPost, "/api/v1/simulate",
		`{"commodity":"corn","horizon_days":400}`)

	got := decodeEnvelope(t, rec)
	if got.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for horizon 400", got.Status)
	}
}

func TestLatestForecastUsesCache(t *testing.T) {
	env := newAPIEnv(t)

	first := decodeEnvelope(t, doJSON(t, env.echo, http.MethodGet, "/api/v1/forecast/corn", ""))
	if first.Status != http.StatusOK {
		t.Fatalf("first status = %d", first.Status)
	}
	callsAfterFirst := env.forecaster.callCount()
	if callsAfterFirst == 0 {
		t.Fatal("first read should have produced a forecast")
	}

	second := decodeEnvelope(t, doJSON(t, env.echo, http.MethodGet, "/api/v1/forecast/corn", ""))
	if second.Status != http.StatusOK {
		t.Fatalf("second status = %d", second.Status)
	}
	if env.forecaster.callCount() != callsAfterFirst {
		t.Fatal("second read bypassed the response cache")
	}

	var res models.ForecastResponse
	if err := json.Unmarshal(second.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Steps) != features.DecoderLength {
		t.Fatalf("got %d steps, want %d", len(res.Steps), features.DecoderLength)
	}
}

func TestRunForecastInvalidatesCache(t *testing.T) {
	env := newAPIEnv(t)

	if rec := doJSON(t, env.echo, http.MethodGet, "/api/v1/forecast/corn", ""); rec.Code != http.StatusOK {
		t.Fatalf("warmup failed: %d", rec.Code)
	}

	rec := doJSON(t, env.echo, http.MethodPost, "/api/v1/forecast/corn/run", `{}`)
	got := decodeEnvelope(t, rec)
	if got.Status != http.StatusCreated {
		t.Fatalf("run status = %d, body %s", got.Status, rec.Body.String())
	}

	var cached models.ForecastResponse
	err := env.cache.Get(context.Background(), "forecast:latest:corn", &cached)
	if !errors.Is(err, pkgcache.ErrCacheMiss) {
		t.Fatalf("cache entry should be gone after run, got err=%v", err)
	}
	env.runs.mu.Lock()
	stored := len(env.runs.stored)
	env.runs.mu.Unlock()
	if stored == 0 {
		t.Fatal("run was not persisted")
	}
}

func TestMetricsHistoryEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	day := time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC)
	env.metrics.rows = []models.DailyMetric{
		{Date: day, Commodity: "corn", Close: 451.23456, Open: 450, High: 453, Low: 449, Volume: 42000},
		{Date: day.AddDate(0, 0, 1), Commodity: "corn", Close: 452.5, Open: 451, High: 454, Low: 450, Volume: 43000},
	}

	rec := doJSON(t, env.echo, http.MethodGet, "/api/v1/metrics-history/corn?limit=10", "")
	got := decodeEnvelope(t, rec)
	if got.Status != http.StatusOK {
		t.Fatalf("status = %d, body %s", got.Status, rec.Body.String())
	}
	var list struct {
		Rows  []models.MetricDayResponse `json:"rows"`
		Total int64                      `json:"total"`
	}
	if err := json.Unmarshal(got.Data, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 2 || len(list.Rows) != 2 {
		t.Fatalf("rows = %d total = %d, want 2/2", len(list.Rows), list.Total)
	}
	if list.Rows[0].Close != 451.23 {
		t.Fatalf("close = %v, want 451.23", list.Rows[0].Close)
	}
	if list.Rows[0].Date != "2026-03-30" {
		t.Fatalf("date = %q", list.Rows[0].Date)
	}
}

func TestMetricsHistoryBadDates(t *testing.T) {
	env := newAPIEnv(t)

	rec := doJSON(t, env.echo, http.MethodGet, "/api/v1/metrics-history/corn?from=notadate", "")
	got := decodeEnvelope(t, rec)
	if got.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", got.Status)
	}
}

func TestSimulateAsyncLifecycle(t *testing.T) {
	env := newAPIEnv(t)

	rec := doJSON(t, env.echo, http.MethodPost, "/api/v1/simulate/async",
		`{"commodity":"corn","horizon_days":7,"overrides":{"pdsi":1.0}}`)
	got := decodeEnvelope(t, rec)
	if got.Status != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", got.Status, rec.Body.String())
	}
	var submitted struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(got.Data, &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitted.RunID == "" || submitted.Status != usecase.RunStatusPending {
		t.Fatalf("submitted = %+v", submitted)
	}

	poll := decodeEnvelope(t, doJSON(t, env.echo, http.MethodGet, "/api/v1/simulate/runs/"+submitted.RunID, ""))
	if poll.Status != http.StatusOK {
		t.Fatalf("poll status = %d", poll.Status)
	}

	// Drain the queue by hand: the worker pool is not running in tests.
	if err := env.job.Handle(context.Background(), env.queue.last()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	done := decodeEnvelope(t, doJSON(t, env.echo, http.MethodGet, "/api/v1/simulate/runs/"+submitted.RunID, ""))
	var st models.SimulationRunStatus
	if err := json.Unmarshal(done.Data, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Status != usecase.RunStatusDone || st.Result == nil {
		t.Fatalf("status = %+v, want done with result", st)
	}
}

func TestRunStatusNotFound(t *testing.T) {
	env := newAPIEnv(t)

	rec := doJSON(t, env.echo, http.MethodGet, "/api/v1/simulate/runs/7f9c24e5-06c2-4b19-86b7-6081172ee5a1", "")
	got := decodeEnvelope(t, rec)
	if got.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", got.Status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	fhEnv := newAPIEnv(t)
	rec := doJSON(t, fhEnv.echo, http.MethodGet, "/health", "")
	got := decodeEnvelope(t, rec)
	if got.Status != http.StatusOK {
		t.Fatalf("status = %d", got.Status)
	}
	if !strings.Contains(string(got.Data), `"ok"`) {
		t.Fatalf("health body: %s", string(got.Data))
	}
}

func TestSimulateStream(t *testing.T) {
	env := newAPIEnv(t)
	srv := httptest.NewServer(env.echo)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/simulate/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := models.SimulateRequest{Commodity: "corn", HorizonDays: 14, Overrides: map[string]float64{"pdsi": 1}}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var progress int
	for {
		var frame models.SimStreamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read after %d progress frames: %v", progress, err)
		}
		switch frame.Type {
		case "progress":
			progress++
			if frame.Total != 2 {
				t.Fatalf("total = %d, want 2 cycles for a 14 day horizon", frame.Total)
			}
		case "result":
			if progress != 2 {
				t.Fatalf("got %d progress frames, want 2", progress)
			}
			if frame.Result == nil || len(frame.Result.Results) != 14 {
				t.Fatalf("result frame: %+v", frame)
			}
			return
		case "error":
			t.Fatalf("error frame: %s", frame.Error)
		default:
			t.Fatalf("unknown frame type %q", frame.Type)
		}
	}
}

func TestSimulateStreamRejectsBadOverride(t *testing.T) {
	env := newAPIEnv(t)
	srv := httptest.NewServer(env.echo)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/simulate/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := models.SimulateRequest{Commodity: "corn", Overrides: map[string]float64{"rainfall": 3}}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var frame models.SimStreamFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "error" || !strings.Contains(frame.Error, "rainfall") {
		t.Fatalf("frame = %+v, want error naming rainfall", frame)
	}
	if env.forecaster.callCount() != 0 {
		t.Fatal("forecaster ran despite invalid override")
	}
}
