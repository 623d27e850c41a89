package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type memBytesCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemBytesCache() *memBytesCache {
	return &memBytesCache{m: make(map[string][]byte)}
}

func (c *memBytesCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *memBytesCache) SetBytes(key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	c.m[key] = cp
	return nil
}

func (c *memBytesCache) DeleteByPrefix(string) error { return nil }

type capturedMessage struct {
	msgType string
	payload interface{}
}

type fakeQueue struct {
	mu        sync.Mutex
	published []capturedMessage
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, capturedMessage{msgType: msgType, payload: payload})
	return nil
}

func newTestJob(t *testing.T, f *fakeForecaster) (*SimulationJob, *fakeQueue) {
	t.Helper()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sim := newTestSimulator(t, simHistory(60, base), f)
	q := &fakeQueue{}
	return NewSimulationJob(sim, q, newMemBytesCache(), time.Hour, testLogger(t)), q
}

func TestSubmitRecordsPendingAndEnqueues(t *testing.T) {
	job, q := newTestJob(t, &fakeForecaster{prices: rampPrices})

	id, err := job.Submit(context.Background(), SimulateParams{
		Commodity:   "corn",
		HorizonDays: 7,
		Overrides:   map[string]float64{"pdsi": 1.5},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id == "" {
		t.Fatal("submit returned empty run id")
	}

	st, err := job.RunStatus(id)
	if err != nil || st == nil {
		t.Fatalf("status after submit: %v %v", st, err)
	}
	if st.Status != RunStatusPending {
		t.Fatalf("status = %q, want pending", st.Status)
	}

	if len(q.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(q.published))
	}
	if q.published[0].msgType != SimulationJobType {
		t.Fatalf("message type = %q", q.published[0].msgType)
	}
	p, ok := q.published[0].payload.(SimulationJobPayload)
	if !ok {
		t.Fatalf("payload type %T", q.published[0].payload)
	}
	if p.RunID != id || p.Commodity != "corn" || p.HorizonDays != 7 {
		t.Fatalf("payload = %+v", p)
	}
}

func TestHandleCompletesRun(t *testing.T) {
	job, q := newTestJob(t, &fakeForecaster{prices: rampPrices})

	id, err := job.Submit(context.Background(), SimulateParams{
		Commodity:   "corn",
		HorizonDays: 7,
		Overrides:   map[string]float64{"pdsi": 1.5},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// The queue delivers payloads as generic maps after the JSON round trip.
	raw, _ := json.Marshal(q.published[0].payload)
	var generic map[string]interface{}
	_ = json.Unmarshal(raw, &generic)

	if err := job.Handle(context.Background(), generic); err != nil {
		t.Fatalf("handle: %v", err)
	}

	st, err := job.RunStatus(id)
	if err != nil || st == nil {
		t.Fatalf("status after handle: %v %v", st, err)
	}
	if st.Status != RunStatusDone {
		t.Fatalf("status = %q, want done", st.Status)
	}
	if st.Result == nil {
		t.Fatal("done status missing result")
	}
	if st.Result.RunID != id {
		t.Fatalf("result run id = %q, want %q", st.Result.RunID, id)
	}
	if len(st.Result.Results) != 7 {
		t.Fatalf("result has %d days, want 7", len(st.Result.Results))
	}
}

func TestHandleRecordsFailure(t *testing.T) {
	job, q := newTestJob(t, &fakeForecaster{prices: rampPrices, failAt: 1})

	id, err := job.Submit(context.Background(), SimulateParams{Commodity: "corn", HorizonDays: 7})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := job.Handle(context.Background(), q.published[0].payload); err == nil {
		t.Fatal("handle should surface the simulation error for retry")
	}

	st, _ := job.RunStatus(id)
	if st == nil || st.Status != RunStatusFailed {
		t.Fatalf("status = %+v, want failed", st)
	}
	if st.Error == "" {
		t.Fatal("failed status missing error text")
	}
}

func TestHandleRejectsBadBaseDate(t *testing.T) {
	job, _ := newTestJob(t, &fakeForecaster{prices: rampPrices})

	payload := SimulationJobPayload{RunID: "r1", Commodity: "corn", BaseDate: "notadate"}
	if err := job.Handle(context.Background(), payload); err != nil {
		t.Fatalf("poison payload should not requeue: %v", err)
	}

	st, _ := job.RunStatus("r1")
	if st == nil || st.Status != RunStatusFailed {
		t.Fatalf("status = %+v, want failed", st)
	}
}

func TestRunStatusUnknownID(t *testing.T) {
	job, _ := newTestJob(t, &fakeForecaster{prices: rampPrices})

	st, err := job.RunStatus("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != nil {
		t.Fatalf("status = %+v, want nil", st)
	}
}
