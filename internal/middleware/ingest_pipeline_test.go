package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CropCast/internal/domain/models"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]*models.DailyMetric
	calls   int
	failFor int
}

func (s *captureSink) StoreBatch(_ context.Context, rows []*models.DailyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFor {
		return errors.New("sink down")
	}
	cp := make([]*models.DailyMetric, len(rows))
	copy(cp, rows)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *captureSink) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *captureSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *captureSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, 0, len(s.batches))
	for _, b := range s.batches {
		sizes = append(sizes, len(b))
	}
	return sizes
}

type pipeMetrics struct {
	mu      sync.Mutex
	errs    map[string]int
	ingests map[string]int
}

func newPipeMetrics() *pipeMetrics {
	return &pipeMetrics{errs: make(map[string]int), ingests: make(map[string]int)}
}

func (m *pipeMetrics) RecordIngest(commodity string, rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingests[commodity] += rows
}

func (m *pipeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[kind]++
}

func (m *pipeMetrics) RecordLastPrice(string, float64) {}
func (m *pipeMetrics) RecordLatency(string, float64)   {}
func (m *pipeMetrics) RecordForecast(string, string)   {}

func (m *pipeMetrics) errCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[kind]
}

func (m *pipeMetrics) ingested(commodity string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ingests[commodity]
}

func ingestRow(commodity string, day int) *models.DailyMetric {
	return &models.DailyMetric{
		Commodity: commodity,
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Close:     450 + float64(day),
		Volume:    1000,
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", d)
}

func TestPipelineFlushOnBatchSize(t *testing.T) {
	sink := &captureSink{}
	p := NewIngestPipeline(sink, newPipeMetrics(), WithBatchSize(3), WithFlushInterval(time.Minute))
	p.Start(context.Background())
	defer p.Stop()

	for i := 0; i < 3; i++ {
		if err := p.Process(context.Background(), ingestRow("corn", i)); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	waitFor(t, 2*time.Second, func() bool { return sink.rowCount() == 3 })

	sizes := sink.batchSizes()
	if len(sizes) != 1 || sizes[0] != 3 {
		t.Fatalf("batch sizes = %v, want one batch of 3", sizes)
	}
}

func TestPipelineFlushOnInterval(t *testing.T) {
	sink := &captureSink{}
	p := NewIngestPipeline(sink, newPipeMetrics(), WithBatchSize(100), WithFlushInterval(20*time.Millisecond))
	p.Start(context.Background())
	defer p.Stop()

	if err := p.Process(context.Background(), ingestRow("corn", 0)); err != nil {
		t.Fatalf("process: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return sink.rowCount() == 1 })
}

func TestPipelineDrainsOnStop(t *testing.T) {
	sink := &captureSink{}
	met := newPipeMetrics()
	p := NewIngestPipeline(sink, met, WithBatchSize(100), WithFlushInterval(time.Minute))
	p.Start(context.Background())

	if err := p.Process(context.Background(), ingestRow("corn", 0)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(context.Background(), ingestRow("wheat", 1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	p.Stop()

	if got := sink.rowCount(); got != 2 {
		t.Fatalf("rows after stop = %d, want 2", got)
	}
	if met.ingested("corn") != 1 || met.ingested("wheat") != 1 {
		t.Fatalf("per-commodity counts = %d/%d, want 1/1", met.ingested("corn"), met.ingested("wheat"))
	}
}

func TestPipelineRejectsInvalidRows(t *testing.T) {
	sink := &captureSink{}
	met := newPipeMetrics()
	p := NewIngestPipeline(sink, met)

	cases := []struct {
		name string
		row  *models.DailyMetric
	}{
		{"nil", nil},
		{"no commodity", &models.DailyMetric{Date: time.Now(), Close: 1}},
		{"no date", &models.DailyMetric{Commodity: "corn", Close: 1}},
		{"negative close", &models.DailyMetric{Commodity: "corn", Date: time.Now(), Close: -1}},
		{"negative volume", &models.DailyMetric{Commodity: "corn", Date: time.Now(), Close: 1, Volume: -5}},
	}
	for _, tc := range cases {
		if err := p.Process(context.Background(), tc.row); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
	if got := met.errCount("ingest_validate"); got != len(cases) {
		t.Fatalf("validate errors = %d, want %d", got, len(cases))
	}
	if err := p.Process(context.Background(), ingestRow("corn", 0)); err != nil {
		t.Fatalf("valid row rejected: %v", err)
	}
}

func TestPipelineQueueFull(t *testing.T) {
	sink := &captureSink{}
	met := newPipeMetrics()
	p := NewIngestPipeline(sink, met, WithQueueSize(1))

	if err := p.Process(context.Background(), ingestRow("corn", 0)); err != nil {
		t.Fatalf("first row: %v", err)
	}
	if err := p.Process(context.Background(), ingestRow("corn", 1)); err == nil {
		t.Fatal("expected queue-full error")
	}
	if met.errCount("ingest_queue_full") != 1 {
		t.Fatalf("queue-full errors = %d, want 1", met.errCount("ingest_queue_full"))
	}
}

func TestPipelineRetryRecovers(t *testing.T) {
	sink := &captureSink{failFor: 1}
	met := newPipeMetrics()
	p := NewIngestPipeline(sink, met, WithBatchSize(2), WithFlushInterval(time.Minute))
	p.Start(context.Background())
	defer p.Stop()

	p.Process(context.Background(), ingestRow("corn", 0))
	p.Process(context.Background(), ingestRow("corn", 1))
	waitFor(t, 3*time.Second, func() bool { return sink.rowCount() == 2 })

	if sink.callCount() != 2 {
		t.Fatalf("sink calls = %d, want 2 (one failure, one retry)", sink.callCount())
	}
	if met.errCount("ingest_flush") != 1 || met.errCount("ingest_drop") != 0 {
		t.Fatalf("flush/drop errors = %d/%d, want 1/0", met.errCount("ingest_flush"), met.errCount("ingest_drop"))
	}
	if met.ingested("corn") != 2 {
		t.Fatalf("ingested = %d, want 2", met.ingested("corn"))
	}
}

func TestPipelineDropsAfterRetryFails(t *testing.T) {
	sink := &captureSink{failFor: 2}
	met := newPipeMetrics()
	p := NewIngestPipeline(sink, met, WithBatchSize(1), WithFlushInterval(time.Minute))
	p.Start(context.Background())
	defer p.Stop()

	p.Process(context.Background(), ingestRow("corn", 0))
	waitFor(t, 3*time.Second, func() bool { return met.errCount("ingest_drop") == 1 })

	if got := sink.rowCount(); got != 0 {
		t.Fatalf("rows stored = %d, want 0 after drop", got)
	}
	if sink.callCount() != 2 {
		t.Fatalf("sink calls = %d, want 2", sink.callCount())
	}
}
