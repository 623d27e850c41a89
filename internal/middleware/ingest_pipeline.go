package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CropCast/internal/domain/models"
	domrepo "CropCast/internal/domain/repository"
)

// Sink is the minimal storage interface the pipeline needs.
type Sink interface {
	StoreBatch(ctx context.Context, rows []*models.DailyMetric) error
}

// IngestPipeline sits between the metric consumers and storage. It validates
// rows, buffers them, and flushes in batches on size or interval, retrying a
// failed flush once with backoff before dropping the batch.
type IngestPipeline struct {
	sink       Sink
	metrics    domrepo.Metrics
	invalidate func(commodity string)
	batchSize  int
	interval   time.Duration
	queueSize  int
	inCh       chan *models.DailyMetric
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	mu         sync.Mutex
}

type IngestOption func(*IngestPipeline)

// WithBatchSize sets how many rows trigger an immediate flush.
func WithBatchSize(n int) IngestOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets the maximum time a row waits before flushing.
func WithFlushInterval(d time.Duration) IngestOption {
	return func(p *IngestPipeline) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithQueueSize sets the intake buffer size.
func WithQueueSize(n int) IngestOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithInvalidator installs a callback run once per commodity after its rows
// are flushed, used to drop cached windows that just went stale.
func WithInvalidator(fn func(commodity string)) IngestOption {
	return func(p *IngestPipeline) {
		p.invalidate = fn
	}
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(sink Sink, metrics domrepo.Metrics, opts ...IngestOption) *IngestPipeline {
	p := &IngestPipeline{
		sink:      sink,
		metrics:   metrics,
		batchSize: 200,
		interval:  2 * time.Second,
		queueSize: 1000,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.inCh = make(chan *models.DailyMetric, p.queueSize)
	return p
}

// Start launches the background flusher.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop flushes what is buffered and stops the flusher.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Process validates and enqueues one row. The queue never blocks: a full
// queue is an error the caller sees, so the consumer can retry or dead-letter.
func (p *IngestPipeline) Process(_ context.Context, m *models.DailyMetric) error {
	if err := validateMetric(m); err != nil {
		p.metrics.RecordError("ingest_validate")
		return err
	}
	select {
	case p.inCh <- m:
		return nil
	default:
		p.metrics.RecordError("ingest_queue_full")
		return fmt.Errorf("ingest queue full (%d)", p.queueSize)
	}
}

func (p *IngestPipeline) run(ctx context.Context) {
	defer close(p.doneCh)

	batch := make([]*models.DailyMetric, 0, p.batchSize)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			// drain whatever arrived before the stop
			for {
				select {
				case m := <-p.inCh:
					if m != nil {
						batch = append(batch, m)
					}
				default:
					p.flush(ctx, batch)
					return
				}
			}
		case m := <-p.inCh:
			if m == nil {
				continue
			}
			batch = append(batch, m)
			if len(batch) >= p.batchSize {
				batch = p.flushAndReset(ctx, batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				batch = p.flushAndReset(ctx, batch)
			}
		}
	}
}

func (p *IngestPipeline) flushAndReset(ctx context.Context, batch []*models.DailyMetric) []*models.DailyMetric {
	p.flush(ctx, batch)
	return batch[:0]
}

func (p *IngestPipeline) flush(ctx context.Context, batch []*models.DailyMetric) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	err := p.sink.StoreBatch(ctx, batch)
	if err != nil {
		p.metrics.RecordError("ingest_flush")
		time.Sleep(250 * time.Millisecond)
		err = p.sink.StoreBatch(ctx, batch)
	}
	if err != nil {
		p.metrics.RecordError("ingest_drop")
		return
	}
	p.metrics.RecordLatency("ingest_flush", time.Since(start).Seconds())

	perCommodity := make(map[string]int)
	for _, m := range batch {
		perCommodity[m.Commodity]++
		p.metrics.RecordLastPrice(m.Commodity, m.Close)
	}
	for commodity, n := range perCommodity {
		p.metrics.RecordIngest(commodity, n)
		if p.invalidate != nil {
			p.invalidate(commodity)
		}
	}
}

func validateMetric(m *models.DailyMetric) error {
	if m == nil {
		return fmt.Errorf("metric nil")
	}
	if m.Commodity == "" {
		return fmt.Errorf("commodity empty")
	}
	if m.Date.IsZero() {
		return fmt.Errorf("date missing")
	}
	if m.Close < 0 || m.Volume < 0 {
		return fmt.Errorf("negative close/volume")
	}
	return nil
}
