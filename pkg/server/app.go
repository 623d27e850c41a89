package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	mid "CropCast/internal/middleware"
	"CropCast/internal/services/scheduler"
	"CropCast/internal/usecase"
	pkgch "CropCast/pkg/clickhouse"
	"CropCast/pkg/config"
	xhttp "CropCast/pkg/http"
	pkgkafka "CropCast/pkg/kafka"
	applogger "CropCast/pkg/logger"
	pkgqueue "CropCast/pkg/queue"
)

// slowRequestThreshold marks API requests worth logging individually.
const slowRequestThreshold = 500 * time.Millisecond

// errorLogTopic receives deduplicated error log aggregates when Kafka is
// configured.
const errorLogTopic = "cropcast.error_logs"

// App owns the process lifecycle. Run starts the ingest pipeline, the Kafka
// consumer, the job queue, the scheduler, and the HTTP server, then blocks
// until SIGINT/SIGTERM and tears everything down in reverse.
type App struct {
	cfg      *config.Config
	l        *applogger.Logger
	handler  xhttp.Handler
	pipeline *mid.IngestPipeline
	consumer *pkgkafka.Consumer
	ingest   pkgkafka.MessageHandler
	queue    *pkgqueue.RedisQueue
	simJob   *usecase.SimulationJob
	sched    *scheduler.Scheduler
	ch       *pkgch.Client
	producer *pkgkafka.Producer
	redis    *redis.Client

	httpServer *xhttp.Server
}

// New creates the application. The consumer and producer may be nil when
// Kafka is not configured.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	pipeline *mid.IngestPipeline,
	consumer *pkgkafka.Consumer,
	ingest pkgkafka.MessageHandler,
	queue *pkgqueue.RedisQueue,
	simJob *usecase.SimulationJob,
	sched *scheduler.Scheduler,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	redisClient *redis.Client,
) *App {
	return &App{
		cfg:      cfg,
		l:        l,
		handler:  handler,
		pipeline: pipeline,
		consumer: consumer,
		ingest:   ingest,
		queue:    queue,
		simJob:   simJob,
		sched:    sched,
		ch:       ch,
		producer: producer,
		redis:    redisClient,
	}
}

// Run starts every component and blocks until a shutdown signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.producer != nil {
		a.l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          errorLogTopic,
			Publisher:      kafkaLogPublisher{a.producer},
		})
	}

	a.pipeline.Start(ctx)

	if a.consumer != nil && a.ingest != nil {
		a.consumer.RegisterHandler(a.ingest)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.ingest.Topic()))
	}

	a.queue.RegisterJob(a.simJob)
	if err := a.queue.Start(); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}
	a.queue.StartRetryProcessor()

	a.sched.Start()

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithRequestMetrics(a.l, slowRequestThreshold))
	}
	a.httpServer = xhttp.NewServer(a.handler, opts...)
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	a.l.Info("api listening",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Strings("commodities", a.cfg.Forecast.Commodities),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops intake first, then drains, then closes clients.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.sched.Stop()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.queue.Stop(shutdownCtx); err != nil {
		a.l.Warn("queue stop error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.pipeline.Stop()

	a.l.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if err := a.ch.Close(); err != nil {
		a.l.Warn("clickhouse close error", applogger.Error(err))
	}
	if err := a.redis.Close(); err != nil {
		a.l.Warn("redis close error", applogger.Error(err))
	}

	a.l.Info("shutdown complete")
	return nil
}

// kafkaLogPublisher ships aggregated error logs to an operations topic.
type kafkaLogPublisher struct {
	p *pkgkafka.Producer
}

func (k kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return k.p.Publish(ctx, topic, nil, payload)
}
