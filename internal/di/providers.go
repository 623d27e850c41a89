package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"CropCast/internal/domain/repository"
	domsvc "CropCast/internal/domain/service"
	"CropCast/internal/handler/api"
	mid "CropCast/internal/middleware"
	internalrepo "CropCast/internal/repository"
	cachesvc "CropCast/internal/service/cache"
	"CropCast/internal/services/features"
	"CropCast/internal/services/forecast"
	"CropCast/internal/services/inference"
	"CropCast/internal/services/marketdata"
	"CropCast/internal/services/normalize"
	"CropCast/internal/services/scheduler"
	"CropCast/internal/services/window"
	"CropCast/internal/usecase"
	pkgcache "CropCast/pkg/cache"
	pkgch "CropCast/pkg/clickhouse"
	"CropCast/pkg/config"
	xhttp "CropCast/pkg/http"
	pkgkafka "CropCast/pkg/kafka"
	applogger "CropCast/pkg/logger"
	"CropCast/pkg/metrics"
	pkgqueue "CropCast/pkg/queue"
	"CropCast/pkg/server"
)

// ProvideLogger creates the application logger. Production gets JSON at info
// level, everything else a console logger at debug.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "debug", Format: "console", Output: "stdout"}
	if cfg.Environment == "production" {
		lc.Level = "info"
		lc.Format = "json"
	}
	return applogger.New(lc)
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS cropcast",
		`CREATE TABLE IF NOT EXISTS cropcast.daily_metrics (
			date Date,
			commodity String,
			close Float64,
			open Float64,
			high Float64,
			low Float64,
			volume Float64,
			ema Float64,
			pdsi Float64,
			spi30d Float64,
			spi90d Float64,
			yield_10y Float64,
			usd_index Float64,
			lambda_price Float64,
			lambda_news Float64,
			news_count Float64,
			news_pca Array(Float64),
			ingested_at DateTime
		) ENGINE = ReplacingMergeTree(ingested_at)
		ORDER BY (commodity, date)`,
		`CREATE TABLE IF NOT EXISTS cropcast.tft_predictions (
			run_id String,
			commodity String,
			kind String,
			base_date Date,
			target_date Date,
			price_pred Float64,
			conf_lower Float64,
			conf_upper Float64,
			top1_factor String,
			top1_impact Float64,
			top2_factor String,
			top2_impact Float64,
			top3_factor String,
			top3_impact Float64,
			top4_factor String,
			top4_impact Float64,
			top5_factor String,
			top5_impact Float64,
			created_at DateTime
		) ENGINE = MergeTree
		ORDER BY (commodity, kind, created_at, target_date)`,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRedisCache creates the Redis cache backing the HTTP response layer.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}

	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideRedisClient exposes the cache's underlying client so the queue and
// the window cache share its connection pool.
func ProvideRedisClient(rc *pkgcache.RedisCache) *redis.Client {
	return rc.Client()
}

// ProvideResponseCache layers an in-process cache over Redis for hot reads.
func ProvideResponseCache(rc *pkgcache.RedisCache) pkgcache.Service {
	return pkgcache.NewLayeredCache(rc)
}

// ProvideBytesCache adapts the shared Redis client to the byte cache used for
// feature windows and simulation run statuses.
func ProvideBytesCache(client *redis.Client) cachesvc.BytesCache {
	return cachesvc.NewRedisCacheFromClient(client)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are
// configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideKafkaConsumer creates the metrics intake consumer, or nil when Kafka
// intake is not configured. Handler failures are counted and logged through a
// consumer hook.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		return nil, nil
	}

	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, _ kafka.Message, _ []byte, err error) {
			m.RecordError("kafka_consume")
			l.Warn("kafka message failed",
				applogger.String("topic", topic),
				applogger.Error(err),
			)
		},
	})

	return consumer, nil
}

// ProvideMetricStore creates the ClickHouse daily metric store.
func ProvideMetricStore(ch *pkgch.Client, l *applogger.Logger) repository.MetricStore {
	return internalrepo.NewCHMetricStore(ch, l)
}

// ProvideForecastStore creates the ClickHouse prediction store.
func ProvideForecastStore(ch *pkgch.Client, l *applogger.Logger) repository.ForecastStore {
	return internalrepo.NewCHForecastStore(ch, l)
}

// ProvideRunPublisher publishes completed forecast runs to Kafka. Without a
// producer or topic the predictor skips publishing.
func ProvideRunPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.Publisher {
	if producer == nil || cfg.Kafka.ForecastTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaRunPublisher(producer, cfg.Kafka.ForecastTopic)
}

// ProvideMarketDataSources builds the pull sources in fallback order: live
// feeds first, the synthetic generator last so forecasts keep flowing when
// upstream data is unreachable.
func ProvideMarketDataSources(cfg *config.Config, l *applogger.Logger) []repository.MarketDataSource {
	if cfg.MarketData.Dummy {
		return []repository.MarketDataSource{marketdata.NewDummySource()}
	}

	yahoo := marketdata.NewYahooSource(l, marketdata.WithTickers(cfg.MarketData.Tickers))
	fred := marketdata.NewFREDClient(cfg.MarketData.FREDAPIKey, l)
	live := marketdata.NewCompositeSource(yahoo, fred, l)
	return []repository.MarketDataSource{live, marketdata.NewDummySource()}
}

// ProvideResolver loads channel normalization statistics from the model
// artifact directory.
func ProvideResolver(cfg *config.Config, l *applogger.Logger) *normalize.Resolver {
	return normalize.NewResolver(cfg.Forecast.ArtifactPath, l,
		normalize.WithTarget(features.FeatClose),
		normalize.WithKnownChannels(features.Known()),
		normalize.WithFallbackOrder(features.Unknown()))
}

// ProvideFeatureBuilder creates the encoder/decoder tensor builder.
func ProvideFeatureBuilder(resolver *normalize.Resolver, l *applogger.Logger) *features.Builder {
	return features.NewBuilder(resolver, l)
}

// ProvideInferenceRunner selects the model backend by configured mode.
func ProvideInferenceRunner(cfg *config.Config, l *applogger.Logger) inference.Runner {
	if cfg.Inference.Mode == "http" {
		return inference.NewHTTPRunner(cfg, l)
	}
	return inference.NewStubRunner()
}

// ProvideForecaster assembles the end-to-end forecast engine.
func ProvideForecaster(builder *features.Builder, runner inference.Runner, l *applogger.Logger) domsvc.Forecaster {
	return forecast.NewEngine(builder, runner, l)
}

// ProvideWindowLoader serves model-ready history windows, cached in Redis and
// backfilled from the pull sources when storage runs short.
func ProvideWindowLoader(
	cfg *config.Config,
	store repository.MetricStore,
	bytes cachesvc.BytesCache,
	sources []repository.MarketDataSource,
	l *applogger.Logger,
) domsvc.WindowProvider {
	return window.NewLoader(store, l,
		window.WithCache(bytes),
		window.WithCacheTTL(cfg.Forecast.WindowCacheTTL),
		window.WithEMASpan(cfg.Forecast.EMASpan),
		window.WithSources(sources...),
	)
}

// ProvideCollector pulls and persists daily metric rows.
func ProvideCollector(
	sources []repository.MarketDataSource,
	store repository.MetricStore,
	bytes cachesvc.BytesCache,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.CollectorUseCase {
	return usecase.NewCollectorUseCase(sources, store, m, l,
		usecase.WithCollectorInvalidator(windowInvalidator(bytes, l)),
	)
}

// ProvidePredictor creates the forecast use case.
func ProvidePredictor(
	cfg *config.Config,
	windows domsvc.WindowProvider,
	forecaster domsvc.Forecaster,
	store repository.ForecastStore,
	pub repository.Publisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.PredictorUseCase {
	return usecase.NewPredictorUseCase(windows, forecaster, store, pub, m, l,
		usecase.WithPredictorStrictWindow(cfg.Forecast.StrictWindow),
	)
}

// ProvideSimulator creates the what-if simulation use case.
func ProvideSimulator(
	cfg *config.Config,
	windows domsvc.WindowProvider,
	forecaster domsvc.Forecaster,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SimulatorUseCase {
	return usecase.NewSimulatorUseCase(windows, forecaster, m, l,
		usecase.WithStrictWindow(cfg.Forecast.StrictWindow),
		usecase.WithSimulatorHorizon(cfg.Forecast.MaxHorizon),
	)
}

// ProvideRedisQueue creates the background job queue.
func ProvideRedisQueue(cfg *config.Config, client *redis.Client, l *applogger.Logger) *pkgqueue.RedisQueue {
	qc := &pkgqueue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	return pkgqueue.NewRedisQueue(l, qc, client, pkgqueue.ModeProducerConsumer)
}

// ProvideSimulationJob runs queued simulations and tracks their statuses.
func ProvideSimulationJob(
	cfg *config.Config,
	sim *usecase.SimulatorUseCase,
	q *pkgqueue.RedisQueue,
	bytes cachesvc.BytesCache,
	l *applogger.Logger,
) *usecase.SimulationJob {
	return usecase.NewSimulationJob(sim, q, bytes, cfg.Queue.ResultTTL, l)
}

// ProvideForecastJob bundles collect-then-forecast for every commodity.
func ProvideForecastJob(
	cfg *config.Config,
	collector *usecase.CollectorUseCase,
	predictor *usecase.PredictorUseCase,
	l *applogger.Logger,
) *usecase.ForecastJob {
	return usecase.NewForecastJob(cfg.Forecast.Commodities, collector, predictor, l)
}

// ProvideScheduler registers the daily forecast cycle when enabled.
func ProvideScheduler(cfg *config.Config, job *usecase.ForecastJob, l *applogger.Logger) (*scheduler.Scheduler, error) {
	s := scheduler.New(l)
	if cfg.Scheduler.Enabled {
		if err := s.Register(job.Job(cfg.Scheduler.Cron)); err != nil {
			return nil, fmt.Errorf("register forecast job: %w", err)
		}
	}
	return s, nil
}

// ProvideForecastHandler creates the forecast API handler with its response
// cache attached.
func ProvideForecastHandler(
	cfg *config.Config,
	predictor *usecase.PredictorUseCase,
	store repository.MetricStore,
	runs repository.ForecastStore,
	respCache pkgcache.Service,
	l *applogger.Logger,
) *api.ForecastHandler {
	h := api.NewForecastHandler(predictor, store, runs, l)
	h.SetResponseCache(respCache, cfg.Forecast.ResponseCacheTTL)
	return h
}

// ProvideSimulateHandler creates the simulation API handler.
func ProvideSimulateHandler(sim *usecase.SimulatorUseCase, job *usecase.SimulationJob, l *applogger.Logger) *api.SimulateHandler {
	return api.NewSimulateHandler(sim, job, l)
}

// ProvideHTTPHandler wires the API router with dependency health probes.
func ProvideHTTPHandler(fh *api.ForecastHandler, sh *api.SimulateHandler, ch *pkgch.Client, client *redis.Client) xhttp.Handler {
	return api.NewRouter(fh, sh,
		api.HealthCheck{Name: "clickhouse", Check: ch.Health},
		api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return client.Ping(ctx).Err() }},
	)
}

// ProvideIngestPipeline batches incoming metric rows into storage and drops
// cached windows for commodities that received rows.
func ProvideIngestPipeline(
	cfg *config.Config,
	store repository.MetricStore,
	bytes cachesvc.BytesCache,
	m repository.Metrics,
	l *applogger.Logger,
) *mid.IngestPipeline {
	return mid.NewIngestPipeline(store, m,
		mid.WithBatchSize(cfg.Ingest.BatchSize),
		mid.WithFlushInterval(cfg.Ingest.FlushInterval),
		mid.WithQueueSize(cfg.Ingest.QueueSize),
		mid.WithInvalidator(windowInvalidator(bytes, l)),
	)
}

// ProvideIngestHandler consumes metric rows from the intake topic.
func ProvideIngestHandler(cfg *config.Config, pipe *mid.IngestPipeline, m repository.Metrics) pkgkafka.MessageHandler {
	return usecase.NewMetricsIngestHandler(cfg.Kafka.Topic, pipe, m)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	pipeline *mid.IngestPipeline,
	consumer *pkgkafka.Consumer,
	ingest pkgkafka.MessageHandler,
	q *pkgqueue.RedisQueue,
	simJob *usecase.SimulationJob,
	sched *scheduler.Scheduler,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	client *redis.Client,
) *server.App {
	return server.New(cfg, l, handler, pipeline, consumer, ingest, q, simJob, sched, ch, producer, client)
}

// windowInvalidator drops a commodity's cached feature windows after its
// stored rows change.
func windowInvalidator(bytes cachesvc.BytesCache, l *applogger.Logger) func(string) {
	return func(commodity string) {
		if err := bytes.DeleteByPrefix(window.CacheKeyPrefix(commodity)); err != nil {
			l.Warn("window cache invalidation failed",
				applogger.String("commodity", commodity),
				applogger.Error(err),
			)
		}
	}
}
