//go:build wireinject
// +build wireinject

package di

import (
	"CropCast/pkg/config"
	"CropCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideRedisClient,
		ProvideResponseCache,
		ProvideBytesCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Storage and publishing
		ProvideMetricStore,
		ProvideForecastStore,
		ProvideRunPublisher,

		// Market data and forecasting pipeline
		ProvideMarketDataSources,
		ProvideResolver,
		ProvideFeatureBuilder,
		ProvideInferenceRunner,
		ProvideForecaster,
		ProvideWindowLoader,

		// Ingest
		ProvideIngestPipeline,
		ProvideIngestHandler,

		// Use cases
		ProvideCollector,
		ProvidePredictor,
		ProvideSimulator,
		ProvideRedisQueue,
		ProvideSimulationJob,
		ProvideForecastJob,
		ProvideScheduler,

		// HTTP surface
		ProvideForecastHandler,
		ProvideSimulateHandler,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
