//go:build wireinject
// +build wireinject

package di

import (
	"CypherFeed/pkg/config"
	"CypherFeed/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,

		// Repositories
		ProvideTickStorage,
		ProvideTickPublisher,
		ProvideCandleStore,
		ProvideExecutionPublisher,

		// Market data plumbing
		ProvideWSManager,
		ProvideStreams,
		ProvidePricebook,
		ProvideTickProcessor,
		ProvideCollectors,
		ProvideKafkaTicksHandler,

		// Analysis and trading
		ProvideWorkerPool,
		ProvideAggregator,
		ProvideNetworkEstimator,
		ProvideFeeEngine,
		ProvidePortfolioBook,
		ProvideBroker,
		ProvideTradingEngine,

		// Delivery
		ProvideHub,
		ProvideThrottler,
		ProvideCache,
		ProvideQueue,
		ProvideCandlesUseCase,
		ProvideAnalysisUseCase,
		ProvideHTTPHandler,

		ProvideApp,
	)
	return &server.App{}, nil
}
