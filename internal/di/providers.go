package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"CypherFeed/internal/aggregator"
	"CypherFeed/internal/analysis"
	"CypherFeed/internal/domain/repository"
	"CypherFeed/internal/fees"
	"CypherFeed/internal/handler/api"
	wshub "CypherFeed/internal/handler/ws"
	"CypherFeed/internal/jobs"
	mid "CypherFeed/internal/middleware"
	"CypherFeed/internal/portfolio"
	internalrepo "CypherFeed/internal/repository"
	icache "CypherFeed/internal/service/cache"
	"CypherFeed/internal/service/pricebook"
	"CypherFeed/internal/stream"
	"CypherFeed/internal/trading"
	"CypherFeed/internal/usecase"
	"CypherFeed/internal/workerpool"
	pkgcache "CypherFeed/pkg/cache"
	pkgch "CypherFeed/pkg/clickhouse"
	"CypherFeed/pkg/config"
	xhttp "CypherFeed/pkg/http"
	pkgkafka "CypherFeed/pkg/kafka"
	"CypherFeed/pkg/logger"
	"CypherFeed/pkg/metrics"
	"CypherFeed/pkg/queue"
	"CypherFeed/pkg/server"
	pkgws "CypherFeed/pkg/ws"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return logger.New(&logger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
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
		"CREATE DATABASE IF NOT EXISTS cypherfeed",
		`CREATE TABLE IF NOT EXISTS cypherfeed.rt_ticks_raw (
			ts DateTime64(3), symbol String, price Float64, volume Float64,
			source String, event_id String, seq UInt64
		) ENGINE=MergeTree ORDER BY (symbol, ts)`,
		`CREATE TABLE IF NOT EXISTS cypherfeed.rt_candles_1s (
			bucket DateTime, symbol String,
			open Float64, high Float64, low Float64, close Float64, vol Float64
		) ENGINE=ReplacingMergeTree ORDER BY (symbol, bucket)`,
		`CREATE TABLE IF NOT EXISTS cypherfeed.rt_candles_1m (
			bucket DateTime, symbol String,
			open Float64, high Float64, low Float64, close Float64, vol Float64
		) ENGINE=ReplacingMergeTree ORDER BY (symbol, bucket)`,
		`CREATE MATERIALIZED VIEW IF NOT EXISTS cypherfeed.rt_candles_1s_mv
		TO cypherfeed.rt_candles_1s AS
		SELECT toStartOfSecond(ts) AS bucket, symbol,
			argMin(price, ts) AS open, max(price) AS high,
			min(price) AS low, argMax(price, ts) AS close, sum(volume) AS vol
		FROM cypherfeed.rt_ticks_raw GROUP BY bucket, symbol`,
		`CREATE MATERIALIZED VIEW IF NOT EXISTS cypherfeed.rt_candles_1m_mv
		TO cypherfeed.rt_candles_1m AS
		SELECT toStartOfMinute(ts) AS bucket, symbol,
			argMin(price, ts) AS open, max(price) AS high,
			min(price) AS low, argMax(price, ts) AS close, sum(volume) AS vol
		FROM cypherfeed.rt_ticks_raw GROUP BY bucket, symbol`,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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

// ProvideTickStorage creates the ClickHouse tick storage repository.
func ProvideTickStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseStorage(chClient.DB(), cfg.ClickHouse.Database+".rt_ticks_raw")
}

// ProvideTickPublisher creates the Kafka tick publisher repository.
func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.TicksTopic)
}

// ProvideCandleStore creates the ClickHouse candle reader.
func ProvideCandleStore(chClient *pkgch.Client, l *logger.Logger) repository.CandleStore {
	store := internalrepo.NewCHCandleStore(chClient)
	store.SetLogger(l)
	return store
}

// ProvideKafkaConsumer creates a Kafka consumer when the backend routes
// ticks through Kafka; otherwise no consumer is needed.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != "kafka" {
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
	consumer.WithConsumerHook(pkgkafka.TraceHook{})
	return consumer, nil
}

// ProvideKafkaTicksHandler registers the handler for the ticks topic.
func ProvideKafkaTicksHandler(store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, store, m)
}

// ProvideWSManager creates the shared WebSocket connection manager with
// connection state changes mirrored into metrics.
func ProvideWSManager(l *logger.Logger, m repository.Metrics) *pkgws.Manager {
	return pkgws.NewManager(l, pkgws.WithStateHook(func(name string, s pkgws.State) {
		m.RecordConnState(name, s.String())
	}))
}

// ProvideStreams builds one market stream per enabled source.
func ProvideStreams(cfg *config.Config, mgr *pkgws.Manager) map[string]repository.MarketStream {
	streams := make(map[string]repository.MarketStream)
	if cfg.Sources.Binance.Enabled {
		streams["binance"] = stream.NewBinance(mgr, cfg.Sources.Binance, cfg.Sources.Reconnect)
	}
	if cfg.Sources.Sim.Enabled {
		streams["sim"] = stream.NewSim(cfg.Sources.Sim)
	}
	return streams
}

// ProvidePricebook creates the in-memory last-price book.
func ProvidePricebook() *pricebook.Book {
	return pricebook.New()
}

// ProvideWorkerPool creates the analysis worker pool with all task
// handlers registered.
func ProvideWorkerPool(l *logger.Logger, m repository.Metrics, cfg *config.Config) *workerpool.Pool {
	pool := workerpool.New(l, m, workerpool.Config{
		Workers:     cfg.WorkerPool.Workers,
		QueueSize:   cfg.WorkerPool.QueueSize,
		TaskTimeout: cfg.WorkerPool.TaskTimeout,
	})
	analysis.RegisterHandlers(pool)
	return pool
}

// ProvideTickProcessor creates the tick processor use case.
func ProvideTickProcessor(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.TickProcessor {
	return usecase.NewTickProcessor(
		pub,
		store,
		m,
		cfg.Backend.Type,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvideCollectors creates one collector per market stream, each with
// its own validation pipeline and the shared fan-out taps.
func ProvideCollectors(
	cfg *config.Config,
	streams map[string]repository.MarketStream,
	proc *usecase.TickProcessor,
	m repository.Metrics,
	l *logger.Logger,
	prices *pricebook.Book,
	engine *trading.Engine,
	throttler *wshub.Throttler,
) []*usecase.TickCollector {
	collectors := make([]*usecase.TickCollector, 0, len(streams))
	for _, s := range streams {
		pipe := mid.NewRealtimePipeline(proc, m,
			mid.WithMaxRPS(50),
			mid.WithBufferSize(2000),
		)
		c := usecase.NewTickCollector(s, proc, m, pipe, l)
		c.AddTap(prices.Set)
		c.AddTap(engine.OnTick)
		c.AddTap(throttler.Update)
		collectors = append(collectors, c)
	}
	return collectors
}

// ProvideAggregator creates the quote aggregator over the configured venues.
func ProvideAggregator(cfg *config.Config, prices *pricebook.Book, l *logger.Logger, m repository.Metrics) *aggregator.Aggregator {
	venues := aggregator.VenuesFromConfig(cfg.Aggregator.Venues, prices)
	return aggregator.New(venues, cfg.Aggregator.QuoteTimeout, l, m,
		aggregator.WithQuoteCache(provideQuoteCache(cfg, l), cfg.Aggregator.QuoteTTL))
}

// provideQuoteCache picks a layered memory+redis quote cache when redis is
// available, and an in-process one otherwise.
func provideQuoteCache(cfg *config.Config, l *logger.Logger) pkgcache.Service {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache()
	}
	host, port := splitHostPort(cfg.Redis.Addr)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		l.Warn("redis quote cache unavailable, using memory cache", logger.Error(err))
		return pkgcache.NewMemoryCache()
	}
	return pkgcache.NewLayeredCache(rc)
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// ProvideNetworkEstimator creates the network fee estimator.
func ProvideNetworkEstimator(cfg *config.Config, l *logger.Logger) *fees.NetworkEstimator {
	return fees.NewNetworkEstimator(cfg.Fees.EstimateURL, cfg.Fees.RefreshEvery, cfg.Fees.RequestTimeout, l)
}

// ProvideFeeEngine creates the fee calculator.
func ProvideFeeEngine(cfg *config.Config, est *fees.NetworkEstimator, prices *pricebook.Book) *fees.Engine {
	return fees.NewEngine(fees.DefaultTiers, est, prices, cfg.Fees.ServiceFeeBps)
}

// ProvidePortfolioBook creates the paper portfolio ledger.
func ProvidePortfolioBook(cfg *config.Config) *portfolio.Book {
	cash := cfg.Trading.StartingCash
	if cash <= 0 {
		cash = 100_000
	}
	return portfolio.NewBook(cash)
}

// ProvideBroker creates the simulated execution broker.
func ProvideBroker(cfg *config.Config, prices *pricebook.Book) repository.Broker {
	return trading.NewPaperBroker(prices, cfg.Trading.SlippageBps)
}

// ProvideExecutionPublisher publishes fills onto Kafka.
func ProvideExecutionPublisher(producer *pkgkafka.Producer, cfg *config.Config) trading.ExecutionPublisher {
	return internalrepo.NewKafkaExecutionPublisher(producer, cfg.Kafka.ExecutionTopic)
}

// ProvideTradingEngine creates the auto-trading engine.
func ProvideTradingEngine(
	cfg *config.Config,
	pool *workerpool.Pool,
	broker repository.Broker,
	book *portfolio.Book,
	prices *pricebook.Book,
	pub trading.ExecutionPublisher,
	l *logger.Logger,
	m repository.Metrics,
) *trading.Engine {
	return trading.NewEngine(trading.Config{
		Symbols:          cfg.Trading.Symbols,
		FastPeriod:       cfg.Trading.FastPeriod,
		SlowPeriod:       cfg.Trading.SlowPeriod,
		RSIPeriod:        cfg.Trading.RSIPeriod,
		OrderNotional:    cfg.Trading.OrderNotional,
		MaxPositionValue: cfg.Trading.MaxPositionValue,
		MaxDailyLoss:     cfg.Trading.MaxDailyLoss,
		EvalInterval:     cfg.Trading.EvalInterval,
	}, pool, broker, book, prices, pub, l, m)
}

// ProvideHub creates the dashboard WebSocket hub and taps the trading
// engine so signals and fills reach /ws clients.
func ProvideHub(l *logger.Logger, engine *trading.Engine) *wshub.Hub {
	hub := wshub.NewHub(l)
	engine.TapSignals(hub.BroadcastSignal)
	engine.TapExecutions(hub.BroadcastExecution)
	return hub
}

// ProvideThrottler creates the outbound ticker throttler.
func ProvideThrottler(hub *wshub.Hub) *wshub.Throttler {
	return wshub.NewThrottler(hub, 0)
}

// ProvideRedisClient creates the shared Redis client, nil when disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideCache creates the response cache, Redis-backed when available.
func ProvideCache(cfg *config.Config) icache.BytesCache {
	if cfg.Redis.Enabled {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// ProvideQueue creates the Redis job queue with the snapshot job
// registered, nil when Redis is disabled.
func ProvideQueue(cfg *config.Config, client *redis.Client, cache icache.BytesCache, l *logger.Logger) *queue.RedisQueue {
	if client == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Redis.Queue.Workers,
		RetryLimit: cfg.Redis.Queue.RetryLimit,
		RetryDelay: cfg.Redis.Queue.RetryDelay,
	}, client, queue.ModeProducerConsumer)
	q.RegisterJob(jobs.NewSnapshotJob(cache, l))
	return q
}

// ProvideCandlesUseCase creates the candle query use case.
func ProvideCandlesUseCase(store repository.CandleStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(store)
}

// ProvideAnalysisUseCase creates the on-demand analysis use case.
func ProvideAnalysisUseCase(store repository.CandleStore, pool *workerpool.Pool) *usecase.AnalysisUseCase {
	return usecase.NewAnalysisUseCase(store, pool)
}

// ProvideHTTPHandler assembles the dashboard API handler.
func ProvideHTTPHandler(
	l *logger.Logger,
	prices *pricebook.Book,
	candles *usecase.CandlesUseCase,
	analysisUC *usecase.AnalysisUseCase,
	agg *aggregator.Aggregator,
	feeEngine *fees.Engine,
	book *portfolio.Book,
	engine *trading.Engine,
	hub *wshub.Hub,
	mgr *pkgws.Manager,
	streams map[string]repository.MarketStream,
	cache icache.BytesCache,
) xhttp.Handler {
	h := api.NewDashboardHandler(l, prices, candles, analysisUC, agg, feeEngine, book, engine, hub, mgr)
	h.SetCache(cache)
	for name, s := range streams {
		h.AddSource(name, s)
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	collectors []*usecase.TickCollector,
	pool *workerpool.Pool,
	engine *trading.Engine,
	throttler *wshub.Throttler,
	estimator *fees.NetworkEstimator,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	q *queue.RedisQueue,
	book *portfolio.Book,
	proc *usecase.TickProcessor,
	handler xhttp.Handler,
) *server.App {
	d := server.Deps{
		Logger:     l,
		Collectors: collectors,
		Pool:       pool,
		Engine:     engine,
		Throttler:  throttler,
		Estimator:  estimator,
		CHClient:   chClient,
		Producer:   producer,
		Queue:      q,
		Book:       book,
		Processor:  proc,
		Handler:    handler,
	}
	if consumer != nil {
		d.Consumer = consumer
		d.TicksHandler = kh
	}
	return server.New(cfg, d)
}
