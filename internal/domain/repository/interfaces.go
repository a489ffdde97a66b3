package repository

import (
	"context"
	"time"

	"CypherFeed/internal/domain/models"
)

// MarketStream is a live source of normalized tickers. Implementations
// own their reconnect behavior; Read error channel reports fatal errors.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Ticker, <-chan error)
	Close() error
	IsConnected() bool
}

type Publisher interface {
	Publish(ctx context.Context, t *models.Ticker) error
	PublishBatch(ctx context.Context, ticks []*models.Ticker) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.Ticker) error
	StoreBatch(ctx context.Context, ticks []*models.Ticker) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Ticker, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// QuoteProvider prices a swap request on one venue.
type QuoteProvider interface {
	Name() string
	Quote(ctx context.Context, req models.QuoteRequest) (*models.Quote, error)
}

// Broker places simulated orders and reports the price used for fills.
type Broker interface {
	Name() string
	LastPrice(ctx context.Context, symbol string) (float64, error)
	PlaceMarketQuote(ctx context.Context, symbol string, side models.OrderSide, quoteAmount float64) (*models.Order, error)
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordConnState(connection, state string)
	RecordPoolDepth(n int)
	RecordTask(taskType, outcome string)
}
