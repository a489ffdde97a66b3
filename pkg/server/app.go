package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CypherFeed/internal/fees"
	wshub "CypherFeed/internal/handler/ws"
	"CypherFeed/internal/jobs"
	"CypherFeed/internal/portfolio"
	"CypherFeed/internal/trading"
	"CypherFeed/internal/usecase"
	"CypherFeed/internal/workerpool"
	pkgch "CypherFeed/pkg/clickhouse"
	"CypherFeed/pkg/config"
	xhttp "CypherFeed/pkg/http"
	pkgkafka "CypherFeed/pkg/kafka"
	applogger "CypherFeed/pkg/logger"
	"CypherFeed/pkg/queue"
)

// Deps bundles everything the app lifecycle owns. Nil fields are
// skipped at startup, so optional infrastructure (Kafka consumer,
// Redis queue) degrades cleanly.
type Deps struct {
	Logger       *applogger.Logger
	Collectors   []*usecase.TickCollector
	Pool         *workerpool.Pool
	Engine       *trading.Engine
	Throttler    *wshub.Throttler
	Estimator    *fees.NetworkEstimator
	Consumer     *pkgkafka.Consumer
	TicksHandler pkgkafka.MessageHandler
	CHClient     *pkgch.Client
	Producer     *pkgkafka.Producer
	Queue        *queue.RedisQueue
	Book         *portfolio.Book
	Processor    *usecase.TickProcessor
	Handler      xhttp.Handler
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	d          Deps
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, d Deps) *App {
	return &App{cfg: cfg, d: d}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.d.Logger

	a.httpServer = xhttp.NewServer(a.d.Handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestLogger(l),
	)

	a.d.Pool.Start(ctx)
	a.d.Estimator.Start(ctx)
	a.d.Throttler.Start(ctx)

	for _, c := range a.d.Collectors {
		c := c
		go func() {
			if err := c.Start(ctx); err != nil {
				l.Error("collector error", applogger.Error(err))
			}
		}()
	}
	l.Info("collectors started", applogger.Int("count", len(a.d.Collectors)))

	if a.d.Consumer != nil && a.d.TicksHandler != nil {
		a.d.Consumer.RegisterHandler(a.d.TicksHandler)
		go func() {
			if err := a.d.Consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.d.TicksHandler.Topic()))
	}

	if a.d.Queue != nil {
		if err := a.d.Queue.Start(); err != nil {
			l.Warn("queue start error", applogger.Error(err))
		} else {
			l.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   30 * time.Second,
				CountThreshold: 100,
				Topic:          "log_aggregate",
				Publisher:      a.d.Queue,
			})
			go a.snapshotLoop(ctx)
		}
	}

	if a.cfg.Trading.Enabled && a.d.Engine != nil {
		if err := a.d.Engine.Start(ctx); err != nil {
			l.Warn("trading engine start error", applogger.Error(err))
		} else {
			l.Info("trading engine started", applogger.Strings("symbols", a.cfg.Trading.Symbols))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// snapshotLoop periodically publishes the portfolio state onto the
// queue; the snapshot job persists it on the consumer side.
func (a *App) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := a.d.Book.Snapshot()
			if err := a.d.Queue.PublishMessage(ctx, jobs.SnapshotMessageType, snap); err != nil {
				a.d.Logger.Warn("snapshot publish error", applogger.Error(err))
			}
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.d.Logger

	if a.d.Engine != nil {
		a.d.Engine.Stop()
	}

	for _, c := range a.d.Collectors {
		if err := c.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.d.Consumer != nil {
		if err := a.d.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.d.Queue != nil {
		l.RemoveCollector()
		if err := a.d.Queue.Stop(shutdownCtx); err != nil {
			l.Warn("queue stop error", applogger.Error(err))
		}
	}

	a.d.Pool.Stop()
	a.d.Estimator.Stop()

	if a.d.Processor != nil {
		a.d.Processor.Close()
	}

	if a.d.Producer != nil {
		if err := a.d.Producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.d.CHClient != nil {
		if err := a.d.CHClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
