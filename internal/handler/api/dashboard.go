package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"CypherFeed/internal/aggregator"
	"CypherFeed/internal/domain/models"
	domrepo "CypherFeed/internal/domain/repository"
	"CypherFeed/internal/fees"
	wshub "CypherFeed/internal/handler/ws"
	"CypherFeed/internal/portfolio"
	icache "CypherFeed/internal/service/cache"
	svcmetrics "CypherFeed/internal/service/metrics"
	"CypherFeed/internal/service/pricebook"
	"CypherFeed/internal/service/ratelimit"
	"CypherFeed/internal/trading"
	"CypherFeed/internal/usecase"
	xhttp "CypherFeed/pkg/http"
	xlogger "CypherFeed/pkg/logger"
	xutil "CypherFeed/pkg/util"
	pkgws "CypherFeed/pkg/ws"
)

// HealthChecker reports liveness of one upstream dependency.
type HealthChecker interface {
	IsConnected() bool
}

// DashboardHandler serves the dashboard API over Echo.
type DashboardHandler struct {
	logger   *xlogger.Logger
	prices   *pricebook.Book
	candles  *usecase.CandlesUseCase
	analysis *usecase.AnalysisUseCase
	agg      *aggregator.Aggregator
	fees     *fees.Engine
	book     *portfolio.Book
	engine   *trading.Engine
	hub      *wshub.Hub
	wsMgr    *pkgws.Manager
	sources  map[string]HealthChecker
	cache    icache.BytesCache
	rl       *ratelimit.Limiter
}

func NewDashboardHandler(
	logger *xlogger.Logger,
	prices *pricebook.Book,
	candles *usecase.CandlesUseCase,
	analysisUC *usecase.AnalysisUseCase,
	agg *aggregator.Aggregator,
	feeEngine *fees.Engine,
	book *portfolio.Book,
	engine *trading.Engine,
	hub *wshub.Hub,
	wsMgr *pkgws.Manager,
) *DashboardHandler {
	return &DashboardHandler{
		logger:   logger,
		prices:   prices,
		candles:  candles,
		analysis: analysisUC,
		agg:      agg,
		fees:     feeEngine,
		book:     book,
		engine:   engine,
		hub:      hub,
		wsMgr:    wsMgr,
		sources:  make(map[string]HealthChecker),
		rl:       ratelimit.New(),
	}
}

// SetCache wires an optional response cache for read endpoints.
func (h *DashboardHandler) SetCache(c icache.BytesCache) { h.cache = c }

// AddSource registers a market source for the health endpoint.
func (h *DashboardHandler) AddSource(name string, hc HealthChecker) { h.sources[name] = hc }

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", svcmetrics.Middleware())
	g.GET("/market/tickers", h.Tickers)
	g.GET("/market/candles", h.Candles)
	g.GET("/market/indicators", h.Indicators)
	g.POST("/analysis/sentiment", h.Sentiment)
	g.POST("/quicktrade/quote", h.Quote)
	g.POST("/fees/calculate", h.FeeCalculate)
	g.GET("/fees/estimate", h.FeeEstimate)
	g.GET("/portfolio", h.Portfolio)
	g.POST("/trading/start", h.TradingStart)
	g.POST("/trading/stop", h.TradingStop)
	g.GET("/trading/status", h.TradingStatus)
	g.GET("/system/health", h.Health)
	if h.hub != nil {
		e.GET("/ws", h.hub.Serve)
	}
}

// Tickers returns the latest price per symbol.
func (h *DashboardHandler) Tickers(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.prices.Snapshot())
}

func (h *DashboardHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":candles", 10, 5) {
		return c.String(http.StatusTooManyRequests, "rate limited")
	}

	to := time.Now()
	from := to.Add(-time.Hour)
	if req.From != "" {
		t, ok := xutil.ParseTime(req.From)
		if !ok {
			return xhttp.BadRequestResponse(c, "from must be RFC3339 or unix seconds")
		}
		from = t
	}
	if req.To != "" {
		t, ok := xutil.ParseTime(req.To)
		if !ok {
			return xhttp.BadRequestResponse(c, "to must be RFC3339 or unix seconds")
		}
		to = t
	}
	tf := domrepo.NormalizeTimeframe(req.TF)
	from, to = xutil.AlignFromTo(from, to, string(tf))

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		From:      from,
		To:        to,
		Timeframe: tf,
		Limit:     req.Limit,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrSymbolRequired) || errors.Is(err, usecase.ErrInvalidRange) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Indicators serves SMA/RSI/pattern for a symbol off stored candles.
func (h *DashboardHandler) Indicators(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return xhttp.BadRequestResponse(c, "symbol required")
	}
	n, _ := strconv.Atoi(c.QueryParam("n"))
	period, _ := strconv.Atoi(c.QueryParam("period"))
	tf := domrepo.NormalizeTimeframe(c.QueryParam("tf"))

	cacheKey := "indicators:" + symbol + ":" + string(tf) + ":" + strconv.Itoa(n) + ":" + strconv.Itoa(period)
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(cacheKey); err == nil && ok {
			return c.JSONBlob(http.StatusOK, b)
		}
	}

	res, err := h.analysis.Indicators(c.Request().Context(), symbol, n, period, tf)
	if err != nil {
		if errors.Is(err, usecase.ErrNoCandles) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
		}
		h.logger.Error("indicators error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if h.cache != nil {
		if b, err := json.Marshal(res); err == nil {
			_ = h.cache.SetBytes(cacheKey, b, 15*time.Second)
		}
	}
	return xhttp.SuccessResponse(c, res)
}

type sentimentRequest struct {
	Symbol string   `json:"symbol"`
	Texts  []string `json:"texts" validate:"required,min=1"`
}

func (h *DashboardHandler) Sentiment(c echo.Context) error {
	req := &sentimentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	score, err := h.analysis.Sentiment(c.Request().Context(), req.Symbol, req.Texts)
	if err != nil {
		h.logger.Error("sentiment error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbol": req.Symbol,
		"score":  score,
		"texts":  len(req.Texts),
	})
}

func (h *DashboardHandler) Quote(c echo.Context) error {
	req := &models.QuoteHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":quote", 5, 2) {
		return c.String(http.StatusTooManyRequests, "rate limited")
	}

	res, err := h.agg.Aggregate(c.Request().Context(), models.QuoteRequest{
		ID:         uuid.New().String(),
		BaseAsset:  req.BaseAsset,
		QuoteAsset: req.QuoteAsset,
		Side:       models.OrderSide(req.Side),
		Amount:     decimal.NewFromFloat(req.Amount),
	})
	if err != nil {
		h.logger.Error("quote aggregate error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DashboardHandler) FeeCalculate(c echo.Context) error {
	req := &models.FeeCalcRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	fb, err := h.fees.Calculate(*req)
	if err != nil {
		h.logger.Error("fee calculate error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, fb)
}

// FeeEstimate exposes the current network sat/vB rates.
func (h *DashboardHandler) FeeEstimate(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.fees.Estimate())
}

func (h *DashboardHandler) Portfolio(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.book.Snapshot())
}

func (h *DashboardHandler) TradingStart(c echo.Context) error {
	// the engine outlives the request
	if err := h.engine.Start(context.Background()); err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, h.engine.Status())
}

func (h *DashboardHandler) TradingStop(c echo.Context) error {
	h.engine.Stop()
	return xhttp.SuccessResponse(c, h.engine.Status())
}

func (h *DashboardHandler) TradingStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Status())
}

// Health reports source connectivity and ws manager states.
func (h *DashboardHandler) Health(c echo.Context) error {
	srcs := make(map[string]bool, len(h.sources))
	healthy := true
	for name, hc := range h.sources {
		up := hc.IsConnected()
		srcs[name] = up
		if !up {
			healthy = false
		}
	}

	conns := map[string]string{}
	if h.wsMgr != nil {
		for name, st := range h.wsMgr.States() {
			conns[name] = st.String()
		}
	}

	body := map[string]interface{}{
		"healthy":     healthy,
		"sources":     srcs,
		"connections": conns,
		"ws_clients":  0,
		"time":        time.Now().UTC(),
	}
	if h.hub != nil {
		body["ws_clients"] = h.hub.Clients()
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, status, body)
}

var _ xhttp.Handler = (*DashboardHandler)(nil)
