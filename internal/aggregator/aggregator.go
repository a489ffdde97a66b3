package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"CypherFeed/internal/domain/models"
	drepo "CypherFeed/internal/domain/repository"
	pkgcache "CypherFeed/pkg/cache"
	"CypherFeed/pkg/logger"
)

var ErrNoQuotes = fmt.Errorf("aggregator: no venue returned a quote")

var ten4 = decimal.NewFromInt(10000)

// Aggregator fans a quote request out to all providers, nets fees, and
// ranks routes by output amount.
type Aggregator struct {
	providers []drepo.QuoteProvider
	timeout   time.Duration
	legCost   decimal.Decimal // flat per-leg cost in quote units
	cache     pkgcache.Service
	cacheTTL  time.Duration
	l         *logger.Logger
	metrics   drepo.Metrics
}

type Option func(*Aggregator)

// WithLegCost charges a flat quote-denominated cost per route leg, so a
// split route must beat the single route by more than one extra leg.
func WithLegCost(c decimal.Decimal) Option {
	return func(a *Aggregator) { a.legCost = c }
}

// WithQuoteCache serves repeated identical requests from cache while
// the previous answer is still fresh.
func WithQuoteCache(c pkgcache.Service, ttl time.Duration) Option {
	return func(a *Aggregator) {
		if c != nil && ttl > 0 {
			a.cache = c
			a.cacheTTL = ttl
		}
	}
}

func New(providers []drepo.QuoteProvider, timeout time.Duration, l *logger.Logger, m drepo.Metrics, opts ...Option) *Aggregator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	a := &Aggregator{providers: providers, timeout: timeout, l: l, metrics: m}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type venueResult struct {
	name  string
	quote *models.Quote
	err   error
}

// Aggregate queries every provider in parallel under one deadline.
func (a *Aggregator) Aggregate(ctx context.Context, req models.QuoteRequest) (*models.AggregateResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("aggregator: amount must be positive")
	}
	if len(a.providers) == 0 {
		return nil, ErrNoQuotes
	}

	var cacheKey string
	if a.cache != nil {
		cacheKey = pkgcache.GenerateKeyWithParams("quote", req.Side, req.BaseAsset, req.QuoteAsset, req.Amount.String())
		var cached models.AggregateResult
		if err := a.cache.Get(ctx, cacheKey, &cached); err == nil && len(cached.Quotes) > 0 {
			cached.RequestID = req.ID
			return &cached, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	results := make(chan venueResult, len(a.providers))
	var wg sync.WaitGroup
	for _, p := range a.providers {
		wg.Add(1)
		go func(p drepo.QuoteProvider) {
			defer wg.Done()
			q, err := p.Quote(ctx, req)
			results <- venueResult{name: p.Name(), quote: q, err: err}
		}(p)
	}
	wg.Wait()
	close(results)

	res := &models.AggregateResult{RequestID: req.ID, Timestamp: time.Now()}
	for r := range results {
		if r.err != nil {
			res.Failed = append(res.Failed, r.name)
			a.metrics.RecordError("quote_venue")
			a.l.Warn("venue quote failed",
				logger.String("venue", r.name),
				logger.Error(r.err))
			continue
		}
		res.Quotes = append(res.Quotes, *r.quote)
	}
	sort.Strings(res.Failed)
	if len(res.Quotes) == 0 {
		return res, ErrNoQuotes
	}

	// highest net output first
	sort.Slice(res.Quotes, func(i, j int) bool {
		return a.netOut(req.Side, &res.Quotes[i], res.Quotes[i].OutAmount).GreaterThan(
			a.netOut(req.Side, &res.Quotes[j], res.Quotes[j].OutAmount))
	})

	res.Best = a.bestRoute(req, res.Quotes)
	a.metrics.RecordLatency("quote_aggregate", time.Since(start).Seconds())
	if a.cache != nil {
		if err := a.cache.Set(ctx, cacheKey, *res, a.cacheTTL); err != nil {
			a.l.Debug("quote cache set failed", logger.Error(err))
		}
	}
	return res, nil
}

// netOut applies the venue fee and per-leg cost to a gross output.
// Buys output the base asset, so the quote-denominated leg cost is
// converted at the leg price.
func (a *Aggregator) netOut(side models.OrderSide, q *models.Quote, gross decimal.Decimal) decimal.Decimal {
	net := gross.Mul(decimal.NewFromInt(1).Sub(q.FeeBps.Div(ten4)))
	if a.legCost.IsPositive() {
		cost := a.legCost
		if side == models.OrderSideBuy && q.Price.IsPositive() {
			cost = cost.Div(q.Price)
		}
		net = net.Sub(cost)
	}
	return net
}

// baseSize is the base-asset size a quote implies for the request.
func baseSize(req models.QuoteRequest, q *models.Quote) decimal.Decimal {
	if req.Side == models.OrderSideBuy {
		return q.OutAmount
	}
	return req.Amount
}

// singleRoute builds a one-leg route on q for the full request.
func (a *Aggregator) singleRoute(req models.QuoteRequest, q *models.Quote) *models.Route {
	net := a.netOut(req.Side, q, q.OutAmount)
	return &models.Route{
		Legs: []models.RouteLeg{{
			Venue:     q.Venue,
			Amount:    req.Amount,
			Price:     q.Price,
			NetOutput: net,
		}},
		NetOutput: net,
	}
}

// bestRoute picks the single best venue. When the size exceeds that
// venue's quoted depth, the single-route baseline falls back to the
// best venue deep enough to cover the full size, and a two-venue split
// (best venue to its depth, remainder on the runner-up) is compared
// against it.
func (a *Aggregator) bestRoute(req models.QuoteRequest, quotes []models.Quote) *models.Route {
	best := &quotes[0]
	if len(quotes) < 2 || baseSize(req, best).LessThanOrEqual(best.Depth) {
		return a.singleRoute(req, best)
	}

	single := a.singleRoute(req, best)
	for i := range quotes {
		if quotes[i].Depth.GreaterThanOrEqual(baseSize(req, &quotes[i])) {
			single = a.singleRoute(req, &quotes[i])
			break
		}
	}

	split := a.splitRoute(req, best, &quotes[1])
	if split != nil && split.NetOutput.GreaterThan(single.NetOutput) {
		return split
	}
	return single
}

// splitRoute fills the best venue up to its depth and routes the
// remainder to the runner-up.
func (a *Aggregator) splitRoute(req models.QuoteRequest, first, second *models.Quote) *models.Route {
	total := baseSize(req, first)
	if first.Depth.LessThanOrEqual(decimal.Zero) || total.LessThanOrEqual(first.Depth) {
		return nil
	}
	frac := first.Depth.Div(total)

	firstIn := req.Amount.Mul(frac)
	secondIn := req.Amount.Sub(firstIn)
	firstOut := first.OutAmount.Mul(frac)
	// reprice the remainder at the runner-up's level
	var secondOut decimal.Decimal
	if req.Side == models.OrderSideBuy {
		if !second.Price.IsPositive() {
			return nil
		}
		secondOut = secondIn.Div(second.Price)
	} else {
		secondOut = secondIn.Mul(second.Price)
	}

	legs := []models.RouteLeg{
		{Venue: first.Venue, Amount: firstIn, Price: first.Price, NetOutput: a.netOut(req.Side, first, firstOut)},
		{Venue: second.Venue, Amount: secondIn, Price: second.Price, NetOutput: a.netOut(req.Side, second, secondOut)},
	}
	return &models.Route{
		Legs:      legs,
		NetOutput: legs[0].NetOutput.Add(legs[1].NetOutput),
		Split:     true,
	}
}
