// Package oracle prices collectibles in any supported currency from spot USD
// rates, with a TTL cache and a last-known-good fallback table.
package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mohamed3773/MyCProject-sub000/logger"
	"github.com/mohamed3773/MyCProject-sub000/metrics"
	"github.com/mohamed3773/MyCProject-sub000/types"
)

// QuotePrecision is the number of decimal places of a converted amount.
const QuotePrecision = 8

// Price is a USD rate and where it came from.
type Price struct {
	Symbol   string
	USD      decimal.Decimal
	Fallback bool
}

// Oracle converts between currencies through their USD prices.
type Oracle struct {
	feed     PriceFeed
	cache    *PriceCache
	fallback map[string]decimal.Decimal
	timeout  time.Duration
	group    singleflight.Group

	logger  logger.Logger
	metrics metrics.Recorder
	nowFn   func() time.Time
}

// Option configures an Oracle.
type Option func(*Oracle)

func WithLogger(l logger.Logger) Option {
	return func(o *Oracle) { o.logger = logger.OrNoop(l) }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(o *Oracle) { o.metrics = metrics.OrNoop(m) }
}

// WithFallbackPrices replaces the last-known-good table.
func WithFallbackPrices(prices map[string]decimal.Decimal) Option {
	return func(o *Oracle) {
		o.fallback = make(map[string]decimal.Decimal, len(prices))
		for k, v := range prices {
			o.fallback[cacheKey(k)] = v
		}
	}
}

// WithClock overrides the wall clock used for cache ageing and quote stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) {
		o.nowFn = now
		o.cache.nowFn = now
	}
}

// New builds an Oracle over feed. ttl bounds cache freshness and timeout
// bounds each upstream fetch.
func New(feed PriceFeed, ttl, timeout time.Duration, opts ...Option) *Oracle {
	o := &Oracle{
		feed:    feed,
		cache:   NewPriceCache(ttl),
		timeout: timeout,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		nowFn:   time.Now,
	}
	WithFallbackPrices(DefaultFallbackPrices())(o)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetUSDPrice returns the USD price of symbol. Feed failures degrade to the
// last cached value and then to the fallback table; an error is returned only
// when no source knows the symbol.
func (o *Oracle) GetUSDPrice(ctx context.Context, symbol string) (Price, error) {
	key := cacheKey(symbol)

	if e, fresh := o.cache.Get(key); fresh {
		o.metrics.IncCounter(metrics.OracleCacheHit, nil)
		return Price{Symbol: key, USD: e.Value}, nil
	}

	// The shared fetch outlives any single caller; each caller stops
	// waiting on its own context.
	ch := o.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
		defer cancel()

		start := o.nowFn()
		price, err := o.feed.USDPrice(fetchCtx, key)
		o.metrics.ObserveLatency(metrics.OpPriceFeed, o.nowFn().Sub(start), nil)
		if err != nil {
			return nil, err
		}
		o.cache.Put(key, price)
		return price, nil
	})

	var err error
	select {
	case res := <-ch:
		if res.Err == nil {
			return Price{Symbol: key, USD: res.Val.(decimal.Decimal)}, nil
		}
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	if e, _ := o.cache.Get(key); e.Key != "" {
		o.metrics.IncCounter(metrics.OracleFallback, map[string]string{"outcome": "stale_cache"})
		o.logger.Warn("price feed unavailable, using stale cached price", map[string]any{
			"symbol":          key,
			"age":             o.nowFn().Sub(e.InsertedAt).String(),
			logger.FieldError: err,
		})
		return Price{Symbol: key, USD: e.Value, Fallback: true}, nil
	}

	if fb, ok := o.fallback[key]; ok {
		o.metrics.IncCounter(metrics.OracleFallback, map[string]string{"outcome": "table"})
		o.logger.Warn("price feed unavailable, using fallback price", map[string]any{
			"symbol":          key,
			"price":           fb.String(),
			logger.FieldError: err,
		})
		return Price{Symbol: key, USD: fb, Fallback: true}, nil
	}

	return Price{}, fmt.Errorf("usd price for %s: %w", key, err)
}

// Convert computes amount * usd(from) / usd(to) rounded to QuotePrecision
// places. Converting a currency to itself returns the amount unchanged.
func (o *Oracle) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, types.RateSnapshot, error) {
	if strings.EqualFold(from, to) {
		return amount.Round(QuotePrecision), types.RateSnapshot{}, nil
	}

	fromPrice, err := o.GetUSDPrice(ctx, from)
	if err != nil {
		return decimal.Zero, types.RateSnapshot{}, err
	}
	toPrice, err := o.GetUSDPrice(ctx, to)
	if err != nil {
		return decimal.Zero, types.RateSnapshot{}, err
	}
	if toPrice.USD.IsZero() {
		return decimal.Zero, types.RateSnapshot{}, fmt.Errorf("usd price for %s is zero", to)
	}

	snap := types.RateSnapshot{
		BaseUSD:   fromPrice.USD,
		TargetUSD: toPrice.USD,
		Fallback:  fromPrice.Fallback || toPrice.Fallback,
	}
	converted := amount.Mul(fromPrice.USD).Div(toPrice.USD).Round(QuotePrecision)
	return converted, snap, nil
}

// Quote prices a collectible of the given rarity in currency on network.
// network and currency must already be validated against the registry.
func (o *Oracle) Quote(ctx context.Context, tokenID uint64, rarity types.Rarity, network types.NetworkDescriptor, currency types.CurrencyDescriptor) (*types.Quote, error) {
	base := rarity.BasePrice()
	if base.IsZero() {
		return nil, types.NewError(types.ErrCodeValidation, types.StepQuote, "unknown rarity %q", rarity)
	}

	converted, snap, err := o.Convert(ctx, base, types.CanonicalCurrency, currency.Symbol)
	if err != nil {
		return nil, types.NewError(types.ErrCodeUnsupportedCurrency, types.StepQuote, "cannot price %s: %v", currency.Symbol, err)
	}

	if snap.BaseUSD.IsZero() {
		p, err := o.GetUSDPrice(ctx, types.CanonicalCurrency)
		if err != nil {
			return nil, types.NewError(types.ErrCodeUnsupportedCurrency, types.StepQuote, "cannot price %s: %v", types.CanonicalCurrency, err)
		}
		snap = types.RateSnapshot{BaseUSD: p.USD, TargetUSD: p.USD, Fallback: p.Fallback}
	}

	q := &types.Quote{
		TokenID:         tokenID,
		Rarity:          rarity,
		BasePrice:       types.Amount{Value: base, Currency: types.CanonicalCurrency, Decimals: 18},
		Network:         network.ID,
		Currency:        currency.Symbol,
		Amount:          types.NewAmount(converted, currency),
		PriceUSD:        base.Mul(snap.BaseUSD).Round(2),
		Rates:           snap,
		ReceivingWallet: network.ReceivingWallet,
		CreatedAt:       o.nowFn().UTC(),
	}

	o.metrics.IncCounter(metrics.QuoteIssued, map[string]string{"network": string(network.ID)})
	return q, nil
}
