package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownSymbol is returned when a feed has no identifier for a symbol.
var ErrUnknownSymbol = errors.New("no price source for symbol")

// PriceFeed fetches a spot USD price for a currency symbol.
type PriceFeed interface {
	USDPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// CoinGeckoFeed reads spot prices from the CoinGecko simple/price endpoint.
type CoinGeckoFeed struct {
	baseURL string
	ids     map[string]string
	client  *http.Client
}

// NewCoinGeckoFeed builds a feed. ids maps symbols to CoinGecko coin ids.
func NewCoinGeckoFeed(baseURL string, ids map[string]string, client *http.Client) *CoinGeckoFeed {
	if client == nil {
		client = http.DefaultClient
	}
	normalized := make(map[string]string, len(ids))
	for sym, id := range ids {
		normalized[cacheKey(sym)] = id
	}
	return &CoinGeckoFeed{baseURL: baseURL, ids: normalized, client: client}
}

func (f *CoinGeckoFeed) USDPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id, ok := f.ids[cacheKey(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
	}

	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")

	sep := "?"
	if strings.Contains(f.baseURL, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+sep+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode price response: %w", err)
	}

	price, ok := body[id]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("price feed has no usd price for %s", id)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("price feed returned non-positive price %s for %s", price, id)
	}
	return price, nil
}

// StaticFeed serves fixed prices. Useful offline and in tests.
type StaticFeed map[string]decimal.Decimal

func (s StaticFeed) USDPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	for k, v := range s {
		if cacheKey(k) == cacheKey(symbol) {
			return v, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
}
