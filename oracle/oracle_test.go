package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamed3773/MyCProject-sub000/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type countingFeed struct {
	prices StaticFeed
	calls  atomic.Int32
	err    error
}

func (f *countingFeed) USDPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.calls.Add(1)
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.prices.USDPrice(ctx, symbol)
}

// gatedFeed blocks every fetch until release is closed or the fetch
// context ends.
type gatedFeed struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *gatedFeed) USDPrice(ctx context.Context, _ string) (decimal.Decimal, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
		return d("3050"), nil
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
}

func cronos() (types.NetworkDescriptor, types.CurrencyDescriptor) {
	cro := types.CurrencyDescriptor{Symbol: "CRO", Decimals: 18, Native: true, Network: types.NetworkCronos}
	return types.NetworkDescriptor{
		ID:              types.NetworkCronos,
		Name:            "Cronos",
		ChainID:         25,
		ReceivingWallet: "0x2222222222222222222222222222222222222222",
		Currencies:      []types.CurrencyDescriptor{cro},
	}, cro
}

func TestEntryIsStale(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := Entry{Key: "ETH", Value: d("2300"), InsertedAt: t0, TTL: 5 * time.Minute}

	assert.False(t, e.IsStale(t0))
	assert.False(t, e.IsStale(t0.Add(4*time.Minute+59*time.Second)))
	assert.True(t, e.IsStale(t0.Add(5*time.Minute)))
	assert.True(t, e.IsStale(t0.Add(time.Hour)))
}

func TestConvertIdentity(t *testing.T) {
	feed := &countingFeed{prices: StaticFeed{}}
	o := New(feed, time.Minute, time.Second)

	for _, amt := range []string{"0", "0.008", "1.23456789", "100"} {
		got, _, err := o.Convert(context.Background(), d(amt), "ETH", "eth")
		require.NoError(t, err)
		assert.True(t, d(amt).Equal(got), "%s -> %s", amt, got)
	}
	assert.Zero(t, feed.calls.Load())
}

func TestQuoteEndToEndExactAmount(t *testing.T) {
	o := New(StaticFeed{"ETH": d("2300"), "CRO": d("0.13")}, time.Minute, time.Second)
	network, cro := cronos()

	q, err := o.Quote(context.Background(), 42, types.RarityCommon, network, cro)
	require.NoError(t, err)

	assert.Equal(t, "141.53846154", q.Amount.Value.String())
	assert.Equal(t, "CRO", q.Amount.Currency)
	assert.Equal(t, uint64(42), q.TokenID)
	assert.Equal(t, network.ReceivingWallet, q.ReceivingWallet)
	assert.True(t, d("2300").Equal(q.Rates.BaseUSD))
	assert.True(t, d("0.13").Equal(q.Rates.TargetUSD))
	assert.False(t, q.Rates.Fallback)
	assert.Equal(t, "18.4", q.PriceUSD.String())
}

func TestQuoteMonotonicInRarity(t *testing.T) {
	o := New(StaticFeed{"ETH": d("2300"), "CRO": d("0.13")}, time.Minute, time.Second)
	network, cro := cronos()

	var prev decimal.Decimal
	for i := len(types.AllRarities) - 1; i >= 0; i-- {
		q, err := o.Quote(context.Background(), 1, types.AllRarities[i], network, cro)
		require.NoError(t, err)
		if !prev.IsZero() {
			assert.True(t, q.Amount.Value.GreaterThan(prev), "%s should cost more than %s", types.AllRarities[i], prev)
		}
		prev = q.Amount.Value
	}
}

func TestGetUSDPriceCachesBySymbol(t *testing.T) {
	feed := &countingFeed{prices: StaticFeed{"USDC": d("1")}}
	o := New(feed, 5*time.Minute, time.Second)

	for i := 0; i < 3; i++ {
		p, err := o.GetUSDPrice(context.Background(), "usdc")
		require.NoError(t, err)
		assert.True(t, d("1").Equal(p.USD))
	}
	assert.Equal(t, int32(1), feed.calls.Load())
}

func TestGetUSDPriceRefreshesAfterTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := &countingFeed{prices: StaticFeed{"ETH": d("2300")}}
	o := New(feed, 5*time.Minute, time.Second, WithClock(func() time.Time { return now }))

	_, err := o.GetUSDPrice(context.Background(), "ETH")
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)
	_, err = o.GetUSDPrice(context.Background(), "ETH")
	require.NoError(t, err)

	assert.Equal(t, int32(2), feed.calls.Load())
}

func TestFallbackOnFeedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	feed := NewCoinGeckoFeed(srv.URL, map[string]string{"ETH": "ethereum", "CRO": "crypto-com-chain"}, srv.Client())
	o := New(feed, time.Minute, time.Second)
	network, cro := cronos()

	q, err := o.Quote(context.Background(), 7, types.RarityCommon, network, cro)
	require.NoError(t, err)
	assert.True(t, q.Rates.Fallback)
	assert.Equal(t, "141.53846154", q.Amount.Value.String())
}

func TestStaleCacheBeatsFallbackTable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := &countingFeed{prices: StaticFeed{"ETH": d("3100")}}
	o := New(feed, time.Minute, time.Second, WithClock(func() time.Time { return now }))

	_, err := o.GetUSDPrice(context.Background(), "ETH")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	feed.err = assert.AnError

	p, err := o.GetUSDPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, p.Fallback)
	assert.True(t, d("3100").Equal(p.USD))
}

func TestUnknownSymbolWithoutFallbackFails(t *testing.T) {
	o := New(StaticFeed{}, time.Minute, time.Second, WithFallbackPrices(nil))
	_, err := o.GetUSDPrice(context.Background(), "DOGE")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestCoinGeckoFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "crypto-com-chain", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"crypto-com-chain":{"usd":0.1312}}`))
	}))
	defer srv.Close()

	feed := NewCoinGeckoFeed(srv.URL, map[string]string{"cro": "crypto-com-chain"}, srv.Client())
	p, err := feed.USDPrice(context.Background(), "CRO")
	require.NoError(t, err)
	assert.Equal(t, "0.1312", p.String())

	_, err = feed.USDPrice(context.Background(), "BTC")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestFeedTimeoutFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	feed := NewCoinGeckoFeed(srv.URL, map[string]string{"BNB": "binancecoin"}, srv.Client())
	o := New(feed, time.Minute, 50*time.Millisecond)

	p, err := o.GetUSDPrice(context.Background(), "BNB")
	require.NoError(t, err)
	assert.True(t, p.Fallback)
	assert.True(t, d("600").Equal(p.USD))
}

func TestSharedFetchSurvivesCancelledCaller(t *testing.T) {
	feed := &gatedFeed{started: make(chan struct{}), release: make(chan struct{})}
	o := New(feed, time.Minute, 5*time.Second)

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan Price, 1)
	go func() {
		p, _ := o.GetUSDPrice(first, "ETH")
		firstDone <- p
	}()
	<-feed.started

	secondDone := make(chan Price, 1)
	go func() {
		p, _ := o.GetUSDPrice(context.Background(), "ETH")
		secondDone <- p
	}()

	cancel()
	p := <-firstDone
	assert.True(t, p.Fallback)

	close(feed.release)
	p = <-secondDone
	assert.False(t, p.Fallback)
	assert.True(t, d("3050").Equal(p.USD))

	cached, err := o.GetUSDPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, d("3050").Equal(cached.USD))
}
