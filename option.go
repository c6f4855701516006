package market

import (
	"time"

	"github.com/mohamed3773/MyCProject-sub000/clients"
	"github.com/mohamed3773/MyCProject-sub000/logger"
	"github.com/mohamed3773/MyCProject-sub000/metrics"
	"github.com/mohamed3773/MyCProject-sub000/oracle"
	"github.com/mohamed3773/MyCProject-sub000/store"
	"github.com/mohamed3773/MyCProject-sub000/types"
)

type Option func(*Market)

func WithLogger(l logger.Logger) Option {
	return func(m *Market) {
		m.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(m *Market) {
		m.metrics = r
	}
}

// WithStore replaces the in-memory SoldStateStore.
func WithStore(s store.SoldStateStore) Option {
	return func(m *Market) {
		m.store = s
	}
}

// WithPriceFeed replaces the CoinGecko feed.
func WithPriceFeed(f oracle.PriceFeed) Option {
	return func(m *Market) {
		m.feed = f
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Market) {
		m.nowFn = now
	}
}

// WithTimeout sets the RPC read timeout.
func WithTimeout(t time.Duration) Option {
	return func(m *Market) {
		m.config.ReadTimeout = t
	}
}

// WithNetworks replaces the default network table.
func WithNetworks(descriptors []types.NetworkDescriptor) Option {
	return func(m *Market) {
		m.descriptors = descriptors
	}
}

// WithBackend uses b for network instead of dialing its RPC URL.
func WithBackend(network types.Network, b clients.Backend) Option {
	return func(m *Market) {
		m.backends[network] = b
	}
}

// WithSigner replaces the key-based custodial signer.
func WithSigner(s clients.Signer) Option {
	return func(m *Market) {
		m.signer = s
	}
}

// WithPollInterval tunes the settlement confirmation backoff.
func WithPollInterval(initial, max time.Duration) Option {
	return func(m *Market) {
		m.pollInitial, m.pollMax = initial, max
	}
}
