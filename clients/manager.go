package clients

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mohamed3773/MyCProject-sub000/metrics"
	"github.com/mohamed3773/MyCProject-sub000/types"
)

// Manager owns one backend per network for the life of the process.
type Manager struct {
	mu       sync.RWMutex
	backends map[types.Network]Backend
	closers  []func()

	rps     float64
	burst   int
	metrics metrics.Recorder
}

// NewManager creates an empty manager. Each backend it holds is throttled to
// rps requests per second with the given burst.
func NewManager(rps float64, burst int, rec metrics.Recorder) *Manager {
	return &Manager{
		backends: make(map[types.Network]Backend),
		rps:      rps,
		burst:    burst,
		metrics:  metrics.OrNoop(rec),
	}
}

// Dial connects to every network that has an RPC URL. A dial failure is
// returned immediately; it is a startup error.
func (m *Manager) Dial(ctx context.Context, networks []types.NetworkDescriptor) error {
	for _, n := range networks {
		if n.RPCURL == "" {
			continue
		}
		if !n.ID.IsEVM() {
			return fmt.Errorf("%s: no rpc client for this chain family", n.ID)
		}
		eth, err := ethclient.DialContext(ctx, n.RPCURL)
		if err != nil {
			return fmt.Errorf("%s rpc dial: %w", n.ID, err)
		}
		m.Add(n.ID, eth)

		m.mu.Lock()
		m.closers = append(m.closers, eth.Close)
		m.mu.Unlock()
	}
	return nil
}

// Add registers b as the backend for network, wrapped in the rate limiter.
func (m *Manager) Add(network types.Network, b Backend) {
	limiter := NewLimiter(m.rps, m.burst, string(network), m.metrics)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.backends[network] = WithRateLimit(b, limiter)
}

// Get returns the backend for network.
func (m *Manager) Get(network types.Network) (Backend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.backends[network]
	if !ok {
		return nil, types.NewError(types.ErrCodeNetworkUnavailable, types.StepPayment, "no rpc client for network %s", network)
	}
	return b, nil
}

// Networks lists networks with a backend.
func (m *Manager) Networks() []types.Network {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Network, 0, len(m.backends))
	for _, n := range types.AllNetworks {
		if _, ok := m.backends[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Close releases every dialed connection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.closers {
		c()
	}
	m.closers = nil
}
