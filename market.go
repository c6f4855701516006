// Package market wires the cross-network purchase pipeline: network registry,
// price oracle, payment verification, custodial settlement and the sold-state
// store.
package market

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mohamed3773/MyCProject-sub000/api"
	"github.com/mohamed3773/MyCProject-sub000/clients"
	"github.com/mohamed3773/MyCProject-sub000/logger"
	"github.com/mohamed3773/MyCProject-sub000/metrics"
	"github.com/mohamed3773/MyCProject-sub000/oracle"
	"github.com/mohamed3773/MyCProject-sub000/purchase"
	"github.com/mohamed3773/MyCProject-sub000/registry"
	"github.com/mohamed3773/MyCProject-sub000/settlement"
	"github.com/mohamed3773/MyCProject-sub000/store"
	"github.com/mohamed3773/MyCProject-sub000/store/memory"
	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/mohamed3773/MyCProject-sub000/utils"
	"github.com/mohamed3773/MyCProject-sub000/verification"
)

// Market is the main struct that provides all purchase functionality.
type Market struct {
	config types.MarketConfig

	registry     *registry.Registry
	clients      *clients.Manager
	oracle       *oracle.Oracle
	verifier     *verification.VerificationService
	settler      *settlement.SettlementService
	orchestrator *purchase.Orchestrator
	store        store.SoldStateStore

	descriptors []types.NetworkDescriptor
	backends    map[types.Network]clients.Backend
	signer      clients.Signer
	feed        oracle.PriceFeed
	nowFn       func() time.Time
	pollInitial time.Duration
	pollMax     time.Duration

	logger  logger.Logger
	metrics metrics.Recorder
}

// New builds every component once and injects them into each other. Networks
// with an RPC URL and no injected backend are dialed here; a dial failure is
// returned.
func New(ctx context.Context, config types.MarketConfig, opts ...Option) (*Market, error) {
	m := &Market{
		config:   config.WithDefaults(),
		backends: make(map[types.Network]clients.Backend),
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.OrNoop(m.logger)
	m.metrics = metrics.OrNoop(m.metrics)

	if err := utils.Validator().Struct(&m.config); err != nil {
		return nil, types.NewError(types.ErrCodeConfigError, "", "invalid market config: %v", err)
	}

	if m.descriptors == nil {
		m.descriptors = registry.Default()
	}
	reg, err := registry.New(m.descriptors)
	if err != nil {
		return nil, types.NewError(types.ErrCodeConfigError, "", "network registry: %v", err)
	}
	m.registry = reg

	settleDesc, err := reg.GetNetwork(m.config.SettlementNetwork)
	if err != nil {
		return nil, types.NewError(types.ErrCodeConfigError, "", "settlement network: %v", err)
	}

	if m.signer == nil {
		if m.config.CustodianKeyHex == "" {
			return nil, types.NewError(types.ErrCodeConfigError, "", "custodian key is required")
		}
		if m.signer, err = clients.NewKeySigner(m.config.CustodianKeyHex); err != nil {
			return nil, types.NewError(types.ErrCodeConfigError, "", "%v", err)
		}
	}

	m.clients = clients.NewManager(m.config.RPCRateLimit, m.config.RPCBurst, m.metrics)
	var dial []types.NetworkDescriptor
	for _, d := range reg.ListNetworks() {
		if b, ok := m.backends[d.ID]; ok {
			m.clients.Add(d.ID, b)
			continue
		}
		dial = append(dial, d)
	}
	if err := m.clients.Dial(ctx, dial); err != nil {
		m.clients.Close()
		return nil, err
	}

	settleBackend, err := m.clients.Get(settleDesc.ID)
	if err != nil {
		m.clients.Close()
		return nil, types.NewError(types.ErrCodeConfigError, "", "settlement network %s has no rpc endpoint", settleDesc.ID)
	}

	settleOpts := []settlement.Option{
		settlement.WithLogger(m.logger),
		settlement.WithMetrics(m.metrics),
		settlement.WithTimeouts(m.config.ReadTimeout, m.config.ConfirmationTimeout),
	}
	if m.pollInitial > 0 {
		settleOpts = append(settleOpts, settlement.WithPollInterval(m.pollInitial, m.pollMax))
	}
	m.settler, err = settlement.NewSettlementService(settleDesc, m.config.CollectionAddress, settleBackend, m.signer, settleOpts...)
	if err != nil {
		m.clients.Close()
		return nil, types.NewError(types.ErrCodeConfigError, "", "settlement: %v", err)
	}

	if m.feed == nil {
		m.feed = oracle.NewCoinGeckoFeed(m.config.PriceFeedURL, reg.PriceIDs(), &http.Client{Timeout: m.config.OracleTimeout})
	}
	m.oracle = oracle.New(m.feed, m.config.PriceCacheTTL, m.config.OracleTimeout,
		oracle.WithLogger(m.logger),
		oracle.WithMetrics(m.metrics),
		oracle.WithClock(m.nowFn),
	)

	m.verifier = verification.NewVerificationService(reg, m.clients, m.config.ReadTimeout,
		verification.WithTolerance(m.config.Tolerance),
		verification.WithMinConfirmations(m.config.MinConfirmations),
		verification.WithLogger(m.logger),
		verification.WithMetrics(m.metrics),
	)

	if m.store == nil {
		m.store = memory.NewPurchaseStore()
	}

	m.orchestrator = purchase.New(reg, m.oracle, m.verifier, m.settler, m.store,
		purchase.WithTolerance(m.config.Tolerance),
		purchase.WithClock(m.nowFn),
		purchase.WithLogger(m.logger),
		purchase.WithMetrics(m.metrics),
	)

	m.logger.Info("market ready", map[string]any{
		"settlement_network": string(settleDesc.ID),
		"custodian":          m.settler.Custodian(),
		"payment_networks":   fmt.Sprint(m.clients.Networks()),
	})
	return m, nil
}

// Networks lists every configured network.
func (m *Market) Networks() []types.NetworkDescriptor {
	return m.registry.ListNetworks()
}

// Quote prices a collectible in a buyer-chosen currency.
func (m *Market) Quote(ctx context.Context, tokenID uint64, rarity types.Rarity, network types.Network, currency string) (*types.Quote, error) {
	return m.orchestrator.Quote(ctx, tokenID, rarity, network, currency)
}

// Purchase runs one purchase attempt to a terminal state.
func (m *Market) Purchase(ctx context.Context, req purchase.Request) *purchase.Outcome {
	return m.orchestrator.Execute(ctx, req)
}

// Transaction returns a payment or settlement transaction for status polling.
func (m *Market) Transaction(ctx context.Context, network types.Network, txRef string) (*types.TransactionView, error) {
	return m.verifier.Lookup(ctx, network, txRef)
}

// OwnerOf returns the current holder of tokenID on the settlement network.
func (m *Market) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	return m.settler.OwnerOf(ctx, tokenID)
}

// Custodian returns the custodial holder address.
func (m *Market) Custodian() string {
	return m.settler.Custodian()
}

// Store exposes the sold-state store.
func (m *Market) Store() store.SoldStateStore {
	return m.store
}

// Handler returns the HTTP surface. metricsHandler may be nil.
func (m *Market) Handler(metricsHandler http.Handler) http.Handler {
	return api.NewHandler(m.registry, m.orchestrator, m.verifier, m.store, metricsHandler, m.logger).Routes()
}

// Close stops watching late transfers and closes all client connections.
func (m *Market) Close() {
	m.orchestrator.Close()
	m.clients.Close()
}
