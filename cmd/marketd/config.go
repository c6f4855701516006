package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohamed3773/MyCProject-sub000/registry"
	"github.com/mohamed3773/MyCProject-sub000/types"
)

// Config is the process configuration.
type Config struct {
	Market       types.MarketConfig
	HTTPAddr     string
	DatabaseURL  string
	NetworksFile string
	// Networks are per-network overrides read from <NETWORK>_RPC_URL and
	// <NETWORK>_RECEIVING_WALLET. They win over the networks file.
	Networks []registry.NetworkOverride
}

// loadConfig reads configuration through getenv so tests can inject values.
func loadConfig(getenv func(string) string) (*Config, error) {
	env := envReader{getenv: getenv}

	cfg := &Config{
		HTTPAddr:     env.str("MARKET_HTTP_ADDR", ":8080"),
		DatabaseURL:  env.str("DATABASE_URL", ""),
		NetworksFile: env.str("MARKET_NETWORKS_FILE", ""),
		Market: types.MarketConfig{
			SettlementNetwork:   types.Network(strings.ToLower(env.str("MARKET_SETTLEMENT_NETWORK", string(types.NetworkSepolia)))),
			CollectionAddress:   env.str("MARKET_COLLECTION_ADDRESS", ""),
			CustodianKeyHex:     env.str("MARKET_CUSTODIAN_KEY", ""),
			ReadTimeout:         env.duration("MARKET_READ_TIMEOUT", types.DefaultReadTimeout),
			OracleTimeout:       env.duration("MARKET_ORACLE_TIMEOUT", types.DefaultOracleTimeout),
			ConfirmationTimeout: env.duration("MARKET_CONFIRMATION_TIMEOUT", types.DefaultConfirmationTimeout),
			PriceCacheTTL:       env.duration("MARKET_PRICE_CACHE_TTL", types.DefaultPriceCacheTTL),
			PriceFeedURL:        env.str("MARKET_PRICE_FEED_URL", types.DefaultPriceFeedURL),
			Tolerance:           env.decimal("MARKET_TOLERANCE", types.DefaultTolerance),
			MinConfirmations:    uint64(env.int("MARKET_MIN_CONFIRMATIONS", 0)),
			RPCRateLimit:        env.float("MARKET_RPC_RATE_LIMIT", types.DefaultRPCRateLimit),
			RPCBurst:            env.int("MARKET_RPC_BURST", types.DefaultRPCBurst),
			LogLevel:            strings.ToLower(env.str("LOG_LEVEL", "info")),
			EnableMetrics:       env.bool("MARKET_ENABLE_METRICS", true),
		},
	}

	for _, n := range types.AllNetworks {
		prefix := strings.ToUpper(string(n))
		ov := registry.NetworkOverride{
			ID:              n,
			RPCURL:          env.str(prefix+"_RPC_URL", ""),
			ReceivingWallet: env.str(prefix+"_RECEIVING_WALLET", ""),
		}
		if ov.RPCURL != "" || ov.ReceivingWallet != "" {
			cfg.Networks = append(cfg.Networks, ov)
		}
	}

	if len(env.errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(env.errs, "; "))
	}
	return cfg, nil
}

// networkTable merges the default table, the optional networks file and the
// environment overrides, in that order.
func (c *Config) networkTable() ([]types.NetworkDescriptor, error) {
	table := registry.Default()
	if c.NetworksFile != "" {
		ov, err := registry.LoadOverrides(c.NetworksFile)
		if err != nil {
			return nil, err
		}
		table = ov.Apply(table)
	}
	if len(c.Networks) > 0 {
		table = (&registry.Overrides{Networks: c.Networks}).Apply(table)
	}
	return table, nil
}

type envReader struct {
	getenv func(string) string
	errs   []string
}

func (e *envReader) str(key, fallback string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) int(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		e.errs = append(e.errs, fmt.Sprintf("%s: not a non-negative integer", key))
		return fallback
	}
	return n
}

func (e *envReader) float(key string, fallback float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: not a number", key))
		return fallback
	}
	return f
}

func (e *envReader) bool(key string, fallback bool) bool {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: not a boolean", key))
		return fallback
	}
	return b
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: not a duration", key))
		return fallback
	}
	return d
}

func (e *envReader) decimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		e.errs = append(e.errs, fmt.Sprintf("%s: not a non-negative decimal", key))
		return fallback
	}
	return d
}
