package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketConfig contains global configuration for the settlement pipeline.
type MarketConfig struct {
	// SettlementNetwork is where the collectibles live and are transferred.
	SettlementNetwork Network `json:"settlementNetwork" validate:"required"`
	// CollectionAddress is the ERC-721 contract on the settlement network.
	CollectionAddress string `json:"collectionAddress" validate:"required,eth_addr"`
	// CustodianKeyHex is the custodial holder's private key; never serialised.
	CustodianKeyHex string `json:"-" validate:"omitempty,hexadecimal"`

	ReadTimeout         time.Duration `json:"readTimeout" validate:"gt=0"`
	OracleTimeout       time.Duration `json:"oracleTimeout" validate:"gt=0"`
	ConfirmationTimeout time.Duration `json:"confirmationTimeout" validate:"gt=0"`
	PriceCacheTTL       time.Duration `json:"priceCacheTtl" validate:"gt=0"`
	PriceFeedURL        string        `json:"priceFeedUrl" validate:"omitempty,url"`

	Tolerance        decimal.Decimal `json:"tolerance"`
	MinConfirmations uint64          `json:"minConfirmations"`

	RPCRateLimit float64 `json:"rpcRateLimit" validate:"gt=0"`
	RPCBurst     int     `json:"rpcBurst" validate:"gt=0"`

	LogLevel      string `json:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics bool   `json:"enableMetrics,omitempty"`
}

// Defaults used when a field is left zero.
const (
	DefaultReadTimeout         = 20 * time.Second
	DefaultOracleTimeout       = 5 * time.Second
	DefaultConfirmationTimeout = 3 * time.Minute
	DefaultPriceCacheTTL       = 5 * time.Minute
	DefaultPriceFeedURL        = "https://api.coingecko.com/api/v3/simple/price"
	DefaultRPCRateLimit        = 10
	DefaultRPCBurst            = 20
)

// DefaultTolerance is the allowed relative deviation of a paid amount (2%).
var DefaultTolerance = decimal.RequireFromString("0.02")

// WithDefaults fills zero fields with their defaults.
func (c MarketConfig) WithDefaults() MarketConfig {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = DefaultOracleTimeout
	}
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	if c.PriceCacheTTL <= 0 {
		c.PriceCacheTTL = DefaultPriceCacheTTL
	}
	if c.PriceFeedURL == "" {
		c.PriceFeedURL = DefaultPriceFeedURL
	}
	if c.Tolerance.IsZero() {
		c.Tolerance = DefaultTolerance
	}
	if c.RPCRateLimit <= 0 {
		c.RPCRateLimit = DefaultRPCRateLimit
	}
	if c.RPCBurst <= 0 {
		c.RPCBurst = DefaultRPCBurst
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}
