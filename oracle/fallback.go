package oracle

import "github.com/shopspring/decimal"

// DefaultFallbackPrices is the last-known-good USD table used when the feed
// is unavailable and nothing is cached.
func DefaultFallbackPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"ETH":  decimal.RequireFromString("2300"),
		"POL":  decimal.RequireFromString("0.45"),
		"BNB":  decimal.RequireFromString("600"),
		"CRO":  decimal.RequireFromString("0.13"),
		"USDC": decimal.RequireFromString("1"),
		"USDT": decimal.RequireFromString("1"),
	}
}
