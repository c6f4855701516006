package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CanonicalCurrency is the currency every base price is expressed in.
const CanonicalCurrency = "ETH"

// Rarity classifies a collectible and drives its base price.
type Rarity string

const (
	RarityLegendary Rarity = "Legendary"
	RarityUltraRare Rarity = "UltraRare"
	RarityRare      Rarity = "Rare"
	RarityCommon    Rarity = "Common"
)

// AllRarities lists tiers from most to least valuable.
var AllRarities = []Rarity{RarityLegendary, RarityUltraRare, RarityRare, RarityCommon}

var basePrices = map[Rarity]decimal.Decimal{
	RarityLegendary: decimal.RequireFromString("0.1"),
	RarityUltraRare: decimal.RequireFromString("0.05"),
	RarityRare:      decimal.RequireFromString("0.02"),
	RarityCommon:    decimal.RequireFromString("0.008"),
}

// ParseRarity accepts tier names case-insensitively, with or without
// separators ("Ultra Rare", "ultra_rare", "UltraRare").
func ParseRarity(name string) (Rarity, error) {
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(name))
	for _, r := range AllRarities {
		if strings.ToLower(string(r)) == key {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown rarity %q", name)
}

// BasePrice returns the tier's price in CanonicalCurrency.
func (r Rarity) BasePrice() decimal.Decimal {
	return basePrices[r]
}

func (r Rarity) String() string {
	return string(r)
}
