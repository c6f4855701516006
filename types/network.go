package types

import (
	"strings"
)

// CurrencyDescriptor describes one currency accepted on one network.
type CurrencyDescriptor struct {
	Symbol   string `json:"symbol" yaml:"symbol" validate:"required,uppercase"`
	Decimals int32  `json:"decimals" yaml:"decimals" validate:"gte=0,lte=36"`
	Native   bool   `json:"native" yaml:"native"`
	// Contract is empty for the native coin.
	Contract    string  `json:"contract,omitempty" yaml:"contract,omitempty" validate:"required_if=Native false,omitempty,eth_addr"`
	CoingeckoID string  `json:"coingeckoId,omitempty" yaml:"coingeckoId,omitempty"`
	Network     Network `json:"network" yaml:"-"`
}

// NetworkDescriptor describes a payment or settlement network. Descriptors are
// immutable once the registry is loaded; callers receive copies.
type NetworkDescriptor struct {
	ID              Network              `json:"id" yaml:"id" validate:"required"`
	Name            string               `json:"name" yaml:"name" validate:"required"`
	ChainID         int64                `json:"chainId" yaml:"chainId" validate:"gt=0"`
	RPCURL          string               `json:"-" yaml:"rpcUrl" validate:"omitempty,url"`
	ExplorerURL     string               `json:"explorerUrl" yaml:"explorerUrl" validate:"omitempty,url"`
	ReceivingWallet string               `json:"receivingWallet" yaml:"receivingWallet" validate:"omitempty,eth_addr"`
	Currencies      []CurrencyDescriptor `json:"currencies" yaml:"currencies" validate:"min=1,dive"`
}

// Clone returns a deep copy.
func (n NetworkDescriptor) Clone() NetworkDescriptor {
	c := n
	c.Currencies = append([]CurrencyDescriptor(nil), n.Currencies...)
	return c
}

// NativeCurrency returns the network's base coin.
func (n NetworkDescriptor) NativeCurrency() (CurrencyDescriptor, bool) {
	for _, c := range n.Currencies {
		if c.Native {
			return c, true
		}
	}
	return CurrencyDescriptor{}, false
}

// Currency looks a currency up by symbol, ignoring case.
func (n NetworkDescriptor) Currency(symbol string) (CurrencyDescriptor, bool) {
	for _, c := range n.Currencies {
		if strings.EqualFold(c.Symbol, symbol) {
			return c, true
		}
	}
	return CurrencyDescriptor{}, false
}

// Symbols lists the accepted currency symbols, native first.
func (n NetworkDescriptor) Symbols() []string {
	out := make([]string, 0, len(n.Currencies))
	if native, ok := n.NativeCurrency(); ok {
		out = append(out, native.Symbol)
	}
	for _, c := range n.Currencies {
		if !c.Native {
			out = append(out, c.Symbol)
		}
	}
	return out
}

// TxURL returns the block-explorer link for a transaction, or "" when the
// network has no explorer configured.
func (n NetworkDescriptor) TxURL(txHash string) string {
	if n.ExplorerURL == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/tx/" + txHash
}

// NetworkSummary is the public projection of a NetworkDescriptor.
type NetworkSummary struct {
	ID             Network  `json:"id"`
	Name           string   `json:"name"`
	ChainID        int64    `json:"chainId"`
	NativeCurrency string   `json:"nativeCurrency"`
	Currencies     []string `json:"currencies"`
	Testnet        bool     `json:"testnet"`
}

// Summary projects the descriptor for listing.
func (n NetworkDescriptor) Summary() NetworkSummary {
	native, _ := n.NativeCurrency()
	return NetworkSummary{
		ID:             n.ID,
		Name:           n.Name,
		ChainID:        n.ChainID,
		NativeCurrency: native.Symbol,
		Currencies:     n.Symbols(),
		Testnet:        n.ID.IsTestnet(),
	}
}
