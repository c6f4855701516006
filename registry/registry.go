// Package registry is the read-only catalog of supported payment networks,
// their currencies and receiving wallets.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/mohamed3773/MyCProject-sub000/utils"
)

var (
	// ErrNetworkNotFound is returned for an identifier outside the configured set.
	ErrNetworkNotFound = errors.New("network not found")

	// ErrCurrencyNotFound is returned when a network does not offer a currency.
	ErrCurrencyNotFound = errors.New("currency not offered on this network")
)

// Registry answers lookups over immutable network configuration. It performs
// no I/O, so unsupported combinations are rejected before any RPC call.
type Registry struct {
	networks map[types.Network]types.NetworkDescriptor
	order    []types.Network
}

// New validates the descriptors and builds a registry from them.
func New(descriptors []types.NetworkDescriptor) (*Registry, error) {
	r := &Registry{
		networks: make(map[types.Network]types.NetworkDescriptor, len(descriptors)),
	}

	for _, d := range descriptors {
		if _, ok := types.ParseNetwork(string(d.ID)); !ok {
			return nil, fmt.Errorf("network %q: %w", d.ID, ErrNetworkNotFound)
		}
		if _, dup := r.networks[d.ID]; dup {
			return nil, fmt.Errorf("network %q configured twice", d.ID)
		}
		if err := utils.Validator().Struct(&d); err != nil {
			return nil, fmt.Errorf("network %q: %w", d.ID, err)
		}

		d = d.Clone()
		natives := 0
		seen := make(map[string]bool, len(d.Currencies))
		for i := range d.Currencies {
			c := &d.Currencies[i]
			c.Network = d.ID
			key := strings.ToUpper(c.Symbol)
			if seen[key] {
				return nil, fmt.Errorf("network %q: currency %s listed twice", d.ID, c.Symbol)
			}
			seen[key] = true
			if c.Native {
				natives++
				c.Contract = ""
			}
		}
		if natives != 1 {
			return nil, fmt.Errorf("network %q: expected exactly one native currency, got %d", d.ID, natives)
		}

		r.networks[d.ID] = d
	}

	for _, n := range types.AllNetworks {
		if _, ok := r.networks[n]; ok {
			r.order = append(r.order, n)
		}
	}

	return r, nil
}

// ListNetworks returns every configured network in display order.
func (r *Registry) ListNetworks() []types.NetworkDescriptor {
	out := make([]types.NetworkDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.networks[id].Clone())
	}
	return out
}

// GetNetwork returns the descriptor for id.
func (r *Registry) GetNetwork(id types.Network) (types.NetworkDescriptor, error) {
	d, ok := r.networks[id]
	if !ok {
		return types.NetworkDescriptor{}, fmt.Errorf("%s: %w", id, ErrNetworkNotFound)
	}
	return d.Clone(), nil
}

// GetCurrency returns the currency offered on a network under symbol.
func (r *Registry) GetCurrency(id types.Network, symbol string) (types.CurrencyDescriptor, error) {
	d, ok := r.networks[id]
	if !ok {
		return types.CurrencyDescriptor{}, fmt.Errorf("%s: %w", id, ErrNetworkNotFound)
	}
	c, ok := d.Currency(symbol)
	if !ok {
		return types.CurrencyDescriptor{}, fmt.Errorf("%s on %s: %w", symbol, id, ErrCurrencyNotFound)
	}
	return c, nil
}

// Validate rejects an unknown network or a currency the network does not offer.
func (r *Registry) Validate(id types.Network, symbol string) error {
	if _, err := r.GetCurrency(id, symbol); err != nil {
		code := types.ErrCodeUnsupportedCurrency
		if errors.Is(err, ErrNetworkNotFound) {
			code = types.ErrCodeUnsupportedNetwork
		}
		return &types.MarketError{
			Code:    code,
			Step:    types.StepQuote,
			Message: fmt.Sprintf("unsupported network/currency combination: %v", err),
		}
	}
	return nil
}

// PriceIDs maps every configured currency symbol to its price-feed identifier.
// A symbol offered on several networks appears once.
func (r *Registry) PriceIDs() map[string]string {
	ids := make(map[string]string)
	for _, id := range r.order {
		for _, c := range r.networks[id].Currencies {
			if c.CoingeckoID != "" {
				ids[strings.ToUpper(c.Symbol)] = c.CoingeckoID
			}
		}
	}
	return ids
}
