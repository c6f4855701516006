package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mohamed3773/MyCProject-sub000/types"
)

// NetworkOverride adjusts one built-in network. Empty fields keep the
// built-in value; a non-empty Currencies list replaces the built-in list.
type NetworkOverride struct {
	ID              types.Network              `yaml:"id"`
	Name            string                     `yaml:"name,omitempty"`
	RPCURL          string                     `yaml:"rpcUrl,omitempty"`
	ExplorerURL     string                     `yaml:"explorerUrl,omitempty"`
	ReceivingWallet string                     `yaml:"receivingWallet,omitempty"`
	Disabled        bool                       `yaml:"disabled,omitempty"`
	Currencies      []types.CurrencyDescriptor `yaml:"currencies,omitempty"`
}

// Overrides is the on-disk networks file.
type Overrides struct {
	Networks []NetworkOverride `yaml:"networks"`
}

// LoadOverrides reads a networks YAML file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks file: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes a networks YAML document.
func ParseOverrides(data []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse networks file: %w", err)
	}
	for i, n := range o.Networks {
		id, ok := types.ParseNetwork(string(n.ID))
		if !ok {
			return nil, fmt.Errorf("networks[%d]: %q: %w", i, n.ID, ErrNetworkNotFound)
		}
		o.Networks[i].ID = id
	}
	return &o, nil
}

// Apply merges the overrides into base and returns the result. base is not
// modified. Networks marked disabled are dropped.
func (o *Overrides) Apply(base []types.NetworkDescriptor) []types.NetworkDescriptor {
	if o == nil {
		return base
	}

	byID := make(map[types.Network]NetworkOverride, len(o.Networks))
	for _, n := range o.Networks {
		byID[n.ID] = n
	}

	out := make([]types.NetworkDescriptor, 0, len(base))
	for _, d := range base {
		d = d.Clone()
		ov, ok := byID[d.ID]
		if !ok {
			out = append(out, d)
			continue
		}
		if ov.Disabled {
			continue
		}
		if ov.Name != "" {
			d.Name = ov.Name
		}
		if ov.RPCURL != "" {
			d.RPCURL = ov.RPCURL
		}
		if ov.ExplorerURL != "" {
			d.ExplorerURL = ov.ExplorerURL
		}
		if ov.ReceivingWallet != "" {
			d.ReceivingWallet = ov.ReceivingWallet
		}
		if len(ov.Currencies) > 0 {
			d.Currencies = append([]types.CurrencyDescriptor(nil), ov.Currencies...)
		}
		out = append(out, d)
	}
	return out
}
