package registry

import "github.com/mohamed3773/MyCProject-sub000/types"

// Default returns the built-in network table. RPC endpoints and receiving
// wallets are deployment specific and arrive through overrides.
func Default() []types.NetworkDescriptor {
	return []types.NetworkDescriptor{
		{
			ID:          types.NetworkEthereum,
			Name:        "Ethereum",
			ChainID:     1,
			ExplorerURL: "https://etherscan.io",
			Currencies: []types.CurrencyDescriptor{
				{Symbol: "ETH", Decimals: 18, Native: true, CoingeckoID: "ethereum"},
				{Symbol: "USDC", Decimals: 6, Contract: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", CoingeckoID: "usd-coin"},
				{Symbol: "USDT", Decimals: 6, Contract: "0xdAC17F958D2ee523a2206206994597C13D831ec7", CoingeckoID: "tether"},
			},
		},
		{
			ID:          types.NetworkPolygon,
			Name:        "Polygon PoS",
			ChainID:     137,
			ExplorerURL: "https://polygonscan.com",
			Currencies: []types.CurrencyDescriptor{
				{Symbol: "POL", Decimals: 18, Native: true, CoingeckoID: "polygon-ecosystem-token"},
				{Symbol: "USDC", Decimals: 6, Contract: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", CoingeckoID: "usd-coin"},
			},
		},
		{
			ID:          types.NetworkBase,
			Name:        "Base",
			ChainID:     8453,
			ExplorerURL: "https://basescan.org",
			Currencies: []types.CurrencyDescriptor{
				{Symbol: "ETH", Decimals: 18, Native: true, CoingeckoID: "ethereum"},
				{Symbol: "USDC", Decimals: 6, Contract: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", CoingeckoID: "usd-coin"},
			},
		},
		{
			ID:          types.NetworkBSC,
			Name:        "BNB Smart Chain",
			ChainID:     56,
			ExplorerURL: "https://bscscan.com",
			Currencies: []types.CurrencyDescriptor{
				{Symbol: "BNB", Decimals: 18, Native: true, CoingeckoID: "binancecoin"},
				{Symbol: "USDT", Decimals: 18, Contract: "0x55d398326f99059fF775485246999027B3197955", CoingeckoID: "tether"},
			},
		},
		{
			ID:          types.NetworkCronos,
			Name:        "Cronos",
			ChainID:     25,
			ExplorerURL: "https://cronoscan.com",
			Currencies: []types.CurrencyDescriptor{
				{Symbol: "CRO", Decimals: 18, Native: true, CoingeckoID: "crypto-com-chain"},
			},
		},
		{
			ID:          types.NetworkSepolia,
			Name:        "Sepolia",
			ChainID:     11155111,
			ExplorerURL: "https://sepolia.etherscan.io",
			Currencies: []types.CurrencyDescriptor{
				{Symbol: "ETH", Decimals: 18, Native: true, CoingeckoID: "ethereum"},
			},
		},
	}
}
