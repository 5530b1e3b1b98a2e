package chains

import (
	"sort"
	"strings"

	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/types"
)

// Hyperliquid identifiers as used by the routing provider.
const (
	HyperliquidKey     = "hpl"
	HyperliquidChainID = 1337
	HyperEVMChainID    = 999
)

// Chain is a static chain entry. Tokens are keyed by upper-case symbol.
type Chain struct {
	Key            string
	ID             uint64
	Name           string
	NativeSymbol   string
	NativeAddress  string
	NativeDecimals int
	Tokens         map[string]types.Token
	// Aliases maps a symbol to the names the registry may list it under.
	Aliases map[string][]string

	// MultiStep destinations can only be reached through the advanced routing strategy.
	MultiStep         bool
	SettlementChainID uint64
	RoutingTools      []string
	SpotVariants      bool
}

// Native returns the chain's gas asset as a token.
func (c Chain) Native() types.Token {
	address := c.NativeAddress
	if address == "" {
		address = types.NativeTokenAddress
	}
	return types.Token{
		Address:  address,
		Symbol:   c.NativeSymbol,
		Name:     c.NativeSymbol,
		Decimals: c.NativeDecimals,
		ChainID:  c.ID,
	}
}

// IsNative reports whether symbol is the chain's gas asset.
func (c Chain) IsNative(symbol string) bool {
	return c.NativeSymbol != "" && strings.EqualFold(strings.TrimSpace(symbol), c.NativeSymbol)
}

// IsNativeAddress reports whether address is the chain's native sentinel.
func (c Chain) IsNativeAddress(address string) bool {
	return types.SameAddress(address, c.Native().Address)
}

// Catalog is the read-only chain table. It is safe for concurrent use.
type Catalog struct {
	chains map[string]Chain
	byID   map[uint64]string
}

// NewCatalog copies the given chains into an immutable catalog.
func NewCatalog(chains ...Chain) *Catalog {
	c := &Catalog{
		chains: make(map[string]Chain, len(chains)),
		byID:   make(map[uint64]string, len(chains)),
	}
	for _, chain := range chains {
		key := strings.ToLower(chain.Key)
		chain.Key = key

		tokens := make(map[string]types.Token, len(chain.Tokens))
		for symbol, token := range chain.Tokens {
			token.ChainID = chain.ID
			if token.Symbol == "" {
				token.Symbol = symbol
			}
			tokens[strings.ToUpper(symbol)] = token
		}
		chain.Tokens = tokens

		aliases := make(map[string][]string, len(chain.Aliases))
		for symbol, names := range chain.Aliases {
			aliases[strings.ToUpper(symbol)] = append([]string(nil), names...)
		}
		chain.Aliases = aliases
		chain.RoutingTools = append([]string(nil), chain.RoutingTools...)

		c.chains[key] = chain
		c.byID[chain.ID] = key
	}
	return c
}

// Chain looks a chain up by its routing key.
func (c *Catalog) Chain(key string) (Chain, error) {
	chain, ok := c.chains[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return Chain{}, bridgeerrors.Newf(bridgeerrors.ErrUnsupportedChain, "chain %q", key)
	}
	return chain, nil
}

// ChainByID looks a chain up by its numeric id.
func (c *Catalog) ChainByID(id uint64) (Chain, error) {
	key, ok := c.byID[id]
	if !ok {
		return Chain{}, bridgeerrors.Newf(bridgeerrors.ErrUnsupportedChain, "chain id %d", id)
	}
	return c.chains[key], nil
}

// Chains returns all chains ordered by key.
func (c *Catalog) Chains() []Chain {
	chains := make([]Chain, 0, len(c.chains))
	for _, chain := range c.chains {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].Key < chains[j].Key })
	return chains
}

// DefaultCatalog is the built-in mainnet table.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Chain{
			Key: "eth", ID: 1, Name: "Ethereum",
			NativeSymbol: "ETH", NativeDecimals: 18,
			Tokens: map[string]types.Token{
				"USDC": {Symbol: "USDC", Name: "USD Coin", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
				"USDT": {Symbol: "USDT", Name: "Tether USD", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
				"WETH": {Symbol: "WETH", Name: "Wrapped Ether", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
				"DAI":  {Symbol: "DAI", Name: "Dai Stablecoin", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
			},
		},
		Chain{
			Key: "arb", ID: 42161, Name: "Arbitrum",
			NativeSymbol: "ETH", NativeDecimals: 18,
			Tokens: map[string]types.Token{
				"USDC": {Symbol: "USDC", Name: "USD Coin", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
				"USDT": {Symbol: "USDT", Name: "Tether USD", Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6},
				"WETH": {Symbol: "WETH", Name: "Wrapped Ether", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
			},
		},
		Chain{
			Key: "opt", ID: 10, Name: "Optimism",
			NativeSymbol: "ETH", NativeDecimals: 18,
			Tokens: map[string]types.Token{
				"USDC": {Symbol: "USDC", Name: "USD Coin", Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
				"USDT": {Symbol: "USDT", Name: "Tether USD", Address: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", Decimals: 6},
				"WETH": {Symbol: "WETH", Name: "Wrapped Ether", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
			},
		},
		Chain{
			Key: "bas", ID: 8453, Name: "Base",
			NativeSymbol: "ETH", NativeDecimals: 18,
			Tokens: map[string]types.Token{
				"USDC": {Symbol: "USDC", Name: "USD Coin", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
				"WETH": {Symbol: "WETH", Name: "Wrapped Ether", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
			},
		},
		Chain{
			Key: "pol", ID: 137, Name: "Polygon",
			NativeSymbol: "POL", NativeDecimals: 18,
			Tokens: map[string]types.Token{
				"USDC": {Symbol: "USDC", Name: "USD Coin", Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
				"USDT": {Symbol: "USDT", Name: "Tether USD", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
				"WETH": {Symbol: "WETH", Name: "Wrapped Ether", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
			},
		},
		Chain{
			Key: "hye", ID: HyperEVMChainID, Name: "HyperEVM",
			NativeSymbol: "HYPE", NativeDecimals: 18,
			Tokens: map[string]types.Token{
				"USDT0": {Symbol: "USDT0", Name: "USDT0", Address: "0xB8CE59FC3717ada4C02eaDF9682A9e934F625ebb", Decimals: 6},
			},
			Aliases: map[string][]string{
				"USDT": {"USDT0", "USD₮0"},
			},
		},
		Chain{
			Key: HyperliquidKey, ID: HyperliquidChainID, Name: "Hyperliquid",
			// USDC on the perps account is the venue's settlement asset.
			NativeSymbol:   "USDC",
			NativeAddress:  "0x00000000000000000000000000000000",
			NativeDecimals: 6,
			Tokens: map[string]types.Token{
				"USDC-SPOT": {Symbol: "USDC-SPOT", Name: "USD Coin (Spot)", Address: "0x6d1e7cde53ba9467b783cb7c530ce054", Decimals: 8},
			},
			Aliases: map[string][]string{
				"USDC-SPOT": {"USDC"},
				"ETH":       {"UETH"},
				"BTC":       {"UBTC"},
			},
			MultiStep:         true,
			SettlementChainID: HyperliquidChainID,
			RoutingTools:      []string{"hyperliquid"},
			SpotVariants:      true,
		},
	)
}
