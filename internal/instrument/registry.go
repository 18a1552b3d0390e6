package instrument

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Class groups assets for allocation targets.
type Class string

const (
	ClassCrypto     Class = "crypto"
	ClassStablecoin Class = "stablecoin"
	ClassFiat       Class = "fiat"
)

// Chain names a settlement network. Centralized venues settle OffChain.
type Chain string

const (
	OffChain Chain = ""
	Ethereum Chain = "ethereum"
	BSC      Chain = "bsc"
	Solana   Chain = "solana"
	Arbitrum Chain = "arbitrum"
)

// Asset is a single currency or token.
type Asset struct {
	Symbol   string
	Name     string
	Class    Class
	Chain    Chain
	Address  common.Address // zero for native coins and off-chain assets
	Decimals uint8
}

// IsToken reports whether the asset is a contract token.
func (a Asset) IsToken() bool { return a.Address != (common.Address{}) }

// Registry maps asset symbols and venue names to their metadata.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]Asset
	venues map[string]Chain
}

func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[string]Asset),
		venues: make(map[string]Chain),
	}
}

// Register adds an asset. Duplicate symbols are rejected.
func (r *Registry) Register(a Asset) error {
	a.Symbol = strings.ToUpper(a.Symbol)
	if a.Symbol == "" {
		return fmt.Errorf("instrument: empty asset symbol")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[a.Symbol]; ok {
		return fmt.Errorf("instrument: asset %s already registered", a.Symbol)
	}
	r.assets[a.Symbol] = a
	return nil
}

// RegisterVenue records which chain a venue settles on.
func (r *Registry) RegisterVenue(venue string, chain Chain) {
	r.mu.Lock()
	r.venues[strings.ToLower(venue)] = chain
	r.mu.Unlock()
}

func (r *Registry) Asset(symbol string) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[strings.ToUpper(symbol)]
	return a, ok
}

// ClassOf returns the asset's class, treating unknown assets as crypto.
func (r *Registry) ClassOf(symbol string) Class {
	if a, ok := r.Asset(symbol); ok {
		return a.Class
	}
	return ClassCrypto
}

// VenueChain returns the chain a venue settles on; unknown venues are off-chain.
func (r *Registry) VenueChain(venue string) Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.venues[strings.ToLower(venue)]
}

// CrossChain reports whether a trade between two venues spans settlement
// networks.
func (r *Registry) CrossChain(buyVenue, sellVenue string) bool {
	a, b := r.VenueChain(buyVenue), r.VenueChain(sellVenue)
	return a != OffChain && b != OffChain && a != b
}

// SplitCompact resolves an exchange symbol like ETHUSDT using registered
// stablecoin and crypto quote assets, longest quote first.
func (r *Registry) SplitCompact(compact string) (Symbol, bool) {
	compact = strings.ToUpper(compact)

	r.mu.RLock()
	quotes := make([]string, 0, len(r.assets))
	for sym := range r.assets {
		quotes = append(quotes, sym)
	}
	r.mu.RUnlock()

	sort.Slice(quotes, func(i, j int) bool {
		if len(quotes[i]) != len(quotes[j]) {
			return len(quotes[i]) > len(quotes[j])
		}
		return quotes[i] < quotes[j]
	})

	for _, q := range quotes {
		if base, ok := strings.CutSuffix(compact, q); ok && base != "" {
			return Symbol{Base: base, Quote: q}, true
		}
	}
	return Symbol{}, false
}

// DefaultRegistry returns a registry with common assets and venues.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []Asset{
		{Symbol: "BTC", Name: "Bitcoin", Class: ClassCrypto, Decimals: 8},
		{Symbol: "ETH", Name: "Ethereum", Class: ClassCrypto, Chain: Ethereum, Decimals: 18},
		{Symbol: "SOL", Name: "Solana", Class: ClassCrypto, Chain: Solana, Decimals: 9},
		{Symbol: "BNB", Name: "BNB", Class: ClassCrypto, Chain: BSC, Decimals: 18},
		{Symbol: "WBTC", Name: "Wrapped Bitcoin", Class: ClassCrypto, Chain: Ethereum,
			Address: common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"), Decimals: 8},
		{Symbol: "USDT", Name: "Tether USD", Class: ClassStablecoin, Chain: Ethereum,
			Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Decimals: 6},
		{Symbol: "USDC", Name: "USD Coin", Class: ClassStablecoin, Chain: Ethereum,
			Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6},
		{Symbol: "USD", Name: "US Dollar", Class: ClassFiat, Decimals: 2},
	} {
		_ = r.Register(a)
	}

	for venue, chain := range map[string]Chain{
		"binance":     OffChain,
		"coinbase":    OffChain,
		"kraken":      OffChain,
		"uniswap":     Ethereum,
		"pancakeswap": BSC,
		"raydium":     Solana,
		"camelot":     Arbitrum,
	} {
		r.RegisterVenue(venue, chain)
	}
	return r
}
