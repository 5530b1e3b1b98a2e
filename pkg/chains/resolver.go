package chains

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/types"
)

const defaultRegistryTTL = 5 * time.Minute

// Registry is the remote token registry consulted when the catalog has no entry.
// Token returns bridgeerrors.ErrTokenNotFound when the registry has no match.
type Registry interface {
	Token(ctx context.Context, chainID uint64, symbol string) (*types.Token, error)
	Tokens(ctx context.Context, chainID uint64) ([]types.Token, error)
}

// Resolver maps (chain, symbol) pairs to token addresses.
type Resolver struct {
	catalog  *Catalog
	registry Registry
	cache    *ttlcache.Cache[string, types.Token]
}

// NewResolver creates a resolver over catalog. Registry lookups are cached for ttl.
func NewResolver(catalog *Catalog, registry Registry, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = defaultRegistryTTL
	}
	return &Resolver{
		catalog:  catalog,
		registry: registry,
		cache: ttlcache.New[string, types.Token](
			ttlcache.WithTTL[string, types.Token](ttl),
			ttlcache.WithDisableTouchOnHit[string, types.Token](),
		),
	}
}

func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// ResolveTokenAddress returns the on-chain address for symbol on chainKey.
func (r *Resolver) ResolveTokenAddress(ctx context.Context, chainKey, symbol string) (string, error) {
	token, err := r.ResolveToken(ctx, chainKey, symbol)
	if err != nil {
		return "", err
	}
	return token.Address, nil
}

// ResolveToken resolves symbol on chainKey. Order: native asset, exact catalog,
// case-insensitive catalog, registry by symbol and variants, registry scan.
func (r *Resolver) ResolveToken(ctx context.Context, chainKey, symbol string) (types.Token, error) {
	chain, err := r.catalog.Chain(chainKey)
	if err != nil {
		return types.Token{}, err
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return types.Token{}, bridgeerrors.Newf(bridgeerrors.ErrInvalidInput, "token symbol is required")
	}

	if chain.IsNative(symbol) {
		return chain.Native(), nil
	}

	if token, ok := chain.Tokens[symbol]; ok && !IsPlaceholderAddress(token.Address) {
		return token, nil
	}
	for key, token := range chain.Tokens {
		if strings.EqualFold(key, symbol) && !IsPlaceholderAddress(token.Address) {
			return token, nil
		}
	}

	if r.registry == nil {
		return types.Token{}, notFound(chain, symbol)
	}

	cacheKey := fmt.Sprintf("%d:%s", chain.ID, strings.ToUpper(symbol))
	if item := r.cache.Get(cacheKey); item != nil {
		return item.Value(), nil
	}

	token, err := r.fromRegistry(ctx, chain, symbol)
	if err != nil {
		return types.Token{}, err
	}
	r.cache.Set(cacheKey, token, ttlcache.DefaultTTL)
	return token, nil
}

func (r *Resolver) fromRegistry(ctx context.Context, chain Chain, symbol string) (types.Token, error) {
	var transportErr error

	for _, variant := range symbolVariants(chain, symbol) {
		token, err := r.registry.Token(ctx, chain.ID, variant)
		if err != nil {
			if !errors.Is(err, bridgeerrors.ErrTokenNotFound) {
				log.Debug().Err(err).Msgf("Registry lookup of %s on %s failed", variant, chain.Key)
				transportErr = err
			}
			continue
		}
		if token == nil || IsPlaceholderAddress(token.Address) || chain.IsNativeAddress(token.Address) {
			continue
		}
		resolved := *token
		resolved.ChainID = chain.ID
		return resolved, nil
	}

	tokens, err := r.registry.Tokens(ctx, chain.ID)
	if err != nil {
		return types.Token{}, fmt.Errorf("resolve %s on %s: %w", symbol, chain.Key, errors.Join(bridgeerrors.ErrProvider, err))
	}
	if token, ok := scan(chain, symbol, tokens); ok {
		token.ChainID = chain.ID
		return token, nil
	}

	if transportErr != nil {
		log.Warn().Err(transportErr).Msgf("Registry partially unavailable while resolving %s on %s", symbol, chain.Key)
	}
	return types.Token{}, notFound(chain, symbol)
}

func symbolVariants(chain Chain, symbol string) []string {
	variants := []string{symbol}
	if !chain.SpotVariants {
		return variants
	}
	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, "-SPOT") {
		return append(variants, strings.TrimSuffix(upper, "-SPOT"))
	}
	return append(variants, upper+"-SPOT", upper+"SPOT")
}

// scan matches by exact symbol, then alias, then substring; first hit in registry order.
func scan(chain Chain, symbol string, tokens []types.Token) (types.Token, bool) {
	candidates := make([]types.Token, 0, len(tokens))
	for _, token := range tokens {
		if token.Address == "" || IsPlaceholderAddress(token.Address) || chain.IsNativeAddress(token.Address) {
			continue
		}
		candidates = append(candidates, token)
	}

	for _, token := range candidates {
		if strings.EqualFold(token.Symbol, symbol) {
			return token, true
		}
	}
	for _, alias := range chain.Aliases[strings.ToUpper(symbol)] {
		for _, token := range candidates {
			if strings.EqualFold(token.Symbol, alias) {
				return token, true
			}
		}
	}
	upper := strings.ToUpper(symbol)
	for _, token := range candidates {
		if strings.Contains(strings.ToUpper(token.Symbol), upper) {
			return token, true
		}
	}
	return types.Token{}, false
}

// IsPlaceholderAddress reports whether address is a 0x prefix followed only by zeros.
func IsPlaceholderAddress(address string) bool {
	if len(address) <= 2 || !strings.HasPrefix(strings.ToLower(address), "0x") {
		return false
	}
	return strings.Trim(address[2:], "0") == ""
}

func notFound(chain Chain, symbol string) error {
	return &bridgeerrors.BridgeError{
		Kind:    bridgeerrors.KindUnsupportedAsset,
		Message: fmt.Sprintf("%s not available on %s", symbol, chain.Name),
		Err:     bridgeerrors.ErrTokenNotFound,
	}
}
