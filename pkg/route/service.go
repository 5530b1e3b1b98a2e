package route

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"phorus/pkg/chains"
	"phorus/pkg/client"
	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/metrics"
	"phorus/pkg/types"
)

// Provider is the routing API. client.LifiClient implements it.
type Provider interface {
	GetQuote(ctx context.Context, req client.QuoteRequest) (*types.Step, error)
	GetRoutes(ctx context.Context, req client.RoutesRequest) ([]types.Route, error)
	GetStepTransaction(ctx context.Context, step types.Step) (*types.Step, error)
}

// DefaultExecutionType asks the provider for transaction and signed message routes.
const DefaultExecutionType = "all"

// Option configures a Service.
type Option func(*Service)

// WithSlippage sets the slippage tolerance sent with every request.
func WithSlippage(slippage float64) Option {
	return func(s *Service) { s.slippage = slippage }
}

// WithExecutionType sets which step kinds the advanced strategy accepts
// ("all", "transaction" or "message").
func WithExecutionType(executionType string) Option {
	return func(s *Service) {
		if executionType != "" {
			s.executionType = executionType
		}
	}
}

// WithMetrics records quote outcomes on m.
func WithMetrics(m *metrics.BridgeMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service turns transfer intents into executable quotes.
type Service struct {
	provider Provider
	resolver *chains.Resolver
	slippage float64
	metrics  *metrics.BridgeMetrics

	executionType string
}

// NewService creates a quote service on top of the routing provider.
func NewService(provider Provider, resolver *chains.Resolver, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		resolver: resolver,
		slippage: 0.005,

		executionType: DefaultExecutionType,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type resolvedIntent struct {
	intent      types.TransferIntent
	fromChain   chains.Chain
	toChain     chains.Chain
	fromToken   types.Token
	toToken     types.Token
	amountUnits string
}

// FetchQuote resolves the intent's tokens and acquires one executable quote.
// Multi-step destinations only use the advanced strategy; ordinary destinations
// fall back to the simple quote when the advanced strategy fails or is empty.
func (s *Service) FetchQuote(ctx context.Context, intent types.TransferIntent) (*types.Quote, error) {
	quote, err := s.fetchQuote(ctx, intent)
	if err != nil {
		s.metrics.QuoteFailed(string(bridgeerrors.KindOf(err)))
		return nil, err
	}
	s.metrics.QuoteFetched(string(quote.Strategy))
	return quote, nil
}

func (s *Service) fetchQuote(ctx context.Context, intent types.TransferIntent) (*types.Quote, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	resolved, err := s.resolve(ctx, intent)
	if err != nil {
		return nil, err
	}

	if resolved.toChain.MultiStep {
		quote, err := s.advanced(ctx, resolved)
		if err != nil {
			log.Debug().Err(err).Msgf("Advanced routing to %s failed, no fallback for multi-step destinations", resolved.toChain.Key)
			if !isProviderFailure(err) {
				return nil, err
			}
			return nil, fmt.Errorf("%w to %s: %w", bridgeerrors.ErrNoRoute, resolved.toChain.Name, err)
		}
		return quote, nil
	}

	quote, err := s.advanced(ctx, resolved)
	if err == nil {
		return quote, nil
	}
	if errors.Is(err, bridgeerrors.ErrChainMismatch) || errors.Is(err, context.Canceled) {
		return nil, err
	}
	log.Debug().Err(err).Msg("Advanced routing failed, falling back to simple quote")

	return s.simple(ctx, resolved)
}

func (s *Service) resolve(ctx context.Context, intent types.TransferIntent) (*resolvedIntent, error) {
	catalog := s.resolver.Catalog()
	fromChain, err := catalog.Chain(intent.FromChain)
	if err != nil {
		return nil, err
	}
	toChain, err := catalog.Chain(intent.ToChain)
	if err != nil {
		return nil, err
	}
	fromToken, err := s.resolver.ResolveToken(ctx, fromChain.Key, intent.FromToken)
	if err != nil {
		return nil, err
	}
	toToken, err := s.resolver.ResolveToken(ctx, toChain.Key, intent.ToToken)
	if err != nil {
		return nil, err
	}
	units, err := types.ToBaseUnits(intent.Amount, fromToken.Decimals)
	if err != nil {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrInvalidInput, "amount %s", intent.Amount)
	}
	if units.Sign() <= 0 {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrInvalidInput, "amount %s is below the token precision", intent.Amount)
	}

	return &resolvedIntent{
		intent:      intent,
		fromChain:   fromChain,
		toChain:     toChain,
		fromToken:   fromToken,
		toToken:     toToken,
		amountUnits: units.String(),
	}, nil
}

func (s *Service) advanced(ctx context.Context, r *resolvedIntent) (*types.Quote, error) {
	candidates, err := s.provider.GetRoutes(ctx, client.RoutesRequest{
		FromChainID:      r.fromChain.ID,
		FromTokenAddress: r.fromToken.Address,
		FromAmount:       r.amountUnits,
		FromAddress:      r.intent.FromAddress,
		ToChainID:        r.toChain.ID,
		ToTokenAddress:   r.toToken.Address,
		ToAddress:        r.intent.Recipient(),
		Options: client.RouteOptions{
			Slippage:      s.slippage,
			Order:         "RECOMMENDED",
			ExecutionType: s.executionType,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrNoRoute, "%s %s to %s on %s", r.fromToken.Symbol, r.fromChain.Name, r.toToken.Symbol, r.toChain.Name)
	}

	selected, err := SelectRoute(candidates, r.fromChain.ID, r.toChain)
	if err != nil {
		return nil, err
	}

	resolved, err := s.provider.GetStepTransaction(ctx, selected.Steps[0])
	if err != nil {
		return nil, err
	}
	if r.toChain.MultiStep {
		if err := checkDestination(*selected, *resolved, r.toChain, r.toToken); err != nil {
			return nil, err
		}
	}

	quote, err := Normalize(*resolved, types.StrategyAdvanced)
	if err != nil {
		return nil, err
	}
	quote.RouteID = selected.ID
	quote.StepCount = len(selected.Steps)
	if len(selected.Steps) > 1 {
		// Show the end-to-end outcome, not the first leg's.
		if selected.ToAmount != "" {
			quote.Estimate.ToAmount = selected.ToAmount
			quote.Estimate.ToAmountMin = selected.ToAmountMin
		}
		if selected.ToToken.Address != "" {
			quote.Action.ToToken = selected.ToToken
		}
		quote.Action.ToChainID = selected.ToChainID
	}

	if err := checkSourceChain(quote, r.fromChain); err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *Service) simple(ctx context.Context, r *resolvedIntent) (*types.Quote, error) {
	step, err := s.provider.GetQuote(ctx, client.QuoteRequest{
		FromChainID: r.fromChain.ID,
		ToChainID:   r.toChain.ID,
		FromToken:   r.fromToken.Address,
		ToToken:     r.toToken.Address,
		FromAmount:  r.amountUnits,
		FromAddress: r.intent.FromAddress,
		ToAddress:   r.intent.Recipient(),
		Slippage:    s.slippage,
	})
	if err != nil {
		return nil, err
	}

	quote, err := Normalize(*step, types.StrategySimple)
	if err != nil {
		return nil, err
	}
	if err := checkSourceChain(quote, r.fromChain); err != nil {
		return nil, err
	}
	return quote, nil
}

// checkDestination verifies the resolved step still lands on the requested
// destination token. The payload is never rewritten to fix a mismatch.
func checkDestination(route types.Route, resolved types.Step, destination chains.Chain, want types.Token) error {
	got := resolved.Action.ToToken
	if resolved.Action.ToChainID != destination.ID && len(route.Steps) > 1 {
		got = route.ToToken
		if final := route.FinalStep(); got.Address == "" && final != nil {
			got = final.Action.ToToken
		}
	}
	if got.Address == "" || types.SameAddress(got.Address, want.Address) {
		return nil
	}
	return bridgeerrors.Newf(bridgeerrors.ErrDestinationMismatch, "route delivers %s (%s), requested %s (%s)", got.Symbol, got.Address, want.Symbol, want.Address)
}

func checkSourceChain(quote *types.Quote, fromChain chains.Chain) error {
	if quote.Action.FromChainID != 0 && quote.Action.FromChainID != fromChain.ID {
		return bridgeerrors.Newf(bridgeerrors.ErrChainMismatch, "quote starts on chain %d, transfer starts on %s", quote.Action.FromChainID, fromChain.Name)
	}
	if required := quote.RequiredChainID(); required != fromChain.ID {
		return bridgeerrors.Newf(bridgeerrors.ErrChainMismatch, "quote executes on chain %d, transfer starts on %s", required, fromChain.Name)
	}
	return nil
}

// isProviderFailure reports whether err came from the provider itself rather
// than from validating what it returned.
func isProviderFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, bridgeerrors.ErrNoRoute) {
		return false
	}
	switch bridgeerrors.KindOf(err) {
	case bridgeerrors.KindChainMismatch, bridgeerrors.KindMissingTransaction:
		return false
	}
	return !errors.Is(err, bridgeerrors.ErrDestinationMismatch)
}
