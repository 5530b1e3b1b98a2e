package route

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"phorus/pkg/chains"
	"phorus/pkg/client"
	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/types"
)

type ServiceTestSuite struct {
	suite.Suite

	provider *mockProvider
	service  *Service
}

func TestRunServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) SetupTest() {
	s.provider = new(mockProvider)
	resolver := chains.NewResolver(chains.DefaultCatalog(), nil, 0)
	s.service = NewService(s.provider, resolver, WithSlippage(0.01))
}

func ordinaryIntent() types.TransferIntent {
	return types.TransferIntent{
		Amount:      "1",
		FromToken:   "USDC",
		ToToken:     "USDC",
		FromChain:   "arb",
		ToChain:     "opt",
		FromAddress: sender,
	}
}

func hyperliquidIntent() types.TransferIntent {
	intent := ordinaryIntent()
	intent.ToChain = "hpl"
	return intent
}

func (s *ServiceTestSuite) Test_FetchQuote_AdvancedRoute() {
	first := step("s1", "across", 42161, 10, optUSDC, false)
	resolved := step("s1", "across", 42161, 10, optUSDC, true)
	s.provider.On("GetRoutes", mock.Anything, mock.MatchedBy(func(req client.RoutesRequest) bool {
		return req.FromAmount == "1000000" && req.FromTokenAddress == arbUSDC && req.ToAddress == sender &&
			req.Options.Slippage == 0.01 && req.Options.ExecutionType == DefaultExecutionType
	})).Return([]types.Route{{ID: "r1", Steps: []types.Step{first}}}, nil)
	s.provider.On("GetStepTransaction", mock.Anything, first).Return(&resolved, nil)

	quote, err := s.service.FetchQuote(context.Background(), ordinaryIntent())

	s.Nil(err)
	s.Equal(types.StrategyAdvanced, quote.Strategy)
	s.Equal("r1", quote.RouteID)
	s.Equal(uint64(42161), quote.RequiredChainID())
	s.provider.AssertNotCalled(s.T(), "GetQuote", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) Test_FetchQuote_OrdinaryFallsBackToSimple() {
	s.provider.On("GetRoutes", mock.Anything, mock.Anything).Return([]types.Route{}, nil)
	simple := step("q1", "stargate", 42161, 10, optUSDC, true)
	s.provider.On("GetQuote", mock.Anything, mock.MatchedBy(func(req client.QuoteRequest) bool {
		return req.FromChainID == 42161 && req.ToChainID == 10 && req.FromAmount == "1000000"
	})).Return(&simple, nil)

	quote, err := s.service.FetchQuote(context.Background(), ordinaryIntent())

	s.Nil(err)
	s.Equal(types.StrategySimple, quote.Strategy)
	s.Equal("stargate", quote.Tool)
}

func (s *ServiceTestSuite) Test_FetchQuote_OrdinaryFallsBackOnProviderError() {
	s.provider.On("GetRoutes", mock.Anything, mock.Anything).Return(nil, &client.APIError{StatusCode: 500, Message: "boom"})
	simple := step("q1", "stargate", 42161, 10, optUSDC, true)
	s.provider.On("GetQuote", mock.Anything, mock.Anything).Return(&simple, nil)

	quote, err := s.service.FetchQuote(context.Background(), ordinaryIntent())

	s.Nil(err)
	s.Equal(types.StrategySimple, quote.Strategy)
}

func (s *ServiceTestSuite) Test_FetchQuote_MultiStepEmptyRoutesNeverFallsBack() {
	s.provider.On("GetRoutes", mock.Anything, mock.Anything).Return([]types.Route{}, nil)

	quote, err := s.service.FetchQuote(context.Background(), hyperliquidIntent())

	s.Nil(quote)
	s.ErrorIs(err, bridgeerrors.ErrNoRoute)
	s.Equal(bridgeerrors.KindRouting, bridgeerrors.KindOf(err))
	s.provider.AssertNotCalled(s.T(), "GetQuote", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) Test_FetchQuote_MultiStepProviderErrorNeverFallsBack() {
	s.provider.On("GetRoutes", mock.Anything, mock.Anything).Return(nil, errors.New("gateway timeout"))

	_, err := s.service.FetchQuote(context.Background(), hyperliquidIntent())

	s.ErrorIs(err, bridgeerrors.ErrNoRoute)
	s.provider.AssertNotCalled(s.T(), "GetQuote", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) Test_FetchQuote_MultiStepRoute() {
	bridgeLeg := step("s1", "relay", 42161, 42161, arbUSDC, false)
	deposit := step("s2", "hyperliquid", 42161, chains.HyperliquidChainID, perpsUSDC, false)
	resolved := step("s1", "relay", 42161, 42161, arbUSDC, true)
	s.provider.On("GetRoutes", mock.Anything, mock.MatchedBy(func(req client.RoutesRequest) bool {
		return req.ToChainID == chains.HyperliquidChainID && req.ToTokenAddress == perpsUSDC &&
			req.Options.ExecutionType == DefaultExecutionType
	})).Return([]types.Route{{
		ID:        "r-hpl",
		ToChainID: chains.HyperliquidChainID,
		ToToken:   types.Token{Address: perpsUSDC, Symbol: "USDC", Decimals: 6},
		ToAmount:  "995000",
		Steps:     []types.Step{bridgeLeg, deposit},
	}}, nil)
	s.provider.On("GetStepTransaction", mock.Anything, bridgeLeg).Return(&resolved, nil)

	quote, err := s.service.FetchQuote(context.Background(), hyperliquidIntent())

	s.Nil(err)
	s.Equal(2, quote.StepCount)
	s.Equal("995000", quote.Estimate.ToAmount)
	s.Equal(uint64(chains.HyperliquidChainID), quote.Action.ToChainID)
}

func (s *ServiceTestSuite) Test_FetchQuote_DestinationMismatchIsNotSubstituted() {
	deposit := step("s1", "hyperliquid", 42161, chains.HyperliquidChainID, spotUSDC, false)
	resolved := step("s1", "hyperliquid", 42161, chains.HyperliquidChainID, spotUSDC, true)
	s.provider.On("GetRoutes", mock.Anything, mock.Anything).Return([]types.Route{{ID: "r1", Steps: []types.Step{deposit}}}, nil)
	s.provider.On("GetStepTransaction", mock.Anything, deposit).Return(&resolved, nil)

	quote, err := s.service.FetchQuote(context.Background(), hyperliquidIntent())

	s.Nil(quote)
	s.ErrorIs(err, bridgeerrors.ErrDestinationMismatch)
	s.provider.AssertNotCalled(s.T(), "GetQuote", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) Test_FetchQuote_ChainMismatchRejected() {
	s.provider.On("GetRoutes", mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))
	wrongChain := step("q1", "stargate", 42161, 10, optUSDC, true)
	wrongChain.TransactionRequest.ChainID = 10
	s.provider.On("GetQuote", mock.Anything, mock.Anything).Return(&wrongChain, nil)

	quote, err := s.service.FetchQuote(context.Background(), ordinaryIntent())

	s.Nil(quote)
	s.ErrorIs(err, bridgeerrors.ErrChainMismatch)
}

func (s *ServiceTestSuite) Test_FetchQuote_AdvancedChainMismatchDoesNotFallBack() {
	first := step("s1", "across", 1, 10, optUSDC, false)
	resolved := step("s1", "across", 1, 10, optUSDC, true)
	s.provider.On("GetRoutes", mock.Anything, mock.Anything).Return([]types.Route{{ID: "r1", Steps: []types.Step{first}}}, nil)
	s.provider.On("GetStepTransaction", mock.Anything, first).Return(&resolved, nil)

	_, err := s.service.FetchQuote(context.Background(), ordinaryIntent())

	s.ErrorIs(err, bridgeerrors.ErrChainMismatch)
	s.provider.AssertNotCalled(s.T(), "GetQuote", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) Test_FetchQuote_InvalidInput() {
	intent := ordinaryIntent()
	intent.Amount = "0.0000001"

	_, err := s.service.FetchQuote(context.Background(), intent)
	s.ErrorIs(err, bridgeerrors.ErrInvalidInput)

	intent = ordinaryIntent()
	intent.FromToken = "NOPE"
	_, err = s.service.FetchQuote(context.Background(), intent)
	s.ErrorIs(err, bridgeerrors.ErrTokenNotFound)

	s.provider.AssertNotCalled(s.T(), "GetRoutes", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) Test_FetchQuote_ExecutionTypeOption() {
	resolver := chains.NewResolver(chains.DefaultCatalog(), nil, 0)
	service := NewService(s.provider, resolver, WithExecutionType("message"))
	first := step("s1", "across", 42161, 10, optUSDC, false)
	resolved := step("s1", "across", 42161, 10, optUSDC, true)
	s.provider.On("GetRoutes", mock.Anything, mock.MatchedBy(func(req client.RoutesRequest) bool {
		return req.Options.ExecutionType == "message"
	})).Return([]types.Route{{ID: "r1", Steps: []types.Step{first}}}, nil)
	s.provider.On("GetStepTransaction", mock.Anything, first).Return(&resolved, nil)

	_, err := service.FetchQuote(context.Background(), ordinaryIntent())

	s.Nil(err)
	s.provider.AssertExpectations(s.T())
}
