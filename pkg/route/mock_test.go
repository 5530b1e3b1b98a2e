package route

import (
	"context"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/mock"

	"phorus/pkg/client"
	"phorus/pkg/types"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetQuote(ctx context.Context, req client.QuoteRequest) (*types.Step, error) {
	args := m.Called(ctx, req)
	step, _ := args.Get(0).(*types.Step)
	return step, args.Error(1)
}

func (m *mockProvider) GetRoutes(ctx context.Context, req client.RoutesRequest) ([]types.Route, error) {
	args := m.Called(ctx, req)
	routes, _ := args.Get(0).([]types.Route)
	return routes, args.Error(1)
}

func (m *mockProvider) GetStepTransaction(ctx context.Context, step types.Step) (*types.Step, error) {
	args := m.Called(ctx, step)
	resolved, _ := args.Get(0).(*types.Step)
	return resolved, args.Error(1)
}

const (
	arbUSDC   = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	optUSDC   = "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"
	perpsUSDC = "0x00000000000000000000000000000000"
	spotUSDC  = "0x6d1e7cde53ba9467b783cb7c530ce054"
	diamond   = "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE"
	sender    = "0x2222222222222222222222222222222222222222"
)

func step(id, tool string, from, to uint64, toToken string, withTx bool) types.Step {
	s := types.Step{
		ID:   id,
		Type: "lifi",
		Tool: tool,
		Action: types.Action{
			FromChainID: from,
			ToChainID:   to,
			FromToken:   types.Token{Address: arbUSDC, Symbol: "USDC", Decimals: 6, ChainID: from},
			ToToken:     types.Token{Address: toToken, Symbol: "USDC", Decimals: 6, ChainID: to},
			FromAmount:  "1000000",
		},
		Estimate: types.Estimate{
			ToAmount:        "990000",
			ToAmountMin:     "980000",
			ApprovalAddress: diamond,
		},
	}
	if withTx {
		s.TransactionRequest = &types.TransactionRequest{To: diamond, ChainID: from, Data: "0x01"}
	}
	return s
}

func typedData(chainID int64) *apitypes.TypedData {
	return &apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {{Name: "name", Type: "string"}, {Name: "chainId", Type: "uint256"}},
			"Permit":       {{Name: "owner", Type: "address"}, {Name: "value", Type: "uint256"}},
		},
		PrimaryType: "Permit",
		Domain:      apitypes.TypedDataDomain{Name: "USD Coin", ChainId: math.NewHexOrDecimal256(chainID)},
		Message:     apitypes.TypedDataMessage{"owner": sender, "value": "1000000"},
	}
}
