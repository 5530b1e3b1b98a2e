package approval

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"phorus/pkg/chains"
	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/types"
)

const erc20ApproveABI = `[{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// Context ties an approval transaction to the binding tuple of one quote.
type Context struct {
	Spender string
	Token   string
	Amount  string
	TxHash  string
}

func (c *Context) Binding() types.Binding {
	return types.Binding{Spender: c.Spender, Token: c.Token, Amount: c.Amount}
}

// Matches reports whether the context is bound to the quote's tuple.
func (c *Context) Matches(quote *types.Quote) bool {
	return c != nil && quote != nil && c.Binding().Equal(quote.Binding())
}

// NeedsApproval is true when the quote names a spender and the source token is
// not the chain's native asset.
func NeedsApproval(quote *types.Quote) bool {
	if quote == nil || strings.TrimSpace(quote.Estimate.ApprovalAddress) == "" {
		return false
	}
	return !isNative(quote.Action.FromToken.Address)
}

func isNative(address string) bool {
	return address == "" || chains.IsPlaceholderAddress(address)
}

// Bind creates an unsubmitted context for the quote.
func Bind(quote *types.Quote) *Context {
	binding := quote.Binding()
	return &Context{
		Spender: binding.Spender,
		Token:   binding.Token,
		Amount:  binding.Amount,
	}
}

// RecordSubmission attaches txHash to a copy of ctx if ctx still matches the live
// quote. A mismatch means the quote moved on while the wallet was busy.
func RecordSubmission(ctx *Context, txHash string, live *types.Quote) (*Context, error) {
	if ctx == nil || !ctx.Matches(live) {
		log.Warn().Msgf("Dropping approval %s: binding no longer matches the current quote", txHash)
		return nil, staleApproval()
	}
	if txHash == "" {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrInvalidInput, "empty approval transaction hash")
	}
	recorded := *ctx
	recorded.TxHash = txHash
	return &recorded, nil
}

func staleApproval() error {
	return &bridgeerrors.BridgeError{
		Kind: bridgeerrors.KindStale,
		Err:  fmt.Errorf("%w: %w", bridgeerrors.ErrStale, bridgeerrors.ErrApprovalMismatch),
	}
}

// IsSatisfied requires the bound tuple to equal the quote's, a recorded hash equal
// to liveHash, and confirmation of that hash.
func IsSatisfied(ctx *Context, quote *types.Quote, liveHash string, confirmed bool) bool {
	if !ctx.Matches(quote) {
		return false
	}
	if ctx.TxHash == "" || !strings.EqualFold(ctx.TxHash, liveHash) {
		return false
	}
	return confirmed
}

// ApproveCalldata encodes ERC-20 approve(spender, amount).
func ApproveCalldata(spender string, amount string) ([]byte, error) {
	if !common.IsHexAddress(spender) {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrInvalidInput, "invalid spender address %s", spender)
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() < 0 {
		return nil, bridgeerrors.Newf(bridgeerrors.ErrInvalidInput, "invalid approval amount %s", amount)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ApproveABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	data, err := parsedABI.Pack("approve", common.HexToAddress(spender), value)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve data: %w", err)
	}
	return data, nil
}

// ApproveRequest builds the approval transaction for ctx on chainID.
func ApproveRequest(ctx *Context, from string, chainID uint64) (types.TransactionRequest, error) {
	data, err := ApproveCalldata(ctx.Spender, ctx.Amount)
	if err != nil {
		return types.TransactionRequest{}, err
	}
	return types.TransactionRequest{
		From:    from,
		To:      ctx.Token,
		ChainID: chainID,
		Data:    "0x" + common.Bytes2Hex(data),
		Value:   "0x0",
	}, nil
}
