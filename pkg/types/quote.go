package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// NativeTokenAddress is the sentinel the providers use for a chain's gas asset.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

// Strategy names the provider path a quote came from.
type Strategy string

const (
	StrategySimple   Strategy = "simple"
	StrategyAdvanced Strategy = "advanced"
)

type PayloadKind string

const (
	PayloadTransaction PayloadKind = "transaction"
	PayloadMessage     PayloadKind = "message"
)

// ExecutionPayload is what the wallet has to act on to execute a quote.
type ExecutionPayload interface {
	Kind() PayloadKind
	ChainID() uint64
}

// TransactionPayload is executed by sending a transaction.
type TransactionPayload struct {
	Request TransactionRequest
}

func (p TransactionPayload) Kind() PayloadKind { return PayloadTransaction }
func (p TransactionPayload) ChainID() uint64   { return p.Request.ChainID }

// MessagePayload is executed by signing typed data and handing it to the relay.
type MessagePayload struct {
	TypedData apitypes.TypedData
	Step      Step
	Chain     uint64
}

func (p MessagePayload) Kind() PayloadKind { return PayloadMessage }
func (p MessagePayload) ChainID() uint64   { return p.Chain }

// Binding is the part of a quote an ERC-20 approval is tied to.
type Binding struct {
	Spender string
	Token   string
	Amount  string
}

// Equal compares addresses case-insensitively and amounts numerically.
func (b Binding) Equal(o Binding) bool {
	return SameAddress(b.Spender, o.Spender) &&
		SameAddress(b.Token, o.Token) &&
		SameAmount(b.Amount, o.Amount)
}

func (b Binding) String() string {
	return fmt.Sprintf("spender=%s token=%s amount=%s", b.Spender, b.Token, b.Amount)
}

// Quote is the normalized result of one route acquisition cycle. It is never
// modified after creation.
type Quote struct {
	ID        string
	RouteID   string
	Tool      string
	Strategy  Strategy
	StepCount int
	Action    Action
	Estimate  Estimate
	Payload   ExecutionPayload
}

// IsMessaging reports whether the quote executes through sign and relay.
func (q *Quote) IsMessaging() bool {
	return q.Payload != nil && q.Payload.Kind() == PayloadMessage
}

// Binding returns the approval binding tuple of the quote.
func (q *Quote) Binding() Binding {
	return Binding{
		Spender: q.Estimate.ApprovalAddress,
		Token:   q.Action.FromToken.Address,
		Amount:  q.Action.FromAmount,
	}
}

// RequiredChainID is the chain the wallet must be on to execute the quote.
func (q *Quote) RequiredChainID() uint64 {
	if q.Payload != nil && q.Payload.ChainID() != 0 {
		return q.Payload.ChainID()
	}
	return q.Action.FromChainID
}

// FeeUSD sums the provider's fee costs in USD. The second value is false when
// the provider reported no priced fees.
func (q *Quote) FeeUSD() (string, bool) {
	total := new(big.Float)
	known := false
	for _, fee := range q.Estimate.FeeCosts {
		if strings.TrimSpace(fee.AmountUSD) == "" {
			continue
		}
		v, ok := new(big.Float).SetString(fee.AmountUSD)
		if !ok {
			continue
		}
		total.Add(total, v)
		known = true
	}
	if !known {
		return "", false
	}
	return total.Text('f', 2), true
}

// ToAmountFormatted renders the estimated output in whole tokens.
func (q *Quote) ToAmountFormatted() string {
	return FormatBaseUnits(q.Estimate.ToAmount, q.Action.ToToken.Decimals)
}

// FromAmountFormatted renders the input in whole tokens.
func (q *Quote) FromAmountFormatted() string {
	return FormatBaseUnits(q.Action.FromAmount, q.Action.FromToken.Decimals)
}
