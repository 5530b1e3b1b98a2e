package types

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Token as reported by the routing provider or the static catalog.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Decimals int    `json:"decimals"`
	ChainID  uint64 `json:"chainId"`
	PriceUSD string `json:"priceUSD,omitempty"`
}

type Action struct {
	FromChainID uint64  `json:"fromChainId"`
	ToChainID   uint64  `json:"toChainId"`
	FromToken   Token   `json:"fromToken"`
	ToToken     Token   `json:"toToken"`
	FromAmount  string  `json:"fromAmount"`
	FromAddress string  `json:"fromAddress,omitempty"`
	ToAddress   string  `json:"toAddress,omitempty"`
	Slippage    float64 `json:"slippage,omitempty"`
}

type FeeCost struct {
	Name       string `json:"name"`
	Percentage string `json:"percentage,omitempty"`
	Token      Token  `json:"token"`
	Amount     string `json:"amount"`
	AmountUSD  string `json:"amountUSD,omitempty"`
	Included   bool   `json:"included"`
}

type Estimate struct {
	Tool              string    `json:"tool,omitempty"`
	FromAmount        string    `json:"fromAmount,omitempty"`
	ToAmount          string    `json:"toAmount"`
	ToAmountMin       string    `json:"toAmountMin"`
	ApprovalAddress   string    `json:"approvalAddress,omitempty"`
	FeeCosts          []FeeCost `json:"feeCosts,omitempty"`
	ExecutionDuration float64   `json:"executionDuration"`
}

// TransactionRequest is an unsigned EVM call prepared by the provider.
type TransactionRequest struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to"`
	ChainID  uint64 `json:"chainId"`
	Data     string `json:"data"`
	Value    string `json:"value,omitempty"`
	GasLimit string `json:"gasLimit,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
}

// Step is one leg of a route. Raw keeps the provider's original encoding so the
// step can be sent back unmodified for transaction resolution and relaying.
type Step struct {
	ID                 string              `json:"id"`
	Type               string              `json:"type"`
	Tool               string              `json:"tool"`
	Action             Action              `json:"action"`
	Estimate           Estimate            `json:"estimate"`
	IncludedSteps      []Step              `json:"includedSteps,omitempty"`
	TransactionRequest *TransactionRequest `json:"transactionRequest,omitempty"`
	Message            *apitypes.TypedData `json:"message,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (s *Step) UnmarshalJSON(data []byte) error {
	type plain Step
	if err := json.Unmarshal(data, (*plain)(s)); err != nil {
		return err
	}
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (s Step) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	type plain Step
	return json.Marshal(plain(s))
}

// Tools returns the step's tool followed by the tools of its included steps.
func (s Step) Tools() []string {
	tools := []string{s.Tool}
	for _, included := range s.IncludedSteps {
		tools = append(tools, included.Tools()...)
	}
	return tools
}

// Route is a candidate path returned by the advanced routing strategy.
type Route struct {
	ID          string `json:"id"`
	FromChainID uint64 `json:"fromChainId"`
	ToChainID   uint64 `json:"toChainId"`
	FromToken   Token  `json:"fromToken"`
	ToToken     Token  `json:"toToken"`
	FromAmount  string `json:"fromAmount"`
	ToAmount    string `json:"toAmount"`
	ToAmountMin string `json:"toAmountMin"`
	Steps       []Step `json:"steps"`
}

// FinalStep returns the last leg of the route, or nil for an empty route.
func (r Route) FinalStep() *Step {
	if len(r.Steps) == 0 {
		return nil
	}
	return &r.Steps[len(r.Steps)-1]
}

// RelayResult is the relay service answer for a signed message.
type RelayResult struct {
	Status string `json:"status,omitempty"`
	TxHash string `json:"txHash,omitempty"`
	TaskID string `json:"taskId,omitempty"`
}

// Reference returns the identifier to track a relayed transfer by.
func (r RelayResult) Reference() string {
	if r.TxHash != "" {
		return r.TxHash
	}
	return r.TaskID
}

// Failed reports whether the relay service rejected the message.
func (r RelayResult) Failed() bool {
	switch strings.ToUpper(r.Status) {
	case "ERROR", "FAILED", "FAILURE", "INVALID", "REJECTED":
		return true
	default:
		return false
	}
}
