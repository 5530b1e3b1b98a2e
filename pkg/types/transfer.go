package types

import (
	"fmt"
	"math/big"
	"strings"

	bridgeerrors "phorus/pkg/errors"
)

// TransferIntent is a user's transfer request. It is rebuilt on every parameter
// change and never edited in place.
type TransferIntent struct {
	Amount      string `json:"amount"`
	FromToken   string `json:"from_token"`
	ToToken     string `json:"to_token"`
	FromChain   string `json:"from_chain"`
	ToChain     string `json:"to_chain"`
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address,omitempty"`
}

// Recipient returns the destination address, defaulting to the sender.
func (i TransferIntent) Recipient() string {
	if i.ToAddress != "" {
		return i.ToAddress
	}
	return i.FromAddress
}

// Validate reports whether the intent is complete enough to request a quote.
func (i TransferIntent) Validate() error {
	if i.Amount == "" {
		return fmt.Errorf("amount is required: %w", bridgeerrors.ErrInvalidInput)
	}
	amount, ok := new(big.Rat).SetString(i.Amount)
	if !ok {
		return fmt.Errorf("invalid amount %q: %w", i.Amount, bridgeerrors.ErrInvalidInput)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0: %w", bridgeerrors.ErrInvalidInput)
	}
	if i.FromToken == "" {
		return fmt.Errorf("source token is required: %w", bridgeerrors.ErrInvalidInput)
	}
	if i.ToToken == "" {
		return fmt.Errorf("destination token is required: %w", bridgeerrors.ErrInvalidInput)
	}
	if i.FromChain == "" {
		return fmt.Errorf("source chain is required: %w", bridgeerrors.ErrInvalidInput)
	}
	if i.ToChain == "" {
		return fmt.Errorf("destination chain is required: %w", bridgeerrors.ErrInvalidInput)
	}
	if i.FromAddress == "" {
		return fmt.Errorf("wallet is not connected: %w", bridgeerrors.ErrInvalidInput)
	}
	return nil
}

// Equal compares two intents field by field, ignoring case on symbols and chains.
func (i TransferIntent) Equal(o TransferIntent) bool {
	return i.Amount == o.Amount &&
		strings.EqualFold(i.FromToken, o.FromToken) &&
		strings.EqualFold(i.ToToken, o.ToToken) &&
		strings.EqualFold(i.FromChain, o.FromChain) &&
		strings.EqualFold(i.ToChain, o.ToChain) &&
		strings.EqualFold(i.FromAddress, o.FromAddress) &&
		strings.EqualFold(i.ToAddress, o.ToAddress)
}

// TransferStatus is the provider-side view of a submitted transfer.
type TransferStatus struct {
	TxHash           string `json:"tx_hash"`
	Status           string `json:"status"`
	Substatus        string `json:"substatus,omitempty"`
	SubstatusMessage string `json:"substatus_message,omitempty"`
	Tool             string `json:"tool,omitempty"`
	FromChainID      uint64 `json:"from_chain_id,omitempty"`
	ToChainID        uint64 `json:"to_chain_id,omitempty"`
	ReceivingTxHash  string `json:"receiving_tx_hash,omitempty"`
	ReceivedAmount   string `json:"received_amount,omitempty"`
}

// IsTerminal reports whether the provider will not update the status again.
func (s TransferStatus) IsTerminal() bool {
	switch strings.ToUpper(s.Status) {
	case "DONE", "FAILED", "INVALID":
		return true
	default:
		return false
	}
}
