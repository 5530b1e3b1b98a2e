package history

import (
	"time"

	"phorus/pkg/types"
)

// Status of one recorded execution attempt
type Status string

const (
	StatusApproving Status = "approving" // Approval submitted
	StatusSubmitted Status = "submitted" // Bridge transaction or relay accepted
	StatusSuccess   Status = "success"   // Confirmed on-chain
	StatusFailed    Status = "failed"    // Execution failed
)

// Record is the persisted trace of one bridge session.
type Record struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	Intent     types.TransferIntent `json:"intent"`
	Tool       string               `json:"tool,omitempty"`
	FromAmount string               `json:"from_amount,omitempty"` // Base units
	ToAmount   string               `json:"to_amount,omitempty"`   // Estimated, base units
	FromChain  uint64               `json:"from_chain_id,omitempty"`

	ApprovalTxHash string `json:"approval_tx_hash,omitempty"`
	TxHash         string `json:"tx_hash,omitempty"`
	RelayID        string `json:"relay_id,omitempty"`

	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	Dismissed bool   `json:"dismissed"`

	// Destination side, from the provider's transfer status
	ProviderStatus    string `json:"provider_status,omitempty"`
	DestinationTxHash string `json:"destination_tx_hash,omitempty"`
	ReceivedAmount    string `json:"received_amount,omitempty"`
}

// Reference returns the hash or relay id the record is tracked by.
func (r *Record) Reference() string {
	if r.TxHash != "" {
		return r.TxHash
	}
	return r.RelayID
}

// IsTerminal reports whether the session side of the record will not change again.
func (r *Record) IsTerminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusFailed
}

// Settled reports whether the provider reported a final destination status.
func (r *Record) Settled() bool {
	return (&types.TransferStatus{Status: r.ProviderStatus}).IsTerminal()
}
