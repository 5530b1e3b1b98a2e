package bridge

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"phorus/pkg/approval"
	"phorus/pkg/history"
	"phorus/pkg/types"
)

// State is the observable session state.
type State string

const (
	StateIdle              State = "idle"
	StateQuoteLoading      State = "quote_loading"
	StateQuoteReady        State = "quote_ready"
	StateApprovalRequired  State = "approval_required"
	StateApprovalPending   State = "approval_pending"
	StateApprovalConfirmed State = "approval_confirmed"
	StateExecuting         State = "executing"
	StateConfirming        State = "confirming"
	StateSuccess           State = "success"
	StateFailed            State = "failed"
)

// Busy reports whether execution must stay disabled in this state.
func (s State) Busy() bool {
	switch s {
	case StateQuoteLoading, StateApprovalPending, StateExecuting, StateConfirming:
		return true
	default:
		return false
	}
}

// Settled reports whether the session waits for user input.
func (s State) Settled() bool {
	switch s {
	case StateQuoteLoading, StateExecuting:
		return false
	default:
		return true
	}
}

type stage string

const (
	stageQuote     stage = "quote"
	stageApproval  stage = "approval"
	stageExecution stage = "execution"
)

// Wallet is the signing capability the session drives.
type Wallet interface {
	Address() string
	ChainID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	SendTransaction(ctx context.Context, req types.TransactionRequest) (string, error)
	SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error)
	WaitForConfirmation(ctx context.Context, chainID uint64, txHash string) (bool, error)
}

// Relayer submits signed message steps.
type Relayer interface {
	Relay(ctx context.Context, step types.Step, signature string) (*types.RelayResult, error)
}

// Recorder persists execution attempts and dismissed hashes. history.Storage implements it.
type Recorder interface {
	Save(record *history.Record) error
	Dismiss(reference string) error
	IsDismissed(reference string) bool
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	ID                string
	State             State
	Intent            *types.TransferIntent
	Quote             *types.Quote
	NeedsApproval     bool
	Approval          *approval.Context
	ApprovalConfirmed bool
	TxHash            string
	RelayID           string
	Confirmed         bool
	Err               error
	Message           string
}

// CanExecute reports whether Execute would be accepted.
func (s Snapshot) CanExecute() bool {
	if s.Quote == nil || s.State.Busy() {
		return false
	}
	switch s.State {
	case StateQuoteReady, StateApprovalConfirmed:
		return true
	case StateFailed:
		return !s.NeedsApproval || s.ApprovalConfirmed
	default:
		return false
	}
}
