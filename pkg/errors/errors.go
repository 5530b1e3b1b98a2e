package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for display and recovery decisions.
type Kind string

const (
	KindUnsupportedAsset   Kind = "unsupported_asset"
	KindRouting            Kind = "routing"
	KindChainMismatch      Kind = "chain_mismatch"
	KindApprovalRequired   Kind = "approval_required"
	KindSignature          Kind = "signature"
	KindRelay              Kind = "relay"
	KindStale              Kind = "stale"
	KindMissingTransaction Kind = "missing_transaction"
	KindInvalidInput       Kind = "invalid_input"
	KindBusy               Kind = "busy"
)

// Domain errors
var (
	ErrTokenNotFound          = errors.New("token not available on this chain")
	ErrUnsupportedChain       = errors.New("unsupported chain")
	ErrNoRoute                = errors.New("no route found")
	ErrProvider               = errors.New("routing provider error")
	ErrChainMismatch          = errors.New("chain mismatch")
	ErrSwitchChain            = errors.New("switch chain failed")
	ErrApprovalRequired       = errors.New("please approve first")
	ErrApprovalMismatch       = errors.New("approval does not match current quote")
	ErrDestinationMismatch    = errors.New("destination token does not match requested account")
	ErrMissingTransactionData = errors.New("missing transaction data")
	ErrSignatureRejected      = errors.New("signature rejected")
	ErrRelayFailed            = errors.New("relay submission failed")
	ErrTransactionFailed      = errors.New("transaction failed on-chain")
	ErrStale                  = errors.New("stale result")
	ErrInvalidInput           = errors.New("invalid input")
	ErrBusy                   = errors.New("operation already in progress")
	ErrNoQuote                = errors.New("no quote available")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrTokenNotFound, KindUnsupportedAsset},
	{ErrUnsupportedChain, KindUnsupportedAsset},
	{ErrNoRoute, KindRouting},
	{ErrProvider, KindRouting},
	{ErrDestinationMismatch, KindRouting},
	{ErrChainMismatch, KindChainMismatch},
	{ErrSwitchChain, KindChainMismatch},
	{ErrApprovalRequired, KindApprovalRequired},
	{ErrApprovalMismatch, KindApprovalRequired},
	{ErrMissingTransactionData, KindMissingTransaction},
	{ErrSignatureRejected, KindSignature},
	{ErrTransactionFailed, KindSignature},
	{ErrRelayFailed, KindRelay},
	{ErrStale, KindStale},
	{ErrInvalidInput, KindInvalidInput},
	{ErrNoQuote, KindInvalidInput},
	{ErrBusy, KindBusy},
}

// BridgeError carries a user-facing message alongside the underlying cause.
type BridgeError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *BridgeError) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// New wraps err with a message, deriving the kind from the wrapped sentinel.
func New(message string, err error) *BridgeError {
	return &BridgeError{
		Kind:    KindOf(err),
		Message: message,
		Err:     err,
	}
}

// Newf is New with a formatted message.
func Newf(err error, format string, args ...any) *BridgeError {
	return New(fmt.Sprintf(format, args...), err)
}

// KindOf returns the classification of err, or "" when it is not a bridge error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *BridgeError
	if errors.As(err, &be) && be.Kind != "" {
		return be.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}

// IsStale reports whether err only signals that a fresher cycle superseded the result.
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}

// Recoverable reports whether the user can retry after err without changing input.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindInvalidInput, KindUnsupportedAsset:
		return false
	default:
		return err != nil
	}
}

// UserMessage renders err as the single line shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindUnsupportedAsset:
		var be *BridgeError
		if errors.As(err, &be) && be.Message != "" {
			return be.Message
		}
		return ErrTokenNotFound.Error()
	case KindApprovalRequired:
		return ErrApprovalRequired.Error()
	case KindChainMismatch:
		if errors.Is(err, ErrSwitchChain) {
			return "could not switch the wallet network automatically, please switch it manually and retry"
		}
		return err.Error()
	case KindStale:
		return ""
	default:
		return err.Error()
	}
}
