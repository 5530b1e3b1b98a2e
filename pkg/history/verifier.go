package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"phorus/pkg/types"
)

const (
	DefaultVerifyInterval = 45 * time.Second
	MinVerifyInterval     = 5 * time.Second
	MaxVerifyAge          = 24 * time.Hour
)

// StatusChecker reports the provider-side status of a submitted transfer.
type StatusChecker interface {
	GetStatus(ctx context.Context, txHash string, fromChainID uint64) (*types.TransferStatus, error)
}

// Verifier follows submitted transfers to their destination chain and records
// the provider's final status.
type Verifier struct {
	storage  *Storage
	checker  StatusChecker
	interval time.Duration
}

// NewVerifier creates a verifier polling checker for transfers in storage.
func NewVerifier(storage *Storage, checker StatusChecker) *Verifier {
	return &Verifier{
		storage:  storage,
		checker:  checker,
		interval: DefaultVerifyInterval,
	}
}

// SetInterval sets the polling interval used by Run
func (v *Verifier) SetInterval(interval time.Duration) {
	if interval < MinVerifyInterval {
		interval = MinVerifyInterval
	}
	v.interval = interval
}

// Pending returns the records whose destination side is still open.
func (v *Verifier) Pending() []*Record {
	var pending []*Record
	for _, record := range v.storage.List() {
		if record.TxHash == "" || record.Dismissed || record.Settled() {
			continue
		}
		if record.Status != StatusSubmitted && record.Status != StatusSuccess {
			continue
		}
		if time.Since(record.Created) >= MaxVerifyAge {
			continue
		}
		pending = append(pending, record)
	}
	return pending
}

// VerifyPending checks every pending record once and returns the ones that
// changed. Lookup failures are logged and retried on the next pass.
func (v *Verifier) VerifyPending(ctx context.Context) []*Record {
	var updated []*Record
	for _, record := range v.Pending() {
		if ctx.Err() != nil {
			break
		}
		changed, err := v.Check(ctx, record)
		if err != nil {
			log.Warn().Err(err).Msgf("Status check for %s failed", record.TxHash)
			continue
		}
		if changed {
			updated = append(updated, record)
		}
	}
	return updated
}

// Check refreshes record from the provider and persists any change.
func (v *Verifier) Check(ctx context.Context, record *Record) (bool, error) {
	status, err := v.checker.GetStatus(ctx, record.TxHash, record.FromChain)
	if err != nil {
		return false, err
	}

	providerStatus := strings.ToUpper(status.Status)
	if providerStatus == record.ProviderStatus &&
		status.ReceivingTxHash == record.DestinationTxHash &&
		status.ReceivedAmount == record.ReceivedAmount {
		return false, nil
	}

	record.ProviderStatus = providerStatus
	record.DestinationTxHash = status.ReceivingTxHash
	record.ReceivedAmount = status.ReceivedAmount

	switch providerStatus {
	case "DONE":
		record.Status = StatusSuccess
		log.Info().Msgf("Transfer %s completed on the destination chain", record.TxHash)
	case "FAILED", "INVALID":
		record.Status = StatusFailed
		record.Error = status.SubstatusMessage
		if record.Error == "" {
			record.Error = fmt.Sprintf("provider reported %s", providerStatus)
		}
		log.Warn().Msgf("Transfer %s failed: %s", record.TxHash, record.Error)
	}

	if err := v.storage.Save(record); err != nil {
		return false, fmt.Errorf("failed to save record %s: %w", record.ID, err)
	}
	return true, nil
}

// Run polls until nothing is pending or ctx is done. onUpdate is called for
// every changed record.
func (v *Verifier) Run(ctx context.Context, onUpdate func(*Record)) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		for _, record := range v.VerifyPending(ctx) {
			if onUpdate != nil {
				onUpdate(record)
			}
		}
		if len(v.Pending()) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
