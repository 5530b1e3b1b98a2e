package approval

import (
	"strings"

	"github.com/rs/zerolog/log"

	"phorus/pkg/types"
)

// Tracker holds the single approval context of a session. It is not safe for
// concurrent use; the bridge session serializes access.
type Tracker struct {
	current   *Context
	confirmed string
}

// Observe applies a newly arrived quote. The context is discarded when the
// quote's binding differs from it, and bound lazily when approval is needed.
// It returns true when an existing context was discarded.
func (t *Tracker) Observe(quote *types.Quote) bool {
	discarded := false
	if t.current != nil && !t.current.Matches(quote) {
		log.Debug().Msgf("Discarding approval context %s, quote now binds %s", t.current.Binding(), quote.Binding())
		t.Reset()
		discarded = true
	}
	if t.current == nil && NeedsApproval(quote) {
		t.current = Bind(quote)
	}
	return discarded
}

// Reset drops the context and any confirmation.
func (t *Tracker) Reset() {
	t.current = nil
	t.confirmed = ""
}

// Current returns a copy of the context, or nil.
func (t *Tracker) Current() *Context {
	if t.current == nil {
		return nil
	}
	c := *t.current
	return &c
}

// Record attaches a hash submitted for bound. It is dropped as stale when bound
// no longer matches the live quote or the tracker was rebound meanwhile.
func (t *Tracker) Record(bound *Context, txHash string, live *types.Quote) error {
	recorded, err := RecordSubmission(bound, txHash, live)
	if err != nil {
		return err
	}
	if t.current == nil || !t.current.Binding().Equal(bound.Binding()) {
		log.Warn().Msgf("Dropping approval %s: context was replaced", txHash)
		return staleApproval()
	}
	t.current = recorded
	t.confirmed = ""
	return nil
}

// Confirm marks txHash confirmed if it is the hash recorded on the context.
func (t *Tracker) Confirm(txHash string) bool {
	if t.current == nil || t.current.TxHash == "" || !strings.EqualFold(t.current.TxHash, txHash) {
		return false
	}
	t.confirmed = txHash
	return true
}

// Pending reports whether a recorded approval awaits confirmation.
func (t *Tracker) Pending() bool {
	return t.current != nil && t.current.TxHash != "" && t.confirmed == ""
}

// Satisfied reports whether the context proves approval for quote.
func (t *Tracker) Satisfied(quote *types.Quote) bool {
	if t.current == nil {
		return false
	}
	return IsSatisfied(t.current, quote, t.confirmed, t.confirmed != "")
}
