package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"phorus/pkg/approval"
	"phorus/pkg/chains"
	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/history"
	"phorus/pkg/metrics"
	"phorus/pkg/route"
	"phorus/pkg/types"
)

// Dependencies are the capabilities a Session drives. Debounce delays quote
// requests after intent changes.
type Dependencies struct {
	Wallet   Wallet
	Relayer  Relayer
	Quoter   route.Quoter
	Catalog  *chains.Catalog
	History  Recorder
	Metrics  *metrics.BridgeMetrics
	Debounce time.Duration
}

// Session is the bridge state machine for one user. Wallet and provider calls
// run without the lock held; every completion re-checks freshness before it is
// applied.
type Session struct {
	wallet  Wallet
	relayer Relayer
	catalog *chains.Catalog
	history Recorder
	metrics *metrics.BridgeMetrics
	fetcher *route.Fetcher

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	changed    chan struct{}
	generation uint64

	id           string
	state        State
	intent       *types.TransferIntent
	fetchVersion uint64
	quote        *types.Quote
	tracker      approval.Tracker
	approving    bool
	txHash       string
	relayID      string
	confirmed    bool
	dismissed    map[string]struct{}
	err          error
	failedAt     stage
}

// NewSession creates an idle session. Callers must Close it.
func NewSession(deps Dependencies) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		wallet:    deps.Wallet,
		relayer:   deps.Relayer,
		catalog:   deps.Catalog,
		history:   deps.History,
		metrics:   deps.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		changed:   make(chan struct{}),
		state:     StateIdle,
		dismissed: make(map[string]struct{}),
	}
	s.fetcher = route.NewFetcher(deps.Quoter, deps.Debounce, s.onQuote, deps.Metrics)
	return s
}

// Close abandons the session. Pending confirmations stop being tracked.
func (s *Session) Close() {
	s.fetcher.Cancel()
	s.cancel()
}

// SetIntent replaces the transfer intent. Any approval context and in-flight
// quote are discarded; a valid intent starts a debounced quote fetch.
func (s *Session) SetIntent(intent types.TransferIntent) error {
	if intent.FromAddress == "" && s.wallet != nil {
		intent.FromAddress = s.wallet.Address()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.intent != nil && s.intent.Equal(intent) && s.state != StateIdle && s.state != StateFailed {
		return nil
	}

	s.clearLocked()
	stored := intent
	s.intent = &stored
	s.id = uuid.NewString()

	if err := intent.Validate(); err != nil {
		s.fetcher.Cancel()
		s.setStateLocked(StateIdle)
		return err
	}
	if _, err := s.catalog.Chain(intent.FromChain); err != nil {
		s.fetcher.Cancel()
		s.setStateLocked(StateIdle)
		return err
	}

	s.requestQuoteLocked()
	return nil
}

// Refresh fetches a new quote for the current intent. The approval context
// survives when the new quote keeps the same binding.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.intent == nil || s.state == StateIdle {
		return bridgeerrors.ErrNoQuote
	}
	if s.state == StateExecuting || s.state == StateConfirming || s.state == StateSuccess {
		return bridgeerrors.ErrBusy
	}
	s.requestQuoteLocked()
	return nil
}

// Retry recovers from Failed: quote failures refetch, later failures return to
// the state the quote and approval allow.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFailed {
		return nil
	}
	if s.failedAt == stageQuote || s.quote == nil {
		s.requestQuoteLocked()
		return nil
	}
	s.err = nil
	s.setStateLocked(s.deriveLocked())
	return nil
}

// Reset returns the session to Idle. A submitted hash is dismissed so its
// confirmation can no longer reach Success. Resetting twice equals resetting once.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetcher.Cancel()
	s.clearLocked()
	s.intent = nil
	s.id = ""
	s.setStateLocked(StateIdle)
}

// Approve submits the ERC-20 approval bound to the current quote.
func (s *Session) Approve(ctx context.Context) error {
	s.mu.Lock()
	s.recoverLocked(stageApproval)
	if s.approving || s.state == StateApprovalPending {
		s.mu.Unlock()
		return bridgeerrors.ErrBusy
	}
	if s.quote == nil {
		s.mu.Unlock()
		return bridgeerrors.ErrNoQuote
	}
	if s.state != StateApprovalRequired {
		state := s.state
		s.mu.Unlock()
		if state.Busy() {
			return bridgeerrors.ErrBusy
		}
		return nil
	}

	bound := s.tracker.Current()
	if bound == nil {
		s.mu.Unlock()
		return bridgeerrors.ErrNoQuote
	}
	quote := s.quote
	gen := s.generation
	from := s.wallet.Address()
	s.approving = true
	s.mu.Unlock()

	req, err := approval.ApproveRequest(bound, from, quote.Action.FromChainID)
	if err == nil {
		err = s.ensureChain(ctx, quote.Action.FromChainID)
	}
	var hash string
	if err == nil {
		hash, err = s.wallet.SendTransaction(ctx, req)
		if err != nil {
			err = fmt.Errorf("%w: %w", bridgeerrors.ErrSignatureRejected, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.approving = false

	if gen != s.generation || s.quote == nil || !bound.Matches(s.quote) {
		if hash != "" {
			log.Warn().Msgf("Approval %s arrived for a superseded quote, ignoring it", hash)
		}
		s.metrics.StaleDiscarded("approval")
		return staleError("approval")
	}
	if err != nil {
		s.failLocked(stageApproval, err)
		return err
	}
	if err := s.tracker.Record(bound, hash, s.quote); err != nil {
		s.metrics.StaleDiscarded("approval")
		return err
	}

	s.metrics.ApprovalSubmitted()
	s.setStateLocked(StateApprovalPending)
	s.saveLocked(history.StatusApproving, "")
	log.Info().Msgf("Approval %s submitted for %s", hash, bound.Binding())

	go s.awaitApproval(hash, quote.Action.FromChainID)
	return nil
}

func (s *Session) awaitApproval(hash string, chainID uint64) {
	confirmed, err := s.wallet.WaitForConfirmation(s.ctx, chainID, hash)
	if s.abandoned(err) {
		log.Debug().Msgf("Stopped waiting for approval %s", hash)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.tracker.Current()
	if current == nil || !strings.EqualFold(current.TxHash, hash) {
		log.Debug().Msgf("Confirmation of superseded approval %s ignored", hash)
		s.metrics.StaleDiscarded("approval_confirmation")
		return
	}
	if err != nil || !confirmed {
		if err == nil {
			err = fmt.Errorf("%w: approval %s reverted", bridgeerrors.ErrTransactionFailed, hash)
		}
		s.tracker.Reset()
		if s.quote != nil {
			s.tracker.Observe(s.quote)
		}
		if s.state == StateApprovalPending {
			s.failLocked(stageApproval, err)
		}
		return
	}

	s.tracker.Confirm(hash)
	if s.state == StateApprovalPending || s.state == StateApprovalRequired {
		s.setStateLocked(s.deriveLocked())
	}
}

// Execute sends the bridge transaction, or signs and relays the message, for the
// current quote.
func (s *Session) Execute(ctx context.Context) error {
	s.mu.Lock()
	s.recoverLocked(stageExecution)
	if s.state.Busy() || s.approving || s.state == StateSuccess || s.outstandingLocked() {
		s.mu.Unlock()
		return bridgeerrors.ErrBusy
	}
	if s.quote == nil {
		s.mu.Unlock()
		return bridgeerrors.ErrNoQuote
	}
	if approval.NeedsApproval(s.quote) && !s.tracker.Satisfied(s.quote) {
		s.setStateLocked(s.deriveLocked())
		s.mu.Unlock()
		return bridgeerrors.ErrApprovalRequired
	}

	fromChain, err := s.catalog.Chain(s.intent.FromChain)
	if err != nil {
		s.failLocked(stageExecution, err)
		s.mu.Unlock()
		return err
	}
	required := s.quote.RequiredChainID()
	if required != fromChain.ID {
		err := bridgeerrors.Newf(bridgeerrors.ErrChainMismatch, "quote executes on chain %d, transfer starts on %s", required, fromChain.Name)
		s.failLocked(stageExecution, err)
		s.mu.Unlock()
		return err
	}

	quote := s.quote
	gen := s.generation
	sessionID := s.id
	s.setStateLocked(StateExecuting)
	s.metrics.StartExecution(sessionID)
	s.mu.Unlock()

	var (
		hash  string
		relay *types.RelayResult
	)
	err = s.ensureChain(ctx, required)
	if err == nil {
		switch payload := quote.Payload.(type) {
		case types.TransactionPayload:
			hash, err = s.wallet.SendTransaction(ctx, payload.Request)
			if err != nil {
				err = fmt.Errorf("%w: %w", bridgeerrors.ErrSignatureRejected, err)
			}
		case types.MessagePayload:
			relay, err = s.signAndRelay(ctx, payload)
		default:
			err = bridgeerrors.ErrMissingTransactionData
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.quote != quote {
		reference := hash
		if relay != nil {
			reference = relay.Reference()
		}
		if reference != "" {
			log.Warn().Msgf("Execution %s finished for a superseded session, dismissing it", reference)
			s.dismissLocked(reference)
		}
		s.metrics.StaleDiscarded("execution")
		return staleError("execution")
	}
	if err != nil {
		s.metrics.EndExecution(sessionID, "failed")
		s.failLocked(stageExecution, err)
		return err
	}

	if relay != nil {
		s.relayID = relay.Reference()
		s.txHash = relay.TxHash
		s.confirmed = true
		s.metrics.EndExecution(sessionID, "relayed")
		s.setStateLocked(StateSuccess)
		s.saveLocked(history.StatusSuccess, "")
		log.Info().Msgf("Relay accepted transfer %s (status %s)", s.relayID, relay.Status)
		return nil
	}

	s.txHash = hash
	s.setStateLocked(StateConfirming)
	s.saveLocked(history.StatusSubmitted, "")
	log.Info().Msgf("Bridge transaction %s submitted on chain %d", hash, required)

	go s.awaitExecution(sessionID, hash, required)
	return nil
}

func (s *Session) signAndRelay(ctx context.Context, payload types.MessagePayload) (*types.RelayResult, error) {
	if s.relayer == nil {
		return nil, fmt.Errorf("%w: no relayer configured", bridgeerrors.ErrRelayFailed)
	}
	signature, err := s.wallet.SignTypedData(ctx, payload.TypedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bridgeerrors.ErrSignatureRejected, err)
	}
	result, err := s.relayer.Relay(ctx, payload.Step, signature)
	if err != nil {
		if bridgeerrors.KindOf(err) != bridgeerrors.KindRelay {
			err = fmt.Errorf("%w: %w", bridgeerrors.ErrRelayFailed, err)
		}
		return nil, err
	}
	return result, nil
}

func (s *Session) awaitExecution(sessionID, hash string, chainID uint64) {
	confirmed, err := s.wallet.WaitForConfirmation(s.ctx, chainID, hash)
	if s.abandoned(err) {
		// The transaction may still land; history keeps it as submitted.
		log.Debug().Msgf("Stopped waiting for transaction %s", hash)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDismissedLocked(hash) || !strings.EqualFold(s.txHash, hash) || s.id != sessionID {
		log.Debug().Msgf("Confirmation of dismissed transaction %s ignored", hash)
		s.metrics.StaleDiscarded("execution_confirmation")
		return
	}
	if err != nil || !confirmed {
		if err == nil {
			err = fmt.Errorf("%w: %s reverted", bridgeerrors.ErrTransactionFailed, hash)
		}
		s.metrics.EndExecution(sessionID, "reverted")
		s.failLocked(stageExecution, err)
		// The reverted hash no longer blocks a new attempt.
		s.txHash = ""
		return
	}

	s.confirmed = true
	s.metrics.EndExecution(sessionID, "success")
	s.setStateLocked(StateSuccess)
	s.saveLocked(history.StatusSuccess, "")
}

// abandoned reports whether a wallet wait ended because the session was closed.
func (s *Session) abandoned(err error) bool {
	return errors.Is(err, context.Canceled) && s.ctx.Err() != nil
}

// ensureChain makes one attempt to switch the wallet to chainID.
func (s *Session) ensureChain(ctx context.Context, chainID uint64) error {
	current, err := s.wallet.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", bridgeerrors.ErrSwitchChain, err)
	}
	if current == chainID {
		return nil
	}

	log.Debug().Msgf("Switching wallet from chain %d to %d", current, chainID)
	if err := s.wallet.SwitchChain(ctx, chainID); err != nil {
		return &bridgeerrors.BridgeError{
			Kind: bridgeerrors.KindChainMismatch,
			Err:  fmt.Errorf("%w to %d: %w", bridgeerrors.ErrSwitchChain, chainID, err),
		}
	}
	current, err = s.wallet.ChainID(ctx)
	if err != nil || current != chainID {
		return &bridgeerrors.BridgeError{
			Kind: bridgeerrors.KindChainMismatch,
			Err:  fmt.Errorf("%w: wallet still on chain %d", bridgeerrors.ErrSwitchChain, current),
		}
	}
	return nil
}

func (s *Session) onQuote(result route.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.Version != s.fetchVersion || s.state != StateQuoteLoading {
		log.Debug().Msgf("Discarding quote %d, current request is %d", result.Version, s.fetchVersion)
		s.metrics.StaleDiscarded("quote")
		return
	}
	if result.Err != nil {
		s.quote = nil
		s.failLocked(stageQuote, result.Err)
		return
	}

	s.quote = result.Quote
	if s.tracker.Observe(result.Quote) {
		log.Debug().Msg("Quote binding changed, approval context discarded")
	}
	s.err = nil
	s.setStateLocked(s.deriveLocked())
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Await blocks until pred holds for a snapshot or ctx is done.
func (s *Session) Await(ctx context.Context, pred func(Snapshot) bool) (Snapshot, error) {
	for {
		s.mu.Lock()
		snapshot := s.snapshotLocked()
		changed := s.changed
		s.mu.Unlock()

		if pred(snapshot) {
			return snapshot, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snapshot, ctx.Err()
		}
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		ID:        s.id,
		State:     s.state,
		Quote:     s.quote,
		Approval:  s.tracker.Current(),
		TxHash:    s.txHash,
		RelayID:   s.relayID,
		Confirmed: s.confirmed,
		Err:       s.err,
		Message:   bridgeerrors.UserMessage(s.err),
	}
	if s.intent != nil {
		intent := *s.intent
		snapshot.Intent = &intent
	}
	if s.quote != nil {
		snapshot.NeedsApproval = approval.NeedsApproval(s.quote)
		snapshot.ApprovalConfirmed = s.tracker.Satisfied(s.quote)
	}
	return snapshot
}

func (s *Session) requestQuoteLocked() {
	s.err = nil
	s.failedAt = ""
	s.setStateLocked(StateQuoteLoading)
	s.fetchVersion = s.fetcher.Request(*s.intent)
}

// clearLocked drops everything tied to the current intent.
func (s *Session) clearLocked() {
	s.generation++
	if s.txHash != "" {
		s.dismissLocked(s.txHash)
	}
	if s.relayID != "" {
		s.dismissLocked(s.relayID)
	}
	s.quote = nil
	s.tracker.Reset()
	s.txHash = ""
	s.relayID = ""
	s.confirmed = false
	s.err = nil
	s.failedAt = ""
}

func (s *Session) deriveLocked() State {
	if s.quote == nil {
		return StateIdle
	}
	if !approval.NeedsApproval(s.quote) {
		return StateQuoteReady
	}
	if s.tracker.Satisfied(s.quote) {
		return StateApprovalConfirmed
	}
	if s.tracker.Pending() {
		return StateApprovalPending
	}
	return StateApprovalRequired
}

// recoverLocked leaves Failed when the failure happened at or before at.
func (s *Session) recoverLocked(at stage) {
	if s.state != StateFailed || s.failedAt == stageQuote || s.quote == nil {
		return
	}
	if at == stageApproval && s.failedAt == stageExecution {
		return
	}
	s.err = nil
	s.failedAt = ""
	s.setStateLocked(s.deriveLocked())
}

// outstandingLocked reports whether a submitted hash awaits Success or dismissal.
func (s *Session) outstandingLocked() bool {
	return s.txHash != "" && !s.confirmed && !s.isDismissedLocked(s.txHash)
}

func (s *Session) failLocked(at stage, err error) {
	s.err = err
	s.failedAt = at
	s.setStateLocked(StateFailed)
	if at != stageQuote {
		s.saveLocked(history.StatusFailed, err.Error())
	}
	log.Warn().Err(err).Msgf("Bridge session failed during %s", at)
}

func (s *Session) setStateLocked(state State) {
	if s.state != state {
		log.Debug().Msgf("Session %s: %s -> %s", s.id, s.state, state)
	}
	s.state = state
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) dismissLocked(reference string) {
	s.dismissed[strings.ToLower(reference)] = struct{}{}
	if s.history == nil {
		return
	}
	if err := s.history.Dismiss(reference); err != nil {
		log.Warn().Err(err).Msgf("Failed to persist dismissal of %s", reference)
	}
}

func (s *Session) isDismissedLocked(reference string) bool {
	if _, ok := s.dismissed[strings.ToLower(reference)]; ok {
		return true
	}
	return s.history != nil && s.history.IsDismissed(reference)
}

func (s *Session) saveLocked(status history.Status, errMsg string) {
	if s.history == nil || s.intent == nil || s.id == "" {
		return
	}
	record := &history.Record{
		ID:      s.id,
		Intent:  *s.intent,
		TxHash:  s.txHash,
		RelayID: s.relayID,
		Status:  status,
		Error:   errMsg,
	}
	if s.quote != nil {
		record.Tool = s.quote.Tool
		record.FromAmount = s.quote.Action.FromAmount
		record.ToAmount = s.quote.Estimate.ToAmount
		record.FromChain = s.quote.Action.FromChainID
	}
	if current := s.tracker.Current(); current != nil {
		record.ApprovalTxHash = current.TxHash
	}
	if err := s.history.Save(record); err != nil {
		log.Warn().Err(err).Msgf("Failed to record session %s", s.id)
	}
}

func staleError(what string) error {
	return &bridgeerrors.BridgeError{
		Kind:    bridgeerrors.KindStale,
		Message: what + " superseded",
		Err:     bridgeerrors.ErrStale,
	}
}
