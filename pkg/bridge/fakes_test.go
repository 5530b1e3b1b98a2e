package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"phorus/pkg/chains"
	"phorus/pkg/types"
)

const (
	arbUSDC = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	optUSDC = "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"
	diamond = "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE"
	other   = "0x9999999999999999999999999999999999999999"
	owner   = "0x2222222222222222222222222222222222222222"
)

type fakeWallet struct {
	mu            sync.Mutex
	chainID       uint64
	switchErr     error
	sendErr       error
	signErr       error
	sent          []types.TransactionRequest
	signed        []apitypes.TypedData
	switches      []uint64
	chainCalls    int
	confirmations map[string]chan bool
}

func newFakeWallet(chainID uint64) *fakeWallet {
	return &fakeWallet{chainID: chainID, confirmations: make(map[string]chan bool)}
}

func (w *fakeWallet) Address() string { return owner }

func (w *fakeWallet) ChainID(context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainCalls++
	return w.chainID, nil
}

func (w *fakeWallet) SwitchChain(_ context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.switches = append(w.switches, chainID)
	if w.switchErr != nil {
		return w.switchErr
	}
	w.chainID = chainID
	return nil
}

func (w *fakeWallet) SendTransaction(_ context.Context, req types.TransactionRequest) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sendErr != nil {
		return "", w.sendErr
	}
	w.sent = append(w.sent, req)
	return fmt.Sprintf("0x%064x", len(w.sent)), nil
}

func (w *fakeWallet) SignTypedData(_ context.Context, data apitypes.TypedData) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.signErr != nil {
		return "", w.signErr
	}
	w.signed = append(w.signed, data)
	return "0xsignature", nil
}

func (w *fakeWallet) WaitForConfirmation(ctx context.Context, _ uint64, hash string) (bool, error) {
	select {
	case ok := <-w.confirmation(hash):
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (w *fakeWallet) confirmation(hash string) chan bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.confirmations[hash]
	if !ok {
		ch = make(chan bool, 1)
		w.confirmations[hash] = ch
	}
	return ch
}

func (w *fakeWallet) confirm(hash string, ok bool) {
	w.confirmation(hash) <- ok
}

func (w *fakeWallet) setChainID(chainID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainID = chainID
}

func (w *fakeWallet) setSwitchErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.switchErr = err
}

func (w *fakeWallet) setSendErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sendErr = err
}

func (w *fakeWallet) switchHistory() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint64(nil), w.switches...)
}

func (w *fakeWallet) chainCallCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainCalls
}

func (w *fakeWallet) signedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.signed)
}

func (w *fakeWallet) sentTxs() []types.TransactionRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]types.TransactionRequest(nil), w.sent...)
}

type fakeRelayer struct {
	mu         sync.Mutex
	err        error
	steps      []types.Step
	signatures []string
}

func (r *fakeRelayer) Relay(_ context.Context, step types.Step, signature string) (*types.RelayResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.steps = append(r.steps, step)
	r.signatures = append(r.signatures, signature)
	return &types.RelayResult{Status: "PENDING", TaskID: "task-1"}, nil
}

func (r *fakeRelayer) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *fakeRelayer) relayed() ([]types.Step, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Step(nil), r.steps...), append([]string(nil), r.signatures...)
}

type fakeQuoter struct {
	mu      sync.Mutex
	calls   []types.TransferIntent
	respond func(types.TransferIntent) (*types.Quote, error)
}

func (q *fakeQuoter) FetchQuote(_ context.Context, intent types.TransferIntent) (*types.Quote, error) {
	q.mu.Lock()
	q.calls = append(q.calls, intent)
	respond := q.respond
	q.mu.Unlock()
	return respond(intent)
}

func (q *fakeQuoter) setRespond(respond func(types.TransferIntent) (*types.Quote, error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.respond = respond
}

func (q *fakeQuoter) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

func units(amount string, decimals int) string {
	v, err := types.ToBaseUnits(amount, decimals)
	if err != nil {
		return "0"
	}
	return v.String()
}

func erc20Quote(spender string, chainID uint64) func(types.TransferIntent) (*types.Quote, error) {
	return func(intent types.TransferIntent) (*types.Quote, error) {
		amount := units(intent.Amount, 6)
		return &types.Quote{
			ID:       "q-" + amount,
			Tool:     "across",
			Strategy: types.StrategySimple,
			Action: types.Action{
				FromChainID: 42161,
				ToChainID:   10,
				FromToken:   types.Token{Address: arbUSDC, Symbol: "USDC", Decimals: 6},
				ToToken:     types.Token{Address: optUSDC, Symbol: "USDC", Decimals: 6},
				FromAmount:  amount,
			},
			Estimate: types.Estimate{ToAmount: amount, ApprovalAddress: spender},
			Payload:  types.TransactionPayload{Request: types.TransactionRequest{To: diamond, ChainID: chainID, Data: "0x01"}},
		}, nil
	}
}

func nativeQuote(intent types.TransferIntent) (*types.Quote, error) {
	amount := units(intent.Amount, 18)
	return &types.Quote{
		ID:   "eth-" + amount,
		Tool: "stargate",
		Action: types.Action{
			FromChainID: 42161,
			ToChainID:   10,
			FromToken:   types.Token{Address: types.NativeTokenAddress, Symbol: "ETH", Decimals: 18},
			ToToken:     types.Token{Address: types.NativeTokenAddress, Symbol: "ETH", Decimals: 18},
			FromAmount:  amount,
		},
		Estimate: types.Estimate{ToAmount: amount, ApprovalAddress: diamond},
		Payload:  types.TransactionPayload{Request: types.TransactionRequest{To: diamond, ChainID: 42161, Value: amount}},
	}, nil
}

func messageQuote(intent types.TransferIntent) (*types.Quote, error) {
	amount := units(intent.Amount, 6)
	step := types.Step{ID: "relay-step", Tool: "relay"}
	return &types.Quote{
		ID:   "msg-" + amount,
		Tool: "relay",
		Action: types.Action{
			FromChainID: 42161,
			ToChainID:   chains.HyperliquidChainID,
			FromToken:   types.Token{Address: arbUSDC, Symbol: "USDC", Decimals: 6},
			FromAmount:  amount,
		},
		Payload: types.MessagePayload{
			TypedData: apitypes.TypedData{PrimaryType: "Permit"},
			Step:      step,
			Chain:     42161,
		},
	}, nil
}

func usdcIntent(amount string) types.TransferIntent {
	return types.TransferIntent{
		Amount:    amount,
		FromToken: "USDC",
		ToToken:   "USDC",
		FromChain: "arb",
		ToChain:   "opt",
	}
}

func ethIntent(amount string) types.TransferIntent {
	intent := usdcIntent(amount)
	intent.FromToken = "ETH"
	intent.ToToken = "ETH"
	return intent
}

type harness struct {
	session *Session
	wallet  *fakeWallet
	quoter  *fakeQuoter
	relayer *fakeRelayer
}

func newHarness(t *testing.T, respond func(types.TransferIntent) (*types.Quote, error), opts ...func(*Dependencies)) *harness {
	h := &harness{
		wallet:  newFakeWallet(42161),
		quoter:  &fakeQuoter{respond: respond},
		relayer: &fakeRelayer{},
	}
	deps := Dependencies{
		Wallet:   h.wallet,
		Relayer:  h.relayer,
		Quoter:   h.quoter,
		Catalog:  chains.DefaultCatalog(),
		Debounce: time.Millisecond,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.session = NewSession(deps)
	t.Cleanup(h.session.Close)
	return h
}

func waitFor(t *testing.T, s *Session, state State) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snapshot, err := s.Await(ctx, func(snap Snapshot) bool { return snap.State == state })
	require.NoError(t, err, "waiting for %s, session is %s (%v)", state, snapshot.State, snapshot.Err)
	return snapshot
}
