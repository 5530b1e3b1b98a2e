package wallet

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"phorus/pkg/types"
)

type rpcReq struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type rpcResp struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result"`
}

type rpcNode struct {
	mu              sync.Mutex
	chainID         string
	receiptStatus   string
	receiptPolls    int
	pendingReceipts int
	raw             []*ethtypes.Transaction
}

func (n *rpcNode) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req rpcReq
		_ = json.NewDecoder(r.Body).Decode(&req)

		n.mu.Lock()
		defer n.mu.Unlock()

		res := rpcResp{JSONRPC: "2.0", ID: req.ID}
		switch req.Method {
		case "eth_chainId":
			res.Result = n.chainID
		case "eth_getTransactionCount":
			res.Result = "0x7"
		case "eth_gasPrice":
			res.Result = "0x3b9aca00"
		case "eth_estimateGas":
			res.Result = "0x5208"
		case "eth_getBalance":
			res.Result = "0xde0b6b3a7640000"
		case "eth_call":
			if strings.Contains(string(req.Params), "70a08231") {
				res.Result = "0x00000000000000000000000000000000000000000000000000000000000003e8"
			} else {
				res.Result = "0x"
			}
		case "eth_sendRawTransaction":
			var params []string
			require.NoError(t, json.Unmarshal(req.Params, &params))
			tx := new(ethtypes.Transaction)
			require.NoError(t, tx.UnmarshalBinary(hexutil.MustDecode(params[0])))
			n.raw = append(n.raw, tx)
			res.Result = tx.Hash().Hex()
		case "eth_getTransactionReceipt":
			n.receiptPolls++
			if n.receiptPolls <= n.pendingReceipts {
				res.Result = nil
				break
			}
			res.Result = map[string]interface{}{
				"transactionHash":   "0x1111111111111111111111111111111111111111111111111111111111111111",
				"transactionIndex":  "0x0",
				"blockHash":         "0x2222222222222222222222222222222222222222222222222222222222222222",
				"blockNumber":       "0x1",
				"from":              "0x3333333333333333333333333333333333333333",
				"to":                "0x4444444444444444444444444444444444444444",
				"cumulativeGasUsed": "0x5208",
				"gasUsed":           "0x5208",
				"contractAddress":   nil,
				"logs":              []interface{}{},
				"logsBloom":         "0x" + strings.Repeat("0", 512),
				"status":            n.receiptStatus,
				"effectiveGasPrice": "0x3b9aca00",
			}
		default:
			res.Result = "0x0"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestWallet(t *testing.T, rpcs map[uint64]string, chainID uint64) (*EVMWallet, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	w, err := NewEVMWallet(hexutil.Encode(crypto.FromECDSA(key)), rpcs, chainID, WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestNewEVMWalletValidation(t *testing.T) {
	_, err := NewEVMWallet("", map[uint64]string{1: "http://localhost"}, 1)
	require.Error(t, err)

	_, err = NewEVMWallet("0xzz", map[uint64]string{1: "http://localhost"}, 1)
	require.ErrorContains(t, err, "invalid private key")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = NewEVMWallet(hexutil.Encode(crypto.FromECDSA(key)), map[uint64]string{}, 1)
	require.ErrorContains(t, err, "RPC URL not configured")
}

func TestSendTransaction(t *testing.T) {
	node := &rpcNode{chainID: "0xa4b1", receiptStatus: "0x1"}
	srv := node.serve(t)
	w, address := newTestWallet(t, map[uint64]string{42161: srv.URL}, 42161)
	require.Equal(t, address, w.Address())

	hash, err := w.SendTransaction(context.Background(), types.TransactionRequest{
		To:      "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE",
		ChainID: 42161,
		Data:    "0x095ea7b3",
		Value:   "0x0de0b6b3a7640000",
	})
	require.NoError(t, err)

	require.Len(t, node.raw, 1)
	tx := node.raw[0]
	require.Equal(t, tx.Hash().Hex(), hash)
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, uint64(21000*gasBufferPercent/100), tx.Gas())
	require.Equal(t, "1000000000000000000", tx.Value().String())
	require.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, tx.Data())

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(42161)), tx)
	require.NoError(t, err)
	require.Equal(t, address, sender.Hex())
}

func TestSendTransactionUsesProvidedGas(t *testing.T) {
	node := &rpcNode{chainID: "0xa4b1", receiptStatus: "0x1"}
	srv := node.serve(t)
	w, _ := newTestWallet(t, map[uint64]string{42161: srv.URL}, 42161)

	_, err := w.SendTransaction(context.Background(), types.TransactionRequest{
		To:       "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE",
		Value:    "1000",
		GasLimit: "0x30d40",
		GasPrice: "2000000000",
	})
	require.NoError(t, err)

	tx := node.raw[0]
	require.Equal(t, uint64(200000), tx.Gas())
	require.Equal(t, "2000000000", tx.GasPrice().String())
	require.Equal(t, "1000", tx.Value().String())
}

func TestSendTransactionRejectsBadRequest(t *testing.T) {
	node := &rpcNode{chainID: "0xa4b1"}
	srv := node.serve(t)
	w, _ := newTestWallet(t, map[uint64]string{42161: srv.URL}, 42161)

	_, err := w.SendTransaction(context.Background(), types.TransactionRequest{To: "not-an-address", ChainID: 42161})
	require.ErrorContains(t, err, "invalid recipient")

	_, err = w.SendTransaction(context.Background(), types.TransactionRequest{To: "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE", ChainID: 10})
	require.ErrorContains(t, err, "RPC URL not configured for chain 10")
	require.Empty(t, node.raw)
}

func TestSwitchChain(t *testing.T) {
	arb := (&rpcNode{chainID: "0xa4b1"}).serve(t)
	opt := (&rpcNode{chainID: "0xa"}).serve(t)
	wrong := (&rpcNode{chainID: "0x1"}).serve(t)
	w, _ := newTestWallet(t, map[uint64]string{42161: arb.URL, 10: opt.URL, 8453: wrong.URL}, 42161)

	require.NoError(t, w.SwitchChain(context.Background(), 10))
	current, err := w.ChainID(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(10), current)

	require.ErrorContains(t, w.SwitchChain(context.Background(), 8453), "reports chain 1")
	require.Error(t, w.SwitchChain(context.Background(), 137))

	current, _ = w.ChainID(context.Background())
	require.Equal(t, uint64(10), current)
}

func TestSignTypedData(t *testing.T) {
	w, address := newTestWallet(t, map[uint64]string{42161: "http://localhost:0"}, 42161)
	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {{Name: "name", Type: "string"}, {Name: "chainId", Type: "uint256"}},
			"Permit":       {{Name: "amount", Type: "uint256"}},
		},
		PrimaryType: "Permit",
		Domain:      apitypes.TypedDataDomain{Name: "Phorus", ChainId: math.NewHexOrDecimal256(42161)},
		Message:     apitypes.TypedDataMessage{"amount": "1000000"},
	}

	signature, err := w.SignTypedData(context.Background(), data)
	require.NoError(t, err)

	sig := hexutil.MustDecode(signature)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])

	hash, _, err := apitypes.TypedDataAndHash(data)
	require.NoError(t, err)
	sig[64] -= 27
	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	require.Equal(t, address, crypto.PubkeyToAddress(*pub).Hex())
}

func TestWaitForConfirmation(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   bool
	}{
		{name: "success", status: "0x1", want: true},
		{name: "reverted", status: "0x0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &rpcNode{chainID: "0xa4b1", receiptStatus: tt.status, pendingReceipts: 2}
			srv := node.serve(t)
			w, _ := newTestWallet(t, map[uint64]string{42161: srv.URL}, 42161)

			ok, err := w.WaitForConfirmation(context.Background(), 42161, "0x1111111111111111111111111111111111111111111111111111111111111111")
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
			require.Equal(t, 3, node.receiptPolls)
		})
	}
}

func TestWaitForConfirmationHonorsContext(t *testing.T) {
	node := &rpcNode{chainID: "0xa4b1", pendingReceipts: 1 << 30}
	srv := node.serve(t)
	w, _ := newTestWallet(t, map[uint64]string{42161: srv.URL}, 42161)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.WaitForConfirmation(ctx, 42161, "0x1111111111111111111111111111111111111111111111111111111111111111")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBalance(t *testing.T) {
	node := &rpcNode{chainID: "0xa4b1"}
	srv := node.serve(t)
	w, _ := newTestWallet(t, map[uint64]string{42161: srv.URL}, 42161)

	native, err := w.Balance(context.Background(), 42161, "")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", native.String())

	token, err := w.Balance(context.Background(), 42161, "0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	require.NoError(t, err)
	require.Equal(t, "1000", token.String())
}
