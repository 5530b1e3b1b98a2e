package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog/log"

	"phorus/pkg/types"
)

const (
	DefaultPollInterval = 3 * time.Second

	// Applied to gas estimates.
	gasBufferPercent = 120
)

const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

var dialClient = ethclient.DialContext

// EVMWallet signs with a local private key and talks to one RPC endpoint per
// chain. The selected chain plays the role a browser wallet's network does.
type EVMWallet struct {
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	rpcs         map[uint64]string
	pollInterval time.Duration

	mu      sync.Mutex
	chainID uint64
	clients map[uint64]*ethclient.Client
}

// Option configures an EVMWallet.
type Option func(*EVMWallet)

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(d time.Duration) Option {
	return func(w *EVMWallet) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// NewEVMWallet creates a wallet for privateKey. chainID is the initially
// selected chain and must have an RPC endpoint.
func NewEVMWallet(privateKey string, rpcs map[uint64]string, chainID uint64, opts ...Option) (*EVMWallet, error) {
	if privateKey == "" {
		return nil, fmt.Errorf("private key not configured")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if _, ok := rpcs[chainID]; !ok {
		return nil, fmt.Errorf("RPC URL not configured for chain %d", chainID)
	}

	w := &EVMWallet{
		privateKey:   key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		rpcs:         make(map[uint64]string, len(rpcs)),
		pollInterval: DefaultPollInterval,
		chainID:      chainID,
		clients:      make(map[uint64]*ethclient.Client),
	}
	for id, url := range rpcs {
		w.rpcs[id] = url
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *EVMWallet) Address() string {
	return w.address.Hex()
}

// ChainID returns the selected chain.
func (w *EVMWallet) ChainID(context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

// SwitchChain selects chainID after checking that its RPC endpoint serves that chain.
func (w *EVMWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	client, err := w.client(ctx, chainID)
	if err != nil {
		return err
	}
	remote, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}
	if remote.Uint64() != chainID {
		return fmt.Errorf("RPC for chain %d reports chain %s", chainID, remote)
	}

	w.mu.Lock()
	w.chainID = chainID
	w.mu.Unlock()
	log.Debug().Msgf("Wallet switched to chain %d", chainID)
	return nil
}

// SendTransaction signs and broadcasts req on its chain, or on the selected
// chain when req carries none.
func (w *EVMWallet) SendTransaction(ctx context.Context, req types.TransactionRequest) (string, error) {
	chainID := req.ChainID
	if chainID == 0 {
		chainID, _ = w.ChainID(ctx)
	}
	client, err := w.client(ctx, chainID)
	if err != nil {
		return "", err
	}

	if !common.IsHexAddress(req.To) {
		return "", fmt.Errorf("invalid recipient address: %s", req.To)
	}
	to := common.HexToAddress(req.To)
	value, err := parseQuantity(req.Value)
	if err != nil {
		return "", fmt.Errorf("invalid value: %w", err)
	}
	data := common.FromHex(req.Data)

	nonce, err := client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := parseQuantity(req.GasPrice)
	if err != nil {
		return "", fmt.Errorf("invalid gas price: %w", err)
	}
	if gasPrice.Sign() == 0 {
		gasPrice, err = client.SuggestGasPrice(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	gasLimit, err := w.gasLimit(ctx, client, req.GasLimit, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", err
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signer := ethtypes.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	signedTx, err := ethtypes.SignTx(tx, signer, w.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	log.Info().Msgf("Sent transaction %s to %s on chain %d", signedTx.Hash().Hex(), to.Hex(), chainID)
	return signedTx.Hash().Hex(), nil
}

func (w *EVMWallet) gasLimit(ctx context.Context, client *ethclient.Client, provided string, msg ethereum.CallMsg) (uint64, error) {
	limit, err := parseQuantity(provided)
	if err != nil {
		return 0, fmt.Errorf("invalid gas limit: %w", err)
	}
	if limit.Sign() > 0 {
		return limit.Uint64(), nil
	}

	estimated, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return estimated * gasBufferPercent / 100, nil
}

// SignTypedData returns the EIP-712 signature of data with a 27/28 recovery id.
func (w *EVMWallet) SignTypedData(_ context.Context, data apitypes.TypedData) (string, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return "", fmt.Errorf("failed to hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, w.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// WaitForConfirmation polls for the receipt of hash. It returns false when
// the transaction reverted.
func (w *EVMWallet) WaitForConfirmation(ctx context.Context, chainID uint64, hash string) (bool, error) {
	client, err := w.client(ctx, chainID)
	if err != nil {
		return false, err
	}
	txHash := common.HexToHash(hash)

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil && receipt != nil:
			log.Debug().Msgf("Transaction %s included in block %s", hash, receipt.BlockNumber)
			return receipt.Status == ethtypes.ReceiptStatusSuccessful, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			log.Warn().Msgf("Error fetching transaction receipt: %v", err)
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

// Balance returns the wallet's balance of token on chainID. An empty or zero
// token address means the native asset.
func (w *EVMWallet) Balance(ctx context.Context, chainID uint64, token string) (*big.Int, error) {
	client, err := w.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if token == "" || strings.EqualFold(token, types.NativeTokenAddress) {
		return client.BalanceAt(ctx, w.address, nil)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20BalanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse balanceOf ABI: %w", err)
	}
	data, err := parsedABI.Pack("balanceOf", w.address)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf data: %w", err)
	}

	tokenAddress := common.HexToAddress(token)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

// Close closes every RPC connection.
func (w *EVMWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, client := range w.clients {
		client.Close()
		delete(w.clients, id)
	}
}

func (w *EVMWallet) client(ctx context.Context, chainID uint64) (*ethclient.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if client, ok := w.clients[chainID]; ok {
		return client, nil
	}
	url, ok := w.rpcs[chainID]
	if !ok || url == "" {
		return nil, fmt.Errorf("RPC URL not configured for chain %d", chainID)
	}
	client, err := dialClient(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	w.clients[chainID] = client
	return client, nil
}

// parseQuantity accepts hex (0x-prefixed) or decimal quantities. Empty is zero.
func parseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}
