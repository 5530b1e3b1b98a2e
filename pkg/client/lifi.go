package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/types"
)

const (
	DefaultBaseURL = "https://li.quest/v1"

	apiKeyHeader     = "x-lifi-api-key"
	integratorHeader = "x-lifi-integrator"
)

// QuoteRequest is the single-hop quote request.
type QuoteRequest struct {
	FromChainID uint64
	ToChainID   uint64
	FromToken   string
	ToToken     string
	FromAmount  string
	FromAddress string
	ToAddress   string
	Slippage    float64
}

// RouteOptions are the advanced routing options.
type RouteOptions struct {
	Slippage      float64  `json:"slippage,omitempty"`
	Integrator    string   `json:"integrator,omitempty"`
	Order         string   `json:"order,omitempty"`
	ExecutionType string   `json:"executionType,omitempty"`
	AllowBridges  []string `json:"allowBridges,omitempty"`
}

// RoutesRequest is the advanced multi-step routes request.
type RoutesRequest struct {
	FromChainID      uint64       `json:"fromChainId"`
	FromTokenAddress string       `json:"fromTokenAddress"`
	FromAmount       string       `json:"fromAmount"`
	FromAddress      string       `json:"fromAddress"`
	ToChainID        uint64       `json:"toChainId"`
	ToTokenAddress   string       `json:"toTokenAddress"`
	ToAddress        string       `json:"toAddress,omitempty"`
	Options          RouteOptions `json:"options"`
}

type routesResponse struct {
	Routes []types.Route `json:"routes"`
}

type relayRequest struct {
	Step      types.Step `json:"step"`
	Signature string     `json:"signature"`
}

type tokensResponse struct {
	Tokens map[string][]types.Token `json:"tokens"`
}

type statusResponse struct {
	Status           string `json:"status"`
	Substatus        string `json:"substatus"`
	SubstatusMessage string `json:"substatusMessage"`
	Tool             string `json:"tool"`
	Sending          struct {
		TxHash  string `json:"txHash"`
		ChainID uint64 `json:"chainId"`
	} `json:"sending"`
	Receiving struct {
		TxHash  string `json:"txHash"`
		ChainID uint64 `json:"chainId"`
		Amount  string `json:"amount"`
	} `json:"receiving"`
}

// LifiClient talks to a LI.FI compatible routing API. It serves the simple quote,
// advanced routes, step transaction, relay, token registry and status endpoints.
type LifiClient struct {
	baseURL    string
	apiKey     string
	integrator string

	HTTPClient *http.Client
}

// NewLifiClient creates a new routing API client
func NewLifiClient(baseURL, apiKey, integrator string) *LifiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &LifiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		integrator: integrator,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetQuote requests a single-hop quote. The returned step carries its transaction request.
func (c *LifiClient) GetQuote(ctx context.Context, req QuoteRequest) (*types.Step, error) {
	query := url.Values{}
	query.Set("fromChain", strconv.FormatUint(req.FromChainID, 10))
	query.Set("toChain", strconv.FormatUint(req.ToChainID, 10))
	query.Set("fromToken", req.FromToken)
	query.Set("toToken", req.ToToken)
	query.Set("fromAmount", req.FromAmount)
	query.Set("fromAddress", req.FromAddress)
	if req.ToAddress != "" {
		query.Set("toAddress", req.ToAddress)
	}
	if req.Slippage > 0 {
		query.Set("slippage", strconv.FormatFloat(req.Slippage, 'f', -1, 64))
	}
	if c.integrator != "" {
		query.Set("integrator", c.integrator)
	}

	step := new(types.Step)
	if err := c.do(ctx, http.MethodGet, "/quote", query, nil, step); err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return step, nil
}

// GetRoutes requests candidate multi-step routes in provider order.
func (c *LifiClient) GetRoutes(ctx context.Context, req RoutesRequest) ([]types.Route, error) {
	if req.Options.Integrator == "" {
		req.Options.Integrator = c.integrator
	}

	resp := new(routesResponse)
	if err := c.do(ctx, http.MethodPost, "/advanced/routes", nil, req, resp); err != nil {
		return nil, fmt.Errorf("failed to get routes: %w", err)
	}
	return resp.Routes, nil
}

// GetStepTransaction resolves the transaction request or typed-data message of a step.
// The step is sent exactly as the provider returned it.
func (c *LifiClient) GetStepTransaction(ctx context.Context, step types.Step) (*types.Step, error) {
	resolved := new(types.Step)
	if err := c.do(ctx, http.MethodPost, "/advanced/stepTransaction", nil, step, resolved); err != nil {
		return nil, fmt.Errorf("failed to resolve step %s: %w", step.ID, err)
	}
	return resolved, nil
}

// Relay submits a signed message step to the relay service.
func (c *LifiClient) Relay(ctx context.Context, step types.Step, signature string) (*types.RelayResult, error) {
	result := new(types.RelayResult)
	err := c.do(ctx, http.MethodPost, "/advanced/relay", nil, relayRequest{Step: step, Signature: signature}, result)
	if err != nil {
		return nil, &bridgeerrors.BridgeError{
			Kind: bridgeerrors.KindRelay,
			Err:  fmt.Errorf("%w: %w", bridgeerrors.ErrRelayFailed, err),
		}
	}
	if result.Failed() {
		return nil, &bridgeerrors.BridgeError{
			Kind: bridgeerrors.KindRelay,
			Err:  fmt.Errorf("%w: relay status %s", bridgeerrors.ErrRelayFailed, result.Status),
		}
	}
	if result.Reference() == "" {
		return nil, fmt.Errorf("%w: empty relay response", bridgeerrors.ErrRelayFailed)
	}
	return result, nil
}

// Token looks a token up in the provider registry.
func (c *LifiClient) Token(ctx context.Context, chainID uint64, symbol string) (*types.Token, error) {
	query := url.Values{}
	query.Set("chain", strconv.FormatUint(chainID, 10))
	query.Set("token", symbol)

	token := new(types.Token)
	err := c.do(ctx, http.MethodGet, "/token", query, nil, token)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusBadRequest) {
			return nil, fmt.Errorf("%s on chain %d: %w", symbol, chainID, bridgeerrors.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if token.Address == "" {
		return nil, fmt.Errorf("%s on chain %d: %w", symbol, chainID, bridgeerrors.ErrTokenNotFound)
	}
	return token, nil
}

// Tokens returns the registry's full token list for a chain.
func (c *LifiClient) Tokens(ctx context.Context, chainID uint64) ([]types.Token, error) {
	key := strconv.FormatUint(chainID, 10)
	query := url.Values{}
	query.Set("chains", key)

	resp := new(tokensResponse)
	if err := c.do(ctx, http.MethodGet, "/tokens", query, nil, resp); err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	return resp.Tokens[key], nil
}

// GetStatus checks the provider-side status of a submitted transfer.
func (c *LifiClient) GetStatus(ctx context.Context, txHash string, fromChainID uint64) (*types.TransferStatus, error) {
	query := url.Values{}
	query.Set("txHash", txHash)
	if fromChainID != 0 {
		query.Set("fromChain", strconv.FormatUint(fromChainID, 10))
	}

	resp := new(statusResponse)
	if err := c.do(ctx, http.MethodGet, "/status", query, nil, resp); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	return &types.TransferStatus{
		TxHash:           txHash,
		Status:           resp.Status,
		Substatus:        resp.Substatus,
		SubstatusMessage: resp.SubstatusMessage,
		Tool:             resp.Tool,
		FromChainID:      resp.Sending.ChainID,
		ToChainID:        resp.Receiving.ChainID,
		ReceivingTxHash:  resp.Receiving.TxHash,
		ReceivedAmount:   resp.Receiving.Amount,
	}, nil
}

func (c *LifiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	if c.integrator != "" {
		req.Header.Set(integratorHeader, c.integrator)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", bridgeerrors.ErrProvider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %w", bridgeerrors.ErrProvider, err)
	}
	log.Debug().Msgf("%s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: failed to unmarshal JSON: %w", bridgeerrors.ErrProvider, err)
	}
	return nil
}

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return bridgeerrors.ErrProvider
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	if len(body) == 0 {
		apiErr.Message = http.StatusText(status)
		return apiErr
	}

	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err != nil {
		return apiErr
	}
	if message, ok := errorResp["message"].(string); ok && message != "" {
		apiErr.Message = message
	} else if message, ok := errorResp["error"].(string); ok && message != "" {
		apiErr.Message = message
	} else if errs, ok := errorResp["errors"]; ok {
		apiErr.Message = fmt.Sprintf("%v", errs)
	}
	return apiErr
}
