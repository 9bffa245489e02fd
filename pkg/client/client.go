// Package client provides a typed HTTP client for the authorization node.
// Server rejections decode back into the engine's sentinel errors so callers
// can branch with errors.Is; transport failures are optionally retried with
// exponential backoff. Protocol rejections are never retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/authrail/authrail-go/pkg/retry"
	"github.com/authrail/authrail-go/pkg/types"
)

const defaultTimeout = 30 * time.Second

// errorBodyLimit caps how much of a failed response is read for diagnostics.
const errorBodyLimit = 64 * 1024

// Config holds the configuration for the node client.
type Config struct {
	// BaseURL is the node's address, for example "http://localhost:8947".
	BaseURL string

	// HTTPClient overrides the default client (30s timeout).
	HTTPClient *http.Client

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Retry enables retries for transport-level failures. Nil disables
	// retries entirely.
	Retry *retry.Config
}

// Client talks to a single authorization node.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	retry      *retry.Config
}

// NewClient creates a node client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		retry:      config.Retry,
	}, nil
}

// Transfer submits a signed transfer authorization.
func (c *Client) Transfer(ctx context.Context, auth *types.Authorization, sig []byte) error {
	return c.call(ctx, http.MethodPost, "/v1/authorization/transfer", types.NewTransferRequest(auth, sig), nil)
}

// Receive submits a signed receive authorization. The caller signature
// proves the submitter's identity; the node rejects submitters other than
// the payee.
func (c *Client) Receive(ctx context.Context, auth *types.Authorization, sig, callerSig []byte) error {
	return c.call(ctx, http.MethodPost, "/v1/authorization/receive", types.NewReceiveRequest(auth, sig, callerSig), nil)
}

// Cancel burns an unused authorization nonce.
func (c *Client) Cancel(ctx context.Context, cancel *types.Cancellation, sig []byte) error {
	return c.call(ctx, http.MethodPost, "/v1/authorization/cancel", types.NewCancelRequest(cancel, sig), nil)
}

// AuthorizationState reports whether the (authorizer, nonce) pair has been
// consumed.
func (c *Client) AuthorizationState(ctx context.Context, authorizer common.Address, nonce common.Hash) (bool, error) {
	q := url.Values{}
	q.Set("authorizer", authorizer.Hex())
	q.Set("nonce", nonce.Hex())

	var resp types.StateResponse
	if err := c.call(ctx, http.MethodGet, "/v1/authorization/state?"+q.Encode(), nil, &resp); err != nil {
		return false, err
	}
	return resp.Used, nil
}

// Balance fetches one account balance.
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	var resp types.BalanceResponse
	if err := c.call(ctx, http.MethodGet, "/v1/balance/"+account.Hex(), nil, &resp); err != nil {
		return nil, err
	}

	balance, ok := new(big.Int).SetString(resp.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("server returned unparseable balance %q", resp.Balance)
	}
	return balance, nil
}

// Domain fetches the node's signing domain. Signers must build digests
// against exactly these fields or the node will reject their signatures.
func (c *Client) Domain(ctx context.Context) (*types.DomainResponse, error) {
	var resp types.DomainResponse
	if err := c.call(ctx, http.MethodGet, "/v1/domain", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TypeHashes fetches the authorization type strings and their hashes.
func (c *Client) TypeHashes(ctx context.Context) (*types.TypesResponse, error) {
	var resp types.TypesResponse
	if err := c.call(ctx, http.MethodGet, "/v1/types", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events pages the node's most recent event records, oldest first. A limit
// of zero returns everything the node retains.
func (c *Client) Events(ctx context.Context, limit int) (*types.EventsResponse, error) {
	path := "/v1/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp types.EventsResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JournalRoot fetches the node's current Merkle checkpoint.
func (c *Client) JournalRoot(ctx context.Context) (*types.JournalRootResponse, error) {
	var resp types.JournalRootResponse
	if err := c.call(ctx, http.MethodGet, "/v1/journal/root", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health reports whether the node's persistence layer is serving. Never
// retried: an unhealthy report is an answer, not a transport failure.
func (c *Client) Health(ctx context.Context) error {
	return c.roundTrip(ctx, http.MethodGet, "/health", nil, nil)
}

// call performs one API request, retrying transport-level failures when
// retries are configured.
func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	if c.retry == nil {
		return c.roundTrip(ctx, method, path, payload, out)
	}
	return retry.Do(ctx, *c.retry, IsTransient, func() error {
		return c.roundTrip(ctx, method, path, payload, out)
	})
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Sugar().Debugw("Request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns a non-2xx response into an error. Codes the engine
// defines come back as its sentinels; everything else is an *APIError.
func decodeError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if err != nil {
		return &TransportError{Err: fmt.Errorf("failed to read error response: %w", err)}
	}

	var wire types.ErrorResponse
	if err := json.Unmarshal(body, &wire); err != nil || wire.Code == "" {
		return &APIError{
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(body)),
		}
	}

	if sentinel, ok := sentinelByCode[wire.Code]; ok {
		return &serverError{sentinel: sentinel, message: wire.Message}
	}

	return &APIError{Status: resp.StatusCode, Code: wire.Code, Message: wire.Message}
}
