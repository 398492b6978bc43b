// Package facilitator is the boundary adapter to the remote settlement
// service. The facilitator verifies a signed payment authorization against
// chain state and, only if valid, finalizes the transfer; both steps happen
// inside a single Settle call so no "verified but not settled" state is ever
// observable here.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/monad-arcade/paygate/pkg/types"
)

// DefaultFacilitatorURL is the default URL for the x402 facilitator service.
const DefaultFacilitatorURL = "https://x402.org/facilitator"

// DefaultTimeout bounds a settle call when no timeout is configured. The
// protocol itself has no timeout; this is an operational safeguard.
const DefaultTimeout = 30 * time.Second

// Configuration errors. Both are fatal: a client without a receiving address
// must never serve a request.
var (
	ErrMissingWalletAddress = errors.New("facilitator: server wallet address is required")
	ErrInvalidWalletAddress = errors.New("facilitator: server wallet address is not a valid hex address")
)

// Config configures the facilitator client.
type Config struct {
	// URL is the base URL of the facilitator service.
	URL string

	// SecretKey authenticates this server to the facilitator.
	SecretKey string

	// ServerWalletAddress is the merchant account that receives payments.
	// Required.
	ServerWalletAddress string

	// Timeout bounds each settle call (optional, defaults to 30s).
	Timeout time.Duration

	// HTTPClient overrides the transport (optional).
	HTTPClient *http.Client
}

// Client settles payment authorizations against a remote facilitator.
type Client struct {
	url        string
	secretKey  string
	payTo      string
	httpClient *http.Client
}

// NewClient creates a facilitator client, validating the receiving address
// eagerly so a misconfigured server fails at startup rather than per call.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = &Config{}
	}

	if config.ServerWalletAddress == "" {
		return nil, ErrMissingWalletAddress
	}
	if !common.IsHexAddress(config.ServerWalletAddress) {
		return nil, ErrInvalidWalletAddress
	}

	url := config.URL
	if url == "" {
		url = DefaultFacilitatorURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		url:        strings.TrimSuffix(url, "/"),
		secretKey:  config.SecretKey,
		payTo:      config.ServerWalletAddress,
		httpClient: httpClient,
	}, nil
}

// PayTo returns the merchant receiving address the client was built with.
func (c *Client) PayTo() string {
	return c.payTo
}

// settleRequest is the wire body for POST /settle. The authorization is
// forwarded whole; only the facilitator interprets it.
type settleRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentHeader       string                   `json:"paymentHeader"`
	PaymentRequirements *types.PaymentDescriptor `json:"paymentRequirements"`
}

// Settle verifies and settles a payment authorization against the given
// descriptor. A non-200 facilitator outcome is not an error: its status,
// body and receipt headers are returned verbatim in the SettlementResult so
// the gate can forward the facilitator's own challenge semantics. An error
// is returned only when the facilitator could not be reached or answered
// with an unreadable response.
func (c *Client) Settle(ctx context.Context, descriptor *types.PaymentDescriptor, authorization string) (*types.SettlementResult, error) {
	reqBody := settleRequest{
		X402Version:         types.X402Version,
		PaymentHeader:       authorization,
		PaymentRequirements: descriptor,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/settle", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create settle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secretKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send settle request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read settle response: %w", err)
	}

	result := &types.SettlementResult{
		Status:  resp.StatusCode,
		Body:    responseBody,
		Headers: forwardableHeaders(resp.Header),
	}

	if resp.StatusCode != http.StatusOK {
		return result, nil
	}

	// Success carries a receipt that goes back to the client in the
	// X-PAYMENT-RESPONSE header.
	var receipt types.SettleReceipt
	if err := json.Unmarshal(responseBody, &receipt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settle receipt: %w", err)
	}

	encoded, err := receipt.EncodeToBase64String()
	if err != nil {
		return nil, err
	}
	if result.Headers == nil {
		result.Headers = make(map[string]string)
	}
	result.Headers[types.HeaderPaymentResponse] = encoded

	return result, nil
}

// forwardableHeaders selects the facilitator response headers the gate is
// allowed to pass through: payment receipt headers and retry hints.
func forwardableHeaders(h http.Header) map[string]string {
	headers := make(map[string]string)
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		canonical := http.CanonicalHeaderKey(key)
		if strings.HasPrefix(canonical, "X-Payment") || canonical == "Retry-After" {
			headers[canonical] = values[0]
		}
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
