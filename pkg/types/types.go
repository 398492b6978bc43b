package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol version carried in facilitator requests and challenge bodies.
const X402Version = 1

// HTTP header names used by the payment protocol.
const (
	// HeaderPayment carries the opaque signed payment authorization.
	HeaderPayment = "X-PAYMENT"
	// HeaderPaymentResponse carries the base64-encoded settlement receipt.
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// Descriptor validation errors.
var (
	ErrMissingResource = errors.New("paygate: resource URL is required")
	ErrMissingMethod   = errors.New("paygate: method is required")
	ErrMissingPayTo    = errors.New("paygate: payTo address is required")
	ErrInvalidPayTo    = errors.New("paygate: payTo is not a valid hex address")
	ErrMissingChainID  = errors.New("paygate: chain id is required")
	ErrInvalidPrice    = errors.New("paygate: price is malformed")
)

// NativeCurrency describes the gas asset of a chain. Descriptive only; it is
// never used for routing or settlement decisions.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainConfig identifies the chain a payment must settle on. The numeric ID
// is the sole routing value; name, RPC and native-asset metadata are
// descriptive.
type ChainConfig struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	RPC            string         `json:"rpc"`
	NativeCurrency NativeCurrency `json:"nativeCurrency"`
	Testnet        bool           `json:"testnet"`
}

// DefaultMonadTestnet returns the Monad testnet chain configuration.
func DefaultMonadTestnet() ChainConfig {
	return ChainConfig{
		ID:   10143,
		Name: "Monad Testnet",
		RPC:  "https://testnet.monad.xyz",
		NativeCurrency: NativeCurrency{
			Name:     "Monad",
			Symbol:   "MON",
			Decimals: 18,
		},
		Testnet: true,
	}
}

// PaymentDescriptor describes what payment is required for a resource: which
// chain, which recipient, and at what price. It is constructed fresh per
// request from static configuration and must be byte-for-byte reproducible
// for the same (method, resource) pair, since the facilitator binds the
// client's authorization to exactly these fields.
type PaymentDescriptor struct {
	ResourceURL string      `json:"resourceUrl"`
	Method      string      `json:"method"`
	PayTo       string      `json:"payTo"`
	Network     ChainConfig `json:"network"`
	Price       string      `json:"price"`
}

// Validate checks that all required descriptor fields are present and well
// formed. Called once at gate construction and again defensively per request.
func (d *PaymentDescriptor) Validate() error {
	if d.ResourceURL == "" {
		return ErrMissingResource
	}
	if d.Method == "" {
		return ErrMissingMethod
	}
	if d.PayTo == "" {
		return ErrMissingPayTo
	}
	if !common.IsHexAddress(d.PayTo) {
		return ErrInvalidPayTo
	}
	if d.Network.ID == 0 {
		return ErrMissingChainID
	}
	if _, err := ParsePrice(d.Price); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	return nil
}

// PaymentChallenge is the JSON body of a 402 response: the descriptor the
// client must satisfy, plus a human-readable reason.
type PaymentChallenge struct {
	Error       string `json:"error"`
	X402Version int    `json:"x402Version"`
	PaymentDescriptor
}

// NewPaymentChallenge wraps a descriptor in the standard challenge body.
func NewPaymentChallenge(reason string, d PaymentDescriptor) *PaymentChallenge {
	return &PaymentChallenge{
		Error:             reason,
		X402Version:       X402Version,
		PaymentDescriptor: d,
	}
}

// SettlementResult is the facilitator's HTTP-level outcome for one request:
// the status to emit, the body to forward, and any receipt headers to attach.
// Produced exactly once per request and never mutated afterwards.
type SettlementResult struct {
	Status  int               `json:"status"`
	Body    json.RawMessage   `json:"responseBody,omitempty"`
	Headers map[string]string `json:"responseHeaders,omitempty"`
}

// Granted reports whether the facilitator settled the payment.
func (r *SettlementResult) Granted() bool {
	return r.Status == 200
}

// InternalErrorBody is the generic envelope for faults that must not leak
// internals to the client.
type InternalErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewInternalErrorBody builds the fixed internal-error envelope around a
// causing message.
func NewInternalErrorBody(message string) *InternalErrorBody {
	return &InternalErrorBody{
		Error:   "Internal server error",
		Message: message,
	}
}
