// Package client wraps an HTTP client with transparent x402 payment
// handling: a request that comes back 402 is signed through the caller's
// wallet and reissued with the payment authorization attached, so paying for
// a resource looks like an ordinary request to the caller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/monad-arcade/paygate/pkg/types"
)

// Wallet is the client-side signing collaborator. Implementations talk to a
// browser extension, hardware wallet or key service; this package only needs
// the connection lifecycle.
type Wallet interface {
	// Connect establishes the wallet session.
	Connect(ctx context.Context) error
	// SwitchChain moves the wallet onto the chain the challenge demands.
	SwitchChain(ctx context.Context, network types.ChainConfig) error
	// GetAccount returns the connected account address.
	GetAccount() (string, error)
}

// Signer produces the opaque payment authorization for a challenge. The
// returned value is carried whole in the X-PAYMENT header and is never
// inspected by this package.
type Signer interface {
	SignPayment(ctx context.Context, challenge *types.PaymentChallenge, account string) (string, error)
}

// WrapHTTPClientWithPayment wraps client so its requests transparently pay
// x402 challenges using the given wallet and signer.
func WrapHTTPClientWithPayment(client *http.Client, wallet Wallet, signer Signer) *http.Client {
	if client == nil {
		client = &http.Client{}
	}

	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	client.Transport = &PaymentRoundTripper{
		Transport: transport,
		Wallet:    wallet,
		Signer:    signer,
	}

	return client
}

// PaymentRoundTripper implements http.RoundTripper with x402 payment
// handling: issue the request, and on a 402 sign the challenge and retry
// exactly once with the authorization attached.
type PaymentRoundTripper struct {
	Transport http.RoundTripper
	Wallet    Wallet
	Signer    Signer
}

// RoundTrip implements http.RoundTripper.
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	// A request with a non-replayable body cannot be reissued; hand the
	// challenge back to the caller.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read 402 response body: %w", err)
	}

	var challenge types.PaymentChallenge
	if err := json.Unmarshal(body, &challenge); err != nil {
		// Not an x402 challenge; restore the body and return the 402 as-is.
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil
	}

	ctx := req.Context()
	authorization, err := t.authorize(ctx, &challenge)
	if err != nil {
		return nil, err
	}

	paymentReq := req.Clone(ctx)
	if req.GetBody != nil {
		paymentReq.Body, err = req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
	}
	paymentReq.Header.Set(types.HeaderPayment, authorization)

	return t.Transport.RoundTrip(paymentReq)
}

// authorize runs the wallet flow for one challenge: connect, move to the
// demanded chain, then sign against the challenge's descriptor.
func (t *PaymentRoundTripper) authorize(ctx context.Context, challenge *types.PaymentChallenge) (string, error) {
	if err := t.Wallet.Connect(ctx); err != nil {
		return "", fmt.Errorf("wallet connect failed: %w", err)
	}
	if err := t.Wallet.SwitchChain(ctx, challenge.Network); err != nil {
		return "", fmt.Errorf("wallet chain switch failed: %w", err)
	}

	account, err := t.Wallet.GetAccount()
	if err != nil {
		return "", fmt.Errorf("wallet account unavailable: %w", err)
	}

	authorization, err := t.Signer.SignPayment(ctx, challenge, account)
	if err != nil {
		return "", fmt.Errorf("payment signing failed: %w", err)
	}

	return authorization, nil
}
