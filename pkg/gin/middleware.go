// Package gin binds the payment gate to gin-based resource servers.
package gin

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/monad-arcade/paygate/pkg/gate"
	"github.com/monad-arcade/paygate/pkg/types"
)

// PaymentMiddlewareOptions is the options for the PaymentMiddleware.
type PaymentMiddlewareOptions struct {
	Network         types.ChainConfig
	Price           string
	ResourceBaseURL string
	ReplayTTL       time.Duration
	Recorder        gate.Recorder
}

// Options is the type for the options for the PaymentMiddleware.
type Options func(*PaymentMiddlewareOptions)

// WithNetwork sets the chain payments must settle on.
func WithNetwork(network types.ChainConfig) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Network = network
	}
}

// WithPrice sets the USD price of the protected resource.
func WithPrice(price string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Price = price
	}
}

// WithResourceBaseURL sets the canonical origin used to derive resource URLs.
func WithResourceBaseURL(resourceBaseURL string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.ResourceBaseURL = resourceBaseURL
	}
}

// WithReplayTTL sets how long settled authorizations are remembered.
func WithReplayTTL(ttl time.Duration) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.ReplayTTL = ttl
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder gate.Recorder) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Recorder = recorder
	}
}

// PaymentMiddleware gates the wrapped handlers behind an x402 micropayment.
// Construction fails when the gate configuration is invalid (for example a
// missing receiving address), so a misconfigured server refuses to start
// instead of failing per request.
func PaymentMiddleware(settler gate.Settler, payTo string, opts ...Options) (gin.HandlerFunc, error) {
	options := &PaymentMiddlewareOptions{
		Network: types.DefaultMonadTestnet(),
		Price:   "$0.01",
	}
	for _, opt := range opts {
		opt(options)
	}

	g, err := gate.New(settler, gate.Config{
		PayTo:           payTo,
		Network:         options.Network,
		Price:           options.Price,
		ResourceBaseURL: options.ResourceBaseURL,
		ReplayTTL:       options.ReplayTTL,
		Recorder:        options.Recorder,
	})
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		req := c.Request
		outcome := g.Evaluate(req.Context(), req.Method, req.URL.Path, c.GetHeader(types.HeaderPayment))

		for key, value := range outcome.Headers {
			c.Header(key, value)
		}

		if outcome.State != gate.StateGranted {
			c.Data(outcome.Status, "application/json", outcome.Body)
			c.Abort()
			return
		}

		// Settlement confirmed; the protected handler may now run.
		c.Next()
	}, nil
}

// RequestID attaches a correlation id to every response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)
		c.Next()
	}
}
