// Package gate implements the payment-gating state machine: for each inbound
// request it either issues a 402 challenge, settles an attached payment
// authorization through the facilitator, or grants access to the protected
// resource. Evaluation is stateless per request; the only shared state is
// read-only configuration and the duplicate-settlement cache.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/monad-arcade/paygate/pkg/types"
)

// State identifies where a request sits in the challenge/settlement cycle.
// Presence of a payment header and validity of the payment are deliberately
// distinct states.
type State int

const (
	// StateNoPayment means no authorization was supplied; a challenge is
	// issued. This is a normal protocol branch, not an error.
	StateNoPayment State = iota
	// StateVerifying means an authorization is present and is being settled
	// with the facilitator.
	StateVerifying
	// StateGranted means settlement succeeded and the resource handler may
	// run.
	StateGranted
	// StateDenied means settlement was rejected or an internal fault
	// occurred; the resource handler must not run.
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateNoPayment:
		return "no_payment"
	case StateVerifying:
		return "verifying"
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Settler is the facilitator boundary: one atomic verify+settle operation.
type Settler interface {
	Settle(ctx context.Context, descriptor *types.PaymentDescriptor, authorization string) (*types.SettlementResult, error)
}

// Recorder receives gate-level measurements. Implementations must be safe
// for concurrent use. A nil Recorder disables recording.
type Recorder interface {
	RecordChallenge(ctx context.Context)
	RecordSettlement(ctx context.Context, outcome string)
	RecordFacilitatorLatency(ctx context.Context, seconds float64)
}

// DefaultReplayTTL is how long a settled authorization stays in the
// duplicate-settlement cache.
const DefaultReplayTTL = 5 * time.Minute

// Config is the read-only configuration a Gate is built from. Initialized
// once at startup, never mutated, safe for unsynchronized concurrent reads.
type Config struct {
	// PayTo is the merchant receiving address bound into every descriptor.
	PayTo string

	// Network is the chain payments must settle on.
	Network types.ChainConfig

	// Price is the fixed USD price of the resource, e.g. "$0.01".
	Price string

	// ResourceBaseURL is the canonical origin of the protected resources,
	// e.g. "https://arcade.example.com". Joined with the request path to
	// form the descriptor's resource URL.
	ResourceBaseURL string

	// ReplayTTL bounds the duplicate-settlement cache (optional).
	ReplayTTL time.Duration

	// Recorder receives metrics (optional).
	Recorder Recorder
}

// Gate evaluates inbound requests against the payment protocol.
type Gate struct {
	settler  Settler
	config   Config
	cache    *SettlementCache
	recorder Recorder
	tracer   trace.Tracer
}

// Outcome is the HTTP shaping of one evaluation. Body is always valid JSON;
// on StateGranted it is empty and the adapter runs the resource handler
// instead.
type Outcome struct {
	State      State
	Status     int
	Body       json.RawMessage
	Headers    map[string]string
	Descriptor types.PaymentDescriptor
}

// New builds a Gate, failing fast on missing or malformed configuration so
// no request is ever served by a misconfigured gate.
func New(settler Settler, config Config) (*Gate, error) {
	if settler == nil {
		return nil, fmt.Errorf("gate: settler is required")
	}
	if config.ResourceBaseURL == "" {
		return nil, fmt.Errorf("gate: resource base URL is required")
	}

	// Probe descriptor construction once so per-request construction cannot
	// fail on static fields.
	probe := buildDescriptor(config, "GET", "/")
	if err := probe.Validate(); err != nil {
		return nil, err
	}

	ttl := config.ReplayTTL
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}

	return &Gate{
		settler:  settler,
		config:   config,
		cache:    NewSettlementCache(ttl),
		recorder: config.Recorder,
		tracer:   otel.Tracer("paygate/gate"),
	}, nil
}

// DescriptorFor returns the canonical payment descriptor for a request.
// Pure: depends only on the configured statics plus method and path, never
// on header ordering or time, so a challenge and a later settlement for the
// same request always describe the same resource.
func (g *Gate) DescriptorFor(method, path string) types.PaymentDescriptor {
	return buildDescriptor(g.config, method, path)
}

func buildDescriptor(config Config, method, path string) types.PaymentDescriptor {
	base := strings.TrimSuffix(config.ResourceBaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return types.PaymentDescriptor{
		ResourceURL: base + path,
		Method:      method,
		PayTo:       config.PayTo,
		Network:     config.Network,
		Price:       config.Price,
	}
}

// Evaluate runs the protocol state machine for one request. It never panics
// and never surfaces a raw error: local invariant violations and facilitator
// transport failures become a 500 outcome with the generic error envelope.
func (g *Gate) Evaluate(ctx context.Context, method, path, authorization string) *Outcome {
	ctx, span := g.tracer.Start(ctx, "gate.Evaluate",
		trace.WithAttributes(
			attribute.String("paygate.method", method),
			attribute.String("paygate.path", path),
			attribute.Bool("paygate.payment_present", authorization != ""),
		))
	defer span.End()

	outcome := g.evaluate(ctx, method, path, authorization)

	span.SetAttributes(
		attribute.String("paygate.state", outcome.State.String()),
		attribute.Int("paygate.status", outcome.Status),
	)
	if g.recorder != nil && outcome.State != StateNoPayment {
		g.recorder.RecordSettlement(ctx, outcome.State.String())
	}

	return outcome
}

func (g *Gate) evaluate(ctx context.Context, method, path, authorization string) *Outcome {
	descriptor := g.DescriptorFor(method, path)
	if err := descriptor.Validate(); err != nil {
		return g.fault(descriptor, err)
	}

	if authorization == "" {
		if g.recorder != nil {
			g.recorder.RecordChallenge(ctx)
		}
		return g.challenge(descriptor)
	}

	result, err := g.settleOnce(ctx, &descriptor, authorization)
	if err != nil {
		return g.fault(descriptor, err)
	}

	if result.Granted() {
		return &Outcome{
			State:      StateGranted,
			Status:     result.Status,
			Headers:    result.Headers,
			Descriptor: descriptor,
		}
	}

	// Rejection: the facilitator's status, body and headers pass through
	// unchanged to preserve its own retry/challenge semantics.
	return &Outcome{
		State:      StateDenied,
		Status:     result.Status,
		Body:       result.Body,
		Headers:    result.Headers,
		Descriptor: descriptor,
	}
}

// settleOnce settles through the duplicate-settlement cache: the first
// caller for a key performs the facilitator call, concurrent duplicates wait
// for its result, and a settled authorization is never settled twice within
// the TTL.
func (g *Gate) settleOnce(ctx context.Context, descriptor *types.PaymentDescriptor, authorization string) (*types.SettlementResult, error) {
	key := GenerateSettlementKey(descriptor.ResourceURL, authorization)

	for range 2 {
		status, cached, done := g.cache.CheckAndMark(key)
		switch status {
		case StatusCached:
			return cached, nil

		case StatusInFlight:
			result, err := g.cache.WaitForResult(ctx, key, done)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
			// The in-flight attempt failed without caching; take the slot
			// ourselves on the next pass.
			continue

		case StatusNotFound:
			result, err := g.settle(ctx, descriptor, authorization)
			if err != nil || !result.Granted() {
				g.cache.Fail(key, done)
				return result, err
			}
			g.cache.Complete(key, result, done)
			return result, nil
		}
	}

	return nil, fmt.Errorf("gate: settlement attempt could not complete")
}

func (g *Gate) settle(ctx context.Context, descriptor *types.PaymentDescriptor, authorization string) (*types.SettlementResult, error) {
	ctx, span := g.tracer.Start(ctx, "facilitator.Settle")
	defer span.End()

	start := time.Now()
	result, err := g.settler.Settle(ctx, descriptor, authorization)
	if g.recorder != nil {
		g.recorder.RecordFacilitatorLatency(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

func (g *Gate) challenge(descriptor types.PaymentDescriptor) *Outcome {
	body, err := json.Marshal(types.NewPaymentChallenge("payment required: missing "+types.HeaderPayment+" header", descriptor))
	if err != nil {
		return g.fault(descriptor, err)
	}
	return &Outcome{
		State:      StateNoPayment,
		Status:     402,
		Body:       body,
		Descriptor: descriptor,
	}
}

// fault converts any unexpected condition into the generic 500 envelope so
// internals never leak to the transport layer.
func (g *Gate) fault(descriptor types.PaymentDescriptor, err error) *Outcome {
	body, marshalErr := json.Marshal(types.NewInternalErrorBody(err.Error()))
	if marshalErr != nil {
		body = json.RawMessage(`{"error":"Internal server error","message":"unknown error"}`)
	}
	return &Outcome{
		State:      StateDenied,
		Status:     500,
		Body:       body,
		Descriptor: descriptor,
	}
}
