package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the payment-gate instruments. It satisfies the gate's
// Recorder interface.
type Metrics struct {
	// ChallengeCount counts 402 challenges issued.
	ChallengeCount metric.Int64Counter

	// SettlementCount counts settlement evaluations by outcome.
	SettlementCount metric.Int64Counter

	// FacilitatorLatency measures settle round trips in seconds.
	FacilitatorLatency metric.Float64Histogram
}

// NewMetrics creates the payment-gate metrics on the named meter.
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	challengeCount, err := meter.Int64Counter(
		"payment_challenges_total",
		metric.WithDescription("Total number of payment challenges issued"),
	)
	if err != nil {
		return nil, err
	}

	settlementCount, err := meter.Int64Counter(
		"payment_settlements_total",
		metric.WithDescription("Total number of settlement evaluations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	facilitatorLatency, err := meter.Float64Histogram(
		"facilitator_settle_seconds",
		metric.WithDescription("Facilitator settle round trip in seconds"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ChallengeCount:     challengeCount,
		SettlementCount:    settlementCount,
		FacilitatorLatency: facilitatorLatency,
	}, nil
}

// RecordChallenge counts an issued challenge.
func (m *Metrics) RecordChallenge(ctx context.Context) {
	m.ChallengeCount.Add(ctx, 1)
}

// RecordSettlement counts a settlement evaluation with its outcome state.
func (m *Metrics) RecordSettlement(ctx context.Context, outcome string) {
	m.SettlementCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordFacilitatorLatency records one settle round trip.
func (m *Metrics) RecordFacilitatorLatency(ctx context.Context, seconds float64) {
	m.FacilitatorLatency.Record(ctx, seconds,
		metric.WithAttributes(),
	)
}
