// Package observe holds the OpenTelemetry instruments of the rules engine
// and the Prometheus bridge that exposes them on /metrics.
//
// Metrics implements the recorder interfaces of the action, buff and
// itemhandler packages. Tests build it over a ManualReader with NewMetrics.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/udisondev/d20core"

// Metrics holds every instrument. Safe for concurrent use.
type Metrics struct {
	// Rolls counts attack, confirm and damage rolls by kind and status.
	Rolls metric.Int64Counter
	// Directives counts dispatched directives by verb and status.
	Directives metric.Int64Counter
	// Deductions counts resource deductions by ledger variant.
	Deductions metric.Int64Counter
	// BuffTransitions counts buff lifecycle edges.
	BuffTransitions metric.Int64Counter
	// TickDuration tracks one timeline tick over every actor.
	TickDuration metric.Float64Histogram
}

var tickBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Rolls, err = m.Int64Counter("d20.rolls",
		metric.WithDescription("Attack, confirmation and damage rolls."),
	); err != nil {
		return nil, err
	}
	if met.Directives, err = m.Int64Counter("d20.directives",
		metric.WithDescription("Dispatched directives by verb and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Deductions, err = m.Int64Counter("d20.ledger.deductions",
		metric.WithDescription("Resource pool deductions by variant."),
	); err != nil {
		return nil, err
	}
	if met.BuffTransitions, err = m.Int64Counter("d20.buff.transitions",
		metric.WithDescription("Buff activations, deactivations and expiries."),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("d20.timeline.tick.duration",
		metric.WithDescription("Duration of one timeline tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) RecordRoll(ctx context.Context, kind, status string) {
	m.Rolls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordDirective(ctx context.Context, verb, status string) {
	m.Directives.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verb", verb),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordDeduction(ctx context.Context, variant string) {
	m.Deductions.Add(ctx, 1, metric.WithAttributes(attribute.String("variant", variant)))
}

func (m *Metrics) RecordBuffTransition(ctx context.Context, edge string) {
	m.BuffTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("edge", edge)))
}

// RecordTick records how long one tick took.
func (m *Metrics) RecordTick(ctx context.Context, d time.Duration) {
	m.TickDuration.Record(ctx, d.Seconds())
}
