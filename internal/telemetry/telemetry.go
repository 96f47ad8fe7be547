// Package telemetry holds the match's OpenTelemetry instruments. It uses the
// global meter provider, which is a no-op unless the host installs an SDK.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "zonewars.gg/internal/telemetry"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Match records per-tick counters for one match.
type Match struct {
	matchAttr metric.MeasurementOption

	ticks       metric.Int64Counter
	captures    metric.Int64Counter
	neutralised metric.Int64Counter
	rejected    metric.Int64Counter
	coins       metric.Int64Counter
	stepMS      metric.Float64Histogram
}

func NewMatch(matchID string) (*Match, error) {
	m := meter()
	t := &Match{matchAttr: metric.WithAttributes(attribute.String("match", matchID))}

	var err error
	if t.ticks, err = m.Int64Counter("match.ticks", metric.WithDescription("Ticks stepped")); err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}
	if t.captures, err = m.Int64Counter("match.captures", metric.WithDescription("Zone captures resolved")); err != nil {
		return nil, fmt.Errorf("creating captures counter: %w", err)
	}
	if t.neutralised, err = m.Int64Counter("match.zones.neutralised", metric.WithDescription("Zones neutralised by sector fragmentation")); err != nil {
		return nil, fmt.Errorf("creating neutralised counter: %w", err)
	}
	if t.rejected, err = m.Int64Counter("match.tags.rejected", metric.WithDescription("Tag reports dropped before resolution")); err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}
	if t.coins, err = m.Int64Counter("match.coins.awarded", metric.WithDescription("Coins awarded to players")); err != nil {
		return nil, fmt.Errorf("creating coins counter: %w", err)
	}
	if t.stepMS, err = m.Float64Histogram("match.step.duration", metric.WithDescription("Tick step duration"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating step histogram: %w", err)
	}
	return t, nil
}

// TickStats is what a single step reports.
type TickStats struct {
	Captures    int
	Neutralised int
	Coins       int64
	StepMS      float64
	// Rejected counts dropped tags keyed by protocol error code.
	Rejected map[string]int
}

// RecordTick is safe on a nil receiver.
func (t *Match) RecordTick(ctx context.Context, s TickStats) {
	if t == nil {
		return
	}
	t.ticks.Add(ctx, 1, t.matchAttr)
	if s.Captures > 0 {
		t.captures.Add(ctx, int64(s.Captures), t.matchAttr)
	}
	if s.Neutralised > 0 {
		t.neutralised.Add(ctx, int64(s.Neutralised), t.matchAttr)
	}
	if s.Coins > 0 {
		t.coins.Add(ctx, s.Coins, t.matchAttr)
	}
	for code, n := range s.Rejected {
		t.rejected.Add(ctx, int64(n), t.matchAttr, metric.WithAttributes(attribute.String("code", code)))
	}
	t.stepMS.Record(ctx, s.StepMS, t.matchAttr)
}
