// Package telemetry exposes the service's meters and counters.
package telemetry

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the counters the session and tracking paths report to.
// A zero Metrics is safe to use and records nothing.
type Metrics struct {
	sessionsStarted metric.Int64Counter
	sessionsEnded   metric.Int64Counter
	presenceEvents  metric.Int64Counter
	reconnects      metric.Int64Counter
}

// NewMetrics registers the service counters on the given meter provider.
func NewMetrics(provider metric.MeterProvider) *Metrics {
	m := &Metrics{}
	if provider == nil {
		return m
	}
	meter := provider.Meter("watrack")
	var err error
	if m.sessionsStarted, err = meter.Int64Counter("watrack.sessions.started"); err != nil {
		log.Printf("telemetry: register counter: %v", err)
	}
	if m.sessionsEnded, err = meter.Int64Counter("watrack.sessions.ended"); err != nil {
		log.Printf("telemetry: register counter: %v", err)
	}
	if m.presenceEvents, err = meter.Int64Counter("watrack.presence.events"); err != nil {
		log.Printf("telemetry: register counter: %v", err)
	}
	if m.reconnects, err = meter.Int64Counter("watrack.sessions.reconnects"); err != nil {
		log.Printf("telemetry: register counter: %v", err)
	}
	return m
}

// SessionStarted counts a successful session start.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m != nil && m.sessionsStarted != nil {
		m.sessionsStarted.Add(ctx, 1)
	}
}

// SessionEnded counts an explicit end or terminal logout.
func (m *Metrics) SessionEnded(ctx context.Context, reason string) {
	if m != nil && m.sessionsEnded != nil {
		m.sessionsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// PresenceEvent counts a recorded presence transition.
func (m *Metrics) PresenceEvent(ctx context.Context, status string) {
	if m != nil && m.presenceEvents != nil {
		m.presenceEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// Reconnect counts an automatic reconnect attempt.
func (m *Metrics) Reconnect(ctx context.Context) {
	if m != nil && m.reconnects != nil {
		m.reconnects.Add(ctx, 1)
	}
}
