// Package telemetry wires OpenTelemetry metrics for the manipulation engine.
package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	manipulations     metric.Int64Counter
	injections        metric.Int64Counter
	discoveryDuration metric.Float64Histogram
}

// NewMetrics creates a recorder on the global meter provider.
// meterName should typically be the package name or service name.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider(), meterName)
}

// NewMetricsWithProvider creates a recorder on an explicit provider.
func NewMetricsWithProvider(provider metric.MeterProvider, meterName string) (*Metrics, error) {
	meter := provider.Meter(meterName)

	manipulations, err := meter.Int64Counter(
		"oracle.manipulations.total",
		metric.WithDescription("Total number of oracle price manipulations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle.manipulations.total counter: %w", err)
	}

	injections, err := meter.Int64Counter(
		"oracle.injections.total",
		metric.WithDescription("Total number of mock feed injections"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle.injections.total counter: %w", err)
	}

	discovery, err := meter.Float64Histogram(
		"oracle.discovery.duration",
		metric.WithDescription("Time taken to discover a protocol's price feed"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle.discovery.duration histogram: %w", err)
	}

	return &Metrics{
		manipulations:     manipulations,
		injections:        injections,
		discoveryDuration: discovery,
	}, nil
}

// RecordManipulation increments the manipulation counter.
func (m *Metrics) RecordManipulation(ctx context.Context, mode, status string) {
	m.manipulations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	))
}

// RecordInjection increments the injection counter.
func (m *Metrics) RecordInjection(ctx context.Context, decimals uint8, status string) {
	m.injections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decimals", strconv.Itoa(int(decimals))),
		attribute.String("status", status),
	))
}

// RecordDiscovery records the duration of a discovery attempt.
func (m *Metrics) RecordDiscovery(ctx context.Context, adapter string, duration time.Duration, status string) {
	m.discoveryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("adapter", adapter),
		attribute.String("status", status),
	))
}
