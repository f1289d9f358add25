// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"time"
)

// MetricsRecorder provides an interface for recording manipulation metrics.
// This allows the services to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// RecordManipulation records one price-setting operation.
	// mode is "absolute", "percentage", "bidirectional" or "reset"; status is "success" or "failure".
	RecordManipulation(ctx context.Context, mode, status string)

	// RecordInjection records one mock injection attempt.
	RecordInjection(ctx context.Context, decimals uint8, status string)

	// RecordDiscovery records how long feed discovery took and which adapter won.
	RecordDiscovery(ctx context.Context, adapter string, duration time.Duration, status string)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordManipulation(context.Context, string, string) {}
func (NopMetrics) RecordInjection(context.Context, uint8, string) {}
func (NopMetrics) RecordDiscovery(context.Context, string, time.Duration, string) {}
