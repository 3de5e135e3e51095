// Package telemetry exports engine metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/dsc/internal/ports/outbound"
)

// Compile-time check that Metrics implements outbound.MetricsRecorder.
var _ outbound.MetricsRecorder = (*Metrics)(nil)

const (
	meterName             = "github.com/archon-research/dsc"
	operationDurationName = "dsc_operation_duration_seconds"
)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	operations   metric.Int64Counter
	duration     metric.Float64Histogram
	liquidations metric.Int64Counter
}

// NewMetrics creates the engine instruments on provider.
// A nil provider uses the global one set by InitMetrics.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	operations, err := meter.Int64Counter(
		"dsc_operations_total",
		metric.WithDescription("Engine operations by operation and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dsc_operations_total counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		operationDurationName,
		metric.WithDescription("Time taken by an engine operation, including rollback"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s histogram: %w", operationDurationName, err)
	}

	liquidations, err := meter.Int64Counter(
		"dsc_liquidations_total",
		metric.WithDescription("Successful liquidations by seized collateral token"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dsc_liquidations_total counter: %w", err)
	}

	return &Metrics{
		operations:   operations,
		duration:     duration,
		liquidations: liquidations,
	}, nil
}

// RecordOperation counts the operation and records its duration.
func (m *Metrics) RecordOperation(ctx context.Context, operation, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLiquidation increments the liquidation counter for token.
func (m *Metrics) RecordLiquidation(ctx context.Context, token common.Address) {
	m.liquidations.Add(ctx, 1, metric.WithAttributes(attribute.String("token", token.Hex())))
}
