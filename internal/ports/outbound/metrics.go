// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MetricsRecorder provides an interface for recording engine metrics.
// This allows the engine to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// RecordOperation records one engine operation. status is "ok" or the error kind.
	RecordOperation(ctx context.Context, operation, status string, duration time.Duration)

	// RecordLiquidation records a successful liquidation seizing token.
	RecordLiquidation(ctx context.Context, token common.Address)
}
