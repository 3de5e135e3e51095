package outbound

import (
	"context"

	"github.com/archon-research/dsc/internal/domain/entity"
)

// PositionRepository defines the interface for durable position storage.
// The engine keeps positions in memory; the repository mirrors every committed
// change so positions survive restarts.
type PositionRepository interface {
	// SavePositions upserts the given positions in a single transaction.
	// Either all positions are stored or none are.
	SavePositions(ctx context.Context, positions []*entity.Position) error

	// LoadPositions returns every stored position.
	LoadPositions(ctx context.Context) ([]*entity.Position, error)
}
