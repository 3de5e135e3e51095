package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/archon-research/dsc/internal/domain/entity"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

// Compile-time check that PositionRepository implements outbound.PositionRepository
var _ outbound.PositionRepository = (*PositionRepository)(nil)

// PositionRepository is an in-memory implementation of the PositionRepository port.
// Stored positions are deep copies, so callers cannot mutate them afterwards.
type PositionRepository struct {
	mu        sync.RWMutex
	positions map[common.Address]*entity.Position
	saveErr   error
	saves     int
}

// NewPositionRepository creates an empty repository.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{
		positions: make(map[common.Address]*entity.Position),
	}
}

// SavePositions upserts the given positions. Empty positions are removed.
func (r *PositionRepository) SavePositions(_ context.Context, positions []*entity.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++

	for _, p := range positions {
		if p.IsEmpty() {
			delete(r.positions, p.User)
			continue
		}
		r.positions[p.User] = clonePosition(p)
	}
	return nil
}

// LoadPositions returns every stored position.
func (r *PositionRepository) LoadPositions(_ context.Context) ([]*entity.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entity.Position, 0, len(r.positions))
	for _, p := range r.positions {
		result = append(result, clonePosition(p))
	}
	return result, nil
}

// Position returns the stored position for user, if any.
func (r *PositionRepository) Position(user common.Address) (*entity.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.positions[user]
	if !ok {
		return nil, false
	}
	return clonePosition(p), true
}

// SaveCount returns how many SavePositions calls succeeded.
func (r *PositionRepository) SaveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

// SetSaveError makes every subsequent SavePositions return err. Pass nil to reset.
func (r *PositionRepository) SetSaveError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

func clonePosition(p *entity.Position) *entity.Position {
	collateral := make(map[common.Address]*uint256.Int, len(p.Collateral))
	for token, amount := range p.Collateral {
		collateral[token] = new(uint256.Int).Set(amount)
	}
	return &entity.Position{
		User:       p.User,
		Collateral: collateral,
		Debt:       new(uint256.Int).Set(p.Debt),
	}
}
