package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/dsc/internal/domain/entity"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

// ErrFeedNotFound is returned when reading a feed that never received an answer.
var ErrFeedNotFound = errors.New("price feed not found")

var _ outbound.PriceFeedReader = (*PriceFeeds)(nil)

// PriceFeeds is a set of in-memory aggregators keyed by feed address.
// Answers use the feed precision of 8 decimals.
type PriceFeeds struct {
	mu     sync.RWMutex
	rounds map[common.Address]*entity.RoundData
	clock  func() time.Time
	err    error
}

// NewPriceFeeds creates an empty feed set. clock stamps updatedAt on SetAnswer;
// nil means time.Now.
func NewPriceFeeds(clock func() time.Time) *PriceFeeds {
	if clock == nil {
		clock = time.Now
	}
	return &PriceFeeds{
		rounds: make(map[common.Address]*entity.RoundData),
		clock:  clock,
	}
}

// SetAnswer publishes a new round for feed carrying answer, updated now.
func (p *PriceFeeds) SetAnswer(feed common.Address, answer *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	roundID := big.NewInt(1)
	if prev, ok := p.rounds[feed]; ok {
		roundID = new(big.Int).Add(prev.RoundID, big.NewInt(1))
	}
	now := p.clock()
	p.rounds[feed] = &entity.RoundData{
		RoundID:         roundID,
		Answer:          new(big.Int).Set(answer),
		StartedAt:       now,
		UpdatedAt:       now,
		AnsweredInRound: new(big.Int).Set(roundID),
	}
}

// SetRoundData replaces the latest round of feed verbatim.
func (p *PriceFeeds) SetRoundData(feed common.Address, round *entity.RoundData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rounds[feed] = copyRound(round)
}

// SetError makes every subsequent read fail with err. Pass nil to reset.
func (p *PriceFeeds) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// LatestRoundData returns the latest round of feed.
func (p *PriceFeeds) LatestRoundData(_ context.Context, feed common.Address) (*entity.RoundData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.err != nil {
		return nil, p.err
	}
	round, ok := p.rounds[feed]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, feed.Hex())
	}
	return copyRound(round), nil
}

func copyRound(r *entity.RoundData) *entity.RoundData {
	return &entity.RoundData{
		RoundID:         new(big.Int).Set(r.RoundID),
		Answer:          new(big.Int).Set(r.Answer),
		StartedAt:       r.StartedAt,
		UpdatedAt:       r.UpdatedAt,
		AnsweredInRound: new(big.Int).Set(r.AnsweredInRound),
	}
}
