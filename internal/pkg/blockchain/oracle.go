package blockchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/archon-research/dsc/internal/domain/entity"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

var (
	// ErrStalePrice is returned when a feed's last update is older than StaleTimeout.
	ErrStalePrice = errors.New("stale price")

	// ErrInvalidPrice is returned when a feed answers with a non-positive or oversized price.
	ErrInvalidPrice = errors.New("invalid price")
)

// StalePriceError describes a rejected reading. It matches ErrStalePrice.
type StalePriceError struct {
	Feed      common.Address
	UpdatedAt time.Time
	Elapsed   time.Duration
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("stale price: feed %s last updated %s ago (at %s, limit %s)",
		e.Feed.Hex(), e.Elapsed, e.UpdatedAt.UTC().Format(time.RFC3339), StaleTimeout)
}

func (e *StalePriceError) Is(target error) bool {
	return target == ErrStalePrice
}

// OracleGuardConfig holds configuration for the oracle guard.
type OracleGuardConfig struct {
	// Clock returns the time readings are judged against. Defaults to time.Now.
	Clock func() time.Time
}

// OracleGuard reads price feeds and refuses any reading older than StaleTimeout.
// If feeds stop updating every valuation fails: the system freezes rather than
// trusting old prices. There are no retries and no fallback source.
type OracleGuard struct {
	reader outbound.PriceFeedReader
	clock  func() time.Time
}

// NewOracleGuard creates a new oracle guard over the given feed reader.
func NewOracleGuard(reader outbound.PriceFeedReader, config OracleGuardConfig) (*OracleGuard, error) {
	if reader == nil {
		return nil, fmt.Errorf("price feed reader cannot be nil")
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &OracleGuard{
		reader: reader,
		clock:  config.Clock,
	}, nil
}

// StaleCheckLatestRoundData returns the feed's latest round if it is fresh.
//
// A round is stale when now - updatedAt > StaleTimeout, or when the round was
// never completed (updatedAt == 0). An updatedAt ahead of the local clock counts
// as zero elapsed time.
func (g *OracleGuard) StaleCheckLatestRoundData(ctx context.Context, feed common.Address) (*entity.RoundData, error) {
	round, err := g.reader.LatestRoundData(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("reading feed %s: %w", feed.Hex(), err)
	}

	now := g.clock()
	if !round.Complete() {
		return nil, &StalePriceError{Feed: feed, UpdatedAt: round.UpdatedAt, Elapsed: now.Sub(time.Unix(0, 0))}
	}

	elapsed := now.Sub(round.UpdatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > StaleTimeout {
		return nil, &StalePriceError{Feed: feed, UpdatedAt: round.UpdatedAt, Elapsed: elapsed}
	}
	return round, nil
}

// LatestPrice returns the fresh answer of the feed in feed precision (FeedDecimals).
func (g *OracleGuard) LatestPrice(ctx context.Context, feed common.Address) (*uint256.Int, error) {
	round, err := g.StaleCheckLatestRoundData(ctx, feed)
	if err != nil {
		return nil, err
	}
	if round.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: feed %s answered %s", ErrInvalidPrice, feed.Hex(), round.Answer)
	}
	price, overflow := uint256.FromBig(round.Answer)
	if overflow {
		return nil, fmt.Errorf("%w: feed %s answer overflows 256 bits", ErrInvalidPrice, feed.Hex())
	}
	return price, nil
}
