package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/dsc/internal/domain/entity"
)

// PriceFeedReader reads the latest round of an AggregatorV3-compatible price feed.
// Implementations must not cache readings: freshness is judged by the caller
// against the time of use.
type PriceFeedReader interface {
	// LatestRoundData returns the most recent round reported by the feed at the given address.
	LatestRoundData(ctx context.Context, feed common.Address) (*entity.RoundData, error)
}
