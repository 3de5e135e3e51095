package blockchain

import "time"

const (
	// FeedDecimals is the precision of Chainlink USD feeds: 1e8 = $1.00.
	FeedDecimals = 8

	// StaleTimeout is how old a feed's last update may be before readings are refused.
	StaleTimeout = 3 * time.Hour
)
