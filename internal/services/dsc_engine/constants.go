package dsc_engine

import "github.com/holiman/uint256"

const (
	// AdditionalFeedPrecision scales 8-decimal feed answers to 18 decimals.
	AdditionalFeedPrecision uint64 = 1e10

	// Precision is the fixed-point unit of USD values and health factors.
	Precision uint64 = 1e18

	// LiquidationThreshold is the share of collateral value, out of
	// LiquidationPrecision, that counts toward covering debt (200% overcollateralized).
	LiquidationThreshold uint64 = 50

	// LiquidationBonus is the extra collateral, out of LiquidationPrecision,
	// paid to a liquidator.
	LiquidationBonus uint64 = 10

	LiquidationPrecision uint64 = 100

	// MinHealthFactor is 1.0 in Precision units.
	MinHealthFactor uint64 = 1e18
)

var (
	additionalFeedPrecision = uint256.NewInt(AdditionalFeedPrecision)
	precision               = uint256.NewInt(Precision)
	liquidationThreshold    = uint256.NewInt(LiquidationThreshold)
	liquidationBonus        = uint256.NewInt(LiquidationBonus)
	liquidationPrecision    = uint256.NewInt(LiquidationPrecision)
	minHealthFactor         = uint256.NewInt(MinHealthFactor)

	// maxHealthFactor is reported for positions without debt.
	maxHealthFactor = new(uint256.Int).SetAllOne()
)
