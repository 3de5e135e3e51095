// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PositionService defines the primary use cases of the stablecoin engine.
// Inbound adapters (HTTP handlers, CLI) call these methods. The user argument
// of a mutating call is the account acting on its own position. Failures
// match the sentinels in errors.go.
type PositionService interface {
	DepositCollateral(ctx context.Context, user, token common.Address, amount *uint256.Int) error
	RedeemCollateral(ctx context.Context, user, token common.Address, amount *uint256.Int) error
	MintDsc(ctx context.Context, user common.Address, amount *uint256.Int) error
	BurnDsc(ctx context.Context, user common.Address, amount *uint256.Int) error
	DepositCollateralAndMintDsc(ctx context.Context, user, token common.Address, collateralAmount, dscAmount *uint256.Int) error
	RedeemCollateralForDsc(ctx context.Context, user, token common.Address, collateralAmount, dscAmount *uint256.Int) error
	Liquidate(ctx context.Context, liquidator, token, user common.Address, debtToCover *uint256.Int) error

	PositionQueries
}

// PositionQueries are the read-only views over the engine.
type PositionQueries interface {
	// AccountInformation returns the user's minted debt and collateral value in USD (18 decimals).
	AccountInformation(ctx context.Context, user common.Address) (debt, collateralValueUSD *uint256.Int, err error)
	AccountCollateralValue(ctx context.Context, user common.Address) (*uint256.Int, error)
	HealthFactor(ctx context.Context, user common.Address) (*uint256.Int, error)
	// CalculateHealthFactor applies the health factor formula to figures read
	// earlier, so a view built from AccountInformation stays consistent.
	CalculateHealthFactor(debt, collateralValueUSD *uint256.Int) (*uint256.Int, error)
	UsdValue(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error)
	TokenAmountFromUsd(ctx context.Context, token common.Address, usdAmount *uint256.Int) (*uint256.Int, error)
	CollateralBalanceOf(ctx context.Context, user, token common.Address) *uint256.Int
	CollateralTokens() []common.Address
	CollateralTokenPriceFeed(token common.Address) (common.Address, bool)
}

// HealthChecker defines the interface for services that can report readiness and liveness.
type HealthChecker interface {
	// IsReady returns true when the service is ready to handle traffic.
	// For the engine this means positions were restored and price feeds answered.
	IsReady() bool

	// IsHealthy returns true when the service is operating normally.
	IsHealthy() bool

	// StaleFeeds names the price feeds keeping the service unhealthy.
	StaleFeeds() []common.Address
}
