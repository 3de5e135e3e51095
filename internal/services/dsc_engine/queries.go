package dsc_engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/archon-research/dsc/internal/domain/entity"
)

// AccountInformation returns user's debt and the USD value of user's collateral.
func (e *Engine) AccountInformation(ctx context.Context, user common.Address) (debt, collateralValueUSD *uint256.Int, err error) {
	err = e.view(ctx, func() error {
		debt, collateralValueUSD, err = e.health.accountInformation(ctx, user)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return debt, collateralValueUSD, nil
}

// AccountCollateralValue returns the USD value of user's collateral.
func (e *Engine) AccountCollateralValue(ctx context.Context, user common.Address) (*uint256.Int, error) {
	var value *uint256.Int
	err := e.view(ctx, func() error {
		var err error
		value, err = e.collateral.valueUsd(ctx, user)
		return err
	})
	return value, err
}

// HealthFactor returns user's current health factor. Positions without debt
// report the maximum uint256 value.
func (e *Engine) HealthFactor(ctx context.Context, user common.Address) (*uint256.Int, error) {
	var hf *uint256.Int
	err := e.view(ctx, func() error {
		var err error
		hf, err = e.health.healthFactor(ctx, user)
		return err
	})
	return hf, err
}

// CalculateHealthFactor applies the health factor formula to the given figures.
func (e *Engine) CalculateHealthFactor(debt, collateralValueUSD *uint256.Int) (*uint256.Int, error) {
	return calculateHealthFactor(debt, collateralValueUSD)
}

// UsdValue converts amount of token to USD with 18 decimals.
func (e *Engine) UsdValue(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return e.collateral.usdValue(ctx, token, amount)
}

// TokenAmountFromUsd converts a USD amount with 18 decimals to an amount of token.
func (e *Engine) TokenAmountFromUsd(ctx context.Context, token common.Address, usdAmount *uint256.Int) (*uint256.Int, error) {
	return e.collateral.tokenAmountFromUsd(ctx, token, usdAmount)
}

// CollateralBalanceOf returns how much of token user has deposited.
func (e *Engine) CollateralBalanceOf(ctx context.Context, user, token common.Address) *uint256.Int {
	var balance *uint256.Int
	_ = e.view(ctx, func() error {
		balance = e.collateral.balanceOf(user, token)
		return nil
	})
	return balance
}

// Position returns a copy of user's position.
func (e *Engine) Position(ctx context.Context, user common.Address) *entity.Position {
	var p *entity.Position
	_ = e.view(ctx, func() error {
		p = e.state.position(user)
		return nil
	})
	return p
}

// CollateralTokens returns the approved collateral tokens in registration order.
func (e *Engine) CollateralTokens() []common.Address {
	tokens := make([]common.Address, len(e.collateral.assets))
	for i, asset := range e.collateral.assets {
		tokens[i] = asset.Token
	}
	return tokens
}

// CollateralTokenPriceFeed returns the feed bound to token.
func (e *Engine) CollateralTokenPriceFeed(token common.Address) (common.Address, bool) {
	feed, ok := e.collateral.feeds[token]
	return feed, ok
}

// Dsc returns the stablecoin address.
func (e *Engine) Dsc() common.Address {
	return e.dscAddress
}

func (e *Engine) LiquidationBonus() *uint256.Int     { return new(uint256.Int).Set(liquidationBonus) }
func (e *Engine) LiquidationThreshold() *uint256.Int { return new(uint256.Int).Set(liquidationThreshold) }
func (e *Engine) LiquidationPrecision() *uint256.Int { return new(uint256.Int).Set(liquidationPrecision) }
func (e *Engine) Precision() *uint256.Int            { return new(uint256.Int).Set(precision) }
func (e *Engine) MinHealthFactor() *uint256.Int      { return new(uint256.Int).Set(minHealthFactor) }

func (e *Engine) AdditionalFeedPrecision() *uint256.Int {
	return new(uint256.Int).Set(additionalFeedPrecision)
}
