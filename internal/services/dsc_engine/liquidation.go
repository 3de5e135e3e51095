package dsc_engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/archon-research/dsc/internal/ports/outbound"
)

// Liquidate covers debtToCover of user's debt with the liquidator's stablecoin
// and pays the liquidator the equivalent amount of token plus LiquidationBonus.
//
// user must be below MinHealthFactor, must end with a strictly higher health
// factor, and the liquidator must stay safe. Partial liquidation is allowed.
// Positions worth less than 110% of their debt cannot be liquidated profitably
// and fail with ErrHealthFactorNotImproved or ErrInsufficientCollateral.
func (e *Engine) Liquidate(ctx context.Context, liquidator, token, user common.Address, debtToCover *uint256.Int) error {
	return e.run(ctx, "liquidate", func(u *unit) error {
		return u.liquidate(liquidator, token, user, debtToCover)
	})
}

func (u *unit) liquidate(liquidator, token, user common.Address, debtToCover *uint256.Int) error {
	if err := moreThanZero(debtToCover); err != nil {
		return err
	}
	if err := u.e.collateral.isAllowed(token); err != nil {
		return err
	}

	startingHealthFactor, err := u.e.health.healthFactor(u.ctx, user)
	if err != nil {
		return err
	}
	if !startingHealthFactor.Lt(minHealthFactor) {
		return fmt.Errorf("%w: %s is at %s", ErrHealthFactorOk, user.Hex(), startingHealthFactor.Dec())
	}

	tokenAmountFromDebtCovered, err := u.e.collateral.tokenAmountFromUsd(u.ctx, token, debtToCover)
	if err != nil {
		return err
	}
	bonusCollateral, err := mulDiv(tokenAmountFromDebtCovered, liquidationBonus, liquidationPrecision)
	if err != nil {
		return err
	}
	totalCollateralToRedeem, overflow := new(uint256.Int).AddOverflow(tokenAmountFromDebtCovered, bonusCollateral)
	if overflow {
		return fmt.Errorf("%w: collateral to redeem", ErrArithmeticOverflow)
	}

	if err := u.redeemCollateral(token, totalCollateralToRedeem, user, liquidator); err != nil {
		return err
	}
	if err := u.burnDsc(debtToCover, user, liquidator); err != nil {
		return err
	}

	endingHealthFactor, err := u.e.health.healthFactor(u.ctx, user)
	if err != nil {
		return err
	}
	if !startingHealthFactor.Lt(endingHealthFactor) {
		return fmt.Errorf("%w: %s went from %s to %s",
			ErrHealthFactorNotImproved, user.Hex(), startingHealthFactor.Dec(), endingHealthFactor.Dec())
	}
	if err := u.e.health.assertSafe(u.ctx, liquidator); err != nil {
		return err
	}

	u.emit(outbound.PositionLiquidatedEvent{
		Liquidator:       liquidator,
		User:             user,
		Token:            token,
		DebtCovered:      new(uint256.Int).Set(debtToCover),
		CollateralSeized: totalCollateralToRedeem,
		OccurredAt:       u.now,
	})
	u.liquidatedToken = &token

	u.e.logger.Info("position liquidated",
		"user", user.Hex(),
		"liquidator", liquidator.Hex(),
		"token", token.Hex(),
		"debtCovered", debtToCover.Dec(),
		"collateralSeized", totalCollateralToRedeem.Dec(),
		"healthFactorBefore", startingHealthFactor.Dec(),
		"healthFactorAfter", endingHealthFactor.Dec(),
	)
	return nil
}
