package dsc_engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// calculateHealthFactor returns
//
//	(collateralUSD * LiquidationThreshold / LiquidationPrecision) * Precision / debt
//
// A position without debt cannot be liquidated and reports the maximum value.
func calculateHealthFactor(debt, collateralUSD *uint256.Int) (*uint256.Int, error) {
	if debt.IsZero() {
		return new(uint256.Int).Set(maxHealthFactor), nil
	}
	adjusted, err := mulDiv(collateralUSD, liquidationThreshold, liquidationPrecision)
	if err != nil {
		return nil, err
	}
	return mulDiv(adjusted, precision, debt)
}

// healthFactorEngine derives collateralization ratios from both ledgers.
type healthFactorEngine struct {
	collateral *collateralLedger
	debt       *debtLedger
}

func (h *healthFactorEngine) accountInformation(ctx context.Context, user common.Address) (debt, collateralUSD *uint256.Int, err error) {
	collateralUSD, err = h.collateral.valueUsd(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return h.debt.of(user), collateralUSD, nil
}

func (h *healthFactorEngine) healthFactor(ctx context.Context, user common.Address) (*uint256.Int, error) {
	debt, collateralUSD, err := h.accountInformation(ctx, user)
	if err != nil {
		return nil, err
	}
	return calculateHealthFactor(debt, collateralUSD)
}

// assertSafe fails with *BreaksHealthFactorError when user's health factor is
// below MinHealthFactor.
func (h *healthFactorEngine) assertSafe(ctx context.Context, user common.Address) error {
	hf, err := h.healthFactor(ctx, user)
	if err != nil {
		return err
	}
	if hf.Lt(minHealthFactor) {
		return &BreaksHealthFactorError{User: user, HealthFactor: hf}
	}
	return nil
}
