package dsc_engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// debtLedger tracks the stablecoin minted by each user.
type debtLedger struct {
	state *ledgerState
}

func (l *debtLedger) of(user common.Address) *uint256.Int {
	return l.state.debtOf(user)
}

func (l *debtLedger) increase(user common.Address, amount *uint256.Int) error {
	sum, overflow := new(uint256.Int).AddOverflow(l.state.debtOf(user), amount)
	if overflow {
		return fmt.Errorf("%w: debt of %s", ErrArithmeticOverflow, user.Hex())
	}
	l.state.setDebt(user, sum)
	return nil
}

func (l *debtLedger) decrease(user common.Address, amount *uint256.Int) error {
	debt := l.state.debtOf(user)
	if debt.Lt(amount) {
		return fmt.Errorf("%w: %s owes %s, burning %s", ErrInsufficientDebt, user.Hex(), debt.Dec(), amount.Dec())
	}
	l.state.setDebt(user, new(uint256.Int).Sub(debt, amount))
	return nil
}
