package entity

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Position is a point-in-time copy of a user's collateral deposits and minted debt.
// A user that never interacted reads as an empty position.
type Position struct {
	User       common.Address
	Collateral map[common.Address]*uint256.Int // token -> deposited amount
	Debt       *uint256.Int                    // minted stablecoin owed
}

// NewPosition creates a new Position entity.
func NewPosition(user common.Address, collateral map[common.Address]*uint256.Int, debt *uint256.Int) (*Position, error) {
	if collateral == nil {
		collateral = make(map[common.Address]*uint256.Int)
	}
	if debt == nil {
		debt = new(uint256.Int)
	}
	p := &Position{
		User:       user,
		Collateral: collateral,
		Debt:       debt,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// validate checks that all fields have valid values.
func (p *Position) validate() error {
	if p.User == (common.Address{}) {
		return fmt.Errorf("user must not be the zero address")
	}
	for token, amount := range p.Collateral {
		if token == (common.Address{}) {
			return fmt.Errorf("collateral token must not be the zero address")
		}
		if amount == nil {
			return fmt.Errorf("collateral amount for %s must not be nil", token.Hex())
		}
	}
	return nil
}

// CollateralOf returns the deposited amount of token, zero if none.
func (p *Position) CollateralOf(token common.Address) *uint256.Int {
	if amount, ok := p.Collateral[token]; ok {
		return new(uint256.Int).Set(amount)
	}
	return new(uint256.Int)
}

// IsEmpty reports whether the position holds neither collateral nor debt.
func (p *Position) IsEmpty() bool {
	if !p.Debt.IsZero() {
		return false
	}
	for _, amount := range p.Collateral {
		if !amount.IsZero() {
			return false
		}
	}
	return true
}

// Tokens returns the collateral tokens of the position in a stable order.
func (p *Position) Tokens() []common.Address {
	tokens := make([]common.Address, 0, len(p.Collateral))
	for token := range p.Collateral {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Cmp(tokens[j]) < 0
	})
	return tokens
}
