package dsc_engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/archon-research/dsc/internal/domain/entity"
)

// ledgerState holds collateral deposits and minted debt per user.
// Stored amounts are never modified in place. Every write is journaled while
// a unit of work is open so the unit can be rolled back.
type ledgerState struct {
	collateral map[common.Address]map[common.Address]*uint256.Int // user -> token -> amount
	debt       map[common.Address]*uint256.Int
	journal    []func()
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		collateral: make(map[common.Address]map[common.Address]*uint256.Int),
		debt:       make(map[common.Address]*uint256.Int),
	}
}

func (s *ledgerState) snapshot() int {
	return len(s.journal)
}

func (s *ledgerState) revertTo(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:id]
}

func (s *ledgerState) commit() {
	s.journal = s.journal[:0]
}

func (s *ledgerState) collateralOf(user, token common.Address) *uint256.Int {
	if amount, ok := s.collateral[user][token]; ok {
		return new(uint256.Int).Set(amount)
	}
	return new(uint256.Int)
}

func (s *ledgerState) setCollateral(user, token common.Address, amount *uint256.Int) {
	byToken, ok := s.collateral[user]
	if !ok {
		byToken = make(map[common.Address]*uint256.Int)
		s.collateral[user] = byToken
	}
	prev, existed := byToken[token]
	s.journal = append(s.journal, func() {
		if existed {
			byToken[token] = prev
		} else {
			delete(byToken, token)
		}
	})
	byToken[token] = amount
}

func (s *ledgerState) debtOf(user common.Address) *uint256.Int {
	if amount, ok := s.debt[user]; ok {
		return new(uint256.Int).Set(amount)
	}
	return new(uint256.Int)
}

func (s *ledgerState) setDebt(user common.Address, amount *uint256.Int) {
	prev, existed := s.debt[user]
	s.journal = append(s.journal, func() {
		if existed {
			s.debt[user] = prev
		} else {
			delete(s.debt, user)
		}
	})
	s.debt[user] = amount
}

// position returns a copy of user's position.
func (s *ledgerState) position(user common.Address) *entity.Position {
	collateral := make(map[common.Address]*uint256.Int, len(s.collateral[user]))
	for token, amount := range s.collateral[user] {
		collateral[token] = new(uint256.Int).Set(amount)
	}
	return &entity.Position{
		User:       user,
		Collateral: collateral,
		Debt:       s.debtOf(user),
	}
}

// load replaces the state with the given positions. Not journaled.
func (s *ledgerState) load(positions []*entity.Position) {
	s.collateral = make(map[common.Address]map[common.Address]*uint256.Int, len(positions))
	s.debt = make(map[common.Address]*uint256.Int, len(positions))
	s.journal = nil
	for _, p := range positions {
		byToken := make(map[common.Address]*uint256.Int, len(p.Collateral))
		for token, amount := range p.Collateral {
			byToken[token] = new(uint256.Int).Set(amount)
		}
		s.collateral[p.User] = byToken
		s.debt[p.User] = new(uint256.Int).Set(p.Debt)
	}
}
