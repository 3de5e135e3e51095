package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/archon-research/dsc/internal/ports/outbound"
)

var (
	// ErrNotController is returned when someone other than the controller mints or burns.
	ErrNotController = errors.New("stablecoin: caller is not the controller")

	// ErrMustBeMoreThanZero is returned for zero mint or burn amounts.
	ErrMustBeMoreThanZero = errors.New("stablecoin: amount must be more than zero")

	// ErrBurnAmountExceedsBalance is returned when the controller burns more than it holds.
	ErrBurnAmountExceedsBalance = errors.New("stablecoin: burn amount exceeds balance")

	// ErrNotZeroAddress is returned when minting to the zero address.
	ErrNotZeroAddress = errors.New("stablecoin: cannot mint to the zero address")
)

// Compile-time checks
var (
	_ outbound.Stablecoin = (*Stablecoin)(nil)
	_ outbound.Revertible = (*Stablecoin)(nil)
)

// Stablecoin is an in-memory stablecoin whose supply only its controller can change.
type Stablecoin struct {
	token *Token

	mu         sync.RWMutex
	controller common.Address
	failMint   bool
}

// NewStablecoin creates a stablecoin owned by controller.
func NewStablecoin(symbol string, controller common.Address) (*Stablecoin, error) {
	if controller == (common.Address{}) {
		return nil, fmt.Errorf("controller must not be the zero address")
	}
	return &Stablecoin{
		token:      NewToken(symbol),
		controller: controller,
	}, nil
}

// Controller returns the account allowed to mint and burn.
func (s *Stablecoin) Controller() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controller
}

// TransferControl hands minting rights to a new controller.
func (s *Stablecoin) TransferControl(caller, newController common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.controller {
		return ErrNotController
	}
	if newController == (common.Address{}) {
		return fmt.Errorf("new controller must not be the zero address")
	}
	s.controller = newController
	return nil
}

// Mint creates amount new coins for to.
func (s *Stablecoin) Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) (bool, error) {
	s.mu.RLock()
	controller, failMint := s.controller, s.failMint
	s.mu.RUnlock()

	if caller != controller {
		return false, ErrNotController
	}
	if to == (common.Address{}) {
		return false, ErrNotZeroAddress
	}
	if amount.IsZero() {
		return false, ErrMustBeMoreThanZero
	}
	if failMint {
		return false, nil
	}

	s.token.mu.Lock()
	defer s.token.mu.Unlock()
	if err := s.token.mint(s.token.journalFor(ctx), to, amount); err != nil {
		return false, err
	}
	return true, nil
}

// Burn destroys amount coins held by the controller.
func (s *Stablecoin) Burn(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	if caller != s.Controller() {
		return ErrNotController
	}
	if amount.IsZero() {
		return ErrMustBeMoreThanZero
	}

	s.token.mu.Lock()
	defer s.token.mu.Unlock()
	if err := s.token.burn(s.token.journalFor(ctx), caller, amount); err != nil {
		return ErrBurnAmountExceedsBalance
	}
	return nil
}

// SetMintFailure makes Mint report failure (false, nil) without minting.
func (s *Stablecoin) SetMintFailure(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMint = fail
}

// Symbol returns the coin symbol.
func (s *Stablecoin) Symbol() string { return s.token.Symbol() }

// TotalSupply returns the amount of coins in existence.
func (s *Stablecoin) TotalSupply() *uint256.Int { return s.token.TotalSupply() }

// Approve sets spender's allowance over owner's coins.
func (s *Stablecoin) Approve(owner, spender common.Address, amount *uint256.Int) error {
	return s.token.Approve(owner, spender, amount)
}

// Allowance returns spender's remaining allowance over owner's coins.
func (s *Stablecoin) Allowance(owner, spender common.Address) *uint256.Int {
	return s.token.Allowance(owner, spender)
}

// BalanceOf returns the balance of owner.
func (s *Stablecoin) BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	return s.token.BalanceOf(ctx, owner)
}

// Transfer moves amount from from to to.
func (s *Stablecoin) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	return s.token.Transfer(ctx, from, to, amount)
}

// TransferFrom moves amount from from to to, spending spender's allowance.
func (s *Stablecoin) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error) {
	return s.token.TransferFrom(ctx, spender, from, to, amount)
}

// SetTransferFailure makes transfers report failure without moving coins.
func (s *Stablecoin) SetTransferFailure(fail bool) { s.token.SetTransferFailure(fail) }

// OnTransfer sets a hook called after each successful transfer.
func (s *Stablecoin) OnTransfer(hook TransferHook) { s.token.OnTransfer(hook) }

// Snapshot opens a journal for writes made with the returned context.
func (s *Stablecoin) Snapshot(ctx context.Context) (context.Context, int) {
	return s.token.Snapshot(ctx)
}

// RevertToSnapshot undoes every journaled write made under the snapshot.
func (s *Stablecoin) RevertToSnapshot(id int) {
	s.token.RevertToSnapshot(id)
}

// DiscardSnapshot keeps the changes made since the snapshot.
func (s *Stablecoin) DiscardSnapshot(id int) {
	s.token.DiscardSnapshot(id)
}

// OpenSnapshots returns the number of snapshots not yet reverted or discarded.
func (s *Stablecoin) OpenSnapshots() int { return s.token.OpenSnapshots() }
