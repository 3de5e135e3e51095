package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ERC20 is the subset of fungible-token behaviour the engine relies on.
//
// The acting account is passed explicitly: Transfer moves tokens owned by from,
// TransferFrom moves tokens on behalf of from using spender's allowance.
// A false result with a nil error means the token reported failure without
// reverting; callers treat both outcomes as a failed transfer.
//
// The engine calls these while holding its operation lock. An implementation
// that calls back into the engine must pass along the ctx it was given: a
// callback carrying that ctx is rejected as reentrant, one made with a fresh
// context blocks on the lock until the outer operation ends, which never happens.
type ERC20 interface {
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error)
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error)
	BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error)
}

// Stablecoin is the minted unit-of-account token. Mint and Burn are gated on
// caller being the token's controller. The ctx rules of ERC20 apply to Mint and
// Burn as well.
type Stablecoin interface {
	ERC20

	// Mint creates amount new tokens for to.
	Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) (bool, error)

	// Burn destroys amount tokens from caller's own balance.
	Burn(ctx context.Context, caller common.Address, amount *uint256.Int) error
}

// TokenRegistry resolves collateral token addresses to their ERC20 implementation.
type TokenRegistry interface {
	Token(address common.Address) (ERC20, error)
}

// Revertible is implemented by collaborators whose state changes can be rolled back
// when the enclosing engine operation aborts, mirroring EVM state snapshots.
type Revertible interface {
	// Snapshot opens an undo journal. Only changes made through the returned
	// context, or contexts derived from it, are recorded; concurrent changes
	// made with other contexts are left alone on revert.
	Snapshot(ctx context.Context) (context.Context, int)

	// RevertToSnapshot undoes every change recorded under the snapshot.
	RevertToSnapshot(id int)

	// DiscardSnapshot keeps the recorded changes and closes the snapshot.
	DiscardSnapshot(id int)
}
