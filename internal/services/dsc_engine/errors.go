package dsc_engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/archon-research/dsc/internal/ports/inbound"
)

// Validation errors. Returned before any state changes.
var (
	ErrNeedsMoreThanZero                                   = inbound.ErrNeedsMoreThanZero
	ErrTokenNotAllowed                                     = inbound.ErrTokenNotAllowed
	ErrTokenAddressesAndPriceFeedAddressesMustBeSameLength = errors.New("token addresses and price feed addresses must be the same length")
)

// Invariant and collaborator errors. The operation is rolled back.
var (
	ErrBreaksHealthFactor      = inbound.ErrBreaksHealthFactor
	ErrTransferFailed          = inbound.ErrTransferFailed
	ErrMintFailed              = inbound.ErrMintFailed
	ErrInsufficientCollateral  = inbound.ErrInsufficientCollateral
	ErrInsufficientDebt        = inbound.ErrInsufficientDebt
	ErrArithmeticOverflow      = inbound.ErrArithmeticOverflow
	ErrHealthFactorOk          = inbound.ErrHealthFactorOk
	ErrHealthFactorNotImproved = inbound.ErrHealthFactorNotImproved
	ErrReentrantCall           = inbound.ErrReentrantCall
)

// BreaksHealthFactorError reports the health factor a position would have had.
// It matches ErrBreaksHealthFactor.
type BreaksHealthFactorError struct {
	User         common.Address
	HealthFactor *uint256.Int
}

func (e *BreaksHealthFactorError) Error() string {
	return fmt.Sprintf("breaks health factor: %s would be at %s", e.User.Hex(), e.HealthFactor.Dec())
}

func (e *BreaksHealthFactorError) Is(target error) bool {
	return target == ErrBreaksHealthFactor
}
