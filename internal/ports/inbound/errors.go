package inbound

import "errors"

// Errors returned by PositionService. Inbound adapters match them with
// errors.Is to pick a response.
var (
	// Rejected before any state changes.
	ErrNeedsMoreThanZero = errors.New("amount must be more than zero")
	ErrTokenNotAllowed   = errors.New("token not allowed as collateral")

	// The operation was rolled back.
	ErrBreaksHealthFactor      = errors.New("breaks health factor")
	ErrTransferFailed          = errors.New("transfer failed")
	ErrMintFailed              = errors.New("mint failed")
	ErrInsufficientCollateral  = errors.New("insufficient collateral")
	ErrInsufficientDebt        = errors.New("burn amount exceeds debt")
	ErrArithmeticOverflow      = errors.New("arithmetic overflow")
	ErrHealthFactorOk          = errors.New("health factor ok")
	ErrHealthFactorNotImproved = errors.New("health factor not improved")
	ErrReentrantCall           = errors.New("reentrant call")
)
