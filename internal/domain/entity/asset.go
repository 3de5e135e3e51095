package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralAsset binds an approved collateral token to the price feed that values it.
// Bindings are fixed when the engine is constructed.
type CollateralAsset struct {
	Token     common.Address
	PriceFeed common.Address
}

// NewCollateralAsset creates a new CollateralAsset binding.
func NewCollateralAsset(token, priceFeed common.Address) (*CollateralAsset, error) {
	a := &CollateralAsset{
		Token:     token,
		PriceFeed: priceFeed,
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *CollateralAsset) validate() error {
	if a.Token == (common.Address{}) {
		return fmt.Errorf("token must not be the zero address")
	}
	if a.PriceFeed == (common.Address{}) {
		return fmt.Errorf("price feed for token %s must not be the zero address", a.Token.Hex())
	}
	return nil
}
