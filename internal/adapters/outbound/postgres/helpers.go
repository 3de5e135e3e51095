package postgres

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// numericFromUint256 renders v for a NUMERIC column.
func numericFromUint256(v *uint256.Int) (string, error) {
	if v == nil {
		return "", fmt.Errorf("amount is nil")
	}
	return v.Dec(), nil
}

// uint256FromNumeric parses a NUMERIC column read as text.
func uint256FromNumeric(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// addressFromBytes converts a BYTEA column into an address.
func addressFromBytes(b []byte) (common.Address, error) {
	if len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("invalid address length %d", len(b))
	}
	return common.BytesToAddress(b), nil
}
