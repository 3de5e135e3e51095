// Package abis holds the contract ABIs the engine talks to on-chain.
package abis

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const aggregatorV3JSON = `[
	{
		"inputs": [],
		"name": "latestRoundData",
		"outputs": [
			{"name": "roundId", "type": "uint80"},
			{"name": "answer", "type": "int256"},
			{"name": "startedAt", "type": "uint256"},
			{"name": "updatedAt", "type": "uint256"},
			{"name": "answeredInRound", "type": "uint80"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "description",
		"outputs": [{"name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	aggregatorV3Once sync.Once
	aggregatorV3ABI  *abi.ABI
	aggregatorV3Err  error
)

// GetAggregatorV3ABI returns the ABI for the Chainlink AggregatorV3Interface.
// The parsed ABI is shared; callers must not modify it.
func GetAggregatorV3ABI() (*abi.ABI, error) {
	aggregatorV3Once.Do(func() {
		aggregatorV3ABI, aggregatorV3Err = ParseABI(aggregatorV3JSON)
	})
	return aggregatorV3ABI, aggregatorV3Err
}

// ParseABI parses a JSON ABI definition.
func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
