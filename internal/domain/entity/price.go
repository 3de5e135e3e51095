package entity

import (
	"fmt"
	"math/big"
	"time"
)

// RoundData is a single AggregatorV3 latestRoundData() reading.
// Answer is in the feed's native precision (8 decimals for USD feeds).
// Readings are never persisted; they are fetched for every valuation.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound *big.Int
}

// NewRoundData creates a new RoundData reading with validation.
func NewRoundData(roundID, answer *big.Int, startedAt, updatedAt time.Time, answeredInRound *big.Int) (*RoundData, error) {
	r := &RoundData{
		RoundID:         roundID,
		Answer:          answer,
		StartedAt:       startedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: answeredInRound,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RoundData) validate() error {
	if r.RoundID == nil {
		return fmt.Errorf("roundID must not be nil")
	}
	if r.Answer == nil {
		return fmt.Errorf("answer must not be nil")
	}
	if r.AnsweredInRound == nil {
		return fmt.Errorf("answeredInRound must not be nil")
	}
	return nil
}

// Complete reports whether the round has been answered.
// Chainlink reports updatedAt == 0 for rounds that never completed.
func (r *RoundData) Complete() bool {
	return !r.UpdatedAt.IsZero() && r.UpdatedAt.Unix() > 0
}
