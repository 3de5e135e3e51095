package outbound

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventType represents the type of ledger event.
type EventType string

// Event type constants.
const (
	EventTypeCollateralDeposited EventType = "CollateralDeposited"
	EventTypeCollateralRedeemed  EventType = "CollateralRedeemed"
	EventTypePositionLiquidated  EventType = "PositionLiquidated"
)

// LedgerEvent is the interface that all audit-log events implement.
type LedgerEvent interface {
	// EventType returns the type of the event.
	EventType() EventType
	// GetUser returns the account whose position the event concerns.
	GetUser() common.Address
	// GetOccurredAt returns when the operation producing the event committed.
	GetOccurredAt() time.Time
}

// CollateralDepositedEvent is emitted when a user deposits collateral.
type CollateralDepositedEvent struct {
	// User is the depositor.
	User common.Address `json:"user"`

	// Token is the collateral token.
	Token common.Address `json:"token"`

	// Amount is the deposited amount in token units.
	Amount *uint256.Int `json:"amount"`

	// OccurredAt is the engine clock time of the operation.
	OccurredAt time.Time `json:"occurredAt"`
}

func (e CollateralDepositedEvent) EventType() EventType     { return EventTypeCollateralDeposited }
func (e CollateralDepositedEvent) GetUser() common.Address  { return e.User }
func (e CollateralDepositedEvent) GetOccurredAt() time.Time { return e.OccurredAt }

// CollateralRedeemedEvent is emitted when collateral leaves a position, either
// withdrawn by its owner or seized by a liquidator.
type CollateralRedeemedEvent struct {
	// From is the position the collateral was taken from.
	From common.Address `json:"redeemedFrom"`

	// To is the account that received the collateral.
	To common.Address `json:"redeemedTo"`

	// Token is the collateral token.
	Token common.Address `json:"token"`

	// Amount is the redeemed amount in token units.
	Amount *uint256.Int `json:"amount"`

	// OccurredAt is the engine clock time of the operation.
	OccurredAt time.Time `json:"occurredAt"`
}

func (e CollateralRedeemedEvent) EventType() EventType     { return EventTypeCollateralRedeemed }
func (e CollateralRedeemedEvent) GetUser() common.Address  { return e.From }
func (e CollateralRedeemedEvent) GetOccurredAt() time.Time { return e.OccurredAt }

// PositionLiquidatedEvent is emitted once per successful liquidation, after the
// redemption it caused.
type PositionLiquidatedEvent struct {
	// Liquidator is the account that covered the debt.
	Liquidator common.Address `json:"liquidator"`

	// User is the liquidated position.
	User common.Address `json:"user"`

	// Token is the seized collateral token.
	Token common.Address `json:"token"`

	// DebtCovered is the stablecoin amount burned on behalf of User.
	DebtCovered *uint256.Int `json:"debtCovered"`

	// CollateralSeized is the collateral paid to the liquidator, bonus included.
	CollateralSeized *uint256.Int `json:"collateralSeized"`

	// OccurredAt is the engine clock time of the operation.
	OccurredAt time.Time `json:"occurredAt"`
}

func (e PositionLiquidatedEvent) EventType() EventType     { return EventTypePositionLiquidated }
func (e PositionLiquidatedEvent) GetUser() common.Address  { return e.User }
func (e PositionLiquidatedEvent) GetOccurredAt() time.Time { return e.OccurredAt }

// EventSink defines the interface for the append-only ledger audit log.
// The log is not read back by the engine.
type EventSink interface {
	// Publish appends an event to the log.
	// Accepts CollateralDepositedEvent, CollateralRedeemedEvent or PositionLiquidatedEvent.
	Publish(ctx context.Context, event LedgerEvent) error

	// Close closes the sink and releases any resources.
	Close() error
}
