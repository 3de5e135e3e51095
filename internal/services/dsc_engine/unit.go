package dsc_engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/dsc/internal/domain/entity"
	"github.com/archon-research/dsc/internal/pkg/blockchain"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

// unit is one atomic engine operation in flight.
type unit struct {
	e       *Engine
	ctx     context.Context
	now     time.Time
	touched map[common.Address]struct{}
	events  []outbound.LedgerEvent

	liquidatedToken *common.Address
}

// run executes fn as a unit of work. On error every ledger write and every
// change to a revertible collaborator is undone and no events are published.
// A panic in fn is rolled back the same way and then re-raised.
func (e *Engine) run(ctx context.Context, operation string, fn func(u *unit) error) error {
	if outer, ok := inOperation(ctx); ok {
		e.logger.Warn("reentrant call rejected", "operation", operation, "inside", outer)
		return fmt.Errorf("%w: %s called during %s", ErrReentrantCall, operation, outer)
	}

	ctx, span := e.tracer.Start(ctx, "dsc."+operation, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	u := &unit{
		e:       e,
		ctx:     withOperation(ctx, operation),
		now:     e.clock(),
		touched: make(map[common.Address]struct{}),
	}

	ledgerSnapshot := e.state.snapshot()
	snapshots := make([]int, len(e.revertible))
	for i, r := range e.revertible {
		u.ctx, snapshots[i] = r.Snapshot(u.ctx)
	}

	abort := func(status string) {
		e.state.revertTo(ledgerSnapshot)
		for i := len(e.revertible) - 1; i >= 0; i-- {
			e.revertible[i].RevertToSnapshot(snapshots[i])
		}
		e.recordOperation(ctx, operation, status, time.Since(start))
	}

	committed := false
	defer func() {
		if p := recover(); p != nil {
			if !committed {
				abort("panic")
			}
			span.SetStatus(codes.Error, "panic")
			e.logger.Error("operation panicked", "operation", operation, "rolledBack", !committed, "panic", p)
			panic(p)
		}
	}()

	err := fn(u)
	if err == nil {
		err = u.persist()
	}

	if err != nil {
		abort(errorStatus(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, errorStatus(err))
		e.logger.Debug("operation aborted", "operation", operation, "error", err)
		return err
	}

	e.state.commit()
	committed = true
	for i, r := range e.revertible {
		r.DiscardSnapshot(snapshots[i])
	}
	span.SetAttributes(
		attribute.Int("dsc.positions", len(u.touched)),
		attribute.Int("dsc.events", len(u.events)),
	)
	e.logger.Debug("operation committed", "operation", operation, "positions", len(u.touched))
	e.recordOperation(ctx, operation, "ok", time.Since(start))
	if u.liquidatedToken != nil && e.metrics != nil {
		e.metrics.RecordLiquidation(ctx, *u.liquidatedToken)
	}

	u.publish(ctx)
	return nil
}

func (e *Engine) recordOperation(ctx context.Context, operation, status string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordOperation(ctx, operation, status, d)
	}
}

// persist stores the positions touched by the unit. A failure aborts the unit.
func (u *unit) persist() error {
	if u.e.positions == nil || len(u.touched) == 0 {
		return nil
	}
	users := make([]common.Address, 0, len(u.touched))
	for user := range u.touched {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Cmp(users[j]) < 0 })

	positions := make([]*entity.Position, len(users))
	for i, user := range users {
		positions[i] = u.e.state.position(user)
	}
	if err := u.e.positions.SavePositions(u.ctx, positions); err != nil {
		return fmt.Errorf("saving positions: %w", err)
	}
	return nil
}

// publish hands committed events to the sink. Failures are logged only: the
// audit log is not part of ledger state.
func (u *unit) publish(ctx context.Context) {
	if u.e.events == nil {
		return
	}
	for _, event := range u.events {
		if err := u.e.events.Publish(ctx, event); err != nil {
			u.e.logger.Error("failed to publish ledger event",
				"eventType", event.EventType(),
				"user", event.GetUser().Hex(),
				"error", err,
			)
		}
	}
}

func (u *unit) emit(event outbound.LedgerEvent) {
	u.events = append(u.events, event)
}

func (u *unit) touch(user common.Address) {
	u.touched[user] = struct{}{}
}

func moreThanZero(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrNeedsMoreThanZero
	}
	return nil
}

func (u *unit) depositCollateral(user, token common.Address, amount *uint256.Int) error {
	if err := moreThanZero(amount); err != nil {
		return err
	}
	if err := u.e.collateral.isAllowed(token); err != nil {
		return err
	}

	if err := u.e.collateral.credit(user, token, amount); err != nil {
		return err
	}
	u.touch(user)
	u.emit(outbound.CollateralDepositedEvent{
		User:       user,
		Token:      token,
		Amount:     new(uint256.Int).Set(amount),
		OccurredAt: u.now,
	})

	ok, err := u.e.collateral.tokens[token].TransferFrom(u.ctx, u.e.self, user, u.e.self, amount)
	return transferResult(ok, err)
}

func (u *unit) redeemCollateral(token common.Address, amount *uint256.Int, from, to common.Address) error {
	if err := moreThanZero(amount); err != nil {
		return err
	}
	if err := u.e.collateral.isAllowed(token); err != nil {
		return err
	}

	if err := u.e.collateral.debit(from, token, amount); err != nil {
		return err
	}
	u.touch(from)
	u.emit(outbound.CollateralRedeemedEvent{
		From:       from,
		To:         to,
		Token:      token,
		Amount:     new(uint256.Int).Set(amount),
		OccurredAt: u.now,
	})

	ok, err := u.e.collateral.tokens[token].Transfer(u.ctx, u.e.self, to, amount)
	return transferResult(ok, err)
}

// mintDsc records the debt first so a failed health check reports the
// resulting ratio.
func (u *unit) mintDsc(user common.Address, amount *uint256.Int) error {
	if err := moreThanZero(amount); err != nil {
		return err
	}
	if err := u.e.debt.increase(user, amount); err != nil {
		return err
	}
	u.touch(user)
	if err := u.e.health.assertSafe(u.ctx, user); err != nil {
		return err
	}

	ok, err := u.e.dsc.Mint(u.ctx, u.e.self, user, amount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMintFailed, err)
	}
	if !ok {
		return ErrMintFailed
	}
	return nil
}

// burnDsc reduces onBehalfOf's debt with stablecoin pulled from dscFrom.
func (u *unit) burnDsc(amount *uint256.Int, onBehalfOf, dscFrom common.Address) error {
	if err := moreThanZero(amount); err != nil {
		return err
	}
	if err := u.e.debt.decrease(onBehalfOf, amount); err != nil {
		return err
	}
	u.touch(onBehalfOf)

	ok, err := u.e.dsc.TransferFrom(u.ctx, u.e.self, dscFrom, u.e.self, amount)
	if err := transferResult(ok, err); err != nil {
		return err
	}
	if err := u.e.dsc.Burn(u.ctx, u.e.self, amount); err != nil {
		return fmt.Errorf("burning dsc: %w", err)
	}
	return nil
}

func transferResult(ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if !ok {
		return ErrTransferFailed
	}
	return nil
}

// errorStatus maps an operation error to a low-cardinality metric label.
func errorStatus(err error) string {
	switch {
	case errors.Is(err, ErrNeedsMoreThanZero):
		return "needs_more_than_zero"
	case errors.Is(err, ErrTokenNotAllowed):
		return "token_not_allowed"
	case errors.Is(err, ErrBreaksHealthFactor):
		return "breaks_health_factor"
	case errors.Is(err, ErrHealthFactorOk):
		return "health_factor_ok"
	case errors.Is(err, ErrHealthFactorNotImproved):
		return "health_factor_not_improved"
	case errors.Is(err, blockchain.ErrStalePrice):
		return "stale_price"
	case errors.Is(err, blockchain.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrMintFailed):
		return "mint_failed"
	case errors.Is(err, ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, ErrInsufficientDebt):
		return "insufficient_debt"
	case errors.Is(err, ErrArithmeticOverflow):
		return "overflow"
	default:
		return "error"
	}
}
