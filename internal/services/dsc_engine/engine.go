// Package dsc_engine implements the accounting core of an overcollateralized
// stablecoin: per-user collateral and debt ledgers, health factors priced
// through staleness-checked feeds, and permissionless liquidation.
//
// Every mutating operation runs as one unit of work. It is serialized against
// all other operations, refuses reentrant calls, and is rolled back entirely on
// any error, including the token movements made by revertible collaborators.
package dsc_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/dsc/internal/domain/entity"
	"github.com/archon-research/dsc/internal/pkg/blockchain"
	"github.com/archon-research/dsc/internal/ports/inbound"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

// tracerName is the instrumentation name for engine spans.
const tracerName = "github.com/archon-research/dsc/internal/services/dsc_engine"

// Compile-time checks
var (
	_ inbound.PositionService = (*Engine)(nil)
	_ inbound.HealthChecker   = (*Engine)(nil)
)

// Config holds configuration for the engine.
type Config struct {
	// TokenAddresses and PriceFeedAddresses are parallel lists binding each
	// collateral token to its USD feed.
	TokenAddresses     []common.Address
	PriceFeedAddresses []common.Address

	// DscAddress identifies the stablecoin.
	DscAddress common.Address

	// EngineAddress is the account holding deposited collateral. It must be
	// the stablecoin's controller.
	EngineAddress common.Address

	// Clock is used for price freshness and event timestamps. Defaults to time.Now.
	Clock func() time.Time

	// TracerProvider creates operation spans. Defaults to the global provider.
	TracerProvider trace.TracerProvider

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		Clock:          time.Now,
		TracerProvider: otel.GetTracerProvider(),
		Logger:         slog.Default(),
	}
}

// Dependencies are the engine's collaborators.
type Dependencies struct {
	PriceFeeds outbound.PriceFeedReader
	Tokens     outbound.TokenRegistry
	Dsc        outbound.Stablecoin

	// Optional.
	Events    outbound.EventSink
	Positions outbound.PositionRepository
	Metrics   outbound.MetricsRecorder
}

// Engine is the stablecoin engine.
type Engine struct {
	mu sync.RWMutex

	state      *ledgerState
	collateral *collateralLedger
	debt       *debtLedger
	health     *healthFactorEngine

	dsc        outbound.Stablecoin
	dscAddress common.Address
	self       common.Address
	revertible []outbound.Revertible

	events    outbound.EventSink
	positions outbound.PositionRepository
	metrics   outbound.MetricsRecorder

	clock  func() time.Time
	tracer trace.Tracer
	logger *slog.Logger

	restored bool
}

// NewEngine creates a new engine.
func NewEngine(config Config, deps Dependencies) (*Engine, error) {
	if len(config.TokenAddresses) != len(config.PriceFeedAddresses) {
		return nil, fmt.Errorf("%w: %d tokens, %d price feeds",
			ErrTokenAddressesAndPriceFeedAddressesMustBeSameLength,
			len(config.TokenAddresses), len(config.PriceFeedAddresses))
	}
	if len(config.TokenAddresses) == 0 {
		return nil, fmt.Errorf("at least one collateral token is required")
	}
	if config.DscAddress == (common.Address{}) {
		return nil, fmt.Errorf("dsc address must not be the zero address")
	}
	if config.EngineAddress == (common.Address{}) {
		return nil, fmt.Errorf("engine address must not be the zero address")
	}
	if deps.PriceFeeds == nil {
		return nil, fmt.Errorf("price feeds cannot be nil")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token registry cannot be nil")
	}
	if deps.Dsc == nil {
		return nil, fmt.Errorf("dsc cannot be nil")
	}

	defaults := configDefaults()
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.TracerProvider == nil {
		config.TracerProvider = defaults.TracerProvider
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	oracle, err := blockchain.NewOracleGuard(deps.PriceFeeds, blockchain.OracleGuardConfig{Clock: config.Clock})
	if err != nil {
		return nil, fmt.Errorf("creating oracle guard: %w", err)
	}

	state := newLedgerState()
	collateral := &collateralLedger{
		state:  state,
		feeds:  make(map[common.Address]common.Address, len(config.TokenAddresses)),
		tokens: make(map[common.Address]outbound.ERC20, len(config.TokenAddresses)),
		oracle: oracle,
	}

	e := &Engine{
		state:      state,
		collateral: collateral,
		debt:       &debtLedger{state: state},
		dsc:        deps.Dsc,
		dscAddress: config.DscAddress,
		self:       config.EngineAddress,
		events:     deps.Events,
		positions:  deps.Positions,
		metrics:    deps.Metrics,
		clock:      config.Clock,
		tracer:     config.TracerProvider.Tracer(tracerName),
		logger:     config.Logger.With("component", "dsc-engine"),
		restored:   deps.Positions == nil,
	}
	e.health = &healthFactorEngine{collateral: e.collateral, debt: e.debt}

	seen := make(map[outbound.Revertible]bool)
	addRevertible := func(c any) {
		if r, ok := c.(outbound.Revertible); ok && !seen[r] {
			seen[r] = true
			e.revertible = append(e.revertible, r)
		}
	}
	addRevertible(deps.Dsc)

	for i, token := range config.TokenAddresses {
		asset, err := entity.NewCollateralAsset(token, config.PriceFeedAddresses[i])
		if err != nil {
			return nil, fmt.Errorf("collateral %d: %w", i, err)
		}
		if _, dup := collateral.feeds[token]; dup {
			return nil, fmt.Errorf("collateral token %s registered twice", token.Hex())
		}
		erc20, err := deps.Tokens.Token(token)
		if err != nil {
			return nil, fmt.Errorf("resolving collateral token %s: %w", token.Hex(), err)
		}
		collateral.assets = append(collateral.assets, *asset)
		collateral.feeds[token] = asset.PriceFeed
		collateral.tokens[token] = erc20
		addRevertible(erc20)
	}

	return e, nil
}

// Restore replaces the ledger with the positions stored in the repository.
// It must be called before serving operations when a repository is configured.
func (e *Engine) Restore(ctx context.Context) error {
	if e.positions == nil {
		return errors.New("no position repository configured")
	}

	positions, err := e.positions.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}
	for _, p := range positions {
		for token := range p.Collateral {
			if err := e.collateral.isAllowed(token); err != nil {
				return fmt.Errorf("restoring position of %s: %w", p.User.Hex(), err)
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.load(positions)
	e.restored = true

	e.logger.Info("positions restored", "count", len(positions))
	return nil
}

// IsReady reports whether stored positions have been restored.
func (e *Engine) IsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.restored
}

// IsHealthy reports false while any price feed is known to be stale, since
// every valuation is frozen until it updates.
func (e *Engine) IsHealthy() bool {
	return !e.collateral.anyStale()
}

// StaleFeeds lists the price feeds whose last read was refused as stale.
func (e *Engine) StaleFeeds() []common.Address {
	return e.collateral.staleFeedList()
}

// DepositCollateral moves amount of token from user into the engine and credits
// user's position.
func (e *Engine) DepositCollateral(ctx context.Context, user, token common.Address, amount *uint256.Int) error {
	return e.run(ctx, "deposit_collateral", func(u *unit) error {
		return u.depositCollateral(user, token, amount)
	})
}

// RedeemCollateral withdraws amount of token from user's position back to user.
func (e *Engine) RedeemCollateral(ctx context.Context, user, token common.Address, amount *uint256.Int) error {
	return e.run(ctx, "redeem_collateral", func(u *unit) error {
		if err := u.redeemCollateral(token, amount, user, user); err != nil {
			return err
		}
		return e.health.assertSafe(u.ctx, user)
	})
}

// MintDsc mints amount of stablecoin to user against user's collateral.
func (e *Engine) MintDsc(ctx context.Context, user common.Address, amount *uint256.Int) error {
	return e.run(ctx, "mint_dsc", func(u *unit) error {
		return u.mintDsc(user, amount)
	})
}

// BurnDsc repays amount of user's debt with stablecoin taken from user.
func (e *Engine) BurnDsc(ctx context.Context, user common.Address, amount *uint256.Int) error {
	return e.run(ctx, "burn_dsc", func(u *unit) error {
		if err := u.burnDsc(amount, user, user); err != nil {
			return err
		}
		return e.health.assertSafe(u.ctx, user)
	})
}

// DepositCollateralAndMintDsc deposits collateral and mints against it in one unit.
func (e *Engine) DepositCollateralAndMintDsc(ctx context.Context, user, token common.Address, collateralAmount, dscAmount *uint256.Int) error {
	return e.run(ctx, "deposit_collateral_and_mint_dsc", func(u *unit) error {
		if err := u.depositCollateral(user, token, collateralAmount); err != nil {
			return err
		}
		return u.mintDsc(user, dscAmount)
	})
}

// RedeemCollateralForDsc burns dscAmount of debt, then withdraws collateral, in one unit.
func (e *Engine) RedeemCollateralForDsc(ctx context.Context, user, token common.Address, collateralAmount, dscAmount *uint256.Int) error {
	return e.run(ctx, "redeem_collateral_for_dsc", func(u *unit) error {
		if err := u.burnDsc(dscAmount, user, user); err != nil {
			return err
		}
		if err := u.redeemCollateral(token, collateralAmount, user, user); err != nil {
			return err
		}
		return e.health.assertSafe(u.ctx, user)
	})
}
