package dsc_engine

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/archon-research/dsc/internal/adapters/outbound/memory"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

var (
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000000e4e1e")
	dscAddr    = common.HexToAddress("0x0000000000000000000000000000000000000d5c")
	wethAddr   = common.HexToAddress("0x00000000000000000000000000000000000e7e70")
	wbtcAddr   = common.HexToAddress("0x0000000000000000000000000000000000007b7c")
	ethUsdFeed = common.HexToAddress("0x000000000000000000000000000000000000fee1")
	btcUsdFeed = common.HexToAddress("0x000000000000000000000000000000000000fee2")

	user       = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	liquidator = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const (
	ethUsdPrice = 2000e8
	btcUsdPrice = 1000e8
)

// --- Test fixtures ---

// mockMetrics records calls for assertions.
type mockMetrics struct {
	mu           sync.Mutex
	operations   []string // "operation:status"
	liquidations []common.Address
}

func (m *mockMetrics) RecordOperation(_ context.Context, operation, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = append(m.operations, operation+":"+status)
}

func (m *mockMetrics) RecordLiquidation(_ context.Context, token common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liquidations = append(m.liquidations, token)
}

type fixture struct {
	engine  *Engine
	weth    *memory.Token
	wbtc    *memory.Token
	dsc     *memory.Stablecoin
	feeds   *memory.PriceFeeds
	events  *memory.EventSink
	repo    *memory.PositionRepository
	metrics *mockMetrics
	now     time.Time
}

func newFixture(t testing.TB) *fixture {
	t.Helper()

	f := &fixture{
		weth:    memory.NewToken("WETH"),
		wbtc:    memory.NewToken("WBTC"),
		events:  memory.NewEventSink(),
		repo:    memory.NewPositionRepository(),
		metrics: &mockMetrics{},
		now:     time.Unix(1_700_000_000, 0),
	}
	clock := func() time.Time { return f.now }
	f.feeds = memory.NewPriceFeeds(clock)
	f.feeds.SetAnswer(ethUsdFeed, big.NewInt(ethUsdPrice))
	f.feeds.SetAnswer(btcUsdFeed, big.NewInt(btcUsdPrice))

	dsc, err := memory.NewStablecoin("DSC", engineAddr)
	if err != nil {
		t.Fatalf("NewStablecoin: %v", err)
	}
	f.dsc = dsc

	registry := memory.NewTokenRegistry()
	registry.Register(wethAddr, f.weth)
	registry.Register(wbtcAddr, f.wbtc)

	engine, err := NewEngine(Config{
		TokenAddresses:     []common.Address{wethAddr, wbtcAddr},
		PriceFeedAddresses: []common.Address{ethUsdFeed, btcUsdFeed},
		DscAddress:         dscAddr,
		EngineAddress:      engineAddr,
		Clock:              clock,
	}, Dependencies{
		PriceFeeds: f.feeds,
		Tokens:     registry,
		Dsc:        f.dsc,
		Events:     f.events,
		Positions:  f.repo,
		Metrics:    f.metrics,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	f.engine = engine
	return f
}

// ether returns n whole tokens in 18-decimal units.
func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func wei(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

// fund gives account amount of token and approves the engine to pull it.
func (f *fixture) fund(t testing.TB, token *memory.Token, account common.Address, amount *uint256.Int) {
	t.Helper()
	if err := token.MintTo(account, amount); err != nil {
		t.Fatalf("MintTo: %v", err)
	}
	if err := token.Approve(account, engineAddr, new(uint256.Int).SetAllOne()); err != nil {
		t.Fatalf("Approve: %v", err)
	}
}

// open deposits collateral WETH and mints debt DSC for account.
func (f *fixture) open(t testing.TB, account common.Address, collateral, debt *uint256.Int) {
	t.Helper()
	f.fund(t, f.weth, account, collateral)
	if err := f.engine.DepositCollateralAndMintDsc(context.Background(), account, wethAddr, collateral, debt); err != nil {
		t.Fatalf("DepositCollateralAndMintDsc: %v", err)
	}
	if err := f.dsc.Approve(account, engineAddr, new(uint256.Int).SetAllOne()); err != nil {
		t.Fatalf("Approve dsc: %v", err)
	}
}

func (f *fixture) setEthPrice(answer int64) {
	f.feeds.SetAnswer(ethUsdFeed, big.NewInt(answer))
}

func balance(t *testing.T, token outbound.ERC20, account common.Address) *uint256.Int {
	t.Helper()
	b, err := token.BalanceOf(context.Background(), account)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	return b
}

func assertEq(t *testing.T, what string, got, want *uint256.Int) {
	t.Helper()
	if !got.Eq(want) {
		t.Errorf("%s: expected %s, got %s", what, want.Dec(), got.Dec())
	}
}

// --- Test: NewEngine ---

func TestNewEngine_Validation(t *testing.T) {
	feeds := memory.NewPriceFeeds(nil)
	registry := memory.NewTokenRegistry()
	registry.Register(wethAddr, memory.NewToken("WETH"))
	dsc, _ := memory.NewStablecoin("DSC", engineAddr)

	validConfig := func() Config {
		return Config{
			TokenAddresses:     []common.Address{wethAddr},
			PriceFeedAddresses: []common.Address{ethUsdFeed},
			DscAddress:         dscAddr,
			EngineAddress:      engineAddr,
		}
	}
	validDeps := func() Dependencies {
		return Dependencies{PriceFeeds: feeds, Tokens: registry, Dsc: dsc}
	}

	tests := []struct {
		name    string
		mutate  func(*Config, *Dependencies)
		wantErr error
		wantMsg string
	}{
		{
			name: "mismatched lengths",
			mutate: func(c *Config, _ *Dependencies) {
				c.PriceFeedAddresses = append(c.PriceFeedAddresses, btcUsdFeed)
			},
			wantErr: ErrTokenAddressesAndPriceFeedAddressesMustBeSameLength,
		},
		{
			name: "no collateral",
			mutate: func(c *Config, _ *Dependencies) {
				c.TokenAddresses, c.PriceFeedAddresses = nil, nil
			},
			wantMsg: "at least one collateral token",
		},
		{
			name:    "zero dsc address",
			mutate:  func(c *Config, _ *Dependencies) { c.DscAddress = common.Address{} },
			wantMsg: "dsc address",
		},
		{
			name:    "zero engine address",
			mutate:  func(c *Config, _ *Dependencies) { c.EngineAddress = common.Address{} },
			wantMsg: "engine address",
		},
		{
			name:    "nil price feeds",
			mutate:  func(_ *Config, d *Dependencies) { d.PriceFeeds = nil },
			wantMsg: "price feeds cannot be nil",
		},
		{
			name:    "nil token registry",
			mutate:  func(_ *Config, d *Dependencies) { d.Tokens = nil },
			wantMsg: "token registry cannot be nil",
		},
		{
			name:    "nil dsc",
			mutate:  func(_ *Config, d *Dependencies) { d.Dsc = nil },
			wantMsg: "dsc cannot be nil",
		},
		{
			name: "zero price feed",
			mutate: func(c *Config, _ *Dependencies) {
				c.PriceFeedAddresses = []common.Address{{}}
			},
			wantMsg: "price feed",
		},
		{
			name: "duplicate token",
			mutate: func(c *Config, _ *Dependencies) {
				c.TokenAddresses = []common.Address{wethAddr, wethAddr}
				c.PriceFeedAddresses = []common.Address{ethUsdFeed, btcUsdFeed}
			},
			wantMsg: "registered twice",
		},
		{
			name: "unknown token",
			mutate: func(c *Config, _ *Dependencies) {
				c.TokenAddresses = []common.Address{wbtcAddr}
			},
			wantErr: memory.ErrTokenNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, deps := validConfig(), validDeps()
			tt.mutate(&cfg, &deps)

			_, err := NewEngine(cfg, deps)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestNewEngine_ExposesConfiguration(t *testing.T) {
	f := newFixture(t)

	tokens := f.engine.CollateralTokens()
	if len(tokens) != 2 || tokens[0] != wethAddr || tokens[1] != wbtcAddr {
		t.Errorf("unexpected collateral tokens: %v", tokens)
	}
	if feed, ok := f.engine.CollateralTokenPriceFeed(wbtcAddr); !ok || feed != btcUsdFeed {
		t.Errorf("expected wbtc feed %s, got %s (ok=%v)", btcUsdFeed.Hex(), feed.Hex(), ok)
	}
	if _, ok := f.engine.CollateralTokenPriceFeed(dscAddr); ok {
		t.Error("expected no feed for an unapproved token")
	}
	if f.engine.Dsc() != dscAddr {
		t.Errorf("expected dsc %s, got %s", dscAddr.Hex(), f.engine.Dsc().Hex())
	}

	assertEq(t, "liquidation bonus", f.engine.LiquidationBonus(), uint256.NewInt(10))
	assertEq(t, "liquidation threshold", f.engine.LiquidationThreshold(), uint256.NewInt(50))
	assertEq(t, "liquidation precision", f.engine.LiquidationPrecision(), uint256.NewInt(100))
	assertEq(t, "precision", f.engine.Precision(), uint256.NewInt(1e18))
	assertEq(t, "additional feed precision", f.engine.AdditionalFeedPrecision(), uint256.NewInt(1e10))
	assertEq(t, "min health factor", f.engine.MinHealthFactor(), uint256.NewInt(1e18))
}

// --- Test: price conversions ---

func TestEngine_UsdValue(t *testing.T) {
	f := newFixture(t)

	got, err := f.engine.UsdValue(context.Background(), wethAddr, ether(15))
	if err != nil {
		t.Fatalf("UsdValue: %v", err)
	}
	assertEq(t, "usd value of 15 ETH", got, ether(30000))

	if _, err := f.engine.UsdValue(context.Background(), dscAddr, ether(1)); !errors.Is(err, ErrTokenNotAllowed) {
		t.Errorf("expected ErrTokenNotAllowed, got %v", err)
	}
}

func TestEngine_TokenAmountFromUsd(t *testing.T) {
	f := newFixture(t)

	got, err := f.engine.TokenAmountFromUsd(context.Background(), wethAddr, ether(100))
	if err != nil {
		t.Fatalf("TokenAmountFromUsd: %v", err)
	}
	assertEq(t, "ETH for $100", got, wei("50000000000000000"))
}

func TestEngine_UsdRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	amounts := []*uint256.Int{
		uint256.NewInt(1),
		wei("123456789"),
		ether(1),
		wei("7777777777777777777"),
		ether(1_000_000),
	}
	for _, token := range []common.Address{wethAddr, wbtcAddr} {
		for _, amount := range amounts {
			usd, err := f.engine.UsdValue(ctx, token, amount)
			if err != nil {
				t.Fatalf("UsdValue: %v", err)
			}
			back, err := f.engine.TokenAmountFromUsd(ctx, token, usd)
			if err != nil {
				t.Fatalf("TokenAmountFromUsd: %v", err)
			}
			// flooring twice loses at most one unit
			diff := new(uint256.Int).Sub(amount, back)
			if back.Gt(amount) || diff.Gt(uint256.NewInt(1)) {
				t.Errorf("round trip of %s gave %s", amount.Dec(), back.Dec())
			}
		}
	}
}

// --- Test: deposit ---

func TestEngine_DepositCollateral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, f.weth, user, ether(10))

	if err := f.engine.DepositCollateral(ctx, user, wethAddr, ether(10)); err != nil {
		t.Fatalf("DepositCollateral: %v", err)
	}

	assertEq(t, "deposited", f.engine.CollateralBalanceOf(ctx, user, wethAddr), ether(10))
	assertEq(t, "engine custody", balance(t, f.weth, engineAddr), ether(10))
	assertEq(t, "user wallet", balance(t, f.weth, user), new(uint256.Int))

	debt, value, err := f.engine.AccountInformation(ctx, user)
	if err != nil {
		t.Fatalf("AccountInformation: %v", err)
	}
	assertEq(t, "debt", debt, new(uint256.Int))
	assertEq(t, "collateral value", value, ether(20000))

	events := f.events.EventsByType(outbound.EventTypeCollateralDeposited)
	if len(events) != 1 {
		t.Fatalf("expected 1 deposit event, got %d", len(events))
	}
	deposited := events[0].(outbound.CollateralDepositedEvent)
	if deposited.User != user || deposited.Token != wethAddr || !deposited.Amount.Eq(ether(10)) {
		t.Errorf("unexpected event: %+v", deposited)
	}
	if !deposited.OccurredAt.Equal(f.now) {
		t.Errorf("expected event time %v, got %v", f.now, deposited.OccurredAt)
	}
}

func TestEngine_DepositCollateral_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		token   common.Address
		amount  *uint256.Int
		setup   func(f *fixture)
		wantErr error
	}{
		{name: "zero amount", token: wethAddr, amount: new(uint256.Int), wantErr: ErrNeedsMoreThanZero},
		{name: "nil amount", token: wethAddr, amount: nil, wantErr: ErrNeedsMoreThanZero},
		{name: "unapproved token", token: dscAddr, amount: ether(1), wantErr: ErrTokenNotAllowed},
		{
			name:    "token reports failure",
			token:   wethAddr,
			amount:  ether(1),
			setup:   func(f *fixture) { f.weth.SetTransferFailure(true) },
			wantErr: ErrTransferFailed,
		},
		{
			name:    "more than wallet balance",
			token:   wethAddr,
			amount:  ether(11),
			wantErr: ErrTransferFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.fund(t, f.weth, user, ether(10))
			if tt.setup != nil {
				tt.setup(f)
			}

			err := f.engine.DepositCollateral(ctx, user, tt.token, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			assertEq(t, "deposited", f.engine.CollateralBalanceOf(ctx, user, wethAddr), new(uint256.Int))
			assertEq(t, "user wallet", balance(t, f.weth, user), ether(10))
			if f.events.EventCount() != 0 {
				t.Errorf("expected no events from a failed deposit, got %d", f.events.EventCount())
			}
		})
	}
}

// --- Test: mint ---

func TestEngine_MintDsc_HealthFactorScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, user, ether(1), ether(500))

	hf, err := f.engine.HealthFactor(ctx, user)
	if err != nil {
		t.Fatalf("HealthFactor: %v", err)
	}
	assertEq(t, "health factor", hf, wei("2000000000000000000"))
	assertEq(t, "dsc wallet", balance(t, f.dsc, user), ether(500))

	err = f.engine.MintDsc(ctx, user, ether(501))
	if !errors.Is(err, ErrBreaksHealthFactor) {
		t.Fatalf("expected ErrBreaksHealthFactor, got %v", err)
	}
	var breaks *BreaksHealthFactorError
	if !errors.As(err, &breaks) {
		t.Fatalf("expected *BreaksHealthFactorError, got %T", err)
	}
	assertEq(t, "reported health factor", breaks.HealthFactor, wei("999000999000999000"))
	if breaks.User != user {
		t.Errorf("expected user %s, got %s", user.Hex(), breaks.User.Hex())
	}

	debt, _, err := f.engine.AccountInformation(ctx, user)
	if err != nil {
		t.Fatalf("AccountInformation: %v", err)
	}
	assertEq(t, "debt after failed mint", debt, ether(500))
	assertEq(t, "dsc wallet after failed mint", balance(t, f.dsc, user), ether(500))
	assertEq(t, "dsc supply", f.dsc.TotalSupply(), ether(500))
}

func TestEngine_MintDsc_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		amount  *uint256.Int
		setup   func(f *fixture)
		wantErr error
	}{
		{name: "zero amount", amount: new(uint256.Int), wantErr: ErrNeedsMoreThanZero},
		{name: "beyond collateral", amount: ether(1001), wantErr: ErrBreaksHealthFactor},
		{
			name:    "stablecoin refuses",
			amount:  ether(1),
			setup:   func(f *fixture) { f.dsc.SetMintFailure(true) },
			wantErr: ErrMintFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.fund(t, f.weth, user, ether(1))
			if err := f.engine.DepositCollateral(ctx, user, wethAddr, ether(1)); err != nil {
				t.Fatalf("DepositCollateral: %v", err)
			}
			if tt.setup != nil {
				tt.setup(f)
			}

			err := f.engine.MintDsc(ctx, user, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			assertEq(t, "debt", f.engine.Position(ctx, user).Debt, new(uint256.Int))
			assertEq(t, "dsc supply", f.dsc.TotalSupply(), new(uint256.Int))
		})
	}
}

func TestEngine_MintDsc_WithoutCollateral(t *testing.T) {
	f := newFixture(t)

	err := f.engine.MintDsc(context.Background(), user, uint256.NewInt(1))
	var breaks *BreaksHealthFactorError
	if !errors.As(err, &breaks) {
		t.Fatalf("expected *BreaksHealthFactorError, got %v", err)
	}
	assertEq(t, "reported health factor", breaks.HealthFactor, new(uint256.Int))
}

func TestEngine_MintDsc_ExactlyAtMinimum(t *testing.T) {
	f := newFixture(t)
	f.open(t, user, ether(1), ether(1000))

	hf, err := f.engine.HealthFactor(context.Background(), user)
	if err != nil {
		t.Fatalf("HealthFactor: %v", err)
	}
	assertEq(t, "health factor", hf, uint256.NewInt(1e18))
}

// --- Test: redeem ---

func TestEngine_RedeemCollateral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, user, ether(2), ether(1000))

	if err := f.engine.RedeemCollateral(ctx, user, wethAddr, ether(1)); err != nil {
		t.Fatalf("RedeemCollateral: %v", err)
	}
	assertEq(t, "deposited", f.engine.CollateralBalanceOf(ctx, user, wethAddr), ether(1))
	assertEq(t, "user wallet", balance(t, f.weth, user), ether(1))

	redeemed := f.events.EventsByType(outbound.EventTypeCollateralRedeemed)
	if len(redeemed) != 1 {
		t.Fatalf("expected 1 redeem event, got %d", len(redeemed))
	}
	if e := redeemed[0].(outbound.CollateralRedeemedEvent); e.From != user || e.To != user || !e.Amount.Eq(ether(1)) {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestEngine_RedeemCollateral_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		token   common.Address
		amount  *uint256.Int
		wantErr error
	}{
		{name: "zero amount", token: wethAddr, amount: new(uint256.Int), wantErr: ErrNeedsMoreThanZero},
		{name: "unapproved token", token: dscAddr, amount: ether(1), wantErr: ErrTokenNotAllowed},
		{name: "more than deposited", token: wethAddr, amount: ether(3), wantErr: ErrInsufficientCollateral},
		{name: "breaks health factor", token: wethAddr, amount: wei("1000000000000000001"), wantErr: ErrBreaksHealthFactor},
		{name: "never deposited", token: wbtcAddr, amount: ether(1), wantErr: ErrInsufficientCollateral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.open(t, user, ether(2), ether(1000))
			f.events.Clear()

			err := f.engine.RedeemCollateral(ctx, user, tt.token, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			assertEq(t, "deposited", f.engine.CollateralBalanceOf(ctx, user, wethAddr), ether(2))
			assertEq(t, "engine custody", balance(t, f.weth, engineAddr), ether(2))
			assertEq(t, "user wallet", balance(t, f.weth, user), new(uint256.Int))
			if f.events.EventCount() != 0 {
				t.Errorf("expected no events, got %d", f.events.EventCount())
			}
		})
	}
}

// --- Test: burn ---

func TestEngine_BurnDsc(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, user, ether(1), ether(500))

	before, err := f.engine.HealthFactor(ctx, user)
	if err != nil {
		t.Fatalf("HealthFactor: %v", err)
	}

	if err := f.engine.BurnDsc(ctx, user, ether(100)); err != nil {
		t.Fatalf("BurnDsc: %v", err)
	}
	assertEq(t, "debt", f.engine.Position(ctx, user).Debt, ether(400))
	assertEq(t, "dsc wallet", balance(t, f.dsc, user), ether(400))
	assertEq(t, "dsc supply", f.dsc.TotalSupply(), ether(400))
	assertEq(t, "engine dsc", balance(t, f.dsc, engineAddr), new(uint256.Int))

	after, err := f.engine.HealthFactor(ctx, user)
	if err != nil {
		t.Fatalf("HealthFactor: %v", err)
	}
	if after.Lt(before) {
		t.Errorf("burning lowered health factor from %s to %s", before.Dec(), after.Dec())
	}
}

func TestEngine_BurnDsc_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		amount  *uint256.Int
		setup   func(f *fixture)
		wantErr error
	}{
		{name: "zero amount", amount: new(uint256.Int), wantErr: ErrNeedsMoreThanZero},
		{name: "more than debt", amount: ether(501), wantErr: ErrInsufficientDebt},
		{
			name:   "no allowance",
			amount: ether(100),
			setup: func(f *fixture) {
				_ = f.dsc.Approve(user, engineAddr, new(uint256.Int))
			},
			wantErr: ErrTransferFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.open(t, user, ether(1), ether(500))
			if tt.setup != nil {
				tt.setup(f)
			}

			err := f.engine.BurnDsc(ctx, user, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			assertEq(t, "debt", f.engine.Position(ctx, user).Debt, ether(500))
			assertEq(t, "dsc supply", f.dsc.TotalSupply(), ether(500))
		})
	}
}

// --- Test: combined operations ---

func TestEngine_DepositCollateralAndMintDsc_IsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, f.weth, user, ether(1))

	err := f.engine.DepositCollateralAndMintDsc(ctx, user, wethAddr, ether(1), ether(1001))
	if !errors.Is(err, ErrBreaksHealthFactor) {
		t.Fatalf("expected ErrBreaksHealthFactor, got %v", err)
	}
	if !f.engine.Position(ctx, user).IsEmpty() {
		t.Error("expected the deposit to be rolled back with the mint")
	}
	assertEq(t, "user wallet", balance(t, f.weth, user), ether(1))
	if f.events.EventCount() != 0 {
		t.Errorf("expected no events, got %d", f.events.EventCount())
	}
}

func TestEngine_RedeemCollateralForDsc(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, user, ether(1), ether(1000))

	// Withdrawing first would break the health factor; burning first must not.
	if err := f.engine.RedeemCollateralForDsc(ctx, user, wethAddr, ether(1), ether(1000)); err != nil {
		t.Fatalf("RedeemCollateralForDsc: %v", err)
	}
	if !f.engine.Position(ctx, user).IsEmpty() {
		t.Errorf("expected empty position, got %+v", f.engine.Position(ctx, user))
	}
	assertEq(t, "user wallet", balance(t, f.weth, user), ether(1))
	assertEq(t, "dsc supply", f.dsc.TotalSupply(), new(uint256.Int))
}

func TestEngine_RedeemCollateralForDsc_PartialBreaks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, user, ether(1), ether(1000))

	err := f.engine.RedeemCollateralForDsc(ctx, user, wethAddr, ether(1), ether(500))
	if !errors.Is(err, ErrBreaksHealthFactor) {
		t.Fatalf("expected ErrBreaksHealthFactor, got %v", err)
	}
	p := f.engine.Position(ctx, user)
	assertEq(t, "debt", p.Debt, ether(1000))
	assertEq(t, "collateral", p.CollateralOf(wethAddr), ether(1))
	assertEq(t, "dsc wallet", balance(t, f.dsc, user), ether(1000))
}

// --- Test: multiple collateral types ---

func TestEngine_CollateralValueSumsAllAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, f.weth, user, ether(1))
	f.fund(t, f.wbtc, user, ether(3))

	if err := f.engine.DepositCollateral(ctx, user, wethAddr, ether(1)); err != nil {
		t.Fatalf("DepositCollateral weth: %v", err)
	}
	if err := f.engine.DepositCollateral(ctx, user, wbtcAddr, ether(3)); err != nil {
		t.Fatalf("DepositCollateral wbtc: %v", err)
	}

	value, err := f.engine.AccountCollateralValue(ctx, user)
	if err != nil {
		t.Fatalf("AccountCollateralValue: %v", err)
	}
	assertEq(t, "collateral value", value, ether(5000))
}

// --- Test: concurrency ---

func TestEngine_ConcurrentDepositsAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16
	accounts := make([]common.Address, workers)
	for i := range accounts {
		accounts[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		f.fund(t, f.weth, accounts[i], ether(2))
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for _, account := range accounts {
		wg.Add(1)
		go func(account common.Address) {
			defer wg.Done()
			for i := 0; i < 2; i++ {
				errs <- f.engine.DepositCollateral(ctx, account, wethAddr, ether(1))
			}
		}(account)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("DepositCollateral: %v", err)
		}
	}
	assertEq(t, "engine custody", balance(t, f.weth, engineAddr), ether(2*workers))
	for _, account := range accounts {
		assertEq(t, "deposited", f.engine.CollateralBalanceOf(ctx, account, wethAddr), ether(2))
	}
}
