// token.go provides in-memory ERC20 tokens.
//
// Token is a plain fungible token used for collateral assets in development
// and tests. Stablecoin wraps a Token and gates minting and burning on a
// single controller account.
//
// Both implement outbound.Revertible. Snapshot returns a context; writes made
// with that context (or one derived from it) are journaled and can be undone,
// so an aborted engine operation leaves token balances untouched. Writes made
// with any other context are never journaled and survive the revert. Undo
// entries apply inverse deltas rather than restoring old values.
// All operations are thread-safe.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/archon-research/dsc/internal/ports/outbound"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("erc20: transfer amount exceeds balance")

	// ErrInsufficientAllowance is returned when TransferFrom exceeds the spender's allowance.
	ErrInsufficientAllowance = errors.New("erc20: insufficient allowance")

	// ErrZeroAddress is returned when tokens would be sent to or from the zero address.
	ErrZeroAddress = errors.New("erc20: zero address")
)

// Compile-time checks
var (
	_ outbound.ERC20      = (*Token)(nil)
	_ outbound.Revertible = (*Token)(nil)
)

// TransferHook is invoked after every successful transfer, outside the token's lock.
type TransferHook func(ctx context.Context, from, to common.Address, amount *uint256.Int)

// Token is an in-memory ERC20 token.
type Token struct {
	mu          sync.Mutex
	symbol      string
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
	totalSupply *uint256.Int

	journals     map[int]*journal
	lastSnapshot int

	// test knobs
	failTransfers bool
	onTransfer    TransferHook
}

// NewToken creates an empty token.
func NewToken(symbol string) *Token {
	return &Token{
		symbol:      symbol,
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
		totalSupply: new(uint256.Int),
		journals:    make(map[int]*journal),
	}
}

// Symbol returns the token symbol.
func (t *Token) Symbol() string {
	return t.symbol
}

// MintTo credits amount new tokens to the account. It is unrestricted and meant
// for seeding collateral balances.
func (t *Token) MintTo(to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mint(nil, to, amount)
}

// Approve sets spender's allowance over owner's tokens.
// An allowance of MaxUint256 is never decremented.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.approve(owner, spender, new(uint256.Int).Set(amount))
	return nil
}

// Allowance returns spender's remaining allowance over owner's tokens.
func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.allowance(owner, spender))
}

// BalanceOf returns the balance of owner.
func (t *Token) BalanceOf(_ context.Context, owner common.Address) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.balance(owner)), nil
}

// TotalSupply returns the amount of tokens in existence.
func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.totalSupply)
}

// Transfer moves amount from from to to.
func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	t.mu.Lock()
	if t.failTransfers {
		t.mu.Unlock()
		return false, nil
	}
	if err := t.move(t.journalFor(ctx), from, to, amount); err != nil {
		t.mu.Unlock()
		return false, err
	}
	hook := t.onTransfer
	t.mu.Unlock()

	if hook != nil {
		hook(ctx, from, to, amount)
	}
	return true, nil
}

// TransferFrom moves amount from from to to, spending spender's allowance.
func (t *Token) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error) {
	t.mu.Lock()
	if t.failTransfers {
		t.mu.Unlock()
		return false, nil
	}
	allowance := t.allowance(from, spender)
	if allowance.Lt(amount) {
		t.mu.Unlock()
		return false, fmt.Errorf("%w: spender %s has %s, needs %s",
			ErrInsufficientAllowance, spender.Hex(), allowance.Dec(), amount.Dec())
	}
	j := t.journalFor(ctx)
	if err := t.move(j, from, to, amount); err != nil {
		t.mu.Unlock()
		return false, err
	}
	if !allowance.Eq(maxUint256) {
		t.spendAllowance(j, from, spender, amount)
	}
	hook := t.onTransfer
	t.mu.Unlock()

	if hook != nil {
		hook(ctx, from, to, amount)
	}
	return true, nil
}

// SetTransferFailure makes Transfer and TransferFrom report failure (false, nil)
// without moving tokens, like a token that returns false instead of reverting.
func (t *Token) SetTransferFailure(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failTransfers = fail
}

// OnTransfer sets a hook called after each successful transfer.
func (t *Token) OnTransfer(hook TransferHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTransfer = hook
}

type journalKey struct{ token *Token }

// journal is the undo log of one open snapshot.
type journal struct {
	parent *journal
	undo   []func()
}

func (j *journal) record(undo func()) {
	if j != nil {
		j.undo = append(j.undo, undo)
	}
}

// Snapshot opens a journal and returns a context scoping writes to it.
func (t *Token) Snapshot(ctx context.Context) (context.Context, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSnapshot++
	id := t.lastSnapshot
	t.journals[id] = &journal{parent: t.journalFor(ctx)}
	return context.WithValue(ctx, journalKey{t}, id), id
}

// RevertToSnapshot undoes every journaled write made under the snapshot.
func (t *Token) RevertToSnapshot(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.journals[id]
	if !ok {
		return
	}
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	delete(t.journals, id)
}

// DiscardSnapshot keeps the writes made under the snapshot. They stay
// revertible through an enclosing snapshot.
func (t *Token) DiscardSnapshot(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.journals[id]
	if !ok {
		return
	}
	if j.parent != nil {
		j.parent.undo = append(j.parent.undo, j.undo...)
	}
	delete(t.journals, id)
}

// OpenSnapshots returns the number of snapshots not yet reverted or discarded.
func (t *Token) OpenSnapshots() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.journals)
}

// --- unlocked helpers, callers hold t.mu ---

var maxUint256 = new(uint256.Int).SetAllOne()

func (t *Token) balance(owner common.Address) *uint256.Int {
	if b, ok := t.balances[owner]; ok {
		return b
	}
	return new(uint256.Int)
}

func (t *Token) allowance(owner, spender common.Address) *uint256.Int {
	if byOwner, ok := t.allowances[owner]; ok {
		if a, ok := byOwner[spender]; ok {
			return a
		}
	}
	return new(uint256.Int)
}

// journalFor returns the open journal ctx writes belong to, or nil.
func (t *Token) journalFor(ctx context.Context) *journal {
	if ctx == nil {
		return nil
	}
	id, ok := ctx.Value(journalKey{t}).(int)
	if !ok {
		return nil
	}
	return t.journals[id]
}

func saturatingSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

func saturatingAdd(a, b *uint256.Int) *uint256.Int {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return new(uint256.Int).Set(maxUint256)
	}
	return sum
}

func (t *Token) credit(j *journal, owner common.Address, amount *uint256.Int) {
	t.balances[owner] = new(uint256.Int).Add(t.balance(owner), amount)
	delta := new(uint256.Int).Set(amount)
	j.record(func() { t.balances[owner] = saturatingSub(t.balance(owner), delta) })
}

// debit assumes the balance covers amount.
func (t *Token) debit(j *journal, owner common.Address, amount *uint256.Int) {
	t.balances[owner] = new(uint256.Int).Sub(t.balance(owner), amount)
	delta := new(uint256.Int).Set(amount)
	j.record(func() { t.balances[owner] = saturatingAdd(t.balance(owner), delta) })
}

func (t *Token) approve(owner, spender common.Address, amount *uint256.Int) {
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = byOwner
	}
	byOwner[spender] = amount
}

// spendAllowance assumes the allowance covers amount.
func (t *Token) spendAllowance(j *journal, owner, spender common.Address, amount *uint256.Int) {
	t.approve(owner, spender, new(uint256.Int).Sub(t.allowance(owner, spender), amount))
	delta := new(uint256.Int).Set(amount)
	j.record(func() { t.approve(owner, spender, saturatingAdd(t.allowance(owner, spender), delta)) })
}

func (t *Token) move(j *journal, from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBalance := t.balance(from)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s",
			ErrInsufficientBalance, from.Hex(), fromBalance.Dec(), t.symbol, amount.Dec())
	}
	t.debit(j, from, amount)
	t.credit(j, to, amount)
	return nil
}

func (t *Token) mint(j *journal, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return fmt.Errorf("erc20: total supply of %s overflows", t.symbol)
	}
	t.totalSupply = supply
	delta := new(uint256.Int).Set(amount)
	j.record(func() { t.totalSupply = saturatingSub(t.totalSupply, delta) })
	t.credit(j, to, amount)
	return nil
}

func (t *Token) burn(j *journal, from common.Address, amount *uint256.Int) error {
	if t.balance(from).Lt(amount) {
		return ErrInsufficientBalance
	}
	t.debit(j, from, amount)
	t.totalSupply = new(uint256.Int).Sub(t.totalSupply, amount)
	delta := new(uint256.Int).Set(amount)
	j.record(func() { t.totalSupply = saturatingAdd(t.totalSupply, delta) })
	return nil
}
