package dsc_engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/archon-research/dsc/internal/domain/entity"
	"github.com/archon-research/dsc/internal/pkg/blockchain"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

// collateralLedger tracks deposits per user and token, and values them in USD
// through the oracle guard. Prices are read on every valuation.
type collateralLedger struct {
	state  *ledgerState
	assets []entity.CollateralAsset // registration order
	feeds  map[common.Address]common.Address
	tokens map[common.Address]outbound.ERC20
	oracle *blockchain.OracleGuard

	// staleFeeds holds the feeds whose last read was refused for staleness.
	staleMu    sync.Mutex
	staleFeeds map[common.Address]struct{}
}

func (l *collateralLedger) markStale(feed common.Address, stale bool) {
	l.staleMu.Lock()
	defer l.staleMu.Unlock()
	if !stale {
		delete(l.staleFeeds, feed)
		return
	}
	if l.staleFeeds == nil {
		l.staleFeeds = make(map[common.Address]struct{})
	}
	l.staleFeeds[feed] = struct{}{}
}

func (l *collateralLedger) anyStale() bool {
	l.staleMu.Lock()
	defer l.staleMu.Unlock()
	return len(l.staleFeeds) > 0
}

// staleFeedList returns the stale feeds in registration order.
func (l *collateralLedger) staleFeedList() []common.Address {
	l.staleMu.Lock()
	defer l.staleMu.Unlock()
	stale := make([]common.Address, 0, len(l.staleFeeds))
	for _, asset := range l.assets {
		if _, ok := l.staleFeeds[asset.PriceFeed]; ok {
			stale = append(stale, asset.PriceFeed)
		}
	}
	return stale
}

func (l *collateralLedger) isAllowed(token common.Address) error {
	if _, ok := l.feeds[token]; !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotAllowed, token.Hex())
	}
	return nil
}

func (l *collateralLedger) balanceOf(user, token common.Address) *uint256.Int {
	return l.state.collateralOf(user, token)
}

func (l *collateralLedger) credit(user, token common.Address, amount *uint256.Int) error {
	sum, overflow := new(uint256.Int).AddOverflow(l.state.collateralOf(user, token), amount)
	if overflow {
		return fmt.Errorf("%w: collateral of %s", ErrArithmeticOverflow, user.Hex())
	}
	l.state.setCollateral(user, token, sum)
	return nil
}

func (l *collateralLedger) debit(user, token common.Address, amount *uint256.Int) error {
	balance := l.state.collateralOf(user, token)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientCollateral, user.Hex(), balance.Dec(), token.Hex(), amount.Dec())
	}
	l.state.setCollateral(user, token, new(uint256.Int).Sub(balance, amount))
	return nil
}

// price returns the fresh feed answer for token, scaled to 18 decimals.
func (l *collateralLedger) price(ctx context.Context, token common.Address) (*uint256.Int, error) {
	feed, ok := l.feeds[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotAllowed, token.Hex())
	}
	answer, err := l.oracle.LatestPrice(ctx, feed)
	if err != nil {
		if errors.Is(err, blockchain.ErrStalePrice) {
			l.markStale(feed, true)
		}
		return nil, err
	}
	l.markStale(feed, false)

	scaled, overflow := new(uint256.Int).MulOverflow(answer, additionalFeedPrecision)
	if overflow {
		return nil, fmt.Errorf("%w: price of %s", ErrArithmeticOverflow, token.Hex())
	}
	return scaled, nil
}

// usdValue converts amount of token to USD with 18 decimals.
func (l *collateralLedger) usdValue(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	price, err := l.price(ctx, token)
	if err != nil {
		return nil, err
	}
	return mulDiv(price, amount, precision)
}

// tokenAmountFromUsd converts a USD amount with 18 decimals to an amount of token.
func (l *collateralLedger) tokenAmountFromUsd(ctx context.Context, token common.Address, usdAmount *uint256.Int) (*uint256.Int, error) {
	price, err := l.price(ctx, token)
	if err != nil {
		return nil, err
	}
	return mulDiv(usdAmount, precision, price)
}

// valueUsd sums the USD value of user's deposits. Every registered asset is
// priced, held or not, so any stale feed fails the whole valuation.
func (l *collateralLedger) valueUsd(ctx context.Context, user common.Address) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, asset := range l.assets {
		value, err := l.usdValue(ctx, asset.Token, l.state.collateralOf(user, asset.Token))
		if err != nil {
			return nil, err
		}
		if _, overflow := total.AddOverflow(total, value); overflow {
			return nil, fmt.Errorf("%w: collateral value of %s", ErrArithmeticOverflow, user.Hex())
		}
	}
	return total, nil
}

// mulDiv returns a*b/d, failing if a*b overflows. d must be non-zero.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return product.Div(product, d), nil
}
