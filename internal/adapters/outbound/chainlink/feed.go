// Package chainlink reads AggregatorV3 price feeds over JSON-RPC.
//
// latestRoundData is a single eth_call: an RPC failure fails the valuation that
// asked for it, and the reading is returned as-is since freshness is judged by
// the oracle guard. decimals(), checked once at start-up, is rate limited and
// retried on transient failures.
package chainlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/archon-research/dsc/internal/domain/entity"
	"github.com/archon-research/dsc/internal/pkg/blockchain/abis"
	"github.com/archon-research/dsc/internal/pkg/retry"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

// Compile-time check that FeedReader implements outbound.PriceFeedReader.
var _ outbound.PriceFeedReader = (*FeedReader)(nil)

// ContractCaller is the subset of ethclient.Client used by FeedReader.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config holds configuration for the feed reader.
type Config struct {
	// RateLimitPerSec caps decimals() requests per second across all feeds.
	RateLimitPerSec float64

	// Retry controls retries of failed decimals() calls.
	Retry retry.Config

	// Logger is the structured logger for the reader.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		RateLimitPerSec: 20,
		Retry: retry.Config{
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			BackoffFactor:  2.0,
			Jitter:         true,
		},
		Logger: slog.Default(),
	}
}

// FeedReader implements PriceFeedReader against on-chain aggregators.
type FeedReader struct {
	caller  ContractCaller
	abi     *abi.ABI
	limiter *rate.Limiter
	retry   retry.Config
	logger  *slog.Logger
}

// NewFeedReader creates a new feed reader.
func NewFeedReader(caller ContractCaller, config Config) (*FeedReader, error) {
	if caller == nil {
		return nil, errors.New("contract caller is required")
	}

	defaults := ConfigDefaults()
	if config.RateLimitPerSec <= 0 {
		config.RateLimitPerSec = defaults.RateLimitPerSec
	}
	if config.Retry.MaxRetries == 0 {
		config.Retry = defaults.Retry
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	aggregatorABI, err := abis.GetAggregatorV3ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregator ABI: %w", err)
	}

	return &FeedReader{
		caller:  caller,
		abi:     aggregatorABI,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimitPerSec), 1),
		retry:   config.Retry,
		logger:  config.Logger.With("component", "chainlink-feed"),
	}, nil
}

// LatestRoundData calls latestRoundData() on the aggregator at feed, once.
func (r *FeedReader) LatestRoundData(ctx context.Context, feed common.Address) (*entity.RoundData, error) {
	out, err := r.call(ctx, feed, "latestRoundData", r.callOnce)
	if err != nil {
		return nil, err
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("latestRoundData on %s: expected 5 outputs, got %d", feed.Hex(), len(out))
	}

	var fields [5]*big.Int
	for i, v := range out {
		b, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("latestRoundData on %s: output %d has type %T", feed.Hex(), i, v)
		}
		fields[i] = b
	}

	return entity.NewRoundData(fields[0], fields[1], unixTime(fields[2]), unixTime(fields[3]), fields[4])
}

// Decimals calls decimals() on the aggregator at feed.
func (r *FeedReader) Decimals(ctx context.Context, feed common.Address) (uint8, error) {
	out, err := r.call(ctx, feed, "decimals", r.callWithRetry)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("decimals on %s: expected 1 output, got %d", feed.Hex(), len(out))
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals on %s: output has type %T", feed.Hex(), out[0])
	}
	return d, nil
}

type callFunc func(ctx context.Context, feed common.Address, method string, msg ethereum.CallMsg) ([]byte, error)

func (r *FeedReader) call(ctx context.Context, feed common.Address, method string, do callFunc) ([]interface{}, error) {
	data, err := r.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	result, err := do(ctx, feed, method, ethereum.CallMsg{To: &feed, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, feed.Hex(), err)
	}

	out, err := r.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s from %s: %w", method, feed.Hex(), err)
	}
	return out, nil
}

func (r *FeedReader) callOnce(ctx context.Context, _ common.Address, _ string, msg ethereum.CallMsg) ([]byte, error) {
	return r.caller.CallContract(ctx, msg, nil)
}

func (r *FeedReader) callWithRetry(ctx context.Context, feed common.Address, method string, msg ethereum.CallMsg) ([]byte, error) {
	var result []byte
	err := retry.Do(ctx, r.retry, isRetryableError, func(attempt int, err error, backoff time.Duration) {
		r.logger.Warn("retrying feed call",
			"feed", feed.Hex(), "method", method, "attempt", attempt, "backoff", backoff, "error", err)
	}, func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		var callErr error
		result, callErr = r.caller.CallContract(ctx, msg, nil)
		return callErr
	})
	return result, err
}

// isRetryableError treats reverts and cancellation as permanent; RPC transport
// failures are retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var dataErr interface{ ErrorData() interface{} }
	if errors.As(err, &dataErr) {
		return false
	}
	return true
}

// unixTime maps 0 to the zero time so an unanswered round stays incomplete.
func unixTime(secs *big.Int) time.Time {
	if secs.Sign() == 0 || !secs.IsInt64() {
		return time.Time{}
	}
	return time.Unix(secs.Int64(), 0)
}
