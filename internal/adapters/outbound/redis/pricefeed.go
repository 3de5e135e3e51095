// Package redis provides a Redis implementation of the PriceFeedReader port.
//
// An off-chain pusher writes each feed's latest round to a hash at
// prefix:feed:<address> with the fields roundId, answer, startedAt, updatedAt
// and answeredInRound (decimal integers, timestamps in unix seconds). The engine
// reads the hash on every valuation; staleness is judged by the oracle guard,
// so keys carry no TTL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/archon-research/dsc/internal/domain/entity"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

// Compile-time check that PriceFeedStore implements outbound.PriceFeedReader
var _ outbound.PriceFeedReader = (*PriceFeedStore)(nil)

// ErrFeedNotFound is returned when no round has been pushed for a feed.
var ErrFeedNotFound = errors.New("price feed not found in redis")

const (
	fieldRoundID         = "roundId"
	fieldAnswer          = "answer"
	fieldStartedAt       = "startedAt"
	fieldUpdatedAt       = "updatedAt"
	fieldAnsweredInRound = "answeredInRound"
)

// Config holds Redis price feed configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to all feed keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for the Redis price feed store.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		KeyPrefix: "dsc",
	}
}

// PriceFeedStore reads and writes feed rounds in Redis.
type PriceFeedStore struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *slog.Logger
}

// NewPriceFeedStore creates a store with its own Redis client.
func NewPriceFeedStore(cfg Config, logger *slog.Logger) (*PriceFeedStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewPriceFeedStoreWithClient(client, cfg.KeyPrefix, logger)
}

// NewPriceFeedStoreWithClient creates a store over an existing client.
func NewPriceFeedStoreWithClient(client redis.UniversalClient, keyPrefix string, logger *slog.Logger) (*PriceFeedStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceFeedStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With("component", "redis-pricefeed"),
	}, nil
}

// Ping checks the Redis connection.
func (s *PriceFeedStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *PriceFeedStore) Close() error {
	return s.client.Close()
}

// key generates a feed key in the format prefix:feed:<checksummed address>
func (s *PriceFeedStore) key(feed common.Address) string {
	if s.keyPrefix == "" {
		return "feed:" + feed.Hex()
	}
	return s.keyPrefix + ":feed:" + feed.Hex()
}

// PushRound stores round as the latest round of feed.
func (s *PriceFeedStore) PushRound(ctx context.Context, feed common.Address, round *entity.RoundData) error {
	if round == nil {
		return fmt.Errorf("round cannot be nil")
	}
	err := s.client.HSet(ctx, s.key(feed),
		fieldRoundID, round.RoundID.String(),
		fieldAnswer, round.Answer.String(),
		fieldStartedAt, strconv.FormatInt(unixOrZero(round.StartedAt), 10),
		fieldUpdatedAt, strconv.FormatInt(unixOrZero(round.UpdatedAt), 10),
		fieldAnsweredInRound, round.AnsweredInRound.String(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to push round for feed %s: %w", feed.Hex(), err)
	}
	s.logger.Debug("pushed round", "feed", feed.Hex(), "roundId", round.RoundID, "answer", round.Answer)
	return nil
}

// LatestRoundData returns the latest pushed round of feed.
func (s *PriceFeedStore) LatestRoundData(ctx context.Context, feed common.Address) (*entity.RoundData, error) {
	fields, err := s.client.HGetAll(ctx, s.key(feed)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", feed.Hex(), err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, feed.Hex())
	}

	roundID, err := parseBig(fields, fieldRoundID)
	if err != nil {
		return nil, err
	}
	answer, err := parseBig(fields, fieldAnswer)
	if err != nil {
		return nil, err
	}
	answeredInRound, err := parseBig(fields, fieldAnsweredInRound)
	if err != nil {
		return nil, err
	}
	startedAt, err := parseUnix(fields, fieldStartedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseUnix(fields, fieldUpdatedAt)
	if err != nil {
		return nil, err
	}

	return entity.NewRoundData(roundID, answer, startedAt, updatedAt, answeredInRound)
}

func parseBig(fields map[string]string, name string) (*big.Int, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, fmt.Errorf("feed hash missing field %q", name)
	}
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("feed hash field %q: invalid integer %q", name, raw)
	}
	return v, nil
}

// parseUnix maps 0 to the zero time, matching an unanswered round.
func parseUnix(fields map[string]string, name string) (time.Time, error) {
	raw, ok := fields[name]
	if !ok {
		return time.Time{}, fmt.Errorf("feed hash missing field %q", name)
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("feed hash field %q: %w", name, err)
	}
	if secs == 0 {
		return time.Time{}, nil
	}
	return time.Unix(secs, 0), nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
