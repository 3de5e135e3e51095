// Package sns implements the EventSink interface using AWS SNS.
//
// Ledger events are serialized as JSON and published to one topic per event
// type, so auditors and liquidation bots can subscribe to what they need.
//
// Message Attributes:
//   - eventType: "CollateralDeposited", "CollateralRedeemed" or "PositionLiquidated"
//   - user: hex address of the position the event concerns
//
// Transient failures are retried with exponential backoff.
// For testing, use the memory.EventSink adapter instead.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/dsc/internal/pkg/retry"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// SNSPublisher defines the subset of SNS client methods used by EventSink.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicARNs holds the ARNs of the SNS topics to publish ledger events to.
type TopicARNs struct {
	Deposits     string
	Redemptions  string
	Liquidations string
}

// Config holds configuration for the SNS event sink.
type Config struct {
	Topics TopicARNs

	// Retry controls backoff for transient failures. Zero fields take defaults.
	Retry retry.Config

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		Retry:  retry.DefaultConfig(),
		Logger: slog.Default(),
	}
}

// EventSink publishes ledger events to AWS SNS.
type EventSink struct {
	client    SNSPublisher
	config    Config
	logger    *slog.Logger
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// NewEventSink creates a new SNS event sink.
func NewEventSink(client SNSPublisher, config Config) (*EventSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.Topics.Deposits == "" {
		return nil, errors.New("deposits topic ARN is required")
	}
	if config.Topics.Redemptions == "" {
		return nil, errors.New("redemptions topic ARN is required")
	}
	if config.Topics.Liquidations == "" {
		return nil, errors.New("liquidations topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.Retry == (retry.Config{}) {
		config.Retry = defaults.Retry
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &EventSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-eventsink"),
	}, nil
}

// Publish publishes a ledger event to the topic for its type.
func (s *EventSink) Publish(ctx context.Context, event outbound.LedgerEvent) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.New("event sink is closed")
	}
	s.mu.RUnlock()

	topicARN := s.topicARN(event.EventType())
	if topicARN == "" {
		return fmt.Errorf("no topic ARN configured for event type: %s", event.EventType())
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Message:  aws.String(string(messageBytes)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.EventType())),
			},
			"user": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.GetUser().Hex()),
			},
		},
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("publish failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.Retry.MaxRetries,
			"backoff", backoff,
			"error", err,
			"eventType", event.EventType(),
			"user", event.GetUser().Hex(),
		)
	}

	err = retry.Do(ctx, s.config.Retry, isRetryableError, onRetry, func() error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		s.logger.Error("publish failed",
			"error", err,
			"eventType", event.EventType(),
			"user", event.GetUser().Hex(),
		)
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

func (s *EventSink) topicARN(eventType outbound.EventType) string {
	switch eventType {
	case outbound.EventTypeCollateralDeposited:
		return s.config.Topics.Deposits
	case outbound.EventTypeCollateralRedeemed:
		return s.config.Topics.Redemptions
	case outbound.EventTypePositionLiquidated:
		return s.config.Topics.Liquidations
	default:
		return ""
	}
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Client errors will fail the same way again.
	var invalidParam *types.InvalidParameterException
	if errors.As(err, &invalidParam) {
		return false
	}
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return false
	}
	var authErr *types.AuthorizationErrorException
	if errors.As(err, &authErr) {
		return false
	}

	// Throttling, internal errors, KMS throttling and unknown network
	// failures are transient.
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *EventSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS event sink closed")
	})
	return nil
}
