package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamClient is the stream API a StreamConsumer reads through. *Client implements it.
type StreamClient interface {
	XRead(ctx context.Context, streams []string, lastIDs []string, count int64, block time.Duration) ([]redis.XStream, error)
	XReadGroup(ctx context.Context, group, consumer string, streams []string, lastIDs []string, count int64, block time.Duration) ([]redis.XStream, error)
	XAck(ctx context.Context, stream, group string, ids ...string) (int64, error)
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) error
}

// StreamConsumerConfig configures a StreamConsumer.
type StreamConsumerConfig struct {
	// Stream is the Redis stream name to consume from (required).
	Stream string

	// Group is the consumer group name. Optional.
	Group string

	// Consumer is the consumer name within the group. Required if Group is set.
	Consumer string

	// LastID is the starting position when no group is used:
	//   - "0" = read from beginning
	//   - "$" = read only new messages
	//   - "<id>" = read after specific ID (e.g., "1234567890123-0")
	// Default: "0"
	LastID string

	// Count is the max number of entries to read per batch. Default: 100.
	Count int64

	// Block is how long to wait for new entries. Default: 5 seconds.
	Block time.Duration

	// RetryInterval is how long to wait before retrying after a read error.
	// Default: 1 second.
	RetryInterval time.Duration

	// MaxRetryInterval is the maximum retry interval (with exponential backoff).
	// Default: 30 seconds.
	MaxRetryInterval time.Duration

	// Logger for logging. If nil, uses a no-op logger.
	Logger *zap.Logger
}

// MessageHandler processes a stream message. A nil return acknowledges it.
// A non-nil return stops the consumer with the message still unacknowledged.
type MessageHandler func(ctx context.Context, msg Message) error

// Message represents a single stream entry with parsed fields.
type Message struct {
	// ID is the Redis stream entry ID (e.g., "1234567890123-0").
	ID string

	// Stream is the stream name this message came from.
	Stream string

	// Values contains the entry fields as key-value pairs.
	Values map[string]interface{}
}

// StreamConsumer delivers stream messages to a handler strictly in stream order.
// A message is acknowledged only after the handler succeeds, and a failing message
// stops the consumer so later messages are never handled ahead of it.
type StreamConsumer struct {
	client StreamClient
	config StreamConsumerConfig
	logger *zap.Logger
}

// NewStreamConsumer creates a new stream consumer.
func NewStreamConsumer(client StreamClient, config StreamConsumerConfig) (*StreamConsumer, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Stream == "" {
		return nil, errors.New("stream name is required")
	}
	if config.Group != "" && config.Consumer == "" {
		return nil, errors.New("consumer name is required when using consumer groups")
	}

	if config.LastID == "" {
		config.LastID = "0"
	}
	if config.Count == 0 {
		config.Count = 100
	}
	if config.Block == 0 {
		config.Block = 5 * time.Second
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = 1 * time.Second
	}
	if config.MaxRetryInterval == 0 {
		config.MaxRetryInterval = 30 * time.Second
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StreamConsumer{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Run consumes messages until ctx is cancelled or the handler fails. Read errors are
// retried with exponential backoff. With a consumer group, messages delivered to this
// consumer but never acknowledged (e.g. before a crash) are handled first.
func (sc *StreamConsumer) Run(ctx context.Context, handler MessageHandler) error {
	grouped := sc.config.Group != ""
	if grouped {
		if err := sc.client.XGroupCreateMkStream(ctx, sc.config.Stream, sc.config.Group, "0"); err != nil {
			return fmt.Errorf("create consumer group %s: %w", sc.config.Group, err)
		}
		sc.logger.Info("Consumer group ready",
			zap.String("stream", sc.config.Stream),
			zap.String("group", sc.config.Group),
			zap.String("consumer", sc.config.Consumer))
	}

	lastID := sc.config.LastID
	pending := grouped
	retryInterval := sc.config.RetryInterval

	for {
		select {
		case <-ctx.Done():
			sc.logger.Info("Stream consumer shutting down",
				zap.String("stream", sc.config.Stream),
				zap.String("group", sc.config.Group))
			return ctx.Err()
		default:
		}

		readID := lastID
		if grouped {
			readID = ">"
			if pending {
				readID = "0"
			}
		}

		messages, err := sc.readMessages(ctx, readID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, redis.Nil) {
				// block timeout without new entries
				pending = false
				continue
			}

			sc.logger.Warn("Error reading from stream, will retry",
				zap.String("stream", sc.config.Stream),
				zap.Error(err),
				zap.Duration("retryIn", retryInterval))

			select {
			case <-time.After(retryInterval):
				retryInterval = min(retryInterval*2, sc.config.MaxRetryInterval)
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		retryInterval = sc.config.RetryInterval

		if pending && len(messages) == 0 {
			pending = false
			continue
		}

		for _, msg := range messages {
			if err := sc.processMessage(ctx, handler, msg); err != nil {
				sc.logger.Error("Stopping stream consumer at failed message",
					zap.String("stream", sc.config.Stream),
					zap.String("id", msg.ID),
					zap.Error(err))
				return fmt.Errorf("stream %s message %s: %w", sc.config.Stream, msg.ID, err)
			}
			if !grouped {
				lastID = msg.ID
			}
		}
	}
}

// readMessages reads a batch of messages from the stream.
func (sc *StreamConsumer) readMessages(ctx context.Context, readID string) ([]Message, error) {
	var streams []redis.XStream
	var err error

	if sc.config.Group != "" {
		streams, err = sc.client.XReadGroup(ctx,
			sc.config.Group,
			sc.config.Consumer,
			[]string{sc.config.Stream},
			[]string{readID},
			sc.config.Count,
			sc.config.Block,
		)
	} else {
		streams, err = sc.client.XRead(ctx,
			[]string{sc.config.Stream},
			[]string{readID},
			sc.config.Count,
			sc.config.Block,
		)
	}
	if err != nil {
		return nil, err
	}

	var messages []Message
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			messages = append(messages, Message{
				ID:     xmsg.ID,
				Stream: stream.Stream,
				Values: xmsg.Values,
			})
		}
	}
	return messages, nil
}

// processMessage runs the handler and acknowledges the message on success.
func (sc *StreamConsumer) processMessage(ctx context.Context, handler MessageHandler, msg Message) error {
	if err := handler(ctx, msg); err != nil {
		return err
	}

	if sc.config.Group != "" {
		if _, ackErr := sc.client.XAck(ctx, sc.config.Stream, sc.config.Group, msg.ID); ackErr != nil {
			sc.logger.Warn("Failed to acknowledge message",
				zap.String("stream", sc.config.Stream),
				zap.String("id", msg.ID),
				zap.Error(ackErr))
		}
	}
	return nil
}

// GetData is a helper to extract the "data" field from a message.
// Returns nil if not found.
func (m *Message) GetData() []byte {
	switch data := m.Values["data"].(type) {
	case string:
		return []byte(data)
	case []byte:
		return data
	}
	return nil
}

// GetNumber extracts the block number from the "number" field, falling back to "height".
// The second result is false when neither field holds an unsigned integer.
func (m *Message) GetNumber() (uint64, bool) {
	val, ok := m.Values["number"]
	if !ok {
		val, ok = m.Values["height"]
	}
	if !ok {
		return 0, false
	}
	return parseUint64(val)
}

// parseUint64 converts the value types go-redis and callers produce to uint64.
func parseUint64(v interface{}) (uint64, bool) {
	switch val := v.(type) {
	case uint64:
		return val, true
	case int64:
		return uint64(val), val >= 0
	case int:
		return uint64(val), val >= 0
	case float64:
		return uint64(val), val >= 0 && val == float64(uint64(val))
	case string:
		// Redis returns numbers as strings
		n, err := strconv.ParseUint(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	}
	return 0, false
}
