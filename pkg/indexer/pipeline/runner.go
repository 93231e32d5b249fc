// Package pipeline drives the balances processor from the block stream.
//
// Blocks are handled strictly one at a time in stream order. A block that fails is retried
// with backoff; if it still fails the runner stops rather than skip ahead, leaving the
// message unacknowledged so a restart resumes at the same block.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/balancex/pkg/indexer/balances"
	"github.com/canopy-network/balancex/pkg/indexer/types"
	"github.com/canopy-network/balancex/pkg/redis"
	"github.com/canopy-network/balancex/pkg/retry"
	"github.com/canopy-network/balancex/pkg/substrate"
	"go.uber.org/zap"
)

// ErrBadMessage marks stream entries that can never be turned into a block.
var ErrBadMessage = errors.New("pipeline: bad block message")

// BlockProcessor is implemented by *balances.Processor.
type BlockProcessor interface {
	ProcessBlock(ctx context.Context, block substrate.Block) (balances.BlockResult, error)
}

// Consumer delivers stream messages in order. Implemented by *redis.StreamConsumer.
type Consumer interface {
	Run(ctx context.Context, handler redis.MessageHandler) error
}

// Notifier publishes best-effort notifications. Implemented by *redis.Client.
type Notifier interface {
	Publish(ctx context.Context, channel string, message interface{})
	XAdd(ctx context.Context, stream string, values map[string]interface{}) string
}

type Config struct {
	Chain string
	Retry retry.Config
}

// DefaultRetryConfig retries a failing block for a little over two minutes.
func DefaultRetryConfig(maxRetries int) retry.Config {
	return retry.Config{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}
}

type Runner struct {
	logger    *zap.Logger
	cfg       Config
	consumer  Consumer
	processor BlockProcessor
	notifier  Notifier
	status    *Status
	now       func() time.Time
}

// NewRunner wires a runner. notifier may be nil to disable notifications.
func NewRunner(logger *zap.Logger, cfg Config, consumer Consumer, processor BlockProcessor, notifier Notifier) (*Runner, error) {
	if cfg.Chain == "" {
		return nil, errors.New("pipeline: chain is required")
	}
	if consumer == nil || processor == nil {
		return nil, errors.New("pipeline: consumer and processor are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		logger:    logger.Named("pipeline"),
		cfg:       cfg,
		consumer:  consumer,
		processor: processor,
		notifier:  notifier,
		status:    NewStatus(cfg.Chain),
		now:       time.Now,
	}, nil
}

func (r *Runner) Status() *Status {
	return r.status
}

// Run consumes blocks until ctx is cancelled or a block fails for good.
func (r *Runner) Run(ctx context.Context) error {
	defer r.status.markStopped()
	r.logger.Info("Block runner started", zap.String("chain", r.cfg.Chain))
	err := r.consumer.Run(ctx, r.HandleMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleMessage processes the block carried by msg.
func (r *Runner) HandleMessage(ctx context.Context, msg redis.Message) error {
	block, err := r.decodeMessage(msg)
	if err != nil {
		r.status.recordBadMessage(msg.ID, err)
		return err
	}

	if last, ok := r.status.LastBlock(); ok && block.Number <= last {
		r.logger.Warn("Block is not after the last processed block, its records will be stored again",
			zap.Uint64("block", block.Number),
			zap.Uint64("last", last))
	}

	var result balances.BlockResult
	err = retry.WithBackoff(ctx, r.cfg.Retry, r.logger, "process_block", func() error {
		res, err := r.processor.ProcessBlock(ctx, block)
		if errors.Is(err, balances.ErrDecode) {
			return retry.Permanent(err)
		}
		result = res
		return err
	})
	if err != nil {
		r.status.recordFailure(msg.ID, block.Number, err)
		r.logger.Error("Block processing failed",
			zap.Uint64("block", block.Number),
			zap.String("message", msg.ID),
			zap.Error(err))
		return err
	}

	now := r.now().UTC()
	r.status.recordBlock(result, now)
	r.logger.Info("Block processed",
		zap.Uint64("block", block.Number),
		zap.Int("events", result.Events),
		zap.Int("accounts", len(result.Accounts)))
	r.notify(ctx, block, result, now)
	return nil
}

func (r *Runner) decodeMessage(msg redis.Message) (substrate.Block, error) {
	data := msg.GetData()
	if data == nil {
		return substrate.Block{}, fmt.Errorf("%w: message %s has no data field", ErrBadMessage, msg.ID)
	}
	block, err := substrate.ParseBlock(data)
	if err != nil {
		return substrate.Block{}, fmt.Errorf("%w: message %s: %w", ErrBadMessage, msg.ID, err)
	}
	if number, ok := msg.GetNumber(); ok && number != block.Number {
		return substrate.Block{}, fmt.Errorf("%w: message %s announces block %d but carries block %d",
			ErrBadMessage, msg.ID, number, block.Number)
	}
	return block, nil
}

// notify hands the block's accounts4snapshot set to downstream snapshot workers.
func (r *Runner) notify(ctx context.Context, block substrate.Block, result balances.BlockResult, now time.Time) {
	if r.notifier == nil {
		return
	}

	records := make(map[string]int, len(result.Records))
	for e, n := range result.Records {
		records[e.String()] = n
	}
	accounts := result.Accounts
	if accounts == nil {
		accounts = []string{}
	}
	event := types.BlockProcessedEvent{
		Event:     types.EventBlockProcessed,
		Chain:     r.cfg.Chain,
		Number:    block.Number,
		Timestamp: block.Timestamp,
		Accounts:  accounts,
		Records:   records,
		Indexed:   now,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("Failed to encode block.processed event", zap.Uint64("block", block.Number), zap.Error(err))
		return
	}

	channel := types.GetBlockProcessedChannel(r.cfg.Chain)
	r.notifier.Publish(ctx, channel, payload)
	if len(result.Accounts) > 0 {
		r.notifier.XAdd(ctx, types.GetAccounts4SnapshotStream(r.cfg.Chain), map[string]interface{}{
			"number": block.Number,
			"data":   payload,
		})
	}

	r.logger.Debug("Published block.processed event",
		zap.Uint64("block", block.Number),
		zap.String("channel", channel))
}
