package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/canopy-network/balancex/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStreamMaxLen caps the accounts4snapshot stream when REDIS_STREAM_MAXLEN is unset.
const DefaultStreamMaxLen = 10000

// Client is the indexer's single Redis connection. It reads the upstream block stream
// through a consumer group and hands each processed block to snapshot workers, as a
// block.processed Pub/Sub message and as an accounts4snapshot stream entry.
type Client struct {
	client       *redis.Client
	logger       *zap.Logger
	streamMaxLen int64 // 0 leaves outgoing streams uncapped
}

// NewClient connects using REDIS_HOST, REDIS_PORT, REDIS_PASSWORD and REDIS_DB, and fails
// unless the server answers a ping. REDIS_STREAM_MAXLEN caps the streams this indexer
// writes; the block stream it reads is owned upstream and never trimmed here.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	addr := fmt.Sprintf("%s:%s", utils.Env("REDIS_HOST", "localhost"), utils.Env("REDIS_PORT", "6379"))
	db := int(utils.EnvInt64("REDIS_DB", 0))
	streamMaxLen := utils.EnvInt64("REDIS_STREAM_MAXLEN", DefaultStreamMaxLen)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: utils.Env("REDIS_PASSWORD", ""),
		DB:       db,

		// One blocking XREADGROUP plus the occasional publish and health ping.
		PoolSize:     4,
		MinIdleConns: 1,

		// Blocking reads get their deadline from Block, not from ReadTimeout.
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", addr),
		zap.Int("db", db),
		zap.Int64("streamMaxLen", streamMaxLen))

	return &Client{client: rdb, logger: logger, streamMaxLen: streamMaxLen}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Health pings the server for the /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Publish announces a processed block on its Pub/Sub channel. Subscribers that are not
// listening miss it; a failure is logged and never holds back the next block.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) {
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Warn("Failed to publish block notification",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// XAdd appends a block's accounts to a snapshot stream, trimmed to about streamMaxLen
// entries. It returns the entry ID, or "" once the failure has been logged.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]interface{}) string {
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}

	id, err := c.client.XAdd(ctx, args).Result()
	if err != nil {
		c.logger.Warn("Failed to append snapshot accounts",
			zap.String("stream", stream),
			zap.Error(err))
		return ""
	}
	return id
}

// XRead reads block messages after lastIDs when no consumer group is configured.
func (c *Client) XRead(ctx context.Context, streams []string, lastIDs []string, count int64, block time.Duration) ([]redis.XStream, error) {
	return c.client.XRead(ctx, &redis.XReadArgs{
		Streams: streamArgs(streams, lastIDs),
		Count:   count,
		Block:   block,
	}).Result()
}

// XReadGroup reads block messages for consumer. lastID "0" replays this consumer's
// unacknowledged blocks, ">" delivers blocks not yet handed to the group.
func (c *Client) XReadGroup(ctx context.Context, group, consumer string, streams []string, lastIDs []string, count int64, block time.Duration) ([]redis.XStream, error) {
	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  streamArgs(streams, lastIDs),
		Count:    count,
		Block:    block,
	}).Result()
}

// streamArgs lays out STREAMS s1 s2 id1 id2 without writing into the caller's slices.
func streamArgs(streams, lastIDs []string) []string {
	out := make([]string, 0, len(streams)+len(lastIDs))
	out = append(out, streams...)
	return append(out, lastIDs...)
}

// XAck marks blocks as persisted so they are not replayed after a restart.
func (c *Client) XAck(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	return c.client.XAck(ctx, stream, group, ids...).Result()
}

// XGroupCreateMkStream registers the indexer's group on the block stream, creating the
// stream when the upstream has not written to it yet. An existing group is kept as is,
// with its position.
func (c *Client) XGroupCreateMkStream(ctx context.Context, stream, group, start string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if isBusyGroup(err) {
		return nil
	}
	return err
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
