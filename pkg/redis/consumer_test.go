package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type readResult struct {
	streams []redis.XStream
	err     error
}

// fakeStreams replays scripted reads and cancels the run once the script is exhausted.
type fakeStreams struct {
	cancel    context.CancelFunc
	reads     []readResult
	readIDs   []string
	acked     []string
	groupErr  error
	groupMade bool
}

func (f *fakeStreams) next(lastIDs []string) ([]redis.XStream, error) {
	f.readIDs = append(f.readIDs, lastIDs[0])
	if len(f.reads) == 0 {
		f.cancel()
		return nil, context.Canceled
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	return r.streams, r.err
}

func (f *fakeStreams) XRead(_ context.Context, _ []string, lastIDs []string, _ int64, _ time.Duration) ([]redis.XStream, error) {
	return f.next(lastIDs)
}

func (f *fakeStreams) XReadGroup(_ context.Context, _, _ string, _ []string, lastIDs []string, _ int64, _ time.Duration) ([]redis.XStream, error) {
	return f.next(lastIDs)
}

func (f *fakeStreams) XAck(_ context.Context, _, _ string, ids ...string) (int64, error) {
	f.acked = append(f.acked, ids...)
	return int64(len(ids)), nil
}

func (f *fakeStreams) XGroupCreateMkStream(context.Context, string, string, string) error {
	f.groupMade = true
	return f.groupErr
}

func batch(ids ...string) readResult {
	msgs := make([]redis.XMessage, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, redis.XMessage{ID: id, Values: map[string]interface{}{"number": id}})
	}
	return readResult{streams: []redis.XStream{{Stream: "blocks", Messages: msgs}}}
}

func newFakeConsumer(t *testing.T, fake *fakeStreams, group string) (*StreamConsumer, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	fake.cancel = cancel

	cfg := StreamConsumerConfig{
		Stream:        "blocks",
		Group:         group,
		Logger:        zaptest.NewLogger(t),
		RetryInterval: time.Millisecond,
	}
	if group != "" {
		cfg.Consumer = "c1"
	}
	sc, err := NewStreamConsumer(fake, cfg)
	require.NoError(t, err)
	return sc, ctx
}

func TestNewStreamConsumerValidation(t *testing.T) {
	_, err := NewStreamConsumer(nil, StreamConsumerConfig{Stream: "s"})
	assert.Error(t, err)
	_, err = NewStreamConsumer(&fakeStreams{}, StreamConsumerConfig{})
	assert.Error(t, err)
	_, err = NewStreamConsumer(&fakeStreams{}, StreamConsumerConfig{Stream: "s", Group: "g"})
	assert.Error(t, err)

	sc, err := NewStreamConsumer(&fakeStreams{}, StreamConsumerConfig{Stream: "s"})
	require.NoError(t, err)
	assert.Equal(t, "0", sc.config.LastID)
	assert.Equal(t, int64(100), sc.config.Count)
	assert.Equal(t, 5*time.Second, sc.config.Block)
}

func TestRunGroupDrainsPendingThenNew(t *testing.T) {
	fake := &fakeStreams{reads: []readResult{
		batch("1-0"),
		batch(),
		batch("2-0", "3-0"),
	}}
	sc, ctx := newFakeConsumer(t, fake, "indexer")

	var handled []string
	err := sc.Run(ctx, func(_ context.Context, msg Message) error {
		handled = append(handled, msg.ID)
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, fake.groupMade)
	assert.Equal(t, []string{"1-0", "2-0", "3-0"}, handled)
	assert.Equal(t, []string{"1-0", "2-0", "3-0"}, fake.acked)
	assert.Equal(t, []string{"0", "0", ">", ">"}, fake.readIDs)
}

func TestRunStopsAtFailedMessage(t *testing.T) {
	fake := &fakeStreams{reads: []readResult{
		batch(),
		batch("1-0", "2-0", "3-0"),
	}}
	sc, ctx := newFakeConsumer(t, fake, "indexer")
	boom := errors.New("boom")

	var handled []string
	err := sc.Run(ctx, func(_ context.Context, msg Message) error {
		handled = append(handled, msg.ID)
		if msg.ID == "2-0" {
			return boom
		}
		return nil
	})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "message 2-0")
	assert.Equal(t, []string{"1-0", "2-0"}, handled)
	assert.Equal(t, []string{"1-0"}, fake.acked, "failed and later messages stay unacknowledged")
}

func TestRunWithoutGroupAdvancesLastID(t *testing.T) {
	fake := &fakeStreams{reads: []readResult{
		batch("5-0", "6-0"),
		{err: redis.Nil},
		batch("7-0"),
	}}
	sc, ctx := newFakeConsumer(t, fake, "")

	var handled []string
	err := sc.Run(ctx, func(_ context.Context, msg Message) error {
		handled = append(handled, msg.ID)
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, fake.groupMade)
	assert.Empty(t, fake.acked)
	assert.Equal(t, []string{"5-0", "6-0", "7-0"}, handled)
	assert.Equal(t, []string{"0", "6-0", "6-0", "7-0"}, fake.readIDs)
}

func TestRunRetriesReadErrors(t *testing.T) {
	fake := &fakeStreams{reads: []readResult{
		{err: errors.New("connection reset")},
		batch("1-0"),
	}}
	sc, ctx := newFakeConsumer(t, fake, "")

	var handled []string
	err := sc.Run(ctx, func(_ context.Context, msg Message) error {
		handled = append(handled, msg.ID)
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"1-0"}, handled)
}

func TestRunGroupCreateFailure(t *testing.T) {
	fake := &fakeStreams{groupErr: errors.New("NOPERM")}
	sc, ctx := newFakeConsumer(t, fake, "indexer")

	err := sc.Run(ctx, func(context.Context, Message) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOPERM")
	assert.Empty(t, fake.readIDs)
}

func TestMessageHelpers(t *testing.T) {
	msg := Message{Values: map[string]interface{}{"data": `{"number":1}`, "number": "42"}}
	assert.Equal(t, []byte(`{"number":1}`), msg.GetData())
	n, ok := msg.GetNumber()
	assert.True(t, ok)
	assert.Equal(t, uint64(42), n)

	legacy := Message{Values: map[string]interface{}{"data": []byte("x"), "height": int64(7)}}
	assert.Equal(t, []byte("x"), legacy.GetData())
	n, ok = legacy.GetNumber()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), n)

	empty := Message{Values: map[string]interface{}{}}
	assert.Nil(t, empty.GetData())
	_, ok = empty.GetNumber()
	assert.False(t, ok)
}

func TestParseUint64(t *testing.T) {
	tests := []struct {
		in   interface{}
		want uint64
		ok   bool
	}{
		{in: "123", want: 123, ok: true},
		{in: " 9 ", want: 9, ok: true},
		{in: "12a", ok: false},
		{in: "-1", ok: false},
		{in: uint64(5), want: 5, ok: true},
		{in: 3, want: 3, ok: true},
		{in: float64(8), want: 8, ok: true},
		{in: 1.5, want: 1, ok: false},
		{in: true, ok: false},
	}
	for _, tt := range tests {
		got, ok := parseUint64(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "%v", tt.in)
		}
	}
}

func TestStreamArgsDoesNotAlias(t *testing.T) {
	streams := make([]string, 1, 4)
	streams[0] = "a"
	args := streamArgs(streams, []string{"0"})
	assert.Equal(t, []string{"a", "0"}, args)
	assert.Len(t, streams, 1)
	assert.Equal(t, "", streams[:2][1], "backing array of the caller is untouched")
}

func TestIsBusyGroup(t *testing.T) {
	assert.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroup(errors.New("NOGROUP")))
	assert.False(t, isBusyGroup(nil))
}
