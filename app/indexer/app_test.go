package indexer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/canopy-network/balancex/app/indexer/controller"
	"github.com/canopy-network/balancex/pkg/db/models/ledger"
	"github.com/canopy-network/balancex/pkg/indexer/balances"
	"github.com/canopy-network/balancex/pkg/indexer/pipeline"
	"github.com/canopy-network/balancex/pkg/redis"
	"github.com/canopy-network/balancex/pkg/substrate"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCloser struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCloser) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeConsumer fails with err right away, or waits for cancellation when err is nil.
type fakeConsumer struct {
	err error
}

func (c fakeConsumer) Run(ctx context.Context, _ redis.MessageHandler) error {
	if c.err != nil {
		return c.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type noopProcessor struct{}

func (noopProcessor) ProcessBlock(context.Context, substrate.Block) (balances.BlockResult, error) {
	return balances.BlockResult{}, nil
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func newTestApp(t *testing.T, consumerErr error, grace time.Duration) (*App, *fakeCloser, *fakeCloser) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	runner, err := pipeline.NewRunner(logger, pipeline.Config{Chain: "dot"}, fakeConsumer{err: consumerErr}, noopProcessor{}, nil)
	require.NoError(t, err)
	router, err := controller.NewController(logger, runner.Status(), nil).NewRouter()
	require.NoError(t, err)

	store, rdb := &fakeCloser{}, &fakeCloser{}
	return &App{
		Logger:       logger,
		Store:        store,
		RedisClient:  rdb,
		Runner:       runner,
		Cron:         cron.New(),
		Server:       &http.Server{Addr: freeAddr(t), Handler: router},
		FailureGrace: grace,
	}, store, rdb
}

func healthCode(addr string) int {
	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestStartServesStoppedHealthAfterRunnerFailure(t *testing.T) {
	failure := errors.New("block 7: persist record")
	app, store, rdb := newTestApp(t, failure, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startAsync(ctx, app)

	require.Eventually(t, func() bool {
		return healthCode(app.Server.Addr) == http.StatusServiceUnavailable
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Start returned during the grace period: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, failure)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	assert.True(t, store.isClosed())
	assert.True(t, rdb.isClosed())
	assert.Zero(t, healthCode(app.Server.Addr))
}

func TestStartReturnsRunnerErrorAfterGrace(t *testing.T) {
	failure := errors.New("block 7: persist record")
	app, _, _ := newTestApp(t, failure, 50*time.Millisecond)

	select {
	case err := <-startAsync(context.Background(), app):
		require.ErrorIs(t, err, failure)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after the grace period")
	}
}

func TestStartReturnsNilOnShutdown(t *testing.T) {
	app, store, _ := newTestApp(t, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(ctx, app)
	require.Eventually(t, func() bool {
		return healthCode(app.Server.Addr) == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	assert.True(t, store.isClosed())
}

func startAsync(ctx context.Context, app *App) <-chan error {
	done := make(chan error, 1)
	go func() { done <- app.Start(ctx) }()
	return done
}

type recordingStore struct {
	records []ledger.Record
}

func (s *recordingStore) Save(_ context.Context, r ledger.Record) error {
	s.records = append(s.records, r)
	return nil
}

func TestProcessorOptions(t *testing.T) {
	tests := []struct {
		format  string
		wantID  *regexp.Regexp
		wantErr bool
	}{
		{format: "", wantID: regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-`)},
		{format: "uuid", wantID: regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-`)},
		{format: "legacy", wantID: regexp.MustCompile(`^\d{13}-[0-9a-f]{4}$`)},
		{format: "ulid", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("format=%q", tt.format), func(t *testing.T) {
			t.Setenv("ID_FORMAT", tt.format)
			logger := zaptest.NewLogger(t)
			opts, err := processorOptions(logger)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			store := &recordingStore{}
			p, err := balances.NewProcessor(logger, store, opts...)
			require.NoError(t, err)
			ev, err := substrate.NewEvent(substrate.SectionBalances, "Deposit", "A", 10)
			require.NoError(t, err)
			_, err = p.ProcessBlock(context.Background(), substrate.Block{Number: 1, Timestamp: time.Now(), Events: []substrate.Event{ev}})
			require.NoError(t, err)

			require.Len(t, store.records, 1)
			assert.Regexp(t, tt.wantID, store.records[0].RecordID())
		})
	}
}
