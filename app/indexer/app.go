package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/canopy-network/balancex/app/indexer/controller"
	balancesdb "github.com/canopy-network/balancex/pkg/db/balances"
	"github.com/canopy-network/balancex/pkg/db/clickhouse"
	"github.com/canopy-network/balancex/pkg/indexer/balances"
	"github.com/canopy-network/balancex/pkg/indexer/pipeline"
	"github.com/canopy-network/balancex/pkg/logging"
	"github.com/canopy-network/balancex/pkg/redis"
	"github.com/canopy-network/balancex/pkg/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// BlockRunner is implemented by *pipeline.Runner.
type BlockRunner interface {
	Run(ctx context.Context) error
}

type App struct {
	Logger      *zap.Logger
	Store       io.Closer
	RedisClient io.Closer
	Runner      BlockRunner
	// Cron runs the stall watchdog every CronSpec tick.
	Cron     *cron.Cron
	CronSpec string
	// Server serves /health and /status.
	Server *http.Server
	// FailureGrace keeps the server up after the runner stops on a failed block, so probes
	// can read the 503 and the failed block from /status before the process exits.
	FailureGrace time.Duration
}

// Start runs the block runner and the HTTP server, and blocks until the context is
// canceled or the runner stops on a failed block. The runner's error is returned once
// FailureGrace has passed or the context is canceled, whichever comes first.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	a.Cron.Start()
	a.Logger.Info("Cron started", zap.String("cronSpec", a.CronSpec))

	runErr := make(chan error, 1)
	go func() { runErr <- a.Runner.Run(ctx) }()

	var err error
	select {
	case <-ctx.Done():
		err = <-runErr
	case err = <-runErr:
		if err != nil {
			a.Logger.Error("Block runner stopped, restart to resume at the failed block",
				zap.Duration("grace", a.FailureGrace),
				zap.Error(err))
			grace := time.NewTimer(a.FailureGrace)
			select {
			case <-ctx.Done():
			case <-grace.C:
			}
			grace.Stop()
		}
	}
	a.Stop()
	return err
}

// Stop shuts down the HTTP server and closes the backing connections.
func (a *App) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}

	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	if err := a.RedisClient.Close(); err != nil {
		a.Logger.Error("Failed to close redis connection", zap.Error(err))
	}
	a.Logger.Info("さようなら!")
	_ = a.Logger.Sync()
}

// Initialize initializes the application.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New(logging.ConfigFromEnv())
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	chain := utils.Env("CHAIN_NAME", "")
	if chain == "" {
		logger.Fatal("CHAIN_NAME environment variable is required")
	}
	logger = logger.With(zap.String("chain", chain))

	dbName := utils.Env("CLICKHOUSE_DATABASE", balancesdb.DatabaseName(chain))
	store, err := balancesdb.New(ctx, logger, dbName, clickhouse.PoolConfigFromEnv("indexer"))
	if err != nil {
		logger.Fatal("Unable to initialize ledger database", zap.Error(err))
	}

	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to connect to redis", zap.Error(err))
	}

	opts, err := processorOptions(logger)
	if err != nil {
		logger.Fatal("Invalid processor configuration", zap.Error(err))
	}
	processor, err := balances.NewProcessor(logger, store, opts...)
	if err != nil {
		logger.Fatal("Unable to build balances processor", zap.Error(err))
	}

	consumer, err := redis.NewStreamConsumer(redisClient, redis.StreamConsumerConfig{
		Stream:   utils.Env("BLOCKS_STREAM", "substrate:"+chain+":blocks"),
		Group:    utils.Env("BLOCKS_GROUP", "balances-indexer"),
		Consumer: utils.Env("BLOCKS_CONSUMER", "indexer-0"),
		Logger:   logger.Named("blocks"),
	})
	if err != nil {
		logger.Fatal("Unable to create block stream consumer", zap.Error(err))
	}

	runner, err := pipeline.NewRunner(logger, pipeline.Config{
		Chain: chain,
		Retry: pipeline.DefaultRetryConfig(utils.EnvInt("BLOCK_MAX_RETRIES", 8)),
	}, consumer, processor, redisClient)
	if err != nil {
		logger.Fatal("Unable to create block runner", zap.Error(err))
	}

	ctler := controller.NewController(logger.Named("http"), runner.Status(), map[string]controller.Pinger{
		"clickhouse": store,
		"redis":      controller.PingerFunc(redisClient.Health),
	})
	router, err := ctler.NewRouter()
	if err != nil {
		logger.Fatal("Unable to build router", zap.Error(err))
	}

	cronSpec := utils.Env("WATCHDOG_CRON", "*/30 * * * * *")
	scheduler := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	watchdog := pipeline.NewWatchdog(logger, runner.Status(), utils.EnvDuration("STALL_AFTER", 5*time.Minute))
	if _, err := watchdog.Schedule(scheduler, cronSpec); err != nil {
		logger.Fatal("Invalid WATCHDOG_CRON", zap.String("cronSpec", cronSpec), zap.Error(err))
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3002")
	logger.Info("Starting server", zap.String("addr", addr))

	return &App{
		Logger:       logger,
		Store:        store,
		RedisClient:  redisClient,
		Runner:       runner,
		Cron:         scheduler,
		CronSpec:     cronSpec,
		Server:       &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second},
		FailureGrace: utils.EnvDuration("FAILURE_GRACE", 2*time.Minute),
	}
}

// processorOptions selects the record id format from ID_FORMAT: "uuid" (default) or
// "legacy" for ledgers that already hold <ms>-<hex> ids.
func processorOptions(logger *zap.Logger) ([]balances.Option, error) {
	switch format := utils.Env("ID_FORMAT", "uuid"); format {
	case "uuid":
		return nil, nil
	case "legacy":
		logger.Warn("Using legacy record ids, collisions are possible within a millisecond")
		return []balances.Option{balances.WithIDGenerator(balances.LegacyIDGenerator{})}, nil
	default:
		return nil, fmt.Errorf("unknown ID_FORMAT %q, want uuid or legacy", format)
	}
}
