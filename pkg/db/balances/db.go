// Package balances persists ledger-change records into per-entity ClickHouse tables.
package balances

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/alitto/pond/v2"
	"github.com/canopy-network/balancex/pkg/db/clickhouse"
	"github.com/canopy-network/balancex/pkg/db/entities"
	"github.com/canopy-network/balancex/pkg/db/models/ledger"
	"go.uber.org/zap"
)

// Conn is the part of clickhouse.Client the store needs.
type Conn interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	PrepareBatch(ctx context.Context, query string) (driver.Batch, error)
	Ping(ctx context.Context) error
	Close() error
	Table(table string) string
	Engine(engine string) string
	OnCluster() string
}

// DB writes one row per record. Tables use plain MergeTree: nothing is deduplicated,
// so reprocessing a block stores its records again under new ids.
type DB struct {
	Logger *zap.Logger
	Conn   Conn
}

// DatabaseName returns the default database that holds the ledger of chain.
func DatabaseName(chain string) string {
	return clickhouse.SanitizeName("balances_" + chain)
}

// New connects to ClickHouse and creates dbName and its tables.
func New(ctx context.Context, logger *zap.Logger, dbName string, pool clickhouse.PoolConfig) (*DB, error) {
	client, err := clickhouse.New(ctx, logger.With(zap.String("db", dbName)), dbName, pool)
	if err != nil {
		return nil, err
	}

	db := &DB{Logger: logger, Conn: &client}
	if err := db.InitializeDB(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return db, nil
}

// InitializeDB creates every entity table that does not exist yet, in parallel.
func (db *DB) InitializeDB(ctx context.Context) error {
	start := time.Now()
	all := entities.All()

	pool := pond.NewPool(len(all))
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)

	for _, e := range all {
		group.SubmitErr(func() error {
			query, err := db.createTableQuery(e)
			if err != nil {
				return err
			}
			if err := db.Conn.Exec(group.Context(), query); err != nil {
				return fmt.Errorf("create %s: %w", e.TableName(), err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	db.Logger.Info("Ledger tables ready",
		zap.Int("tables", len(all)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (db *DB) createTableQuery(e entities.Entity) (string, error) {
	cols, err := ledger.Columns(e)
	if err != nil {
		return "", err
	}
	for _, c := range cols {
		if err := c.Validate(); err != nil {
			return "", fmt.Errorf("%s: %w", e, err)
		}
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s %s (
			%s
		) ENGINE = %s
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY %s`,
		db.Conn.Table(e.TableName()),
		db.Conn.OnCluster(),
		ledger.ColumnsToSchemaSQL(cols),
		db.Conn.Engine(clickhouse.MergeTree),
		ledger.OrderBy(e),
	), nil
}

// Save inserts record into its entity table and returns once the insert is acknowledged.
func (db *DB) Save(ctx context.Context, record ledger.Record) error {
	cols, err := ledger.Columns(record.Entity())
	if err != nil {
		return err
	}
	values := record.Values()
	if len(values) != len(cols) {
		return fmt.Errorf("%s record has %d values for %d columns", record.Entity(), len(values), len(cols))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES",
		db.Conn.Table(record.Entity().TableName()), ledger.ColumnsToNameList(cols))
	batch, err := db.Conn.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	if err := batch.Append(values...); err != nil {
		return err
	}
	return batch.Send()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Conn.Ping(ctx)
}

func (db *DB) Close() error {
	return db.Conn.Close()
}
