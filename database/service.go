package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var ErrNoRows = pgx.ErrNoRows

//go:generate go run github.com/SeaRoll/interfacer/cmd -struct=dbo -name=Database -file=interface.go

const (
	healthCheckInterval = 5 * time.Second
	connectTimeout      = 15 * time.Second
	migrationsDir       = "migrations"
)

type dbo struct {
	connectionUrl string
	migrations    fs.FS
	pool          atomic.Pointer[pgxpool.Pool]
	isTeardown    atomic.Bool
}

// NewDatabase creates a new database connection pool and runs migrations.
// The migrations filesystem must contain a `migrations` directory with goose sql files.
// It returns a Database interface or an error if the connection or migration fails.
func NewDatabase(
	ctx context.Context,
	connectionUrl string,
	migrations fs.FS,
) (Database, error) {
	d := &dbo{
		connectionUrl: connectionUrl,
		migrations:    migrations,
	}

	err := d.connectAndMigratePool(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect and migrate pool: %w", err)
	}

	d.runReconnect()

	return d, nil
}

// runReconnect starts a goroutine that periodically checks the health of the database connection pool.
func (d *dbo) runReconnect() {
	go func() {
		for {
			if d.isTeardown.Load() {
				slog.Info("db is being torn down, skipping health check")
				return
			}

			d.healthCheckPool()
			time.Sleep(healthCheckInterval)
		}
	}()
}

// healthCheckPool pings the pool and replaces it when the database stopped answering.
func (d *dbo) healthCheckPool() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := d.Ping(ctx)
	if err == nil || d.isTeardown.Load() {
		return
	}

	slog.Error("db is not healthy", "error", err)

	err = d.connectAndMigratePool(ctx)
	if err != nil {
		slog.Error("failed to reconnect to db", "error", err)
	} else {
		slog.Info("reconnected to db")
	}
}

// connectAndMigratePool connects to the database and runs migrations.
// On success the new pool replaces the current one, which is closed.
func (d *dbo) connectAndMigratePool(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	config, err := pgxpool.ParseConfig(d.connectionUrl)
	if err != nil {
		return fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to reach database: %w", err)
	}

	err = migrate(ctx, stdlib.OpenDBFromPool(pool), d.migrations)
	if err != nil {
		pool.Close()
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	if old := d.pool.Swap(pool); old != nil {
		old.Close()
	}

	return nil
}

// migrate runs the database migrations using goose.
func migrate(ctx context.Context, db *sql.DB, migrations fs.FS) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	err := goose.SetDialect("postgres")
	if err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	err = goose.UpContext(ctx, db, migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping checks that the database answers on the current pool.
func (d *dbo) Ping(ctx context.Context) error {
	pool := d.pool.Load()
	if pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	return pool.Ping(ctx)
}

// Disconnect closes the database connection pool, waiting for acquired
// connections to be released.
//
// If `noTeardown` is true, it will not set the teardown flag,
// allowing the health check to reconnect later.
// If `noTeardown` is false or not provided, the teardown flag is set and
// the health check goroutine stops.
func (d *dbo) Disconnect(noTeardown ...bool) {
	if len(noTeardown) == 0 || !noTeardown[0] {
		d.isTeardown.Store(true)
	}

	if pool := d.pool.Load(); pool != nil {
		pool.Close()
	}
	slog.Info("Database connection pool closed")
}

// WithReadTX executes a function within a read-only database transaction context.
// If an existing transaction is provided via existingQ, it uses that instead of creating a new transaction.
// Otherwise, it begins a new read-only transaction, executes the provided function with the transaction-aware dbtx,
// and commits the transaction on success or rolls back on error.
func (d *dbo) WithReadTX(ctx context.Context, fn func(tx DBTX) error, existingQ ...DBTX) error {
	return d.runTransactionWithOpts(ctx, fn, pgx.TxOptions{AccessMode: pgx.ReadOnly}, existingQ...)
}

// WithTX executes a function within a read-write database transaction context.
// If an existing transaction is provided via existingQ, it uses that instead of creating a new transaction.
// The connection is returned to the pool on every exit path.
//
// Parameters:
//   - ctx: Context for the transaction operation
//   - fn: Function to execute within the transaction, receives a transaction interface
//   - existingQ: Optional existing transaction to reuse instead of creating a new transaction
func (d *dbo) WithTX(ctx context.Context, fn func(tx DBTX) error, existingQ ...DBTX) error {
	return d.runTransactionWithOpts(ctx, fn, pgx.TxOptions{AccessMode: pgx.ReadWrite}, existingQ...)
}

// runTransactionWithOpts executes a function within a transaction context with specified options.
// Rollback is deferred unconditionally; after a successful commit it is a no-op.
func (d *dbo) runTransactionWithOpts(ctx context.Context, fn func(tx DBTX) error, opts pgx.TxOptions, existingQ ...DBTX) error {
	if len(existingQ) > 0 && existingQ[0] != nil {
		return fn(existingQ[0])
	}

	pool := d.pool.Load()
	if pool == nil {
		return fmt.Errorf("failed to begin transaction: database pool is not initialized")
	}

	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	err = fn(tx)
	if err != nil {
		return fmt.Errorf("transaction function failed: %w", err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SelectRow executes a query and returns a single row as a struct of type T.
// Columns are matched to fields by their `db` tag.
// If no rows are returned the error wraps ErrNoRows.
func SelectRow[T any](ctx context.Context, dbtx DBTX, query string, args ...any) (T, error) {
	var result T

	rows, err := dbtx.Query(ctx, query, args...)
	if err != nil {
		return result, fmt.Errorf("failed to execute query: %w", err)
	}

	result, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return result, fmt.Errorf("failed to collect row: %w", err)
	}

	return result, nil
}

// SelectRows executes a query and returns multiple rows as a slice of structs of type T.
// An empty result set yields an empty, non-nil slice.
func SelectRows[T any](ctx context.Context, dbtx DBTX, query string, args ...any) ([]T, error) {
	rows, err := dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows: %w", err)
	}

	if results == nil {
		results = []T{}
	}

	return results, nil
}

// ExecQuery executes a query that does not return rows (e.g., INSERT, UPDATE, DELETE)
// and reports how many rows it affected.
func ExecQuery(ctx context.Context, dbtx DBTX, query string, args ...any) (int64, error) {
	tag, err := dbtx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DBTX is an interface that defines the methods for executing queries and transactions.
// only supports pgx package related methods.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}
