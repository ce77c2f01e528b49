// Package store implements core.Store on PostgreSQL (pgx) and SQLite
// (modernc, pure Go). Both dialects share one set of queries written with
// ? placeholders; the PostgreSQL executor rebinds them to $n.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/geoatlas/internal/config"
	"github.com/JonMunkholm/geoatlas/internal/core"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store is a core.Store backed by PostgreSQL or SQLite.
type Store struct {
	queries
	driver string
	pool   *pgxpool.Pool // postgres only
	db     *sql.DB       // sqlite, or the goose view of the postgres pool
}

var _ core.Store = (*Store)(nil)

// queries holds the read and write statements shared by Store and tx.
type queries struct {
	x  executor
	pg bool
}

// tx is one transaction. It implements core.Tx.
type tx struct {
	queries
}

var _ core.Tx = (*tx)(nil)

// Open connects to the database selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return OpenPostgres(ctx, cfg)
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenPostgres creates a pgx pool configured from cfg and verifies it.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		queries: queries{x: pgxExecutor{q: pool}, pg: true},
		driver:  DriverPostgres,
		pool:    pool,
		db:      stdlib.OpenDBFromPool(pool),
	}, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file.
// Foreign keys are enforced and writers wait on a busy database.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	dsn := sqliteDSN(path)
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps per-connection pragmas
	// consistent.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return FromDB(db), nil
}

// FromDB wraps an already-open SQLite-dialect *sql.DB.
func FromDB(db *sql.DB) *Store {
	return &Store{
		queries: queries{x: sqlExecutor{q: db}},
		driver:  DriverSQLite,
		db:      db,
	}
}

func sqliteDSN(path string) string {
	pragmas := url.Values{}
	pragmas.Add("_pragma", "foreign_keys(1)")
	pragmas.Add("_pragma", "busy_timeout(5000)")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + pragmas.Encode()
}

// Driver returns the active driver name.
func (s *Store) Driver() string {
	return s.driver
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(core.Tx) error) error {
	if s.pg {
		pgTx, err := s.pool.Begin(ctx)
		if err != nil {
			return wrap("begin transaction", err)
		}
		defer pgTx.Rollback(ctx) // No-op if already committed

		if err := fn(&tx{queries{x: pgxExecutor{q: pgTx}, pg: true}}); err != nil {
			return err
		}
		return wrap("commit", pgTx.Commit(ctx))
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin transaction", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&tx{queries{x: sqlExecutor{q: sqlTx}}}); err != nil {
		return err
	}
	return wrap("commit", sqlTx.Commit())
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.pg {
		return s.pool.Ping(ctx)
	}
	return s.db.PingContext(ctx)
}

// Close releases all connections.
func (s *Store) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// Savepoint marks a point the transaction can roll back to.
// PostgreSQL aborts the whole transaction on any error, so every row write
// runs under one.
func (t *tx) Savepoint(ctx context.Context, name string) error {
	_, err := t.x.exec(ctx, "SAVEPOINT "+name)
	return err
}

// RollbackTo undoes everything since the named savepoint.
func (t *tx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.x.exec(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

// Release discards the named savepoint, keeping its changes.
func (t *tx) Release(ctx context.Context, name string) error {
	_, err := t.x.exec(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

// Truncate deletes every row of a dataset table and returns the count.
func (t *tx) Truncate(ctx context.Context, table string) (int64, error) {
	if !knownTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	n, err := t.x.exec(ctx, "DELETE FROM "+table)
	return n, wrap("truncate "+table, err)
}

func knownTable(table string) bool {
	if table == "connections" {
		return true
	}
	for _, def := range core.All() {
		if def.Info.Table == table {
			return true
		}
	}
	return false
}
