// Package sqlstore implements the relational repositories on database/sql.
// Postgres (pgx stdlib driver) is the production backend; SQLite (modernc,
// no cgo) serves development and tests with the same schema and queries.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // register the pure-Go sqlite driver

	"rutinasds/routines-app/internal/repository"
)

// Compile-time contract assertions.
var (
	_ repository.UnitOfWork        = (*Store)(nil)
	_ repository.CatalogUnitOfWork = (*Store)(nil)
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Options tune the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store owns the connection pool and hands out repositories bound to it or
// to a transaction.
type Store struct {
	repos
	db      *sql.DB
	dialect Dialect
}

// Open connects, pings and migrates. SQLite DSNs get a busy timeout, foreign
// keys and IMMEDIATE transactions unless they already set them.
func Open(ctx context.Context, dialect Dialect, dsn string, opts Options) (*Store, error) {
	if dialect == SQLite {
		dsn = sqliteDSN(dsn)
	}
	openMu.Lock()
	db, err := sqlOpen(dialect.driverName(), dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == SQLite {
		// One writer at a time; a single connection avoids SQLITE_BUSY between our own goroutines.
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already open pool. The caller runs Migrate.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		repos:   repos{conn{q: db, d: dialect}},
		db:      db,
		dialect: dialect,
	}
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "file:routines.db"
	}
	var params []string
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	if !strings.Contains(dsn, "foreign_keys") {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "_txlock") {
		params = append(params, "_txlock=immediate")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// DB exposes the underlying pool for health checks and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }

// Ping is used by the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// WithinTx runs fn in one transaction with every repository bound to it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	return s.runTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &repos{conn{q: tx, d: s.dialect}})
	})
}

// WithinCatalogTx runs fn in one transaction that can only see the catalog.
func (s *Store) WithinCatalogTx(ctx context.Context, fn func(ctx context.Context, catalog repository.CatalogRepository) error) error {
	return s.runTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &catalogRepo{conn{q: tx, d: s.dialect}})
	})
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// repos hands out repositories sharing one conn.
type repos struct {
	c conn
}

func (r *repos) Users() repository.UserRepository               { return &userRepo{r.c} }
func (r *repos) Catalog() repository.CatalogRepository          { return &catalogRepo{r.c} }
func (r *repos) Snapshots() repository.SnapshotRepository       { return &snapshotRepo{r.c} }
func (r *repos) Plans() repository.PlanRepository               { return &planRepo{r.c} }
func (r *repos) Executions() repository.ExecutionRepository     { return &executionRepo{r.c} }
func (r *repos) Measurements() repository.MeasurementRepository { return &measurementRepo{r.c} }
