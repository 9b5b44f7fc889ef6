// Package storage persists exercise results and kiosk sessions in SQLite
// on the kiosk or PostgreSQL on a central server.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the backend. Path is used by SQLite, DSN by PostgreSQL.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// DB is the results repository.
type DB struct {
	driver string
	dsn    string
	conn   backend
	// sqlDB is kept for the sqlite migration driver.
	sqlDB *sql.DB
}

type row interface {
	Scan(dest ...any) error
}

type rows interface {
	row
	Next() bool
	Err() error
	Close()
}

type backend interface {
	exec(ctx context.Context, query string, args ...any) error
	queryRow(ctx context.Context, query string, args ...any) row
	query(ctx context.Context, query string, args ...any) (rows, error)
	close()
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, opts Options) (*DB, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return openSQLite(ctx, opts.Path)
	case DriverPostgres:
		return openPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

func openSQLite(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &DB{driver: DriverSQLite, conn: sqlBackend{db}, sqlDB: db}, nil
}

func openPostgres(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{driver: DriverPostgres, dsn: dsn, conn: pgBackend{pool}}, nil
}

// Driver returns the backend name.
func (db *DB) Driver() string {
	return db.driver
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.conn.close()
}

// timeArg converts a timestamp to the form the backend stores.
func (db *DB) timeArg(t time.Time) any {
	if db.driver == DriverSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

type sqlBackend struct {
	db *sql.DB
}

func (b sqlBackend) exec(ctx context.Context, query string, args ...any) error {
	_, err := b.db.ExecContext(ctx, query, args...)
	return err
}

func (b sqlBackend) queryRow(ctx context.Context, query string, args ...any) row {
	return b.db.QueryRowContext(ctx, query, args...)
}

func (b sqlBackend) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{r}, nil
}

func (b sqlBackend) close() {
	b.db.Close()
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	r.Rows.Close()
}

type pgBackend struct {
	pool *pgxpool.Pool
}

func (b pgBackend) exec(ctx context.Context, query string, args ...any) error {
	_, err := b.pool.Exec(ctx, rebind(query), args...)
	return err
}

func (b pgBackend) queryRow(ctx context.Context, query string, args ...any) row {
	return b.pool.QueryRow(ctx, rebind(query), args...)
}

func (b pgBackend) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := b.pool.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (b pgBackend) close() {
	b.pool.Close()
}

// rebind turns ? placeholders into PostgreSQL's $n form. Queries in this
// package never contain a literal question mark.
func rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// timestamp scans TIMESTAMPTZ values and the RFC 3339 text SQLite stores.
type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (t *timestamp) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}
