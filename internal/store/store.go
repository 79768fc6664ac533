package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/strata/internal/ir"
)

// Supported database/sql driver names.
const (
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	DefaultDriver = DriverSQLite3
)

// dialect captures the per-driver differences the store cares about.
type dialect struct {
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool

	// pragmas run once after connecting
	pragmas []string

	// single connection (SQLite allows one writer)
	singleConn bool
}

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

var dialects = map[string]dialect{
	DriverSQLite3:  {pragmas: sqlitePragmas, singleConn: true},
	DriverSQLite:   {pragmas: sqlitePragmas, singleConn: true},
	DriverPostgres: {numbered: true},
}

// SupportedDriver reports whether driver can be passed to Open.
func SupportedDriver(driver string) bool {
	_, ok := dialects[driver]
	return ok
}

// Store is the SQL backend and node-state store.
type Store struct {
	db      *sql.DB
	driver  string
	dialect dialect
}

var (
	_ ir.Backend    = (*Store)(nil)
	_ ir.StateStore = (*Store)(nil)
)

// Open connects to the database identified by driver and dsn.
// Applies pragmas (SQLite) and the metadata schema automatically.
//
// For SQLite the dsn is a file path or ":memory:"; for pgx it is a
// PostgreSQL connection string.
//
// This function is idempotent - safe to call multiple times.
func Open(driver, dsn string) (*Store, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if d.singleConn {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	for _, pragma := range d.pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, driver: driver, dialect: d}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// applySchema creates the metadata tables if they don't exist and records
// the schema version.
func (s *Store) applySchema() error {
	for _, stmt := range schemaDDL {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	_, err = s.db.Exec(s.rebind(`
		INSERT INTO strata_meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`), strconv.Itoa(currentSchemaVersion))
	if err != nil {
		return fmt.Errorf("set schema_version: %w", err)
	}
	return nil
}

// schemaVersion returns the recorded schema version, 0 for a fresh database.
func (s *Store) schemaVersion() (int, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM strata_meta WHERE key = 'schema_version'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get schema_version: %w", err)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse schema_version %q: %w", value, err)
	}
	return v, nil
}

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (s *Store) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// Exec executes a single statement outside any transaction.
// Implements ir.Backend.
func (s *Store) Exec(ctx context.Context, statement string) error {
	if _, err := s.db.ExecContext(ctx, statement); err != nil {
		return err
	}
	return nil
}

// Begin starts a transaction.
// Implements ir.Backend.
func (s *Store) Begin(ctx context.Context) (ir.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps *sql.Tx as an ir.Tx.
type Tx struct {
	tx *sql.Tx
}

// Exec executes a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, statement string) error {
	_, err := t.tx.ExecContext(ctx, statement)
	return err
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}
