package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour of the underlying driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps the database connection
type DB struct {
	conn    *sql.DB
	dialect Dialect
	logger  zerolog.Logger
}

// OpenSQLite opens (creating if needed) a SQLite database file. The special
// path ":memory:" opens a private in-memory database.
func OpenSQLite(path string, logger zerolog.Logger) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
			path,
		)
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps :memory: databases alive.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	return newDB(conn, DialectSQLite, logger)
}

// OpenPostgres connects to a PostgreSQL server.
func OpenPostgres(dsn string, logger zerolog.Logger) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newDB(conn, DialectPostgres, logger)
}

func newDB(conn *sql.DB, dialect Dialect, logger zerolog.Logger) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn:    conn,
		dialect: dialect,
		logger:  logger.With().Str("component", "database").Str("dialect", string(dialect)).Logger(),
	}

	// Initialize tables and run migrations
	if err := db.createTables(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.migrateSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect reports which SQL flavour this connection speaks.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// createTables creates the necessary tables
func (db *DB) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS totals (
			user_id BIGINT NOT NULL,
			activity TEXT NOT NULL,
			seconds BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, activity)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_totals (
			user_id BIGINT NOT NULL,
			activity TEXT NOT NULL,
			day TEXT NOT NULL,
			seconds BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, activity, day)
		)`,
		`CREATE INDEX IF NOT EXISTS daily_totals_user_day_idx ON daily_totals (user_id, day)`,
		`CREATE TABLE IF NOT EXISTS display_names (
			user_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// migrateSchema folds the name cache of older deployments, which lived in
// guild_usernames(user_id, username, updated_at), into display_names.
func (db *DB) migrateSchema(ctx context.Context) error {
	exists, err := db.hasTable(ctx, "guild_usernames")
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	migrations := []string{
		`INSERT INTO display_names (user_id, name, updated_at)
		SELECT user_id, username, updated_at FROM guild_usernames WHERE true
		ON CONFLICT (user_id) DO NOTHING`,
		`DROP TABLE guild_usernames`,
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, migration := range migrations {
		if _, err := tx.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to migrate guild_usernames: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	db.logger.Info().Msg("Migrated guild_usernames into display_names")
	return nil
}

func (db *DB) hasTable(ctx context.Context, name string) (bool, error) {
	var query string
	switch db.dialect {
	case DialectPostgres:
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`
	default:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}

	var n int
	if err := db.conn.QueryRowContext(ctx, db.rebind(query), name).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n > 0, nil
}

// rebind rewrites ? placeholders into $N for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
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
