// Package database provides a SQLite connection helper with
// profile-specific PRAGMAs, mirroring the reference system's
// internal/database package but trimmed to two access profiles: a
// read-mostly profile (used for the reference and geography databases)
// and a write-heavy profile for the job cache's ephemeral tables.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Profile selects a PRAGMA bundle tuned for a database's access pattern.
type Profile string

const (
	// ProfileReference favours read throughput: the store is written once
	// per refresh cycle and read constantly by workers.
	ProfileReference Profile = "reference"
	// ProfileCache favours write throughput and never needs fsync
	// durability: job records and cached results are reproducible from
	// the upstream systems if lost.
	ProfileCache Profile = "cache"
)

// DB wraps a *sql.DB with the PRAGMAs and pool settings for its profile.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string
}

// Config configures a new DB.
type Config struct {
	Path    string
	Profile Profile
	Name    string
}

// New opens (and, if necessary, creates) a SQLite database configured for
// the given profile.
func New(cfg Config) (*DB, error) {
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		cfg.Path = absPath
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileReference
	}

	connStr := buildConnectionString(cfg.Path, cfg.Profile)
	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}, nil
}

func buildConnectionString(path string, profile Profile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	switch profile {
	case ProfileCache:
		connStr += "&_pragma=synchronous(OFF)"
		connStr += "&_pragma=temp_store(MEMORY)"
	default:
		connStr += "&_pragma=synchronous(NORMAL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	}
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=cache_size(-32000)"
	return connStr
}

func configureConnectionPool(conn *sql.DB, profile Profile) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
	if profile == ProfileCache {
		conn.SetMaxOpenConns(10)
	}
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn returns the underlying *sql.DB for repositories to query.
func (db *DB) Conn() *sql.DB { return db.conn }

// Name returns the friendly database name used in logging.
func (db *DB) Name() string { return db.name }

// Migrate executes schema against the database. It is idempotent: every
// statement uses CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS.
func (db *DB) Migrate(schema string) error {
	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate database %s: %w", db.name, err)
	}
	return nil
}
