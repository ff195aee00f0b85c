// Package postgis serves map layers from PostGIS tables and imports
// features into them.
package postgis

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/1F47E/touchmap/pkg/query"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const engineName = "postgis"

// Config holds the connection settings
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

// DSN returns the lib/pq connection string
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// DB is a PostGIS connection pool
type DB struct {
	db     *sql.DB
	logger *zap.Logger
	closed atomic.Bool
}

// Open connects to PostGIS. An unreachable server is reported as
// *query.EngineUnavailableError.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &query.EngineUnavailableError{Engine: engineName, Err: err}
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewDB(db, logger), nil
}

// NewDB wraps an already opened pool
func NewDB(db *sql.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{db: db, logger: logger.Named(engineName)}
}

// conn returns the pool, or an engine error once the pool is closed
func (d *DB) conn() (*sql.DB, error) {
	if d == nil || d.db == nil || d.closed.Load() {
		return nil, &query.EngineUnavailableError{Engine: engineName, Err: sql.ErrConnDone}
	}
	return d.db, nil
}

// Ping checks that the server answers. Like Open, a failure means the
// engine is unavailable; errors during queries are plain errors.
func (d *DB) Ping(ctx context.Context) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return &query.EngineUnavailableError{Engine: engineName, Err: err}
	}
	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	if d == nil || d.db == nil || !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.db.Close()
}
