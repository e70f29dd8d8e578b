package database

import (
	"database/sql"
	"fmt"

	"dugtong/common/config"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// NewPostgresDB opens a PostgreSQL connection pool and verifies it with a ping.
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.GetDSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewSQLiteDB opens a sqlite database file. sqlite allows a single writer, so the pool is
// capped at one connection.
func NewSQLiteDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}

// Open dispatches on cfg.Driver. The remote driver has no database/sql handle.
func Open(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return NewSQLiteDB(cfg)
	case config.DriverPostgres, "":
		return NewPostgresDB(cfg)
	default:
		return nil, fmt.Errorf("driver %q has no database/sql connection", cfg.Driver)
	}
}

// Close closes db when it is non-nil.
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
