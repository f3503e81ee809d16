package db

import (
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
)

// Connect opens the sqlite database backing the ranking store. ":memory:"
// is accepted for tests and throwaway deployments.
func Connect(path string) (*sqlx.DB, error) {
	pool, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	if err := pool.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database at %s: %w", path, err)
	}
	// Store writes run under one process-wide lock; a single connection keeps
	// sqlite from returning busy errors under it.
	pool.SetMaxOpenConns(1)
	return pool, nil
}
