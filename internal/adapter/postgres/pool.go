package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSettings tunes the pgx connection pool.
type PoolSettings struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool connects, applies pool settings, and verifies the database is
// reachable before returning.
func NewPool(ctx context.Context, databaseURL string, settings PoolSettings) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	if settings.MaxConns > 0 {
		config.MaxConns = settings.MaxConns
	}
	if settings.MinConns > 0 {
		config.MinConns = settings.MinConns
	}
	if settings.MaxConnLifetime > 0 {
		config.MaxConnLifetime = settings.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database (10s timeout): %w", err)
	}

	return pool, nil
}
