// Package postgres provides PostgreSQL adapters for position storage and the
// ledger audit log. Token amounts are stored as NUMERIC(78) so every uint256
// value round-trips exactly.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig sizes the pool behind the position repository and event sink.
// Every committed engine operation writes through it while holding the engine
// lock, so a slow statement delays all positions, not just the caller's.
type PoolConfig struct {
	URL string

	// ApplicationName tags sessions in pg_stat_activity.
	ApplicationName string

	// StatementTimeout caps each statement server-side. Zero leaves the
	// server default, which is what migrations want.
	StatementTimeout time.Duration

	// One operation persists at a time; extra connections serve queries and restore.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PoolConfigDefaults returns the engine's pool settings for url.
func PoolConfigDefaults(url string) PoolConfig {
	return PoolConfig{
		URL:              url,
		ApplicationName:  "dsc-engine",
		StatementTimeout: 5 * time.Second,
		MaxConns:         10,
		MinConns:         2,
		MaxConnLifetime:  5 * time.Minute,
		MaxConnIdleTime:  time.Minute,
	}
}

func (cfg PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.ApplicationName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	return pc, nil
}

// OpenPool connects and pings. The caller closes the pool.
func OpenPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pc, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
