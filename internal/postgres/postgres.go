// Package postgres opens the pgx pool behind the trips store.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultApplicationName = "tripgo"
	defaultConnectTimeout  = 5 * time.Second
	pingTimeout            = 3 * time.Second
)

type Config struct {
	DSN string
	// ApplicationName shows up in pg_stat_activity. Defaults to "tripgo".
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	ConnectTimeout  time.Duration
}

// Open builds a pool from cfg and checks that the server answers before
// returning it.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	const op = "postgres.Open"

	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: ping %s:%d: %w", op, poolCfg.ConnConfig.Host, poolCfg.ConnConfig.Port, err)
	}

	if logger != nil {
		logger.Info("postgres pool ready",
			slog.String("host", poolCfg.ConnConfig.Host),
			slog.String("database", poolCfg.ConnConfig.Database),
			slog.Int("max_conns", int(poolCfg.MaxConns)),
			slog.Int("min_conns", int(poolCfg.MinConns)),
		)
	}

	return pool, nil
}

// poolConfig parses the DSN and applies the pool limits. Zero values keep
// the pgx defaults, except the connect timeout and application name.
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}

	if cfg.MinConns > 0 {
		if cfg.MinConns > pc.MaxConns {
			return nil, fmt.Errorf("min conns %d exceeds max conns %d", cfg.MinConns, pc.MaxConns)
		}
		pc.MinConns = cfg.MinConns
	}

	pc.MaxConnIdleTime = 5 * time.Minute
	pc.MaxConnLifetime = time.Hour
	pc.HealthCheckPeriod = 30 * time.Second

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	pc.ConnConfig.ConnectTimeout = timeout

	name := cfg.ApplicationName
	if name == "" {
		name = defaultApplicationName
	}
	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = name
	}

	return pc, nil
}
