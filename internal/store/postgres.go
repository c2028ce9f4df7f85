// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package store owns the PostgreSQL connection pool, transactions, and
// schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DB is the query surface shared by *pgxpool.Pool, pgx.Tx, and pgxmock pools.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InTx runs fn in a transaction. It commits when fn returns nil and rolls
// back otherwise, including when fn panics. Errors carry context but no
// code, so callers classify them.
func InTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return oops.With("operation", "begin transaction").Wrap(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // re-panicking
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // fn error takes precedence
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return oops.With("operation", "commit transaction").Wrap(err)
	}
	return nil
}

// PoolConfig configures Open.
type PoolConfig struct {
	URL string
	// ConnectAttempts bounds how many times the first ping is tried.
	ConnectAttempts int
	// RetryBase is the first backoff interval; it doubles per attempt.
	RetryBase time.Duration
}

// Open creates a pool and waits for the database to answer a ping. Only
// process start retries; request paths never do.
func Open(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	attempts := max(cfg.ConnectAttempts, 1)
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	var pool *pgxpool.Pool
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base)) //nolint:gosec // attempts >= 1
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("attempt", attempt).Wrap(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			logger.WarnContext(ctx, "database not ready",
				"attempt", attempt, "max_attempts", attempts, "error", err)
			return retry.RetryableError(oops.Code("DB_CONNECT_FAILED").With("attempt", attempt).Wrap(err))
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
