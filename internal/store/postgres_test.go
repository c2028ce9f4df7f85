// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/pkg/errutil"
)

func TestInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM auth_refresh_tokens`).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		err = store.InTx(ctx, mock, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `DELETE FROM auth_refresh_tokens`)
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = store.InTx(ctx, mock, func(pgx.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and re-panics", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "kaboom", func() {
			_ = store.InTx(ctx, mock, func(pgx.Tx) error { panic("kaboom") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err = store.InTx(ctx, mock, func(pgx.Tx) error { return nil })
		errutil.AssertErrorContext(t, err, "operation", "begin transaction")
	})

	t.Run("commit failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
		mock.ExpectRollback()

		err = store.InTx(ctx, mock, func(pgx.Tx) error { return nil })
		errutil.AssertErrorContext(t, err, "operation", "commit transaction")
	})
}

func TestOpen_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := store.Open(context.Background(), store.PoolConfig{URL: "postgres://%zz"}, logger)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestOpen_GivesUpAfterAttempts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := store.Open(ctx, store.PoolConfig{
		URL:             "postgres://authgate@127.0.0.1:1/authgate?connect_timeout=1",
		ConnectAttempts: 2,
		RetryBase:       10 * time.Millisecond,
	}, logger)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	errutil.AssertErrorContext(t, err, "attempt", 2)
}
