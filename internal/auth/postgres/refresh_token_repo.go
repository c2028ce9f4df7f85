// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/store"
)

// RefreshTokenRepository implements auth.RefreshTokenRepository using PostgreSQL.
// Only token hashes are stored.
type RefreshTokenRepository struct {
	db store.DB
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db store.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auth_refresh_tokens (id, token_hash, account_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		token.ID.String(),
		token.TokenHash,
		token.AccountID.String(),
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return oops.With("operation", "insert refresh token").
			With("account_id", token.AccountID.String()).
			Wrap(classify(err))
	}
	return nil
}

// Rotate deletes the presented token and inserts its successor in one
// transaction. The DELETE only matches an unexpired token, so of two
// concurrent rotations exactly one sees a row.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, p auth.RotateParams) (ulid.ULID, error) {
	var accountID ulid.ULID
	err := store.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var accountIDStr string
		err := tx.QueryRow(ctx, `
			DELETE FROM auth_refresh_tokens
			WHERE token_hash = $1 AND expires_at >= $2
			RETURNING account_id
		`, p.PresentedHash, p.Now).Scan(&accountIDStr)
		if errors.Is(err, pgx.ErrNoRows) {
			return oops.With("operation", "consume refresh token").Wrap(auth.ErrNotFound)
		}
		if err != nil {
			return oops.With("operation", "consume refresh token").Wrap(err)
		}

		if accountID, err = parseID("account_id", accountIDStr); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO auth_refresh_tokens (id, token_hash, account_id, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`,
			p.Next.ID.String(),
			p.Next.TokenHash,
			accountIDStr,
			p.Next.ExpiresAt,
			p.Next.CreatedAt,
		); err != nil {
			return oops.With("operation", "insert rotated refresh token").
				With("account_id", accountIDStr).
				Wrap(classify(err))
		}
		return nil
	})
	if err != nil {
		return ulid.ULID{}, err
	}
	return accountID, nil
}

// DeleteByHash removes a refresh token. Deleting an unknown token is not an error.
func (r *RefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM auth_refresh_tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return oops.With("operation", "delete refresh token").Wrap(err)
	}
	return nil
}

// DeleteExpired removes tokens past their expiry at now and returns how many were removed.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM auth_refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, oops.With("operation", "delete expired refresh tokens").Wrap(err)
	}
	return result.RowsAffected(), nil
}

var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
