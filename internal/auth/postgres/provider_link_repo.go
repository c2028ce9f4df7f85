// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/store"
)

// ProviderLinkRepository implements auth.ProviderLinkRepository using PostgreSQL.
type ProviderLinkRepository struct {
	db store.DB
}

// NewProviderLinkRepository creates a new ProviderLinkRepository.
func NewProviderLinkRepository(db store.DB) *ProviderLinkRepository {
	return &ProviderLinkRepository{db: db}
}

// Find returns the link for a provider identity and the account it belongs to.
func (r *ProviderLinkRepository) Find(ctx context.Context, provider, subjectID string) (*auth.ProviderLink, *auth.Account, error) {
	var (
		link                auth.ProviderLink
		idStr, accountIDStr string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, account_id, auth_provider, auth_provider_unique_id,
		       access_token, refresh_token, created_at, updated_at
		FROM auth_account_providers
		WHERE auth_provider = $1 AND auth_provider_unique_id = $2
	`, provider, subjectID).Scan(
		&idStr, &accountIDStr, &link.Provider, &link.SubjectID,
		&link.AccessToken, &link.RefreshToken, &link.CreatedAt, &link.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, oops.With("provider", provider).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, nil, oops.With("operation", "find provider link").With("provider", provider).Wrap(err)
	}

	if link.ID, err = parseID("link_id", idStr); err != nil {
		return nil, nil, err
	}
	if link.AccountID, err = parseID("account_id", accountIDStr); err != nil {
		return nil, nil, err
	}

	account, err := scanAccount(r.db.QueryRow(ctx, accountSelect+` WHERE a.id = $1`, accountIDStr))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, oops.With("account_id", accountIDStr).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, nil, oops.With("operation", "get linked account").With("account_id", accountIDStr).Wrap(err)
	}
	return &link, account, nil
}

// Create links a provider identity to an existing account.
func (r *ProviderLinkRepository) Create(ctx context.Context, link *auth.ProviderLink) error {
	return insertLink(ctx, r.db, link)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLink(ctx context.Context, db execer, link *auth.ProviderLink) error {
	_, err := db.Exec(ctx, `
		INSERT INTO auth_account_providers (
			id, account_id, auth_provider, auth_provider_unique_id,
			access_token, refresh_token, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		link.ID.String(),
		link.AccountID.String(),
		link.Provider,
		link.SubjectID,
		link.AccessToken,
		link.RefreshToken,
		link.CreatedAt,
		link.UpdatedAt,
	)
	if err != nil {
		return oops.With("operation", "insert provider link").
			With("provider", link.Provider).
			With("account_id", link.AccountID.String()).
			Wrap(classify(err))
	}
	return nil
}

// UpdateTokens stores the provider tokens from the latest sign-in.
func (r *ProviderLinkRepository) UpdateTokens(ctx context.Context, linkID ulid.ULID, tokens auth.ProviderTokens) error {
	result, err := r.db.Exec(ctx, `
		UPDATE auth_account_providers
		SET access_token = $2, refresh_token = $3, updated_at = NOW()
		WHERE id = $1
	`, linkID.String(), tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return oops.With("operation", "update provider tokens").With("link_id", linkID.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("link_id", linkID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

var _ auth.ProviderLinkRepository = (*ProviderLinkRepository)(nil)
