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

const accountSelect = `
	SELECT a.id, a.email, a.password_hash, a.active, a.is_anonymous, a.default_role,
	       ARRAY(SELECT r.role FROM auth_account_roles r WHERE r.account_id = a.id ORDER BY r.role),
	       a.ticket, a.ticket_expires_at, a.mfa_enabled, a.new_email, a.created_at, a.updated_at,
	       u.id, u.display_name, u.name, u.avatar_url, u.phone_number
	FROM auth_accounts a
	JOIN users u ON u.id = a.user_id`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db store.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db store.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts the user, the account, its roles and, when link is
// non-nil, the provider link in one transaction.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account, link *auth.ProviderLink) error {
	err := store.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, display_name, name, avatar_url, phone_number, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			account.User.ID.String(),
			account.User.DisplayName,
			nullable(account.User.Name),
			nullable(account.User.AvatarURL),
			nullable(account.User.PhoneNumber),
			account.CreatedAt,
			account.UpdatedAt,
		); err != nil {
			return oops.With("operation", "insert user").Wrap(classify(err))
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO auth_accounts (
				id, user_id, email, new_email, password_hash, active, is_anonymous,
				default_role, ticket, ticket_expires_at, mfa_enabled, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			account.ID.String(),
			account.User.ID.String(),
			nullable(account.Email),
			nullable(account.NewEmail),
			nullable(account.PasswordHash),
			account.Active,
			account.IsAnonymous,
			account.DefaultRole,
			account.Ticket,
			account.TicketExpiresAt,
			account.MFAEnabled,
			account.CreatedAt,
			account.UpdatedAt,
		); err != nil {
			return oops.With("operation", "insert account").Wrap(classify(err))
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO auth_account_roles (account_id, role)
			SELECT $1, unnest($2::text[])
		`, account.ID.String(), account.AllowedRoles); err != nil {
			return oops.With("operation", "insert account roles").Wrap(classify(err))
		}

		if link != nil {
			if err := insertLink(ctx, tx, link); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return oops.With("account_id", account.ID.String()).Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	return r.getOne(ctx, "get account by id", accountSelect+` WHERE a.id = $1`, id.String())
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return r.getOne(ctx, "get account by email", accountSelect+` WHERE lower(a.email) = lower($1)`, email)
}

// GetByUserName retrieves an account by its user's name (case-insensitive).
func (r *AccountRepository) GetByUserName(ctx context.Context, name string) (*auth.Account, error) {
	return r.getOne(ctx, "get account by user name", accountSelect+` WHERE lower(u.name) = lower($1)`, name)
}

func (r *AccountRepository) getOne(ctx context.Context, operation, query string, arg any) (*auth.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("operation", operation).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", operation).Wrap(err)
	}
	return account, nil
}

// ConsumeTicket replaces an unexpired ticket in a single conditional UPDATE,
// so concurrent callers cannot both succeed.
func (r *AccountRepository) ConsumeTicket(ctx context.Context, p auth.ConsumeTicketParams) (*auth.Account, error) {
	var idStr string
	err := r.db.QueryRow(ctx, `
		UPDATE auth_accounts
		SET ticket = $3, ticket_expires_at = $4, active = active OR $5, updated_at = $2
		WHERE ticket = $1 AND ticket_expires_at >= $2
		RETURNING id
	`, p.Ticket, p.Now, p.Next.Value, p.Next.ExpiresAt, p.Activate).Scan(&idStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missingTicket(ctx, p.Ticket)
	}
	if err != nil {
		return nil, oops.With("operation", "consume ticket").Wrap(err)
	}

	id, err := parseID("account_id", idStr)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// missingTicket tells a ticket nobody holds apart from an expired one.
func (r *AccountRepository) missingTicket(ctx context.Context, ticket string) error {
	var expiresAt time.Time
	err := r.db.QueryRow(ctx, `SELECT ticket_expires_at FROM auth_accounts WHERE ticket = $1`, ticket).Scan(&expiresAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return oops.With("operation", "consume ticket").Wrap(auth.ErrNotFound)
	case err != nil:
		return oops.With("operation", "look up consumed ticket").Wrap(err)
	}
	return oops.With("operation", "consume ticket").With("expired_at", expiresAt).Wrap(auth.ErrExpired)
}

// SetTicket overwrites the account's ticket.
func (r *AccountRepository) SetTicket(ctx context.Context, accountID ulid.ULID, ticket auth.Ticket) error {
	result, err := r.db.Exec(ctx, `
		UPDATE auth_accounts SET ticket = $2, ticket_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, accountID.String(), ticket.Value, ticket.ExpiresAt)
	if err != nil {
		return oops.With("operation", "set ticket").With("account_id", accountID.String()).Wrap(classify(err))
	}
	if result.RowsAffected() == 0 {
		return oops.With("account_id", accountID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, accountID ulid.ULID, hash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE auth_accounts SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, accountID.String(), hash)
	if err != nil {
		return oops.With("operation", "update password hash").With("account_id", accountID.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("account_id", accountID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans one accountSelect row. pgx.ErrNoRows is returned
// unchanged for callers to translate.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		account                auth.Account
		idStr, userIDStr       string
		email, passwordHash    *string
		newEmail, name         *string
		avatarURL, phoneNumber *string
		allowedRoles           []string
	)
	err := row.Scan(
		&idStr, &email, &passwordHash, &account.Active, &account.IsAnonymous, &account.DefaultRole,
		&allowedRoles,
		&account.Ticket, &account.TicketExpiresAt, &account.MFAEnabled, &newEmail, &account.CreatedAt, &account.UpdatedAt,
		&userIDStr, &account.User.DisplayName, &name, &avatarURL, &phoneNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context
		}
		return nil, oops.With("operation", "scan account").Wrap(err)
	}

	if account.ID, err = parseID("account_id", idStr); err != nil {
		return nil, err
	}
	if account.User.ID, err = parseID("user_id", userIDStr); err != nil {
		return nil, err
	}
	account.Email = deref(email)
	account.PasswordHash = deref(passwordHash)
	account.NewEmail = deref(newEmail)
	account.AllowedRoles = allowedRoles
	account.User.Name = deref(name)
	account.User.AvatarURL = deref(avatarURL)
	account.User.PhoneNumber = deref(phoneNumber)
	return &account, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
