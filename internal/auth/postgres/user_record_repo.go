// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package postgres

import (
	"context"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/store"
)

// UserRecordRepository implements auth.UserRecordRepository using PostgreSQL.
type UserRecordRepository struct {
	db store.DB
}

// NewUserRecordRepository creates a new UserRecordRepository.
func NewUserRecordRepository(db store.DB) *UserRecordRepository {
	return &UserRecordRepository{db: db}
}

// Create inserts the app_users row for a registered account.
func (r *UserRecordRepository) Create(ctx context.Context, record *auth.UserRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO app_users (account_id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
	`,
		record.AccountID.String(),
		nullable(record.Name),
		nullable(record.Email),
		record.CreatedAt,
	)
	if err != nil {
		return oops.With("operation", "insert user record").
			With("account_id", record.AccountID.String()).
			Wrap(classify(err))
	}
	return nil
}

var _ auth.UserRecordRepository = (*UserRecordRepository)(nil)
