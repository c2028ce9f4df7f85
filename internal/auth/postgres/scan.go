// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package postgres implements the auth repositories on PostgreSQL.
//
// Errors carry operation context but no oops code; the auth package
// classifies them. Not-found and unique-violation outcomes are reported
// through auth.ErrNotFound and auth.ErrConflict.
package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// classify maps constraint violations onto the auth sentinels.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return errors.Join(auth.ErrConflict, err)
	case pgerrcode.ForeignKeyViolation:
		return errors.Join(auth.ErrNotFound, err)
	}
	return err
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseID(field, value string) (ulid.ULID, error) {
	id, err := ulid.Parse(value)
	if err != nil {
		return ulid.ULID{}, oops.With("operation", "parse "+field).With(field, value).Wrap(err)
	}
	return id, nil
}
