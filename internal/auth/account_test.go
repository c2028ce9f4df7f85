// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/pkg/errutil"
)

func TestNewAccount(t *testing.T) {
	ticket := auth.Ticket{Value: "t-1", ExpiresAt: time.Now().Add(time.Hour)}

	t.Run("valid params", func(t *testing.T) {
		account, err := auth.NewAccount(auth.AccountParams{
			Email:        "  Mixed@Example.COM ",
			PasswordHash: "$argon2id$...",
			DefaultRole:  "user",
			AllowedRoles: []string{"user", "me", "user"},
			Ticket:       ticket,
			User:         auth.UserFields{DisplayName: "Mixed"},
		})
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, account.ID)
		assert.NotEqual(t, ulid.ULID{}, account.User.ID)
		assert.NotEqual(t, account.ID, account.User.ID)
		assert.Equal(t, "mixed@example.com", account.Email)
		assert.Equal(t, []string{"me", "user"}, account.AllowedRoles)
		assert.True(t, account.HasRole("me"))
		assert.False(t, account.HasRole("admin"))
		assert.True(t, account.HasPassword())
	})

	tests := []struct {
		name   string
		params auth.AccountParams
		code   string
	}{
		{"empty default role", auth.AccountParams{AllowedRoles: []string{"user"}, Ticket: ticket}, auth.CodeInvalidInput},
		{"no allowed roles", auth.AccountParams{DefaultRole: "user", Ticket: ticket}, auth.CodeInvalidInput},
		{"default not allowed", auth.AccountParams{DefaultRole: "admin", AllowedRoles: []string{"user"}, Ticket: ticket}, auth.CodeDefaultRoleNotAllowed},
		{"missing ticket", auth.AccountParams{DefaultRole: "user", AllowedRoles: []string{"user"}}, auth.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.NewAccount(tt.params)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
			assert.Equal(t, auth.KindInvalidInput, auth.KindOf(err))
		})
	}
}

func TestAccount_Profile(t *testing.T) {
	account := testAccount(t)
	profile := account.Profile()
	assert.Equal(t, account.User.ID.String(), profile.ID)
	assert.Equal(t, "claims@example.com", profile.Email)
	assert.Equal(t, "Claims Person", profile.DisplayName)
	assert.Equal(t, "claims", profile.Name)
}

func TestRolePolicy_Resolve(t *testing.T) {
	tests := []struct {
		name        string
		defaultRole string
		allowed     []string
		wantDefault string
		wantAllowed []string
		code        string
	}{
		{name: "defaults", wantDefault: "user", wantAllowed: []string{"user", "me"}},
		{name: "explicit subset", defaultRole: "editor", allowed: []string{"editor", "user"}, wantDefault: "editor", wantAllowed: []string{"editor", "user"}},
		{name: "explicit default from defaults", defaultRole: "me", wantDefault: "me", wantAllowed: []string{"user", "me"}},
		{name: "role outside whitelist", allowed: []string{"user", "admin"}, code: auth.CodeRoleNotAllowed},
		{name: "default outside allowed", defaultRole: "editor", code: auth.CodeDefaultRoleNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, allowed, err := testRoles.Resolve(tt.defaultRole, tt.allowed)
			if tt.code != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDefault, def)
			assert.Equal(t, tt.wantAllowed, allowed)
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want auth.Kind
	}{
		{"nil", nil, auth.KindDependency},
		{"plain error", errors.New("boom"), auth.KindDependency},
		{"unknown code", oops.Code("SOMETHING_ELSE").Errorf("x"), auth.KindDependency},
		{"invalid input", oops.Code(auth.CodeInvalidInput).Errorf("x"), auth.KindInvalidInput},
		{"unauthorized", oops.Code(auth.CodeRefreshInvalid).Errorf("x"), auth.KindUnauthorized},
		{"conflict", oops.Code(auth.CodeAccountExists).Errorf("x"), auth.KindConflict},
		{"weak", oops.Code(auth.CodeWeakPassword).Errorf("x"), auth.KindWeakCredential},
		{"provider", oops.Code(auth.CodeProviderCreateFailed).Errorf("x"), auth.KindProviderResolution},
		{"store", oops.Code(auth.CodeStoreUnavailable).Wrap(errors.New("x")), auth.KindDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.KindOf(tt.err))
		})
	}
	assert.Equal(t, "unauthorized", auth.KindUnauthorized.String())
}
