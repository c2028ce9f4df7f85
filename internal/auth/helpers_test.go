// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/authtest"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testRoles = auth.RolePolicy{
	DefaultRole:         "user",
	DefaultAllowedRoles: []string{"user", "me"},
	AllowedRoles:        []string{"user", "me", "editor"},
}

func testPolicy() auth.Policy {
	return auth.Policy{
		AutoActivate:        true,
		Roles:               testRoles,
		AnonymousRole:       "anonymous",
		ActivationTicketTTL: 30 * 24 * time.Hour,
		MFATicketTTL:        time.Hour,
		SuccessRedirect:     "https://app.example.com/signed-in",
		FailureRedirect:     "https://app.example.com/sign-in-failed",
	}
}

// seedAccount stores an active password account and returns it.
func seedAccount(t *testing.T, store *authtest.Store, email, password string, mutate func(*auth.AccountParams)) *auth.Account {
	t.Helper()
	hash, err := auth.NewArgon2idHasher().Hash(password)
	require.NoError(t, err)
	params := auth.AccountParams{
		Email:        email,
		PasswordHash: hash,
		Active:       true,
		DefaultRole:  "user",
		AllowedRoles: []string{"user", "me"},
		Ticket:       auth.Ticket{Value: "seed-" + email, ExpiresAt: time.Now().Add(time.Hour)},
		User:         auth.UserFields{DisplayName: email},
	}
	if mutate != nil {
		mutate(&params)
	}
	account, err := auth.NewAccount(params)
	require.NoError(t, err)
	require.NoError(t, store.Accounts().Create(t.Context(), account, nil))
	return account
}

type serviceFixture struct {
	store  *authtest.Store
	clock  *fakeClock
	svc    *auth.Service
	tokens *auth.SessionTokenIssuer
	mailer *recordingMailer
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []auth.ActivationMessage
	err  error
}

func (m *recordingMailer) SendActivation(_ context.Context, msg auth.ActivationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) Sent() []auth.ActivationMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auth.ActivationMessage(nil), m.sent...)
}

func newServiceFixture(t *testing.T, policy auth.Policy, opts ...auth.CredentialOption) *serviceFixture {
	t.Helper()
	store := authtest.NewStore()
	clock := newFakeClock()

	credentials, err := auth.NewCredentialVerifier(auth.NewArgon2idHasher(),
		append([]auth.CredentialOption{auth.WithCredentialLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)

	tokens, err := auth.NewSessionTokenIssuer(auth.SessionTokenConfig{
		Algorithm: "HS256",
		Key:       []byte("0123456789abcdef0123456789abcdef"),
		ExpiresIn: 15 * time.Minute,
	}, clock.Now)
	require.NoError(t, err)

	github, err := auth.NewIdentityProvider("github", auth.ProviderKindGitHub)
	require.NoError(t, err)
	google, err := auth.NewIdentityProvider("google", auth.ProviderKindOIDC)
	require.NoError(t, err)
	registry, err := auth.NewProviderRegistry(github, google)
	require.NoError(t, err)

	mailer := &recordingMailer{}
	svc, err := auth.NewService(auth.Dependencies{
		Accounts:      store.Accounts(),
		Links:         store.Links(),
		RefreshTokens: store.RefreshTokens(),
		UserRecords:   store.UserRecords(),
		Credentials:   credentials,
		SessionTokens: tokens,
		Providers:     registry,
		Mailer:        mailer,
		RefreshTTL:    30 * 24 * time.Hour,
		Logger:        discardLogger(),
		Now:           clock.Now,
	}, policy)
	require.NoError(t, err)

	return &serviceFixture{store: store, clock: clock, svc: svc, tokens: tokens, mailer: mailer}
}
