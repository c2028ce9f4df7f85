// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// dummyPasswordHash is verified against when an account has no usable hash so
// that unknown accounts cost the same as known ones.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// BreachChecker reports whether a password appears in a breach corpus.
type BreachChecker interface {
	IsBreached(ctx context.Context, password string) (bool, error)
}

// CredentialVerifier hashes, verifies, and screens passwords.
type CredentialVerifier struct {
	hasher   PasswordHasher
	breach   BreachChecker // nil disables screening
	failOpen bool
	logger   *slog.Logger
}

// CredentialOption configures a CredentialVerifier.
type CredentialOption func(*CredentialVerifier)

// WithBreachChecker enables breach screening. When failOpen is true an
// unreachable checker lets the password through; otherwise CheckStrength
// fails with a dependency error.
func WithBreachChecker(checker BreachChecker, failOpen bool) CredentialOption {
	return func(v *CredentialVerifier) {
		v.breach = checker
		v.failOpen = failOpen
	}
}

// WithCredentialLogger sets the logger used for breach lookup warnings.
func WithCredentialLogger(logger *slog.Logger) CredentialOption {
	return func(v *CredentialVerifier) {
		v.logger = logger
	}
}

// NewCredentialVerifier creates a CredentialVerifier.
func NewCredentialVerifier(hasher PasswordHasher, opts ...CredentialOption) (*CredentialVerifier, error) {
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	v := &CredentialVerifier{hasher: hasher, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return v, nil
}

// Hash hashes the password. It fails only when the hashing primitive fails.
func (v *CredentialVerifier) Hash(password string) (string, error) {
	hash, err := v.hasher.Hash(password)
	if err != nil {
		return "", oops.Code(CodeHashFailed).With("operation", "hash password").Wrap(err)
	}
	return hash, nil
}

// Verify reports whether password matches hash. An empty or malformed hash
// never matches.
func (v *CredentialVerifier) Verify(password, hash string) bool {
	target := hash
	if target == "" {
		target = dummyPasswordHash
	}
	ok, err := v.hasher.Verify(password, target)
	if err != nil {
		v.logger.Warn("stored password hash is malformed", "error", err)
		return false
	}
	return ok && hash != ""
}

// NeedsUpgrade reports whether hash should be replaced with a fresh hash.
func (v *CredentialVerifier) NeedsUpgrade(hash string) bool {
	return hash != "" && v.hasher.NeedsUpgrade(hash)
}

// CheckStrength rejects breached passwords. It is a no-op when no breach
// checker is configured.
func (v *CredentialVerifier) CheckStrength(ctx context.Context, password string) error {
	if v.breach == nil {
		return nil
	}
	breached, err := v.breach.IsBreached(ctx, password)
	if err != nil {
		if v.failOpen {
			recordBreachCheck("unavailable_allowed")
			v.logger.WarnContext(ctx, "breach lookup failed, allowing password", "error", err)
			return nil
		}
		recordBreachCheck("unavailable_rejected")
		return oops.Code(CodeBreachCheckUnavailable).
			With("operation", "breach lookup").
			Wrap(err)
	}
	if breached {
		recordBreachCheck("breached")
		return oops.Code(CodeWeakPassword).Errorf("password is too weak")
	}
	recordBreachCheck("clean")
	return nil
}
