// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshTokenBytes is the entropy of a refresh token (64 hex chars).
const RefreshTokenBytes = 32

// RefreshToken is the stored form of a refresh token. Only the hash of the
// client-held value is persisted.
type RefreshToken struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the token is past its expiry at now. A token
// is still valid at exactly its expiry instant.
func (t *RefreshToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// DeliveryMode selects how a refresh token travels back to the client.
type DeliveryMode int

// Delivery modes.
const (
	DeliveryCookie DeliveryMode = iota // http-only cookie, never in the body
	DeliveryBody                       // returned in the response body
)

// IssuedRefreshToken is a freshly minted refresh token in clear.
type IssuedRefreshToken struct {
	Value     string
	ExpiresAt time.Time
	Mode      DeliveryMode
}

// RotateParams describes an atomic refresh-token rotation.
type RotateParams struct {
	PresentedHash string
	Now           time.Time
	Next          *RefreshToken // AccountID is filled by the store from the consumed token
}

// RefreshTokenRepository manages refresh token persistence.
type RefreshTokenRepository interface {
	// Create stores a new refresh token.
	Create(ctx context.Context, token *RefreshToken) error

	// Rotate deletes the unexpired token matching PresentedHash and inserts
	// Next bound to the same account, in one transaction. Returns the account
	// ID, or ErrNotFound when no unexpired token matched. Nothing is
	// persisted when the insert fails.
	Rotate(ctx context.Context, params RotateParams) (ulid.ULID, error)

	// DeleteByHash removes a token. Missing tokens are not an error.
	DeleteByHash(ctx context.Context, tokenHash string) error

	// DeleteExpired removes tokens past their expiry at now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// GenerateRefreshToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateRefreshToken() (string, string, error) {
	b := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", oops.Code(CodeRefreshGenerateFailed).Wrap(err)
	}
	token := hex.EncodeToString(b)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken computes the SHA256 hash of a refresh token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenRotator issues and rotates refresh tokens.
type RefreshTokenRotator struct {
	tokens   RefreshTokenRepository
	accounts AccountRepository
	ttl      time.Duration
	now      func() time.Time
}

// NewRefreshTokenRotator creates a RefreshTokenRotator whose tokens live for ttl.
func NewRefreshTokenRotator(tokens RefreshTokenRepository, accounts AccountRepository, ttl time.Duration, now func() time.Time) (*RefreshTokenRotator, error) {
	if tokens == nil {
		return nil, oops.Errorf("refresh token repository is required")
	}
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if ttl <= 0 {
		return nil, oops.Errorf("refresh token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &RefreshTokenRotator{tokens: tokens, accounts: accounts, ttl: ttl, now: now}, nil
}

// TTL returns the lifetime of issued refresh tokens.
func (r *RefreshTokenRotator) TTL() time.Duration {
	return r.ttl
}

func (r *RefreshTokenRotator) mint(accountID ulid.ULID, now time.Time) (*RefreshToken, string, error) {
	value, hash, err := GenerateRefreshToken()
	if err != nil {
		return nil, "", err
	}
	return &RefreshToken{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: hash,
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}, value, nil
}

// Issue mints and stores a refresh token for the account.
func (r *RefreshTokenRotator) Issue(ctx context.Context, accountID ulid.ULID, mode DeliveryMode) (IssuedRefreshToken, error) {
	token, value, err := r.mint(accountID, r.now())
	if err != nil {
		return IssuedRefreshToken{}, err
	}
	if err := r.tokens.Create(ctx, token); err != nil {
		return IssuedRefreshToken{}, oops.Code(CodeStoreUnavailable).
			With("operation", "create refresh token").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return IssuedRefreshToken{Value: value, ExpiresAt: token.ExpiresAt, Mode: mode}, nil
}

// Rotate exchanges a presented refresh token for a successor. The presented
// token is unusable afterwards whether or not the caller sees the result.
func (r *RefreshTokenRotator) Rotate(ctx context.Context, presented string, now time.Time, mode DeliveryMode) (*Account, IssuedRefreshToken, error) {
	if presented == "" {
		return nil, IssuedRefreshToken{}, oops.Code(CodeRefreshInvalid).Errorf("invalid or expired refresh token")
	}

	next, value, err := r.mint(ulid.ULID{}, now)
	if err != nil {
		return nil, IssuedRefreshToken{}, err
	}

	accountID, err := r.tokens.Rotate(ctx, RotateParams{
		PresentedHash: HashRefreshToken(presented),
		Now:           now,
		Next:          next,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordRefreshRotation("rejected")
			return nil, IssuedRefreshToken{}, oops.Code(CodeRefreshInvalid).Errorf("invalid or expired refresh token")
		}
		recordRefreshRotation("failed")
		return nil, IssuedRefreshToken{}, oops.Code(CodeRefreshRotationFailed).
			With("operation", "rotate refresh token").
			Wrap(err)
	}

	account, err := r.accounts.GetByID(ctx, accountID)
	if err != nil {
		recordRefreshRotation("failed")
		return nil, IssuedRefreshToken{}, oops.Code(CodeStoreUnavailable).
			With("operation", "get account by id").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	recordRefreshRotation("rotated")
	return account, IssuedRefreshToken{Value: value, ExpiresAt: next.ExpiresAt, Mode: mode}, nil
}

// Revoke deletes a refresh token. Unknown tokens are ignored.
func (r *RefreshTokenRotator) Revoke(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	if err := r.tokens.DeleteByHash(ctx, HashRefreshToken(presented)); err != nil {
		return oops.Code(CodeStoreUnavailable).
			With("operation", "delete refresh token").
			Wrap(err)
	}
	return nil
}

// Prune removes expired refresh tokens.
func (r *RefreshTokenRotator) Prune(ctx context.Context) (int64, error) {
	n, err := r.tokens.DeleteExpired(ctx, r.now())
	if err != nil {
		return 0, oops.Code(CodeStoreUnavailable).
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return n, nil
}
