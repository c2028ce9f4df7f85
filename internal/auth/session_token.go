// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultClaimsNamespace is the claim under which permission variables are nested.
const DefaultClaimsNamespace = "https://hasura.io/jwt/claims"

// Permission variable names.
const (
	ClaimUserID       = "x-hasura-user-id"
	ClaimDefaultRole  = "x-hasura-default-role"
	ClaimAllowedRoles = "x-hasura-allowed-roles"
)

// SessionTokenConfig configures a SessionTokenIssuer.
type SessionTokenConfig struct {
	Algorithm       string // HS256, HS384, HS512, RS256, RS384, RS512, ES256, ES384, ES512
	Key             []byte // shared secret for HS*, PEM private key otherwise
	ExpiresIn       time.Duration
	ClaimsNamespace string
	CustomFields    []string // user profile fields copied into x-hasura-<field>
}

// SessionToken is a signed, short-lived access token.
type SessionToken struct {
	Value     string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// SessionClaims are the verified contents of a session token.
type SessionClaims struct {
	Subject   string
	ExpiresAt time.Time
	Variables map[string]any
}

// UserID returns the x-hasura-user-id variable.
func (c *SessionClaims) UserID() string {
	s, _ := c.Variables[ClaimUserID].(string)
	return s
}

// SessionTokenIssuer signs and verifies session tokens.
type SessionTokenIssuer struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	ttl       time.Duration
	namespace string
	fields    []string
	now       func() time.Time
}

// NewSessionTokenIssuer creates a SessionTokenIssuer.
func NewSessionTokenIssuer(cfg SessionTokenConfig, now func() time.Time) (*SessionTokenIssuer, error) {
	if cfg.ExpiresIn <= 0 {
		return nil, oops.Code(CodeSessionTokenConfigFailed).Errorf("session token expiry must be positive")
	}
	if len(cfg.Key) == 0 {
		return nil, oops.Code(CodeSessionTokenConfigFailed).Errorf("session token key is required")
	}
	alg := strings.ToUpper(cfg.Algorithm)
	if alg == "" {
		alg = "HS256"
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, oops.Code(CodeSessionTokenConfigFailed).
			With("algorithm", cfg.Algorithm).
			Errorf("unsupported signing algorithm")
	}
	if now == nil {
		now = time.Now
	}
	ns := cfg.ClaimsNamespace
	if ns == "" {
		ns = DefaultClaimsNamespace
	}

	issuer := &SessionTokenIssuer{
		method:    method,
		ttl:       cfg.ExpiresIn,
		namespace: ns,
		fields:    cfg.CustomFields,
		now:       now,
	}

	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		issuer.signKey = cfg.Key
		issuer.verifyKey = cfg.Key
	case *jwt.SigningMethodRSA:
		key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.Key)
		if err != nil {
			return nil, oops.Code(CodeSessionTokenConfigFailed).With("algorithm", alg).Wrap(err)
		}
		issuer.signKey = key
		issuer.verifyKey = &key.PublicKey
	case *jwt.SigningMethodECDSA:
		key, err := jwt.ParseECPrivateKeyFromPEM(cfg.Key)
		if err != nil {
			return nil, oops.Code(CodeSessionTokenConfigFailed).With("algorithm", alg).Wrap(err)
		}
		issuer.signKey = key
		issuer.verifyKey = &key.PublicKey
	default:
		return nil, oops.Code(CodeSessionTokenConfigFailed).
			With("algorithm", alg).
			Errorf("unsupported signing algorithm")
	}
	return issuer, nil
}

// TTL returns the lifetime of issued session tokens.
func (i *SessionTokenIssuer) TTL() time.Duration {
	return i.ttl
}

// PermissionVariables returns the claims an account is granted.
func (i *SessionTokenIssuer) PermissionVariables(account *Account) map[string]any {
	vars := map[string]any{
		ClaimUserID:       account.User.ID.String(),
		ClaimDefaultRole:  account.DefaultRole,
		ClaimAllowedRoles: append([]string{}, account.AllowedRoles...),
	}
	profile := account.Profile()
	for _, field := range i.fields {
		var value string
		switch field {
		case "display_name":
			value = profile.DisplayName
		case "name":
			value = profile.Name
		case "email":
			value = profile.Email
		case "avatar_url":
			value = profile.AvatarURL
		case "phone_number":
			value = profile.PhoneNumber
		default:
			continue
		}
		vars["x-hasura-"+strings.ReplaceAll(field, "_", "-")] = value
	}
	return vars
}

// Issue signs a session token for the account.
func (i *SessionTokenIssuer) Issue(account *Account) (SessionToken, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := jwt.MapClaims{
		"sub":       account.User.ID.String(),
		"iat":       jwt.NewNumericDate(now),
		"exp":       jwt.NewNumericDate(expiresAt),
		i.namespace: i.PermissionVariables(account),
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.signKey)
	if err != nil {
		return SessionToken{}, oops.Code(CodeSessionTokenSignFailed).
			With("operation", "sign session token").
			Wrap(err)
	}
	return SessionToken{Value: signed, ExpiresAt: expiresAt, ExpiresIn: i.ttl}, nil
}

// Parse verifies a session token and returns its claims.
func (i *SessionTokenIssuer) Parse(token string) (*SessionClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.verifyKey, nil
	},
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, oops.Code(CodeSessionTokenInvalid).Wrapf(err, "invalid session token")
	}

	out := &SessionClaims{Variables: map[string]any{}}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if vars, ok := claims[i.namespace].(map[string]any); ok {
		out.Variables = vars
	}
	return out, nil
}
