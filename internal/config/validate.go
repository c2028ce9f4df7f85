// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package config

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/oops"
)

var (
	jwtAlgorithms = []string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}
	providerKinds = []string{"", "oidc", "github", "facebook"}
)

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code(CodeInvalid).With("key", key).Errorf(format, args...)
	}

	switch {
	case c.Server.Addr == "":
		return invalid("server.addr", "server.addr is required")
	case c.Log.Format != "json" && c.Log.Format != "text":
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	case c.Database.URL == "":
		return invalid("database.url", "database.url is required (or set %s)", EnvDatabaseURL)
	case c.Database.ConnectAttempts < 1:
		return invalid("database.connect_attempts", "database.connect_attempts must be at least 1")
	case !slices.Contains(jwtAlgorithms, strings.ToUpper(c.JWT.Algorithm)):
		return invalid("jwt.algorithm", "unsupported jwt.algorithm %q", c.JWT.Algorithm)
	case c.JWT.Key == "":
		return invalid("jwt.key", "jwt.key is required (or set %s)", EnvJWTKey)
	case c.JWT.ClaimsNamespace == "":
		return invalid("jwt.claims_namespace", "jwt.claims_namespace is required")
	}

	for key, ttl := range map[string]time.Duration{
		"jwt.expires_in":        c.JWT.ExpiresIn,
		"refresh.expires_in":    c.Refresh.ExpiresIn,
		"ticket.activation_ttl": c.Ticket.ActivationTTL,
		"ticket.mfa_ttl":        c.Ticket.MFATTL,
		"oauth.state_ttl":       c.OAuth.StateTTL,
	} {
		if ttl <= 0 {
			return invalid(key, "%s must be positive", key)
		}
	}

	if err := c.Registration.validate(); err != nil {
		return err
	}
	if c.Registration.VerifyEmails && !c.Registration.AutoActivate && !c.Emails.Enabled {
		return invalid("emails.enabled", "email verification requires emails.enabled")
	}
	if c.Anonymous.Enabled && c.Anonymous.Role == "" {
		return invalid("anonymous.role", "anonymous.role is required when anonymous sign-in is enabled")
	}
	if c.Breach.Enabled && c.Breach.Timeout <= 0 {
		return invalid("breach.timeout", "breach.timeout must be positive")
	}

	for name, p := range c.OAuth.Providers {
		key := "oauth.providers." + name
		switch {
		case !slices.Contains(providerKinds, strings.ToLower(p.Kind)):
			return invalid(key+".kind", "provider %q has unknown kind %q", name, p.Kind)
		case p.ClientID == "" || p.ClientSecret == "":
			return invalid(key, "provider %q requires client_id and client_secret", name)
		case p.AuthURL == "" || p.TokenURL == "" || p.UserinfoURL == "":
			return invalid(key, "provider %q requires auth_url, token_url, and userinfo_url", name)
		}
	}
	if len(c.OAuth.Providers) > 0 && c.OAuth.SuccessRedirect == "" {
		return invalid("oauth.success_redirect", "oauth.success_redirect is required when providers are configured")
	}
	if len(c.OAuth.Providers) > 0 && c.OAuth.FailureRedirect == "" {
		return invalid("oauth.failure_redirect", "oauth.failure_redirect is required when providers are configured")
	}
	return nil
}

// validate checks that default_role ∈ default_allowed_roles ⊆ allowed_roles.
func (r Registration) validate() error {
	if r.DefaultRole == "" {
		return oops.Code(CodeInvalid).With("key", "registration.default_role").
			Errorf("registration.default_role is required")
	}
	if !slices.Contains(r.DefaultAllowedRoles, r.DefaultRole) {
		return oops.Code(CodeInvalid).With("key", "registration.default_role").
			Errorf("registration.default_role %q is not in registration.default_allowed_roles", r.DefaultRole)
	}
	for _, role := range r.DefaultAllowedRoles {
		if !slices.Contains(r.AllowedRoles, role) {
			return oops.Code(CodeInvalid).With("key", "registration.default_allowed_roles").
				Errorf("default allowed role %q is not in registration.allowed_roles", role)
		}
	}
	return nil
}
