// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package config loads the authgate configuration from a YAML file and
// command-line flags. Flags override the file; the file overrides defaults.
package config

import (
	"os"
	"time"
)

// Environment variables consulted when the file and flags leave a secret empty.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvJWTKey      = "AUTHGATE_JWT_KEY"
	EnvCookieKey   = "AUTHGATE_COOKIE_SECRET"
)

// Config is the complete service configuration. Values are copied, never shared.
type Config struct {
	Server       Server       `koanf:"server"`
	Metrics      Metrics      `koanf:"metrics"`
	Log          Log          `koanf:"log"`
	Database     Database     `koanf:"database"`
	JWT          JWT          `koanf:"jwt"`
	Refresh      Refresh      `koanf:"refresh"`
	Cookie       Cookie       `koanf:"cookie"`
	Ticket       Ticket       `koanf:"ticket"`
	Registration Registration `koanf:"registration"`
	Anonymous    Anonymous    `koanf:"anonymous"`
	Breach       Breach       `koanf:"breach"`
	Emails       Emails       `koanf:"emails"`
	OAuth        OAuth        `koanf:"oauth"`
	Redirect     Redirect     `koanf:"redirect"`
}

// Server configures the public HTTP listener.
type Server struct {
	Addr            string        `koanf:"addr"`
	URL             string        `koanf:"url"` // externally visible base URL
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Metrics configures the observability listener. An empty Addr disables it.
type Metrics struct {
	Addr string `koanf:"addr"`
}

// Log configures logging output.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Database configures the PostgreSQL connection.
type Database struct {
	URL             string        `koanf:"url"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	PruneInterval   time.Duration `koanf:"prune_interval"`
}

// JWT configures session token signing.
type JWT struct {
	Algorithm       string        `koanf:"algorithm"`
	Key             string        `koanf:"key"`
	ExpiresIn       time.Duration `koanf:"expires_in"`
	ClaimsNamespace string        `koanf:"claims_namespace"`
	CustomFields    []string      `koanf:"custom_fields"`
}

// Refresh configures refresh token lifetime.
type Refresh struct {
	ExpiresIn time.Duration `koanf:"expires_in"`
}

// Cookie configures refresh-token and permission cookies.
type Cookie struct {
	Secret string `koanf:"secret"`
	Secure bool   `koanf:"secure"`
	Domain string `koanf:"domain"`
}

// Ticket configures ticket lifetimes.
type Ticket struct {
	ActivationTTL time.Duration `koanf:"activation_ttl"`
	MFATTL        time.Duration `koanf:"mfa_ttl"`
}

// Registration configures self-registration.
type Registration struct {
	AutoActivate        bool     `koanf:"auto_activate"`
	VerifyEmails        bool     `koanf:"verify_emails"`
	DefaultRole         string   `koanf:"default_role"`
	DefaultAllowedRoles []string `koanf:"default_allowed_roles"`
	AllowedRoles        []string `koanf:"allowed_roles"`
}

// Anonymous configures anonymous sign-in.
type Anonymous struct {
	Enabled bool   `koanf:"enabled"`
	Role    string `koanf:"role"`
}

// Breach configures password breach screening.
type Breach struct {
	Enabled  bool          `koanf:"enabled"`
	FailOpen bool          `koanf:"fail_open"`
	Endpoint string        `koanf:"endpoint"`
	Timeout  time.Duration `koanf:"timeout"`
}

// Emails toggles outbound activation notices.
type Emails struct {
	Enabled bool `koanf:"enabled"`
}

// OAuth configures provider sign-in.
type OAuth struct {
	SuccessRedirect string              `koanf:"success_redirect"`
	FailureRedirect string              `koanf:"failure_redirect"`
	StateTTL        time.Duration       `koanf:"state_ttl"`
	Providers       map[string]Provider `koanf:"providers"`
}

// Provider configures one OAuth2 identity provider.
type Provider struct {
	Kind         string   `koanf:"kind"` // oidc, github, or facebook
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	AuthURL      string   `koanf:"auth_url"`
	TokenURL     string   `koanf:"token_url"`
	UserinfoURL  string   `koanf:"userinfo_url"`
	Scopes       []string `koanf:"scopes"`
}

// Redirect configures browser targets for the activation link.
type Redirect struct {
	ActivateSuccess string `koanf:"activate_success"`
	ActivateFailure string `koanf:"activate_failure"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":3000",
			URL:             "http://localhost:3000",
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: Metrics{Addr: "127.0.0.1:9100"},
		Log:     Log{Format: "json", Level: "info"},
		Database: Database{
			ConnectAttempts: 5,
			PruneInterval:   time.Hour,
		},
		JWT: JWT{
			Algorithm:       "HS256",
			ExpiresIn:       15 * time.Minute,
			ClaimsNamespace: "https://hasura.io/jwt/claims",
		},
		Refresh: Refresh{ExpiresIn: 43200 * time.Minute},
		Ticket: Ticket{
			ActivationTTL: 30 * 24 * time.Hour,
			MFATTL:        60 * time.Minute,
		},
		Registration: Registration{
			AutoActivate:        true,
			DefaultRole:         "user",
			DefaultAllowedRoles: []string{"user", "me"},
			AllowedRoles:        []string{"user", "me"},
		},
		Anonymous: Anonymous{Role: "anonymous"},
		Breach: Breach{
			FailOpen: true,
			Endpoint: "https://api.pwnedpasswords.com/range/",
			Timeout:  3 * time.Second,
		},
		OAuth: OAuth{StateTTL: 10 * time.Minute},
	}
}

// applyEnv fills secrets the file and flags left empty.
func (c *Config) applyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if c.Database.URL == "" {
		c.Database.URL = getenv(EnvDatabaseURL)
	}
	if c.JWT.Key == "" {
		c.JWT.Key = getenv(EnvJWTKey)
	}
	if c.Cookie.Secret == "" {
		c.Cookie.Secret = getenv(EnvCookieKey)
	}
}
