// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package oauthflow runs the authorization-code leg of provider sign-in and
// fetches the provider's userinfo document. Interpreting that document is
// left to the auth package's provider variants.
package oauthflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/samber/oops"
	"golang.org/x/oauth2"

	"github.com/authgate/authgate/internal/auth"
)

// stateBytes is the entropy of a generated state value.
const stateBytes = 24

// ProviderConfig describes one OAuth2 provider.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserinfoURL  string
	RedirectURL  string
	Scopes       []string
}

type provider struct {
	oauth       *oauth2.Config
	userinfoURL string
}

// Flow holds the OAuth2 configuration of every enabled provider.
type Flow struct {
	providers  map[string]provider
	httpClient *http.Client
}

// Option configures a Flow.
type Option func(*Flow)

// WithHTTPClient sets the client used for token exchange and userinfo requests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) {
		f.httpClient = c
	}
}

// New creates a Flow for the given providers.
func New(configs []ProviderConfig, opts ...Option) (*Flow, error) {
	f := &Flow{providers: make(map[string]provider, len(configs))}
	for _, opt := range opts {
		opt(f)
	}
	for _, cfg := range configs {
		switch {
		case cfg.Name == "":
			return nil, oops.Errorf("provider name is required")
		case cfg.ClientID == "" || cfg.ClientSecret == "":
			return nil, oops.With("provider", cfg.Name).Errorf("client id and secret are required")
		case cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.UserinfoURL == "":
			return nil, oops.With("provider", cfg.Name).Errorf("auth, token, and userinfo URLs are required")
		}
		if _, dup := f.providers[cfg.Name]; dup {
			return nil, oops.With("provider", cfg.Name).Errorf("provider configured twice")
		}
		f.providers[cfg.Name] = provider{
			oauth: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
				RedirectURL:  cfg.RedirectURL,
				Scopes:       cfg.Scopes,
			},
			userinfoURL: cfg.UserinfoURL,
		}
	}
	return f, nil
}

// Names returns the configured provider names in sorted order.
func (f *Flow) Names() []string {
	names := make([]string, 0, len(f.providers))
	for name := range f.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Flow) lookup(name string) (provider, error) {
	p, ok := f.providers[name]
	if !ok {
		return provider{}, oops.Code(auth.CodeProviderUnknown).
			With("provider", name).
			Errorf("unknown provider")
	}
	return p, nil
}

// AuthCodeURL returns the provider's consent URL carrying state.
func (f *Flow) AuthCodeURL(name, state string) (string, error) {
	p, err := f.lookup(name)
	if err != nil {
		return "", err
	}
	return p.oauth.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for provider tokens and fetches the
// userinfo document with them.
func (f *Flow) Exchange(ctx context.Context, name, code string) (auth.RawProfile, auth.ProviderTokens, error) {
	p, err := f.lookup(name)
	if err != nil {
		return nil, auth.ProviderTokens{}, err
	}
	if code == "" {
		return nil, auth.ProviderTokens{}, oops.Code(auth.CodeInvalidInput).
			With("provider", name).
			Errorf("authorization code is required")
	}
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, auth.ProviderTokens{}, oops.Code(auth.CodeProviderLookupFailed).
			With("operation", "exchange code").
			With("provider", name).
			Wrap(err)
	}

	profile, err := fetchUserinfo(ctx, p.oauth.Client(ctx, token), p.userinfoURL)
	if err != nil {
		return nil, auth.ProviderTokens{}, oops.Code(auth.CodeProviderLookupFailed).
			With("operation", "fetch userinfo").
			With("provider", name).
			Wrap(err)
	}
	return profile, auth.ProviderTokens{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}, nil
}

func fetchUserinfo(ctx context.Context, client *http.Client, url string) (auth.RawProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, oops.Wrap(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, oops.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, oops.With("status", resp.StatusCode).Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var profile auth.RawProfile
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&profile); err != nil {
		return nil, oops.Wrapf(err, "decode userinfo")
	}
	return profile, nil
}

// NewState returns a random URL-safe state value.
func NewState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
