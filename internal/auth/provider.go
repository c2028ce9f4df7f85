// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RawProfile is the provider's userinfo document as decoded JSON.
type RawProfile map[string]any

// ProviderProfile is a provider identity normalized for account resolution.
type ProviderProfile struct {
	SubjectID   string
	Email       string
	DisplayName string
	AvatarURL   string
}

// ProviderTokens are the provider-issued credentials kept on a link.
type ProviderTokens struct {
	AccessToken  string
	RefreshToken string
}

// IdentityProvider turns a provider's raw profile into a ProviderProfile.
type IdentityProvider interface {
	Name() string
	Normalize(raw RawProfile) (ProviderProfile, error)
}

// Provider kinds understood by NewIdentityProvider.
const (
	ProviderKindOIDC     = "oidc"
	ProviderKindGitHub   = "github"
	ProviderKindFacebook = "facebook"
)

// NewIdentityProvider returns the provider variant for kind registered under name.
func NewIdentityProvider(name, kind string) (IdentityProvider, error) {
	if name == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("provider name cannot be empty")
	}
	switch strings.ToLower(kind) {
	case "", ProviderKindOIDC:
		return OIDCProvider{name: name}, nil
	case ProviderKindGitHub:
		return GitHubProvider{name: name}, nil
	case ProviderKindFacebook:
		return FacebookProvider{name: name}, nil
	default:
		return nil, oops.Code(CodeProviderUnknown).
			With("provider", name).
			With("kind", kind).
			Errorf("unknown provider kind")
	}
}

// OIDCProvider reads standard OpenID Connect userinfo claims.
type OIDCProvider struct{ name string }

// Name implements IdentityProvider.
func (p OIDCProvider) Name() string { return p.name }

// Normalize implements IdentityProvider.
func (p OIDCProvider) Normalize(raw RawProfile) (ProviderProfile, error) {
	profile := ProviderProfile{
		SubjectID:   raw.str("sub"),
		Email:       raw.str("email"),
		DisplayName: raw.str("name"),
		AvatarURL:   raw.str("picture"),
	}
	if profile.DisplayName == "" {
		profile.DisplayName = strings.TrimSpace(raw.str("given_name") + " " + raw.str("family_name"))
	}
	return profile.validate(p.name)
}

// GitHubProvider reads the GitHub user API document.
type GitHubProvider struct{ name string }

// Name implements IdentityProvider.
func (p GitHubProvider) Name() string { return p.name }

// Normalize implements IdentityProvider.
func (p GitHubProvider) Normalize(raw RawProfile) (ProviderProfile, error) {
	profile := ProviderProfile{
		SubjectID:   raw.str("id"),
		Email:       raw.str("email"),
		DisplayName: raw.str("name"),
		AvatarURL:   raw.str("avatar_url"),
	}
	if profile.DisplayName == "" {
		profile.DisplayName = raw.str("login")
	}
	return profile.validate(p.name)
}

// FacebookProvider reads the Graph API /me document.
type FacebookProvider struct{ name string }

// Name implements IdentityProvider.
func (p FacebookProvider) Name() string { return p.name }

// Normalize implements IdentityProvider.
func (p FacebookProvider) Normalize(raw RawProfile) (ProviderProfile, error) {
	profile := ProviderProfile{
		SubjectID:   raw.str("id"),
		Email:       raw.str("email"),
		DisplayName: raw.str("name"),
	}
	if picture, ok := raw["picture"].(map[string]any); ok {
		if data, ok := picture["data"].(map[string]any); ok {
			profile.AvatarURL = RawProfile(data).str("url")
		}
	}
	return profile.validate(p.name)
}

func (p ProviderProfile) validate(provider string) (ProviderProfile, error) {
	if p.SubjectID == "" {
		return ProviderProfile{}, oops.Code(CodeProviderProfileInvalid).
			With("provider", provider).
			Errorf("provider profile has no subject id")
	}
	p.Email = NormalizeEmail(p.Email)
	return p, nil
}

// str returns the string form of a scalar field. JSON numbers become their
// integer representation so numeric subject ids survive decoding.
func (r RawProfile) str(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ProviderRegistry maps provider names to their variants.
type ProviderRegistry struct {
	providers map[string]IdentityProvider
}

// NewProviderRegistry creates a registry. Names must be unique.
func NewProviderRegistry(providers ...IdentityProvider) (*ProviderRegistry, error) {
	r := &ProviderRegistry{providers: make(map[string]IdentityProvider, len(providers))}
	for _, p := range providers {
		if _, dup := r.providers[p.Name()]; dup {
			return nil, oops.Code(CodeInvalidInput).
				With("provider", p.Name()).
				Errorf("provider registered twice")
		}
		r.providers[p.Name()] = p
	}
	return r, nil
}

// Lookup returns the provider registered under name.
func (r *ProviderRegistry) Lookup(name string) (IdentityProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in sorted order.
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderLink binds an external identity to an account.
type ProviderLink struct {
	ID           ulid.ULID
	AccountID    ulid.ULID
	Provider     string
	SubjectID    string
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewProviderLink creates a validated ProviderLink.
func NewProviderLink(accountID ulid.ULID, provider, subjectID string, tokens ProviderTokens) (*ProviderLink, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code(CodeInvalidInput).Errorf("account ID cannot be zero")
	}
	if provider == "" || subjectID == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("provider and subject id are required")
	}
	now := time.Now()
	return &ProviderLink{
		ID:           ulid.Make(),
		AccountID:    accountID,
		Provider:     provider,
		SubjectID:    subjectID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ProviderLinkRepository manages provider link persistence.
type ProviderLinkRepository interface {
	// Find returns the link for (provider, subjectID) and its account.
	// Returns ErrNotFound if no link exists.
	Find(ctx context.Context, provider, subjectID string) (*ProviderLink, *Account, error)

	// Create stores a link. Returns ErrConflict if (provider, subjectID) is taken.
	Create(ctx context.Context, link *ProviderLink) error

	// UpdateTokens replaces the provider tokens stored on a link.
	UpdateTokens(ctx context.Context, linkID ulid.ULID, tokens ProviderTokens) error
}
