// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/authgate/authgate/pkg/errutil"
)

// OAuthIdentityResolver maps a provider identity onto an account, creating
// or linking one as needed.
type OAuthIdentityResolver struct {
	accounts AccountRepository
	links    ProviderLinkRepository
	tickets  *TicketIssuer
	roles    RolePolicy
	logger   *slog.Logger
}

// NewOAuthIdentityResolver creates an OAuthIdentityResolver.
func NewOAuthIdentityResolver(accounts AccountRepository, links ProviderLinkRepository, tickets *TicketIssuer, roles RolePolicy, logger *slog.Logger) (*OAuthIdentityResolver, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if links == nil {
		return nil, oops.Errorf("provider link repository is required")
	}
	if tickets == nil {
		return nil, oops.Errorf("ticket issuer is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &OAuthIdentityResolver{
		accounts: accounts,
		links:    links,
		tickets:  tickets,
		roles:    roles,
		logger:   logger,
	}, nil
}

// Resolve returns the account for a provider identity. In order it tries an
// existing link, an account with the same email, then creates a new account
// with its user and link in one write.
func (r *OAuthIdentityResolver) Resolve(ctx context.Context, provider string, profile ProviderProfile, tokens ProviderTokens) (*Account, error) {
	link, account, err := r.links.Find(ctx, provider, profile.SubjectID)
	switch {
	case err == nil:
		if updateErr := r.links.UpdateTokens(ctx, link.ID, tokens); updateErr != nil {
			r.logger.WarnContext(ctx, "failed to refresh provider tokens",
				"provider", provider, "account_id", account.ID.String(), "error", updateErr)
		}
		return account, nil
	case errors.Is(err, ErrConflict):
		return nil, oops.Code(CodeProviderLinkConflict).
			With("provider", provider).
			Errorf("provider identity is linked more than once")
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code(CodeProviderLookupFailed).
			With("operation", "find provider link").
			With("provider", provider).
			Wrap(err)
	}

	if profile.Email != "" {
		existing, lookupErr := r.accounts.GetByEmail(ctx, profile.Email)
		switch {
		case lookupErr == nil:
			return r.linkExisting(ctx, existing, provider, profile, tokens)
		case errors.Is(lookupErr, ErrNotFound):
		default:
			r.logger.WarnContext(ctx, "email lookup failed, creating new account",
				"provider", provider, "error", lookupErr)
		}
	}

	return r.create(ctx, provider, profile, tokens)
}

func (r *OAuthIdentityResolver) linkExisting(ctx context.Context, account *Account, provider string, profile ProviderProfile, tokens ProviderTokens) (*Account, error) {
	link, err := NewProviderLink(account.ID, provider, profile.SubjectID, tokens)
	if err != nil {
		return nil, err
	}
	if err := r.links.Create(ctx, link); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, oops.Code(CodeProviderLinkConflict).
				With("provider", provider).
				Errorf("provider identity is already linked")
		}
		return nil, oops.Code(CodeProviderLinkFailed).
			With("operation", "create provider link").
			With("provider", provider).
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return account, nil
}

func (r *OAuthIdentityResolver) create(ctx context.Context, provider string, profile ProviderProfile, tokens ProviderTokens) (*Account, error) {
	ticket, err := r.tickets.Issue(0)
	if err != nil {
		return nil, err
	}
	displayName := profile.DisplayName
	if displayName == "" {
		displayName = profile.Email
	}
	account, err := NewAccount(AccountParams{
		Email:        profile.Email,
		Active:       true,
		DefaultRole:  r.roles.DefaultRole,
		AllowedRoles: r.roles.DefaultAllowedRoles,
		Ticket:       ticket,
		User: UserFields{
			DisplayName: displayName,
			AvatarURL:   profile.AvatarURL,
		},
	})
	if err != nil {
		return nil, err
	}
	link, err := NewProviderLink(account.ID, provider, profile.SubjectID, tokens)
	if err != nil {
		return nil, err
	}

	if err := r.accounts.Create(ctx, account, link); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, oops.Code(CodeProviderLinkConflict).
				With("provider", provider).
				Errorf("provider identity or email is already registered")
		}
		errutil.LogError(r.logger, "failed to create provider account", err)
		return nil, oops.Code(CodeProviderCreateFailed).
			With("operation", "create provider account").
			With("provider", provider).
			Wrap(err)
	}
	return account, nil
}
