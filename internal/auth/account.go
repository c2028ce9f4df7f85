// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User is the profile attached to an Account.
type User struct {
	ID          ulid.ULID
	DisplayName string
	Name        string
	AvatarURL   string
	PhoneNumber string
}

// Account is the credential-bearing identity a User authenticates as.
type Account struct {
	ID              ulid.ULID
	User            User
	Email           string // empty for anonymous and provider-only accounts without email
	PasswordHash    string // empty when the account has no password credential
	Active          bool
	IsAnonymous     bool
	DefaultRole     string
	AllowedRoles    []string
	Ticket          string
	TicketExpiresAt time.Time
	MFAEnabled      bool
	NewEmail        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasPassword reports whether the account can authenticate with a password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// HasRole reports whether role is one of the account's allowed roles.
func (a *Account) HasRole(role string) bool {
	return slices.Contains(a.AllowedRoles, role)
}

// UserProfile is the client-facing projection of an Account and its User.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Profile returns the client-facing projection of the account.
func (a *Account) Profile() UserProfile {
	return UserProfile{
		ID:          a.User.ID.String(),
		DisplayName: a.User.DisplayName,
		Name:        a.User.Name,
		Email:       a.Email,
		AvatarURL:   a.User.AvatarURL,
		PhoneNumber: a.User.PhoneNumber,
	}
}

// UserFields holds caller-supplied profile data merged into a new User.
type UserFields struct {
	DisplayName string `json:"display_name,omitempty"`
	Name        string `json:"name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// merge overlays non-empty fields of other onto f.
func (f UserFields) merge(other UserFields) UserFields {
	if other.DisplayName != "" {
		f.DisplayName = other.DisplayName
	}
	if other.Name != "" {
		f.Name = other.Name
	}
	if other.AvatarURL != "" {
		f.AvatarURL = other.AvatarURL
	}
	if other.PhoneNumber != "" {
		f.PhoneNumber = other.PhoneNumber
	}
	return f
}

// AccountParams describes an account to be created.
type AccountParams struct {
	Email        string
	PasswordHash string
	Active       bool
	IsAnonymous  bool
	DefaultRole  string
	AllowedRoles []string
	Ticket       Ticket
	User         UserFields
}

// NewAccount creates a validated Account with fresh account and user IDs.
// The default role must be one of the allowed roles.
func NewAccount(p AccountParams) (*Account, error) {
	if p.DefaultRole == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("default role cannot be empty")
	}
	if len(p.AllowedRoles) == 0 {
		return nil, oops.Code(CodeInvalidInput).Errorf("allowed roles cannot be empty")
	}
	if !slices.Contains(p.AllowedRoles, p.DefaultRole) {
		return nil, oops.Code(CodeDefaultRoleNotAllowed).
			With("default_role", p.DefaultRole).
			Errorf("default role must be one of the allowed roles")
	}
	if p.Ticket.Value == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("ticket cannot be empty")
	}

	roles := slices.Clone(p.AllowedRoles)
	slices.Sort(roles)
	roles = slices.Compact(roles)

	now := time.Now()
	return &Account{
		ID: ulid.Make(),
		User: User{
			ID:          ulid.Make(),
			DisplayName: p.User.DisplayName,
			Name:        p.User.Name,
			AvatarURL:   p.User.AvatarURL,
			PhoneNumber: p.User.PhoneNumber,
		},
		Email:           NormalizeEmail(p.Email),
		PasswordHash:    p.PasswordHash,
		Active:          p.Active,
		IsAnonymous:     p.IsAnonymous,
		DefaultRole:     p.DefaultRole,
		AllowedRoles:    roles,
		Ticket:          p.Ticket.Value,
		TicketExpiresAt: p.Ticket.ExpiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RolePolicy governs which roles a self-registering account may request.
type RolePolicy struct {
	DefaultRole         string
	DefaultAllowedRoles []string
	AllowedRoles        []string // global whitelist
}

// Resolve validates requested roles against the policy and fills defaults.
// An empty allowed list yields the policy's default allowed roles; an empty
// default role yields the policy's default role.
func (p RolePolicy) Resolve(defaultRole string, allowed []string) (string, []string, error) {
	if len(allowed) == 0 {
		allowed = p.DefaultAllowedRoles
	}
	if defaultRole == "" {
		defaultRole = p.DefaultRole
	}
	for _, role := range allowed {
		if !slices.Contains(p.AllowedRoles, role) {
			return "", nil, oops.Code(CodeRoleNotAllowed).
				With("role", role).
				Errorf("role %q is not allowed", role)
		}
	}
	if !slices.Contains(allowed, defaultRole) {
		return "", nil, oops.Code(CodeDefaultRoleNotAllowed).
			With("default_role", defaultRole).
			Errorf("default role must be one of the allowed roles")
	}
	return defaultRole, slices.Clone(allowed), nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account together with its user and roles. When link
	// is non-nil the provider link is inserted in the same transaction.
	// Returns ErrConflict if the email, user name, or provider identity is taken.
	Create(ctx context.Context, account *Account, link *ProviderLink) error

	// GetByID retrieves an account by its ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by normalized email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByUserName retrieves an account by its user's name.
	GetByUserName(ctx context.Context, name string) (*Account, error)

	// ConsumeTicket atomically replaces an unexpired ticket with next,
	// optionally marking the account active. Returns ErrNotFound when no
	// account holds the ticket and ErrExpired when it is past its expiry.
	ConsumeTicket(ctx context.Context, params ConsumeTicketParams) (*Account, error)

	// SetTicket overwrites the account's ticket.
	SetTicket(ctx context.Context, accountID ulid.ULID, ticket Ticket) error

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, accountID ulid.ULID, hash string) error
}

// ConsumeTicketParams describes an atomic ticket consumption.
type ConsumeTicketParams struct {
	Ticket   string
	Now      time.Time
	Next     Ticket
	Activate bool
}

// UserRecord is the application-side record written after registration.
type UserRecord struct {
	AccountID ulid.ULID
	Name      string
	Email     string
	CreatedAt time.Time
}

// UserRecordRepository writes application-side user records.
type UserRecordRepository interface {
	// Create stores a user record. Returns ErrConflict if one exists for the account.
	Create(ctx context.Context, record *UserRecord) error
}
