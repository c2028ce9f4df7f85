// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package authtest provides an in-memory store for auth tests.
package authtest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/authgate/authgate/internal/auth"
)

// Operations that can be made to fail with Store.FailOn.
const (
	OpAccountCreate      = "account.create"
	OpAccountGet         = "account.get"
	OpAccountConsume     = "account.consume_ticket"
	OpAccountSetTicket   = "account.set_ticket"
	OpAccountUpdateHash  = "account.update_password_hash"
	OpLinkFind           = "link.find"
	OpLinkCreate         = "link.create"
	OpLinkUpdateTokens   = "link.update_tokens"
	OpRefreshCreate      = "refresh.create"
	OpRefreshRotateWrite = "refresh.rotate_insert"
	OpRefreshDelete      = "refresh.delete"
	OpRecordCreate       = "record.create"
)

// Store keeps accounts, links, refresh tokens, and user records in memory.
// Every operation holds a single lock, so compound writes are atomic.
type Store struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]*auth.Account
	links    map[ulid.ULID]*auth.ProviderLink
	refresh  map[string]*auth.RefreshToken // by token hash
	records  map[ulid.ULID]*auth.UserRecord
	failures map[string]error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[ulid.ULID]*auth.Account),
		links:    make(map[ulid.ULID]*auth.ProviderLink),
		refresh:  make(map[string]*auth.RefreshToken),
		records:  make(map[ulid.ULID]*auth.UserRecord),
		failures: make(map[string]error),
	}
}

// FailOn makes op return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

// Accounts returns the account repository view.
func (s *Store) Accounts() *Accounts { return &Accounts{s: s} }

// Links returns the provider link repository view.
func (s *Store) Links() *Links { return &Links{s: s} }

// RefreshTokens returns the refresh token repository view.
func (s *Store) RefreshTokens() *RefreshTokens { return &RefreshTokens{s: s} }

// UserRecords returns the user record repository view.
func (s *Store) UserRecords() *UserRecords { return &UserRecords{s: s} }

// Account returns a copy of the stored account, or nil.
func (s *Store) Account(id ulid.ULID) *auth.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return cloneAccount(a)
	}
	return nil
}

// AccountCount returns the number of stored accounts.
func (s *Store) AccountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// RefreshTokenCount returns the number of stored refresh tokens.
func (s *Store) RefreshTokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refresh)
}

// LinksFor returns copies of the links held by an account.
func (s *Store) LinksFor(accountID ulid.ULID) []auth.ProviderLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.ProviderLink
	for _, l := range s.links {
		if l.AccountID == accountID {
			out = append(out, *l)
		}
	}
	return out
}

// Record returns the user record for an account, or nil.
func (s *Store) Record(accountID ulid.ULID) *auth.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[accountID]; ok {
		rec := *r
		return &rec
	}
	return nil
}

func cloneAccount(a *auth.Account) *auth.Account {
	c := *a
	c.AllowedRoles = slices.Clone(a.AllowedRoles)
	return &c
}

func (s *Store) findLocked(match func(*auth.Account) bool) *auth.Account {
	for _, a := range s.accounts {
		if match(a) {
			return a
		}
	}
	return nil
}

// Accounts implements auth.AccountRepository.
type Accounts struct{ s *Store }

var _ auth.AccountRepository = (*Accounts)(nil)

// Create implements auth.AccountRepository.
func (r *Accounts) Create(_ context.Context, account *auth.Account, link *auth.ProviderLink) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpAccountCreate); err != nil {
		return err
	}
	for _, a := range s.accounts {
		if account.Email != "" && a.Email == account.Email {
			return auth.ErrConflict
		}
		if account.User.Name != "" && strings.EqualFold(a.User.Name, account.User.Name) {
			return auth.ErrConflict
		}
		if account.Ticket != "" && a.Ticket == account.Ticket {
			return auth.ErrConflict
		}
	}
	if link != nil {
		for _, l := range s.links {
			if l.Provider == link.Provider && l.SubjectID == link.SubjectID {
				return auth.ErrConflict
			}
		}
		stored := *link
		s.links[link.ID] = &stored
	}
	s.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (r *Accounts) get(match func(*auth.Account) bool) (*auth.Account, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpAccountGet); err != nil {
		return nil, err
	}
	if a := s.findLocked(match); a != nil {
		return cloneAccount(a), nil
	}
	return nil, auth.ErrNotFound
}

// GetByID implements auth.AccountRepository.
func (r *Accounts) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	return r.get(func(a *auth.Account) bool { return a.ID == id })
}

// GetByEmail implements auth.AccountRepository.
func (r *Accounts) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	email = auth.NormalizeEmail(email)
	return r.get(func(a *auth.Account) bool { return email != "" && a.Email == email })
}

// GetByUserName implements auth.AccountRepository.
func (r *Accounts) GetByUserName(_ context.Context, name string) (*auth.Account, error) {
	return r.get(func(a *auth.Account) bool { return name != "" && strings.EqualFold(a.User.Name, name) })
}

// ConsumeTicket implements auth.AccountRepository.
func (r *Accounts) ConsumeTicket(_ context.Context, p auth.ConsumeTicketParams) (*auth.Account, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpAccountConsume); err != nil {
		return nil, err
	}
	a := s.findLocked(func(a *auth.Account) bool { return a.Ticket == p.Ticket })
	if a == nil {
		return nil, auth.ErrNotFound
	}
	if p.Now.After(a.TicketExpiresAt) {
		return nil, auth.ErrExpired
	}
	a.Ticket = p.Next.Value
	a.TicketExpiresAt = p.Next.ExpiresAt
	if p.Activate {
		a.Active = true
	}
	a.UpdatedAt = p.Now
	return cloneAccount(a), nil
}

// SetTicket implements auth.AccountRepository.
func (r *Accounts) SetTicket(_ context.Context, accountID ulid.ULID, ticket auth.Ticket) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpAccountSetTicket); err != nil {
		return err
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return auth.ErrNotFound
	}
	a.Ticket = ticket.Value
	a.TicketExpiresAt = ticket.ExpiresAt
	return nil
}

// UpdatePasswordHash implements auth.AccountRepository.
func (r *Accounts) UpdatePasswordHash(_ context.Context, accountID ulid.ULID, hash string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpAccountUpdateHash); err != nil {
		return err
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

// Links implements auth.ProviderLinkRepository.
type Links struct{ s *Store }

var _ auth.ProviderLinkRepository = (*Links)(nil)

// Find implements auth.ProviderLinkRepository.
func (r *Links) Find(_ context.Context, provider, subjectID string) (*auth.ProviderLink, *auth.Account, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpLinkFind); err != nil {
		return nil, nil, err
	}
	for _, l := range s.links {
		if l.Provider == provider && l.SubjectID == subjectID {
			a, ok := s.accounts[l.AccountID]
			if !ok {
				return nil, nil, auth.ErrNotFound
			}
			link := *l
			return &link, cloneAccount(a), nil
		}
	}
	return nil, nil, auth.ErrNotFound
}

// Create implements auth.ProviderLinkRepository.
func (r *Links) Create(_ context.Context, link *auth.ProviderLink) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpLinkCreate); err != nil {
		return err
	}
	for _, l := range s.links {
		if l.Provider == link.Provider && l.SubjectID == link.SubjectID {
			return auth.ErrConflict
		}
	}
	if _, ok := s.accounts[link.AccountID]; !ok {
		return auth.ErrNotFound
	}
	stored := *link
	s.links[link.ID] = &stored
	return nil
}

// UpdateTokens implements auth.ProviderLinkRepository.
func (r *Links) UpdateTokens(_ context.Context, linkID ulid.ULID, tokens auth.ProviderTokens) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpLinkUpdateTokens); err != nil {
		return err
	}
	l, ok := s.links[linkID]
	if !ok {
		return auth.ErrNotFound
	}
	l.AccessToken = tokens.AccessToken
	l.RefreshToken = tokens.RefreshToken
	l.UpdatedAt = time.Now()
	return nil
}

// RefreshTokens implements auth.RefreshTokenRepository.
type RefreshTokens struct{ s *Store }

var _ auth.RefreshTokenRepository = (*RefreshTokens)(nil)

// Create implements auth.RefreshTokenRepository.
func (r *RefreshTokens) Create(_ context.Context, token *auth.RefreshToken) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpRefreshCreate); err != nil {
		return err
	}
	if _, dup := s.refresh[token.TokenHash]; dup {
		return auth.ErrConflict
	}
	stored := *token
	s.refresh[token.TokenHash] = &stored
	return nil
}

// Rotate implements auth.RefreshTokenRepository.
func (r *RefreshTokens) Rotate(_ context.Context, p auth.RotateParams) (ulid.ULID, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.refresh[p.PresentedHash]
	if !ok || current.IsExpiredAt(p.Now) {
		return ulid.ULID{}, auth.ErrNotFound
	}
	if err := s.failure(OpRefreshRotateWrite); err != nil {
		return ulid.ULID{}, err
	}
	next := *p.Next
	next.AccountID = current.AccountID
	delete(s.refresh, p.PresentedHash)
	s.refresh[next.TokenHash] = &next
	return current.AccountID, nil
}

// DeleteByHash implements auth.RefreshTokenRepository.
func (r *RefreshTokens) DeleteByHash(_ context.Context, tokenHash string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpRefreshDelete); err != nil {
		return err
	}
	delete(s.refresh, tokenHash)
	return nil
}

// DeleteExpired implements auth.RefreshTokenRepository.
func (r *RefreshTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, t := range s.refresh {
		if t.IsExpiredAt(now) {
			delete(s.refresh, hash)
			n++
		}
	}
	return n, nil
}

// UserRecords implements auth.UserRecordRepository.
type UserRecords struct{ s *Store }

var _ auth.UserRecordRepository = (*UserRecords)(nil)

// Create implements auth.UserRecordRepository.
func (r *UserRecords) Create(_ context.Context, record *auth.UserRecord) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpRecordCreate); err != nil {
		return err
	}
	if _, dup := s.records[record.AccountID]; dup {
		return auth.ErrConflict
	}
	rec := *record
	s.records[record.AccountID] = &rec
	return nil
}
