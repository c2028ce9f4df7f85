// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Ticket is a single-use credential bound to an account.
type Ticket struct {
	Value     string
	ExpiresAt time.Time
}

// IsExpiredAt reports whether the ticket is past its expiry at now.
func (t Ticket) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TicketIssuer creates and consumes single-use tickets.
type TicketIssuer struct {
	accounts AccountRepository
	now      func() time.Time
}

// NewTicketIssuer creates a TicketIssuer.
func NewTicketIssuer(accounts AccountRepository, now func() time.Time) (*TicketIssuer, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if now == nil {
		now = time.Now
	}
	return &TicketIssuer{accounts: accounts, now: now}, nil
}

// Issue creates a fresh random ticket valid for ttl.
func (i *TicketIssuer) Issue(ttl time.Duration) (Ticket, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Ticket{}, oops.Code(CodeTicketGenerateFailed).Wrap(err)
	}
	return Ticket{Value: id.String(), ExpiresAt: i.now().Add(ttl)}, nil
}

// Assign issues a ticket valid for ttl and stores it on the account,
// replacing any previous ticket.
func (i *TicketIssuer) Assign(ctx context.Context, accountID ulid.ULID, ttl time.Duration) (Ticket, error) {
	ticket, err := i.Issue(ttl)
	if err != nil {
		return Ticket{}, err
	}
	if err := i.accounts.SetTicket(ctx, accountID, ticket); err != nil {
		return Ticket{}, oops.Code(CodeStoreUnavailable).
			With("operation", "set ticket").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return ticket, nil
}

// Consume redeems an unexpired ticket exactly once. The stored ticket is
// replaced by an already-expired value in the same write, so a second
// presentation fails.
func (i *TicketIssuer) Consume(ctx context.Context, value string) (*Account, error) {
	return i.consume(ctx, value, false)
}

// Activate redeems a ticket and marks its account active in one write.
func (i *TicketIssuer) Activate(ctx context.Context, value string) (*Account, error) {
	return i.consume(ctx, value, true)
}

func (i *TicketIssuer) consume(ctx context.Context, value string, activate bool) (*Account, error) {
	if value == "" {
		return nil, oops.Code(CodeTicketNotFound).Errorf("invalid or expired ticket")
	}
	now := i.now()
	next, err := i.Issue(0)
	if err != nil {
		return nil, err
	}

	account, err := i.accounts.ConsumeTicket(ctx, ConsumeTicketParams{
		Ticket:   value,
		Now:      now,
		Next:     next,
		Activate: activate,
	})
	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, ErrExpired):
		return nil, oops.Code(CodeTicketExpired).Errorf("invalid or expired ticket")
	case errors.Is(err, ErrNotFound):
		return nil, oops.Code(CodeTicketNotFound).Errorf("invalid or expired ticket")
	default:
		return nil, oops.Code(CodeStoreUnavailable).
			With("operation", "consume ticket").
			Wrap(err)
	}
}
