// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

//go:build integration

package postgres_test

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/authgate/authgate/internal/auth"
)

func newFixtureAccount(email, name string) *auth.Account {
	account, err := auth.NewAccount(auth.AccountParams{
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		Active:       true,
		DefaultRole:  "user",
		AllowedRoles: []string{"user", "me"},
		Ticket:       auth.Ticket{Value: uuid.NewString(), ExpiresAt: time.Now().Add(time.Hour)},
		User:         auth.UserFields{DisplayName: name, Name: name},
	})
	Expect(err).NotTo(HaveOccurred())
	return account
}

func uniqueEmail() string {
	return ulid.Make().String() + "@example.com"
}

var _ = Describe("AccountRepository", func() {
	It("round-trips an account with its roles and user", func() {
		account := newFixtureAccount(uniqueEmail(), "")
		Expect(env.Accounts.Create(env.ctx, account, nil)).To(Succeed())

		got, err := env.Accounts.GetByEmail(env.ctx, account.Email)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(account.ID))
		Expect(got.User.ID).To(Equal(account.User.ID))
		Expect(got.AllowedRoles).To(Equal([]string{"me", "user"}))
		Expect(got.User.Name).To(BeEmpty())
	})

	It("rejects a second account with the same email in any case", func() {
		email := uniqueEmail()
		Expect(env.Accounts.Create(env.ctx, newFixtureAccount(email, ""), nil)).To(Succeed())

		dup := newFixtureAccount(email, "")
		dup.Email = strings.ToUpper(email)
		err := env.Accounts.Create(env.ctx, dup, nil)
		Expect(err).To(MatchError(auth.ErrConflict))

		_, err = env.Accounts.GetByID(env.ctx, dup.ID)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("finds accounts by user name case-insensitively", func() {
		name := "u" + ulid.Make().String()
		account := newFixtureAccount(uniqueEmail(), name)
		Expect(env.Accounts.Create(env.ctx, account, nil)).To(Succeed())

		got, err := env.Accounts.GetByUserName(env.ctx, name)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(account.ID))
	})

	Describe("ConsumeTicket", func() {
		It("lets exactly one of many concurrent callers win", func() {
			account := newFixtureAccount(uniqueEmail(), "")
			account.Active = false
			Expect(env.Accounts.Create(env.ctx, account, nil)).To(Succeed())

			const callers = 8
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := env.Accounts.ConsumeTicket(env.ctx, auth.ConsumeTicketParams{
						Ticket:   account.Ticket,
						Now:      time.Now(),
						Next:     auth.Ticket{Value: uuid.NewString(), ExpiresAt: time.Now()},
						Activate: true,
					})
					if err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
						return
					}
					Expect(err).To(MatchError(auth.ErrNotFound))
				}()
			}
			wg.Wait()
			Expect(wins).To(Equal(1))

			got, err := env.Accounts.GetByID(env.ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Active).To(BeTrue())
			Expect(got.Ticket).NotTo(Equal(account.Ticket))
		})

		It("reports an expired ticket", func() {
			account := newFixtureAccount(uniqueEmail(), "")
			Expect(env.Accounts.Create(env.ctx, account, nil)).To(Succeed())
			expired := auth.Ticket{Value: uuid.NewString(), ExpiresAt: time.Now().Add(-time.Minute)}
			Expect(env.Accounts.SetTicket(env.ctx, account.ID, expired)).To(Succeed())

			_, err := env.Accounts.ConsumeTicket(env.ctx, auth.ConsumeTicketParams{
				Ticket: expired.Value,
				Now:    time.Now(),
				Next:   auth.Ticket{Value: uuid.NewString(), ExpiresAt: time.Now()},
			})
			Expect(err).To(MatchError(auth.ErrExpired))
		})
	})
})

var _ = Describe("ProviderLinkRepository", func() {
	It("creates an account and link together and finds it again", func() {
		account := newFixtureAccount(uniqueEmail(), "")
		subject := ulid.Make().String()
		link, err := auth.NewProviderLink(account.ID, "github", subject, auth.ProviderTokens{AccessToken: "first"})
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Accounts.Create(env.ctx, account, link)).To(Succeed())

		Expect(env.Links.UpdateTokens(env.ctx, link.ID, auth.ProviderTokens{AccessToken: "second"})).To(Succeed())

		found, owner, err := env.Links.Find(env.ctx, "github", subject)
		Expect(err).NotTo(HaveOccurred())
		Expect(owner.ID).To(Equal(account.ID))
		Expect(found.AccessToken).To(Equal("second"))
	})

	It("rejects a link to a missing account", func() {
		link, err := auth.NewProviderLink(ulid.Make(), "github", ulid.Make().String(), auth.ProviderTokens{})
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Links.Create(env.ctx, link)).To(MatchError(auth.ErrNotFound))
	})
})

var _ = Describe("RefreshTokenRepository", func() {
	var account *auth.Account

	BeforeEach(func() {
		account = newFixtureAccount(uniqueEmail(), "")
		Expect(env.Accounts.Create(env.ctx, account, nil)).To(Succeed())
	})

	storeToken := func(expiresAt time.Time) string {
		plain, hash, err := auth.GenerateRefreshToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(env.RefreshTokens.Create(env.ctx, &auth.RefreshToken{
			ID: ulid.Make(), AccountID: account.ID, TokenHash: hash,
			ExpiresAt: expiresAt, CreatedAt: time.Now(),
		})).To(Succeed())
		return plain
	}

	successor := func() *auth.RefreshToken {
		_, hash, err := auth.GenerateRefreshToken()
		Expect(err).NotTo(HaveOccurred())
		return &auth.RefreshToken{ID: ulid.Make(), TokenHash: hash, ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now()}
	}

	It("rotates a token exactly once under concurrency", func() {
		plain := storeToken(time.Now().Add(time.Hour))

		const callers = 8
		results := make(chan error, callers)
		var wg sync.WaitGroup
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := env.RefreshTokens.Rotate(env.ctx, auth.RotateParams{
					PresentedHash: auth.HashRefreshToken(plain),
					Now:           time.Now(),
					Next:          successor(),
				})
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
				continue
			}
			Expect(err).To(MatchError(auth.ErrNotFound))
		}
		Expect(wins).To(Equal(1))
	})

	It("does not rotate an expired token", func() {
		plain := storeToken(time.Now().Add(-time.Minute))
		_, err := env.RefreshTokens.Rotate(env.ctx, auth.RotateParams{
			PresentedHash: auth.HashRefreshToken(plain),
			Now:           time.Now(),
			Next:          successor(),
		})
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("prunes expired tokens", func() {
		storeToken(time.Now().Add(-time.Hour))
		n, err := env.RefreshTokens.DeleteExpired(env.ctx, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">=", 1))
	})
})

var _ = Describe("UserRecordRepository", func() {
	It("writes one record per account", func() {
		account := newFixtureAccount(uniqueEmail(), "")
		Expect(env.Accounts.Create(env.ctx, account, nil)).To(Succeed())

		record := &auth.UserRecord{AccountID: account.ID, Email: account.Email, CreatedAt: time.Now()}
		Expect(env.UserRecords.Create(env.ctx, record)).To(Succeed())
		Expect(env.UserRecords.Create(env.ctx, record)).To(MatchError(auth.ErrConflict))
	})
})
