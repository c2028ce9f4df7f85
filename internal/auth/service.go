// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/authgate/authgate/internal/auth"

// Policy holds the registration and session rules a Service enforces.
type Policy struct {
	AutoActivate        bool
	VerifyEmails        bool
	Roles               RolePolicy
	AnonymousEnabled    bool
	AnonymousRole       string
	ActivationTicketTTL time.Duration
	MFATicketTTL        time.Duration
	SuccessRedirect     string // provider sign-in success target
	FailureRedirect     string // provider sign-in failure target
}

// ActivationMessage is the content of an account verification notice.
type ActivationMessage struct {
	To          string
	DisplayName string
	Ticket      string
	ExpiresAt   time.Time
}

// Mailer delivers account verification notices.
type Mailer interface {
	SendActivation(ctx context.Context, msg ActivationMessage) error
}

// Dependencies are the collaborators a Service is built from.
type Dependencies struct {
	Accounts      AccountRepository
	Links         ProviderLinkRepository
	RefreshTokens RefreshTokenRepository
	UserRecords   UserRecordRepository
	Credentials   *CredentialVerifier
	SessionTokens *SessionTokenIssuer
	Providers     *ProviderRegistry
	Mailer        Mailer
	RefreshTTL    time.Duration
	Logger        *slog.Logger
	Tracer        trace.Tracer     // defaults to the global provider's tracer
	Now           func() time.Time // defaults to time.Now
}

// Service assembles the authentication flows.
type Service struct {
	accounts    AccountRepository
	records     UserRecordRepository
	credentials *CredentialVerifier
	tokens      *SessionTokenIssuer
	providers   *ProviderRegistry
	mailer      Mailer
	tickets     *TicketIssuer
	refresh     *RefreshTokenRotator
	resolver    *OAuthIdentityResolver
	policy      Policy
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewService creates a Service.
func NewService(deps Dependencies, policy Policy) (*Service, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Errorf("accounts repository is required")
	case deps.Links == nil:
		return nil, oops.Errorf("provider link repository is required")
	case deps.RefreshTokens == nil:
		return nil, oops.Errorf("refresh token repository is required")
	case deps.UserRecords == nil:
		return nil, oops.Errorf("user record repository is required")
	case deps.Credentials == nil:
		return nil, oops.Errorf("credential verifier is required")
	case deps.SessionTokens == nil:
		return nil, oops.Errorf("session token issuer is required")
	case deps.Providers == nil:
		return nil, oops.Errorf("provider registry is required")
	case deps.Logger == nil:
		return nil, oops.Errorf("logger is required")
	}
	if policy.VerifyEmails && !policy.AutoActivate && deps.Mailer == nil {
		return nil, oops.Errorf("mailer is required when email verification is enabled")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}

	tickets, err := NewTicketIssuer(deps.Accounts, deps.Now)
	if err != nil {
		return nil, err
	}
	rotator, err := NewRefreshTokenRotator(deps.RefreshTokens, deps.Accounts, deps.RefreshTTL, deps.Now)
	if err != nil {
		return nil, err
	}
	resolver, err := NewOAuthIdentityResolver(deps.Accounts, deps.Links, tickets, policy.Roles, deps.Logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		accounts:    deps.Accounts,
		records:     deps.UserRecords,
		credentials: deps.Credentials,
		tokens:      deps.SessionTokens,
		providers:   deps.Providers,
		mailer:      deps.Mailer,
		tickets:     tickets,
		refresh:     rotator,
		resolver:    resolver,
		policy:      policy,
		logger:      deps.Logger,
		tracer:      deps.Tracer,
		now:         deps.Now,
	}, nil
}

// RefreshTTL returns the lifetime of issued refresh tokens.
func (s *Service) RefreshTTL() time.Duration {
	return s.refresh.TTL()
}

// Session is the response artifact of a successful flow. JWTToken and
// JWTExpiresIn are nil while the account awaits verification. RefreshToken
// is only populated for body delivery.
type Session struct {
	JWTToken            *string             `json:"jwt_token"`
	JWTExpiresIn        *int64              `json:"jwt_expires_in"`
	RefreshToken        string              `json:"refresh_token,omitempty"`
	User                UserProfile         `json:"user"`
	Refresh             *IssuedRefreshToken `json:"-"`
	PermissionVariables map[string]any      `json:"-"`
}

// Pending reports whether the session carries no credentials yet.
func (s *Session) Pending() bool {
	return s.JWTToken == nil
}

// MFAChallenge tells the client a second factor is required.
type MFAChallenge struct {
	MFA    bool   `json:"mfa"`
	Ticket string `json:"ticket"`
}

// LoginResult holds exactly one of Session or MFA.
type LoginResult struct {
	Session *Session
	MFA     *MFAChallenge
}

// RegisterInput is a self-service registration request.
type RegisterInput struct {
	Email        string
	Password     string
	DefaultRole  string
	AllowedRoles []string
	User         UserFields
	Delivery     DeliveryMode
}

// RegisterByNameInput is an invite-style registration keyed by user name.
type RegisterByNameInput struct {
	Name         string
	Email        string
	Password     string
	DefaultRole  string
	AllowedRoles []string
	User         UserFields
	Delivery     DeliveryMode
}

// LoginInput authenticates by email or, when Email is empty, by user name.
type LoginInput struct {
	Email    string
	Name     string
	Password string
	Delivery DeliveryMode
}

// ProviderCallbackInput is the completed provider exchange.
type ProviderCallbackInput struct {
	Provider string
	Profile  RawProfile
	Tokens   ProviderTokens
}

// ProviderCallbackResult is where to send the browser after a provider
// sign-in. Refresh is nil on failure; Err records why.
type ProviderCallbackResult struct {
	RedirectURL         string
	Refresh             *IssuedRefreshToken
	PermissionVariables map[string]any
	Err                 error
}

func (s *Service) begin(ctx context.Context, flow string) (context.Context, func(outcome string, err error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "auth."+flow, trace.WithAttributes(attribute.String("auth.flow", flow)))
	return ctx, func(outcome string, err error) {
		if err != nil {
			outcome = KindOf(err).String()
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		span.End()
		RecordFlow(flow, outcome, time.Since(start))
	}
}

// Register creates a password account. When email verification is required
// the returned session is pending and a verification notice is sent instead.
func (s *Service) Register(ctx context.Context, in RegisterInput) (session *Session, err error) {
	ctx, finish := s.begin(ctx, "register")
	outcome := OutcomeSuccess
	defer func() { finish(outcome, err) }()

	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("email and password are required")
	}

	_, lookupErr := s.accounts.GetByEmail(ctx, email)
	switch {
	case lookupErr == nil:
		return nil, oops.Code(CodeAccountExists).Errorf("account already exists")
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code(CodeStoreUnavailable).
			With("operation", "get account by email").
			Wrap(lookupErr)
	}

	account, err := s.createPasswordAccount(ctx, in.Password, in.DefaultRole, in.AllowedRoles,
		email, UserFields{DisplayName: email}.merge(in.User))
	if err != nil {
		return nil, err
	}

	if err := s.writeUserRecord(ctx, account); err != nil {
		return nil, err
	}

	if !s.policy.AutoActivate && s.policy.VerifyEmails {
		displayName := in.User.DisplayName
		if displayName == "" {
			displayName = email
		}
		if err := s.mailer.SendActivation(ctx, ActivationMessage{
			To:          email,
			DisplayName: displayName,
			Ticket:      account.Ticket,
			ExpiresAt:   account.TicketExpiresAt,
		}); err != nil {
			return nil, oops.Code(CodeNotificationFailed).
				With("operation", "send activation").
				With("account_id", account.ID.String()).
				Wrap(err)
		}
		outcome = OutcomePending
		return &Session{User: account.Profile()}, nil
	}

	return s.issueSession(ctx, account, in.Delivery)
}

// RegisterByName creates a password account keyed by user name and
// activates it immediately by redeeming its own invite ticket.
func (s *Service) RegisterByName(ctx context.Context, in RegisterByNameInput) (session *Session, err error) {
	ctx, finish := s.begin(ctx, "register_by_name")
	defer func() { finish(OutcomeSuccess, err) }()

	if in.Name == "" || in.Password == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("name and password are required")
	}

	email := NormalizeEmail(in.Email)
	fields := UserFields{Name: in.Name, DisplayName: in.Name}.merge(in.User)
	account, err := s.createPasswordAccount(ctx, in.Password, in.DefaultRole, in.AllowedRoles, email, fields)
	if err != nil {
		return nil, err
	}

	account, err = s.tickets.Activate(ctx, account.Ticket)
	if err != nil {
		return nil, err
	}

	if err := s.writeUserRecord(ctx, account); err != nil {
		return nil, err
	}

	return s.issueSession(ctx, account, in.Delivery)
}

func (s *Service) createPasswordAccount(ctx context.Context, password, defaultRole string, allowedRoles []string, email string, fields UserFields) (*Account, error) {
	if err := s.credentials.CheckStrength(ctx, password); err != nil {
		return nil, err
	}

	defaultRole, allowed, err := s.policy.Roles.Resolve(defaultRole, allowedRoles)
	if err != nil {
		return nil, err
	}

	hash, err := s.credentials.Hash(password)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.Issue(s.policy.ActivationTicketTTL)
	if err != nil {
		return nil, err
	}

	account, err := NewAccount(AccountParams{
		Email:        email,
		PasswordHash: hash,
		Active:       s.policy.AutoActivate,
		DefaultRole:  defaultRole,
		AllowedRoles: allowed,
		Ticket:       ticket,
		User:         fields,
	})
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, account, nil); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, oops.Code(CodeAccountExists).Errorf("account already exists")
		}
		return nil, oops.Code(CodeAccountCreateFailed).
			With("operation", "create account").
			Wrap(err)
	}
	return account, nil
}

func (s *Service) writeUserRecord(ctx context.Context, account *Account) error {
	err := s.records.Create(ctx, &UserRecord{
		AccountID: account.ID,
		Name:      account.User.Name,
		Email:     account.Email,
		CreatedAt: s.now(),
	})
	if err != nil && !errors.Is(err, ErrConflict) {
		return oops.Code(CodeUserRecordCreateFailed).
			With("operation", "create user record").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// Activate redeems an activation ticket and marks the account active.
func (s *Service) Activate(ctx context.Context, ticket string) (account *Account, err error) {
	ctx, finish := s.begin(ctx, "activate")
	defer func() { finish(OutcomeSuccess, err) }()

	return s.tickets.Activate(ctx, ticket)
}

// Login authenticates with a password. Unknown accounts, password-less
// accounts, and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, in LoginInput) (result *LoginResult, err error) {
	ctx, finish := s.begin(ctx, "login")
	outcome := OutcomeSuccess
	defer func() { finish(outcome, err) }()

	if in.Password == "" || (in.Email == "" && in.Name == "") {
		return nil, oops.Code(CodeInvalidInput).Errorf("an email or name and a password are required")
	}

	var account *Account
	var lookupErr error
	if in.Email != "" {
		account, lookupErr = s.accounts.GetByEmail(ctx, NormalizeEmail(in.Email))
	} else {
		account, lookupErr = s.accounts.GetByUserName(ctx, in.Name)
	}
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.Code(CodeStoreUnavailable).
			With("operation", "get account").
			Wrap(lookupErr)
	}

	var storedHash string
	if account != nil {
		storedHash = account.PasswordHash
	}
	if !s.credentials.Verify(in.Password, storedHash) || account == nil {
		return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid credentials")
	}

	// Checked after verification so activation state is only revealed to
	// holders of the password.
	if !account.Active {
		return nil, oops.Code(CodeAccountInactive).Errorf("account is not activated")
	}

	if s.credentials.NeedsUpgrade(account.PasswordHash) {
		if newHash, hashErr := s.credentials.Hash(in.Password); hashErr == nil {
			if updateErr := s.accounts.UpdatePasswordHash(ctx, account.ID, newHash); updateErr != nil {
				s.logger.WarnContext(ctx, "password hash upgrade failed",
					"account_id", account.ID.String(), "error", updateErr)
			}
		}
	}

	if account.MFAEnabled {
		ticket, err := s.tickets.Assign(ctx, account.ID, s.policy.MFATicketTTL)
		if err != nil {
			return nil, err
		}
		outcome = OutcomeMFA
		return &LoginResult{MFA: &MFAChallenge{MFA: true, Ticket: ticket.Value}}, nil
	}

	session, err := s.issueSession(ctx, account, in.Delivery)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: session}, nil
}

// LoginAnonymous creates an anonymous account and signs it in.
func (s *Service) LoginAnonymous(ctx context.Context, delivery DeliveryMode) (session *Session, err error) {
	ctx, finish := s.begin(ctx, "login_anonymous")
	defer func() { finish(OutcomeSuccess, err) }()

	if !s.policy.AnonymousEnabled {
		return nil, oops.Code(CodeAnonymousDisabled).Errorf("anonymous sign-in is disabled")
	}

	ticket, err := s.tickets.Issue(0)
	if err != nil {
		return nil, err
	}
	account, err := NewAccount(AccountParams{
		Active:       true,
		IsAnonymous:  true,
		DefaultRole:  s.policy.AnonymousRole,
		AllowedRoles: []string{s.policy.AnonymousRole},
		Ticket:       ticket,
		User:         UserFields{DisplayName: "Anonymous user"},
	})
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account, nil); err != nil {
		return nil, oops.Code(CodeAccountCreateFailed).
			With("operation", "create anonymous account").
			Wrap(err)
	}

	return s.issueSession(ctx, account, delivery)
}

// Refresh rotates a refresh token and issues a new session.
func (s *Service) Refresh(ctx context.Context, presented string, delivery DeliveryMode) (session *Session, err error) {
	ctx, finish := s.begin(ctx, "refresh")
	defer func() { finish(OutcomeSuccess, err) }()

	account, issued, err := s.refresh.Rotate(ctx, presented, s.now(), delivery)
	if err != nil {
		return nil, err
	}
	return s.assemble(account, issued)
}

// Logout revokes a refresh token.
func (s *Service) Logout(ctx context.Context, presented string) (err error) {
	ctx, finish := s.begin(ctx, "logout")
	defer func() { finish(OutcomeSuccess, err) }()

	return s.refresh.Revoke(ctx, presented)
}

// PruneRefreshTokens removes expired refresh tokens.
func (s *Service) PruneRefreshTokens(ctx context.Context) (int64, error) {
	return s.refresh.Prune(ctx)
}

// ProviderCallback signs in a provider identity. It never fails: any error
// yields the failure redirect, with Err set for the caller to log.
func (s *Service) ProviderCallback(ctx context.Context, in ProviderCallbackInput) (result ProviderCallbackResult) {
	ctx, finish := s.begin(ctx, "provider_callback")
	defer func() { finish(OutcomeSuccess, result.Err) }()

	fail := func(err error) ProviderCallbackResult {
		return ProviderCallbackResult{RedirectURL: s.policy.FailureRedirect, Err: err}
	}

	provider, ok := s.providers.Lookup(in.Provider)
	if !ok {
		return fail(oops.Code(CodeProviderUnknown).
			With("provider", in.Provider).
			Errorf("unknown provider"))
	}
	profile, err := provider.Normalize(in.Profile)
	if err != nil {
		return fail(err)
	}
	account, err := s.resolver.Resolve(ctx, provider.Name(), profile, in.Tokens)
	if err != nil {
		return fail(err)
	}
	issued, err := s.refresh.Issue(ctx, account.ID, DeliveryCookie)
	if err != nil {
		return fail(err)
	}

	target, err := url.Parse(s.policy.SuccessRedirect)
	if err != nil {
		return fail(oops.Code(CodeInvalidInput).Wrapf(err, "invalid success redirect"))
	}
	q := target.Query()
	q.Set("refresh_token", issued.Value)
	target.RawQuery = q.Encode()

	return ProviderCallbackResult{
		RedirectURL:         target.String(),
		Refresh:             &issued,
		PermissionVariables: s.tokens.PermissionVariables(account),
	}
}

// ParseSessionToken verifies a session token issued by this service.
func (s *Service) ParseSessionToken(token string) (*SessionClaims, error) {
	return s.tokens.Parse(token)
}

func (s *Service) issueSession(ctx context.Context, account *Account, delivery DeliveryMode) (*Session, error) {
	issued, err := s.refresh.Issue(ctx, account.ID, delivery)
	if err != nil {
		return nil, err
	}
	return s.assemble(account, issued)
}

func (s *Service) assemble(account *Account, issued IssuedRefreshToken) (*Session, error) {
	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, err
	}
	expiresIn := token.ExpiresIn.Milliseconds()
	session := &Session{
		JWTToken:            &token.Value,
		JWTExpiresIn:        &expiresIn,
		User:                account.Profile(),
		Refresh:             &issued,
		PermissionVariables: s.tokens.PermissionVariables(account),
	}
	if issued.Mode == DeliveryBody {
		session.RefreshToken = issued.Value
	}
	return session, nil
}
