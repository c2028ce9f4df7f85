// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/breach"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/httpapi"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/oauthflow"
	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/store"
)

const serviceName = "authgate"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication server",
		Long: `Start the HTTP authentication API. Configuration comes from the
--config file, overridden by flags; secrets may be supplied through
` + config.EnvDatabaseURL + `, ` + config.EnvJWTKey + `, and ` + config.EnvCookieKey + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (Pool, error) {
			return store.Open(ctx, cfg, logger)
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if d.ListenerFactory == nil {
		d.ListenerFactory = net.Listen
	}
	return d
}

// runServeWithDeps starts the server with injectable dependencies and blocks
// until ctx is cancelled, a signal arrives, or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   logging.ParseLevel(cfg.Log.Level),
		Writer:  deps.LogWriter,
	})
	logger.InfoContext(ctx, "starting authgate", "addr", cfg.Server.Addr, "version", version)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, store.PoolConfig{
		URL:             cfg.Database.URL,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	}, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.InfoContext(ctx, "connected to database")

	var ready atomic.Bool
	var obsServer ObservabilityServer
	var obsErrCh <-chan error
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load, logger)
		auth.RegisterMetrics(obsServer.Registerer())
		metrics = obsServer.Metrics()
		if obsErrCh, err = obsServer.Start(); err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
	}

	svc, flow, err := buildService(cfg, pool, logger)
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}

	handlerDeps := httpapi.Dependencies{Service: svc, Metrics: metrics, Logger: logger}
	if flow != nil {
		handlerDeps.Providers = flow
	}
	handler, err := httpapi.New(httpapi.Config{
		Cookies: httpapi.CookieConfig{
			Secret: []byte(cfg.Cookie.Secret),
			Secure: cfg.Cookie.Secure,
			Domain: cfg.Cookie.Domain,
		},
		StateTTL:                cfg.OAuth.StateTTL,
		ActivateSuccessRedirect: cfg.Redirect.ActivateSuccess,
		ActivateFailureRedirect: cfg.Redirect.ActivateFailure,
		ProviderFailureRedirect: cfg.OAuth.FailureRedirect,
	}, handlerDeps)
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ready.Store(true)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
		return nil
	})
	g.Go(func() error {
		pruneLoop(gctx, svc, cfg.Database.PruneInterval, logger)
		return nil
	})
	if obsErrCh != nil {
		g.Go(func() error {
			return monitorServerErrors(gctx, obsErrCh, "observability")
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error stopping HTTP server", "error", err)
		}
		if obsServer != nil {
			if err := obsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}
		return nil
	})

	if cmd != nil {
		cmd.Println("authgate listening on " + listener.Addr().String())
	}
	logger.InfoContext(ctx, "authgate ready", "addr", listener.Addr().String())

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func autoMigrate(deps *ServeDeps, databaseURL string, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// monitorServerErrors returns the first error a background server reports.
func monitorServerErrors(ctx context.Context, errCh <-chan error, name string) error {
	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-errCh:
		if !ok || err == nil {
			return nil
		}
		return oops.Code("SERVER_FAILED").With("server", name).Wrap(err)
	}
}

func stopObservability(s ObservabilityServer, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// pruneLoop deletes expired refresh tokens every interval until ctx ends.
func pruneLoop(ctx context.Context, svc *auth.Service, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PruneRefreshTokens(ctx)
			if err != nil {
				logger.WarnContext(ctx, "refresh token pruning failed", "error", err)
				continue
			}
			if n > 0 {
				logger.InfoContext(ctx, "pruned expired refresh tokens", "count", n)
			}
		}
	}
}

// buildService assembles the auth service and, when providers are
// configured, the OAuth2 flow.
func buildService(cfg config.Config, db store.DB, logger *slog.Logger) (*auth.Service, *oauthflow.Flow, error) {
	credentialOpts := []auth.CredentialOption{auth.WithCredentialLogger(logger)}
	if cfg.Breach.Enabled {
		client, err := breach.NewClient(breach.Config{
			Endpoint:  cfg.Breach.Endpoint,
			Timeout:   cfg.Breach.Timeout,
			UserAgent: serviceName + "/" + version,
		})
		if err != nil {
			return nil, nil, oops.Code(config.CodeInvalid).With("key", "breach.endpoint").Wrap(err)
		}
		credentialOpts = append(credentialOpts, auth.WithBreachChecker(client, cfg.Breach.FailOpen))
	}
	credentials, err := auth.NewCredentialVerifier(auth.NewArgon2idHasher(), credentialOpts...)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := auth.NewSessionTokenIssuer(auth.SessionTokenConfig{
		Algorithm:       strings.ToUpper(cfg.JWT.Algorithm),
		Key:             []byte(cfg.JWT.Key),
		ExpiresIn:       cfg.JWT.ExpiresIn,
		ClaimsNamespace: cfg.JWT.ClaimsNamespace,
		CustomFields:    cfg.JWT.CustomFields,
	}, time.Now)
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, 0, len(cfg.OAuth.Providers))
	for name := range cfg.OAuth.Providers {
		names = append(names, name)
	}
	slices.Sort(names)

	identities := make([]auth.IdentityProvider, 0, len(names))
	flowConfigs := make([]oauthflow.ProviderConfig, 0, len(names))
	baseURL := strings.TrimRight(cfg.Server.URL, "/")
	for _, name := range names {
		p := cfg.OAuth.Providers[name]
		identity, err := auth.NewIdentityProvider(name, p.Kind)
		if err != nil {
			return nil, nil, err
		}
		identities = append(identities, identity)
		flowConfigs = append(flowConfigs, oauthflow.ProviderConfig{
			Name:         name,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			AuthURL:      p.AuthURL,
			TokenURL:     p.TokenURL,
			UserinfoURL:  p.UserinfoURL,
			RedirectURL:  baseURL + "/auth/providers/" + name + "/callback",
			Scopes:       p.Scopes,
		})
	}
	registry, err := auth.NewProviderRegistry(identities...)
	if err != nil {
		return nil, nil, err
	}

	var mailer auth.Mailer
	if cfg.Emails.Enabled {
		mailer = auth.NewLogMailer(logger, baseURL)
	}

	svc, err := auth.NewService(auth.Dependencies{
		Accounts:      postgres.NewAccountRepository(db),
		Links:         postgres.NewProviderLinkRepository(db),
		RefreshTokens: postgres.NewRefreshTokenRepository(db),
		UserRecords:   postgres.NewUserRecordRepository(db),
		Credentials:   credentials,
		SessionTokens: tokens,
		Providers:     registry,
		Mailer:        mailer,
		RefreshTTL:    cfg.Refresh.ExpiresIn,
		Logger:        logger,
	}, auth.Policy{
		AutoActivate: cfg.Registration.AutoActivate,
		VerifyEmails: cfg.Registration.VerifyEmails,
		Roles: auth.RolePolicy{
			DefaultRole:         cfg.Registration.DefaultRole,
			DefaultAllowedRoles: cfg.Registration.DefaultAllowedRoles,
			AllowedRoles:        cfg.Registration.AllowedRoles,
		},
		AnonymousEnabled:    cfg.Anonymous.Enabled,
		AnonymousRole:       cfg.Anonymous.Role,
		ActivationTicketTTL: cfg.Ticket.ActivationTTL,
		MFATicketTTL:        cfg.Ticket.MFATTL,
		SuccessRedirect:     cfg.OAuth.SuccessRedirect,
		FailureRedirect:     cfg.OAuth.FailureRedirect,
	})
	if err != nil {
		return nil, nil, err
	}

	if len(flowConfigs) == 0 {
		return svc, nil, nil
	}
	flow, err := oauthflow.New(flowConfigs)
	if err != nil {
		return nil, nil, err
	}
	return svc, flow, nil
}
