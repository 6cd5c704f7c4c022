package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdvault/authserver/auth"
	codefake "github.com/mdvault/authserver/authcodes/repofake"
	clientfake "github.com/mdvault/authserver/clients/repofake"
	"github.com/mdvault/authserver/internal/config"
	srverrors "github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/internal/repository/postgres"
	"github.com/mdvault/authserver/security"
	"github.com/mdvault/authserver/server"
	safake "github.com/mdvault/authserver/serviceaccounts/repofake"
	sessionfake "github.com/mdvault/authserver/sessions/repofake"
	"github.com/mdvault/authserver/token"
	"github.com/mdvault/authserver/token/keys"
	"github.com/mdvault/authserver/users"
	userfake "github.com/mdvault/authserver/users/repofake"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	for {
		if err := run(log); err != nil {
			log.Fatal().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run(log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	zerolog.SetGlobalLevel(zerolog.Level(cfg.LogLevel))
	displayAppname(cfg.AppName)

	ctx := context.Background()

	repos, cleanup, err := buildRepos(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	tokenService, keyManager, err := buildTokenService(cfg, repos, log)
	if err != nil {
		return err
	}

	validator := security.NewRedirectValidator(cfg.Security.TrustedHosts)
	authService, err := auth.New(repos, tokenService, validator,
		auth.WithSessionTTL(cfg.Tokens.SessionTTL),
		auth.WithCodeTTL(cfg.Tokens.AuthCodeTTL),
		auth.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("auth.New: %w", err)
	}

	if err := seedAdminUser(ctx, cfg, repos.Users, log); err != nil {
		return err
	}

	srv, err := server.New(cfg, authService, tokenService, keyManager, log)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	cleaner := security.NewCleaner(repos.Sessions, repos.Codes, cfg.Security.CleanupInterval, log)
	go cleaner.Run(sweepCtx)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv}
	go listenAndServe(httpServer, log)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// buildRepos selects Postgres storage when a DSN is configured and falls
// back to the in-memory fakes for local development.
func buildRepos(ctx context.Context, cfg *config.Config, log zerolog.Logger) (auth.Repos, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warn().Msg("no database configured, using in-memory stores")
		return auth.Repos{
			Users:           userfake.NewFakeUserRepo(),
			Sessions:        sessionfake.NewFakeSessionRepo(),
			Codes:           codefake.NewFakeCodeRepo(),
			Clients:         clientfake.NewFakeClientRepo(),
			ServiceAccounts: safake.NewFakeServiceAccountRepo(),
		}, func() {}, nil
	}

	conn, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		return auth.Repos{}, nil, fmt.Errorf("postgres.NewConnection: %w", err)
	}
	log.Info().Msg("connected to postgres")
	return auth.Repos{
		Users:           postgres.NewUserRepository(conn),
		Sessions:        postgres.NewSessionRepository(conn),
		Codes:           postgres.NewCodeRepository(conn),
		Clients:         postgres.NewClientRepository(conn),
		ServiceAccounts: postgres.NewServiceAccountRepository(conn),
	}, func() { _ = conn.Close() }, nil
}

// buildTokenService wires local signing when key material is available and
// remote JWKS verification otherwise.
func buildTokenService(cfg *config.Config, repos auth.Repos, log zerolog.Logger) (*token.Service, *keys.Manager, error) {
	options := []token.ServiceOption{
		token.WithTokenExpiry(cfg.Tokens.AccessTokenTTL, cfg.Tokens.ServiceTokenTTL),
		token.WithLogger(log),
	}

	if cfg.Keys.RemoteJWKSURL != "" {
		log.Info().Str("url", cfg.Keys.RemoteJWKSURL).Msg("verification-only mode, using remote key set")
		remote := token.NewRemoteKeySet(cfg.Keys.RemoteJWKSURL,
			token.WithCacheTTL(cfg.Keys.JWKSCacheTTL),
			token.WithRemoteLogger(log),
		)
		svc, err := token.New(nil, cfg.Issuer, repos.ServiceAccounts,
			append(options, token.WithRemoteKeySet(remote))...)
		if err != nil {
			return nil, nil, fmt.Errorf("token.New: %w", err)
		}
		return svc, nil, nil
	}

	manager := keys.NewManager(cfg.Keys.Dir, cfg.Keys.ReadOnly)
	if err := manager.EnsureKeys(); err != nil {
		if srverrors.Is(err, srverrors.ErrKeyUnavailable) {
			return nil, nil, fmt.Errorf("signing keys unavailable in read-only mode: %w", err)
		}
		return nil, nil, fmt.Errorf("keys.EnsureKeys: %w", err)
	}

	signer, err := manager.Signer()
	if err != nil {
		return nil, nil, fmt.Errorf("keys.Signer: %w", err)
	}
	keyID, _ := manager.KeyID()
	log.Info().Str("kid", keyID).Msg("signing key ready")

	svc, err := token.New(signer, cfg.Issuer, repos.ServiceAccounts, options...)
	if err != nil {
		return nil, nil, fmt.Errorf("token.New: %w", err)
	}
	return svc, manager, nil
}

// seedAdminUser ensures the configured bootstrap admin exists. Existing
// users are left untouched so a rotated env password never silently
// overwrites a live account.
func seedAdminUser(ctx context.Context, cfg *config.Config, repo users.Repo, log zerolog.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	_, err := repo.GetByEmail(ctx, cfg.AdminEmail)
	if err == nil {
		return nil
	}
	if !srverrors.Is(err, srverrors.ErrUserNotFound) {
		return fmt.Errorf("admin lookup: %w", err)
	}

	hash, err := users.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("admin password hash: %w", err)
	}
	now := time.Now()
	if err := repo.Upsert(ctx, &users.User{
		ID:           uuid.NewString(),
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         users.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		return fmt.Errorf("admin upsert: %w", err)
	}
	log.Info().Str("email", cfg.AdminEmail).Msg("bootstrap admin created")
	return nil
}

func listenAndServe(server *http.Server, log zerolog.Logger) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
