package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"identity-sessions/internal/audit"
	authservice "identity-sessions/internal/auth/service"
	"identity-sessions/internal/config"
	"identity-sessions/internal/db"
	"identity-sessions/internal/db/migrate"
	deviceservice "identity-sessions/internal/device/service"
	"identity-sessions/internal/httpapi"
	"identity-sessions/internal/mail"
	"identity-sessions/internal/metrics"
	"identity-sessions/internal/security"
	sessionrepo "identity-sessions/internal/session/repository"
	sessionservice "identity-sessions/internal/session/service"
	"identity-sessions/internal/telemetry/otel"
	userrepo "identity-sessions/internal/user/repository"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if !cfg.IsProduction() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	ctx := context.Background()
	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "identity-sessions", false)
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry")
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	if cfg.AutoMigrate {
		if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("migrate")
		}
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer conn.Close()

	hasher := security.NewHasher(cfg.BcryptCost)
	tokens, err := security.NewTokenProvider(
		[]byte(cfg.JWTAccessSecret), []byte(cfg.JWTRefreshSecret),
		cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("tokens")
	}

	var mailer mail.Sender = mail.NoopSender{}
	if cfg.ResendAPIKey != "" {
		mailer = mail.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom)
	} else {
		log.Warn().Msg("RESEND_API_KEY not set; outgoing email is disabled")
	}

	users := userrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	auditRepo := audit.NewPostgresRepository(conn)

	accounts := authservice.NewAccountService(users, hasher, mailer, log, cfg.ConfirmationTTL(), cfg.RecoveryTTL())
	verifier := authservice.NewCredentialVerifier(users, hasher)
	lifecycle := sessionservice.NewLifecycleService(verifier, sessions, tokens, audit.NewLogger(auditRepo, log))
	devices := deviceservice.NewDirectory(sessions)

	var resetters []httpapi.DataResetter
	if !cfg.IsProduction() {
		resetters = []httpapi.DataResetter{auditRepo, sessions, users}
	}

	router := httpapi.NewRouter(httpapi.Options{
		Accounts:        accounts,
		Lifecycle:       lifecycle,
		Devices:         devices,
		Tokens:          tokens,
		Metrics:         metrics.New(prometheus.DefaultRegisterer),
		Log:             log,
		SecureCookies:   cfg.IsProduction(),
		RateLimit:       cfg.RateLimitRequests,
		RateLimitWindow: cfg.RateWindow(),
		Resetters:       resetters,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("http server stopped")
}
