// Package httpapi is the HTTP boundary: routing, the error envelope, the
// refresh cookie, and per-endpoint rate limits.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	authservice "identity-sessions/internal/auth/service"
	deviceservice "identity-sessions/internal/device/service"
	"identity-sessions/internal/metrics"
	"identity-sessions/internal/security"
	sessionservice "identity-sessions/internal/session/service"
)

// Handler carries the services the HTTP layer dispatches to.
type Handler struct {
	accounts      *authservice.AccountService
	lifecycle     *sessionservice.LifecycleService
	devices       *deviceservice.Directory
	metrics       *metrics.Metrics
	log           zerolog.Logger
	secureCookies bool
	resetters     []DataResetter
}

// Options configures the router.
type Options struct {
	Accounts      *authservice.AccountService
	Lifecycle     *sessionservice.LifecycleService
	Devices       *deviceservice.Directory
	Tokens        *security.TokenProvider
	Metrics       *metrics.Metrics
	Log           zerolog.Logger
	SecureCookies bool

	// AllowedOrigins for CORS; "*" when empty.
	AllowedOrigins []string

	// RateLimit caps requests per client on the credential endpoints.
	RateLimit       int
	RateLimitWindow time.Duration

	// Resetters enables DELETE /testing/all-data when non-empty. Leave
	// empty in production.
	Resetters []DataResetter
}

// NewRouter builds the service's HTTP handler.
func NewRouter(opts Options) http.Handler {
	h := &Handler{
		accounts:      opts.Accounts,
		lifecycle:     opts.Lifecycle,
		devices:       opts.Devices,
		metrics:       opts.Metrics,
		log:           opts.Log,
		secureCookies: opts.SecureCookies,
		resetters:     opts.Resetters,
	}

	allowed := opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))
	r.Use(requestLogger(opts.Log))

	limit := opts.RateLimit
	if limit <= 0 {
		limit = 5
	}
	window := opts.RateLimitWindow
	if window <= 0 {
		window = 10 * time.Second
	}
	// Brute-force guard, keyed per client and per endpoint so hammering
	// login does not lock a client out of refresh.
	throttle := httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeErrorMessage(w, http.StatusTooManyRequests, "Too many requests", "")
		}),
	)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(throttle)
			r.Post("/registration", h.handleRegistration)
			r.Post("/registration-confirmation", h.handleRegistrationConfirmation)
			r.Post("/registration-email-resending", h.handleEmailResending)
			r.Post("/login", h.handleLogin)
			r.Post("/password-recovery", h.handlePasswordRecovery)
			r.Post("/new-password", h.handleNewPassword)
		})
		r.Post("/refresh-token", h.handleRefreshToken)
		r.Post("/logout", h.handleLogout)
		r.Group(func(r chi.Router) {
			r.Use(requireBearer(opts.Tokens))
			r.Get("/me", h.handleMe)
		})
	})

	r.Route("/security", func(r chi.Router) {
		r.Get("/devices", h.handleListDevices)
		r.Delete("/devices", h.handleRevokeOtherDevices)
		r.Delete("/devices/{deviceId}", h.handleRevokeDevice)
	})

	if len(h.resetters) > 0 {
		r.Delete("/testing/all-data", h.handleDeleteAllData)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
