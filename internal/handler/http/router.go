package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/pkg/health"
	"github.com/luxuryfashion/storefront/pkg/middleware"
)

// RouterConfig carries the collaborators and settings for NewRouter.
// Provider may be nil, in which case the OAuth routes are not mounted.
type RouterConfig struct {
	ServiceName   string
	Authenticator *auth.Authenticator
	Logins        LoginUseCase
	OAuthLogins   OAuthLoginer
	Accounts      Registrar
	Provider      IdentityProvider
	Health        *health.Handler
	Logger        *slog.Logger

	FrontendURL       string
	CORS              middleware.CORSConfig
	PprofAllowedCIDRs []string
	TrustedProxyCIDRs []string
	LoginRateRPS      float64
	LoginRateBurst    int
}

// NewRouter creates a chi router with all storefront auth routes registered.
// ctx bounds background work owned by the router, such as rate limiter
// eviction.
func NewRouter(ctx context.Context, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	clients := middleware.NewIPResolver(cfg.TrustedProxyCIDRs, cfg.Logger)

	// Global middleware. The authenticator runs last so it sees the
	// request-scoped logger and span.
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing(cfg.ServiceName,
		middleware.WithClientResolver(clients),
		middleware.WithCredentialCookie(auth.CookieName),
	))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName, "/metrics", "/health/live", "/health/ready"))
	r.Use(cfg.Authenticator.Middleware)

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, cfg.Logger)

	limit := middleware.RateLimit(ctx, cfg.LoginRateRPS, cfg.LoginRateBurst, clients, cfg.Logger)

	authHandler := NewAuthHandler(cfg.Logins, cfg.Logger)
	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		r.With(limit).Post("/login", authHandler.Login)
		r.Post("/validate", authHandler.Validate)
		r.Post("/logout", authHandler.Logout)
	})

	accountHandler := NewAccountHandler(cfg.Accounts, cfg.Logger)
	r.Route("/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.With(limit).Post("/register", accountHandler.Register)
	})

	r.Route("/admin-api", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Get("/me", accountHandler.Me)
	})

	if cfg.Provider != nil {
		oauthHandler := NewOAuthHandler(cfg.Provider, cfg.OAuthLogins, cfg.FrontendURL, cfg.Logger)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Get("/oauth2/authorization/"+cfg.Provider.Name(), oauthHandler.Authorize)
			r.Get("/login/oauth2/code/"+cfg.Provider.Name(), oauthHandler.Callback)
		})
	}

	return r
}
