package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tendant/simple-authcore/internal/config"
	"github.com/tendant/simple-authcore/internal/http/features/google"
	"github.com/tendant/simple-authcore/internal/http/features/me"
	"github.com/tendant/simple-authcore/internal/http/features/password"
	"github.com/tendant/simple-authcore/internal/http/features/recovery"
	"github.com/tendant/simple-authcore/internal/http/features/session"
	"github.com/tendant/simple-authcore/internal/http/middleware"
	"github.com/tendant/simple-authcore/internal/httputil"
	"github.com/tendant/simple-authcore/internal/observability"
	"github.com/tendant/simple-authcore/pkg/auth"
)

// APIPrefix is the mount point of the versioned API.
const APIPrefix = "/api/v1"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	Service         *auth.Service
	GoogleFlow      google.CodeFlow        // optional
	Metrics         *observability.Metrics // optional; enables /metrics
	Cookies         httputil.CookieConfig
	RateLimitConfig config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	Validation      config.ValidationConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route(APIPrefix, func(r chi.Router) {
		Mount(r, cfg)
	})

	return r
}

// Mount registers the API routes on r without global middleware.
func Mount(r chi.Router, cfg RouterConfig) {
	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)
	requireSession := middleware.Auth(cfg.Service, cfg.Cookies)

	passwordHandler := password.NewHandler(cfg.Logger, cfg.Service, cfg.Cookies)
	googleHandler := google.NewHandler(cfg.Logger, cfg.Service, cfg.GoogleFlow, cfg.Cookies)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters[middleware.LimiterAuth])
		r.Post("/register", passwordHandler.Register)
		r.Post("/login", passwordHandler.Login)
		r.Post("/auth/google", googleHandler.SignIn)
		r.Get("/auth/google/start", googleHandler.Start)
		r.Get("/auth/google/callback", googleHandler.Callback)
	})

	sessionHandler := session.NewHandler(cfg.Logger, cfg.Service, cfg.Cookies)
	r.Post("/logout", sessionHandler.Logout)

	recoveryHandler := recovery.NewHandler(cfg.Logger, cfg.Service)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters[middleware.LimiterRecovery])
		r.Post("/send-otp", recoveryHandler.SendCode)
		r.Post("/verify-otp", recoveryHandler.VerifyCode)
		r.Post("/reset-password", recoveryHandler.ResetPassword)
	})

	meHandler := me.NewHandler(cfg.Logger, cfg.Service, cfg.Cookies)
	r.Group(func(r chi.Router) {
		r.Use(requireSession)
		r.Use(rateLimiters[middleware.LimiterProfile])
		r.Get("/profile", meHandler.GetMe)
		r.Patch("/profile", meHandler.UpdateMe)
		r.Delete("/profile", meHandler.DeleteMe)
	})
}
