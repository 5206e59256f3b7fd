package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tendant/simple-authcore/internal/config"
	"github.com/tendant/simple-authcore/internal/httputil"
)

// Rate limiter groups.
const (
	LimiterAuth     = "auth"
	LimiterRecovery = "recovery"
	LimiterProfile  = "profile"
)

// RateLimitConfig is the per-IP budget of one route group.
type RateLimitConfig struct {
	Group    string
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit limits requests per client IP and answers 429 once the window's
// budget is spent.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		if cfg.Logger != nil {
			cfg.Logger.LogAttrs(r.Context(), slog.LevelWarn, "rate limit exceeded",
				slog.String("group", cfg.Group),
				slog.String("ip", r.RemoteAddr),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
		}
		httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
	}
	return httprate.Limit(cfg.Requests, cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(onLimit),
	)
}

// NoRateLimit returns a no-op middleware.
func NoRateLimit() func(http.Handler) http.Handler {
	return passthrough
}

func passthrough(next http.Handler) http.Handler {
	return next
}

// CreateRateLimiters builds one limiter per route group, or no-ops when rate
// limiting is disabled. One-time recovery codes have no attempt limit of
// their own; the recovery group is the only brake on guessing them.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	budgets := []RateLimitConfig{
		{Group: LimiterAuth, Requests: cfg.AuthRequestsPerMinute, Window: time.Duration(cfg.AuthWindowMinutes) * time.Minute},
		{Group: LimiterRecovery, Requests: cfg.RecoveryRequestsPerWindow, Window: time.Duration(cfg.RecoveryWindowMinutes) * time.Minute},
		{Group: LimiterProfile, Requests: cfg.ProfileRequestsPerMinute, Window: time.Duration(cfg.ProfileWindowMinutes) * time.Minute},
	}

	limiters := make(map[string]func(http.Handler) http.Handler, len(budgets))
	for _, b := range budgets {
		if !cfg.Enabled {
			limiters[b.Group] = NoRateLimit()
			continue
		}
		b.Logger = logger
		limiters[b.Group] = RateLimit(b)
	}
	return limiters
}
