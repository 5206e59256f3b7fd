// Package idm embeds the account authentication and password recovery API
// in another application.
//
// Setup:
//
//  1. Apply the schema with `simple-authcore migrate` or repository.Migrate
//  2. Create an IDM instance and mount its routes
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	auth, err := idm.New(idm.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err) // fails if migrations haven't been run
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/auth", auth.Router())
//	http.ListenAndServe(":8080", r)
//
// With Google sign-in:
//
//	auth, err := idm.New(idm.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	    Google: &idm.GoogleConfig{
//	        ClientID:     "your-client-id",
//	        ClientSecret: "your-client-secret",
//	        RedirectURI:  "http://localhost:8080/auth/auth/google/callback",
//	    },
//	})
package idm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	httpserver "github.com/tendant/simple-authcore/internal/http"
	"github.com/tendant/simple-authcore/internal/http/middleware"
	"github.com/tendant/simple-authcore/internal/httputil"
	"github.com/tendant/simple-authcore/internal/notification"
	"github.com/tendant/simple-authcore/pkg/auth"
	"github.com/tendant/simple-authcore/pkg/domain"
	"github.com/tendant/simple-authcore/pkg/repository"
)

// Config holds the configuration for the IDM library.
type Config struct {
	// DB is a Postgres connection with the accounts schema applied.
	// Either DB or Store is required; Store wins when both are set.
	DB *sql.DB

	// Store replaces the Postgres account store, e.g. with
	// repository.NewMemoryAccountsRepository() in tests.
	Store auth.AccountStore

	// JWTSecret signs session tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the iss claim of session tokens (default: "simple-authcore").
	JWTIssuer string

	// Session lifetimes per flow (defaults: 1h, 24h, 1h).
	SessionTTL        time.Duration
	PasswordLoginTTL  time.Duration
	FederatedLoginTTL time.Duration

	// RecoveryCodeTTL is how long a one-time recovery code stays valid (default: 10m).
	RecoveryCodeTTL time.Duration

	// Google enables Google sign-in (optional).
	Google *GoogleConfig

	// Notifier delivers recovery codes (default: log only).
	Notifier auth.Notifier

	// Cookie overrides the session cookie settings.
	Cookie *httputil.CookieConfig

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// GoogleConfig holds Google sign-in configuration. ClientSecret and
// RedirectURI are only needed for the browser code flow.
type GoogleConfig struct {
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	MobileClientIDs []string
}

// IDM is an embeddable auth service instance.
type IDM struct {
	config  Config
	store   auth.AccountStore
	service *auth.Service
	flow    *auth.GoogleOAuth
	cookies httputil.CookieConfig
}

// New creates a new IDM instance. With DB set it fails if the accounts table
// is missing.
func New(cfg Config) (*IDM, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	store := cfg.Store
	if store == nil {
		if err := validateSchema(context.Background(), cfg.DB); err != nil {
			return nil, err
		}
		store = repository.NewAccountsRepository(cfg.DB)
	}

	hasher, err := auth.NewPasswordHasher(auth.HasherConfig{})
	if err != nil {
		return nil, fmt.Errorf("idm: %w", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		DefaultTTL: cfg.SessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("idm: %w", err)
	}

	deps := auth.Dependencies{
		Store:    store,
		Hasher:   hasher,
		Tokens:   tokens,
		Notifier: cfg.Notifier,
		Logger:   cfg.Logger,
	}
	serviceCfg := auth.ServiceConfig{
		Lifetimes: auth.Lifetimes{
			Default:        cfg.SessionTTL,
			PasswordLogin:  cfg.PasswordLoginTTL,
			FederatedLogin: cfg.FederatedLoginTTL,
		},
		RecoveryCodeTTL: cfg.RecoveryCodeTTL,
	}

	var flow *auth.GoogleOAuth
	if cfg.Google != nil {
		deps.Identity = auth.NewGoogleIdentityProvider(cfg.Google.MobileClientIDs...)
		serviceCfg.GoogleAudience = cfg.Google.ClientID
		if cfg.Google.ClientSecret != "" {
			flow = auth.NewGoogleOAuth(auth.GoogleConfig{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				RedirectURI:  cfg.Google.RedirectURI,
			})
		}
	}

	service, err := auth.NewService(serviceCfg, deps)
	if err != nil {
		return nil, fmt.Errorf("idm: %w", err)
	}

	cookies := httputil.DefaultCookieConfig()
	if cfg.Cookie != nil {
		cookies = *cfg.Cookie
	}

	return &IDM{
		config:  cfg,
		store:   store,
		service: service,
		flow:    flow,
		cookies: cookies,
	}, nil
}

// Router returns a chi router with all auth routes.
// Mount this on your main router:
//
//	r := chi.NewRouter()
//	r.Mount("/auth", auth.Router())
//
// Routes:
//
//	POST   /register              - Register with email/password
//	POST   /login                 - Login with email or username
//	POST   /logout                - Logout (clears the session cookie)
//	POST   /auth/google           - Sign in with a Google ID token (if configured)
//	GET    /auth/google/start     - Start the Google code flow (if configured)
//	GET    /auth/google/callback  - Google code flow callback (if configured)
//	POST   /send-otp              - Email a recovery code
//	POST   /verify-otp            - Check a recovery code
//	POST   /reset-password        - Reset the password with a recovery code
//	GET    /profile               - Current account (protected)
//	PATCH  /profile               - Update name, email or avatar (protected)
//	DELETE /profile               - Delete the account (protected)
func (i *IDM) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recover(i.config.Logger))
	r.Use(middleware.Logging(i.config.Logger))

	cfg := httpserver.RouterConfig{
		Logger:  i.config.Logger,
		Service: i.service,
		Cookies: i.cookies,
	}
	if i.flow != nil {
		cfg.GoogleFlow = i.flow
	}
	httpserver.Mount(r, cfg)

	return r
}

// Service returns the auth service for advanced usage.
func (i *IDM) Service() *auth.Service {
	return i.service
}

// AuthMiddleware returns middleware that validates session tokens from the
// Authorization header or the session cookie.
// Use this to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(auth.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (i *IDM) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(i.service, i.cookies)
}

// GetAccountID extracts the account ID from a request.
// Use after AuthMiddleware:
//
//	accountID, ok := idm.GetAccountID(r)
func GetAccountID(r *http.Request) (string, bool) {
	id, ok := middleware.GetAccountID(r.Context())
	if !ok {
		return "", false
	}
	return id.String(), true
}

// GetAccountIDFromContext extracts the account ID from a context.
func GetAccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return middleware.GetAccountID(ctx)
}

// GetAccount returns the profile of the authenticated account.
// Use after AuthMiddleware.
func (i *IDM) GetAccount(r *http.Request) (*domain.Profile, error) {
	id, ok := middleware.GetAccountID(r.Context())
	if !ok {
		return nil, errors.New("idm: request is not authenticated")
	}

	account, err := i.service.GetProfile(r.Context(), id)
	if err != nil {
		return nil, err
	}
	profile := account.Profile()
	return &profile, nil
}

// HealthHandler returns a simple health check handler.
func (i *IDM) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Routes registers all auth routes on an http.ServeMux under prefix:
//
//	mux := http.NewServeMux()
//	auth.Routes(mux, "/api/v1")
func (i *IDM) Routes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/", http.StripPrefix(prefix, i.Router()))
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil && cfg.Store == nil {
		return errors.New("idm: DB or Store is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("idm: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("idm: JWTSecret must be at least %d characters", auth.MinSecretLength)
	}
	if cfg.Google != nil && cfg.Google.ClientID == "" {
		return errors.New("idm: Google ClientID is required when Google is configured")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "simple-authcore"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notification.NewLogNotifier(cfg.Logger)
	}
}

// validateSchema checks that the accounts table exists.
func validateSchema(ctx context.Context, db *sql.DB) error {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	var name string
	err := db.QueryRowContext(ctx, query, "accounts").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.New("idm: missing table 'accounts' - run migrations first")
	}
	if err != nil {
		return fmt.Errorf("idm: failed to check schema: %w", err)
	}
	return nil
}
