package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-authcore/internal/config"
	httpserver "github.com/tendant/simple-authcore/internal/http"
	"github.com/tendant/simple-authcore/internal/httputil"
	"github.com/tendant/simple-authcore/internal/notification"
	"github.com/tendant/simple-authcore/internal/observability"
	"github.com/tendant/simple-authcore/pkg/auth"
	"github.com/tendant/simple-authcore/pkg/errutil"
	"github.com/tendant/simple-authcore/pkg/repository"
)

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  `Start the HTTP API server and block until SIGINT or SIGTERM.`,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		errutil.LogError(logger, "failed to start", err)
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return oops.Code("SERVER_FAILED").With("addr", server.Addr).Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.Code("SERVER_SHUTDOWN_FAILED").Wrap(err)
	}
	logger.Info("server stopped")
	return nil
}

// app is the wired service graph.
type app struct {
	Handler http.Handler
	Service *auth.Service
	closers []func() error
}

// Close releases resources opened by buildApp.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	store, err := openStore(ctx, cfg, logger, a)
	if err != nil {
		return nil, err
	}

	hasher, err := auth.NewPasswordHasher(auth.HasherConfig{
		Algorithm:  cfg.PasswordHashAlgorithm,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		a.Close()
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		DefaultTTL: cfg.SessionTTL,
	})
	if err != nil {
		a.Close()
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	var notifier auth.Notifier
	if cfg.HasSMTP() {
		notifier = notification.NewEmailService(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
		logger.Info("email service enabled")
	} else {
		notifier = notification.NewLogNotifier(logger)
		logger.Warn("SMTP not configured, recovery codes will not be delivered")
	}

	deps := auth.Dependencies{
		Store:    store,
		Hasher:   hasher,
		Tokens:   tokens,
		Notifier: notifier,
		Logger:   logger,
	}

	var flow *auth.GoogleOAuth
	if cfg.HasGoogleSignIn() {
		deps.Identity = auth.NewGoogleIdentityProvider(cfg.Google.MobileClientIDs...)
		logger.Info("Google sign-in enabled")
	}
	if cfg.HasGoogleOAuth() {
		flow = auth.NewGoogleOAuth(auth.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURI:  cfg.Google.RedirectURI,
		})
		logger.Info("Google OAuth code flow enabled")
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
		deps.Observer = metrics
	}

	maxBytes := 0
	if hasher.Algorithm() == auth.AlgorithmBcrypt {
		maxBytes = auth.BcryptMaxPasswordBytes
	}
	service, err := auth.NewService(auth.ServiceConfig{
		Lifetimes: auth.Lifetimes{
			Default:        cfg.SessionTTL,
			PasswordLogin:  cfg.PasswordLoginTTL,
			FederatedLogin: cfg.FederatedLoginTTL,
		},
		RecoveryCodeTTL:  cfg.RecoveryCodeTTL,
		GoogleAudience:   cfg.Google.ClientID,
		DefaultAvatarURL: cfg.DefaultAvatarURL,
		Validator: &auth.InputValidator{
			Policy: &auth.PasswordPolicy{
				MinLength:        cfg.PasswordPolicy.MinLength,
				MaxBytes:         maxBytes,
				RequireUppercase: cfg.PasswordPolicy.RequireUppercase,
				RequireLowercase: cfg.PasswordPolicy.RequireLowercase,
				RequireNumber:    cfg.PasswordPolicy.RequireNumber,
				RequireSpecial:   cfg.PasswordPolicy.RequireSpecial,
			},
			StrictEmail:     cfg.Validation.StrictEmailValidation,
			BlockDisposable: cfg.Validation.BlockDisposableEmail,
		},
	}, deps)
	if err != nil {
		a.Close()
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	routerCfg := httpserver.RouterConfig{
		Logger:  logger,
		Service: service,
		Metrics: metrics,
		Cookies: httputil.CookieConfig{
			Name:     cfg.CookieName,
			Path:     "/",
			MaxAge:   cfg.CookieMaxAge,
			Secure:   cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		},
		RateLimitConfig: cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		Validation:      cfg.Validation,
	}
	if flow != nil {
		routerCfg.GoogleFlow = flow
	}

	a.Service = service
	a.Handler = httpserver.NewRouter(routerCfg)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, a *app) (auth.AccountStore, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory account store, data is lost on restart")
		return repository.NewMemoryAccountsRepository(), nil
	}

	db, err := repository.NewDB(ctx, dbConfig(cfg))
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("host", cfg.DBHost).Wrap(err)
	}
	a.closers = append(a.closers, db.Close)
	logger.Info("connected to database")
	return repository.NewAccountsRepository(db), nil
}

func dbConfig(cfg *config.Config) repository.Config {
	return repository.Config{
		URL:      cfg.DatabaseURL,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}
}
