package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

const minJWTSecretLength = 32

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int
	AppEnv     string
	LogLevel   string

	// Storage
	StoreDriver string
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// Session tokens
	JWTSecret         string
	JWTIssuer         string
	SessionTTL        time.Duration
	PasswordLoginTTL  time.Duration
	FederatedLoginTTL time.Duration

	// Session cookie
	CookieName   string
	CookieMaxAge time.Duration
	CookieSecure bool

	// Credentials
	PasswordHashAlgorithm string
	BcryptCost            int
	RecoveryCodeTTL       time.Duration
	DefaultAvatarURL      string

	// Google OAuth
	Google GoogleConfig

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig
	Validation      ValidationConfig
	PasswordPolicy  PasswordPolicyConfig

	MetricsEnabled bool
}

// GoogleConfig holds Google sign-in settings.
type GoogleConfig struct {
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	MobileClientIDs []string
}

// RateLimitConfig holds per route group IP rate limits.
type RateLimitConfig struct {
	Enabled                   bool
	AuthRequestsPerMinute     int
	AuthWindowMinutes         int
	RecoveryRequestsPerWindow int
	RecoveryWindowMinutes     int
	ProfileRequestsPerMinute  int
	ProfileWindowMinutes      int
}

// SecurityHeadersConfig holds response security header values.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// ValidationConfig holds request validation settings.
type ValidationConfig struct {
	MaxRequestBodySize    int64
	StrictEmailValidation bool
	BlockDisposableEmail  bool
}

// PasswordPolicyConfig holds password complexity requirements.
type PasswordPolicyConfig struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	appEnv := getEnv("APP_ENV", "development")

	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		AppEnv:     appEnv,
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnvInt("DB_PORT", 25432),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "simple_authcore"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTIssuer:         getEnv("JWT_ISSUER", "simple-authcore"),
		SessionTTL:        getEnvDuration("SESSION_TTL", time.Hour),
		PasswordLoginTTL:  getEnvDuration("PASSWORD_LOGIN_TTL", 24*time.Hour),
		FederatedLoginTTL: getEnvDuration("FEDERATED_LOGIN_TTL", time.Hour),

		CookieName:   getEnv("COOKIE_NAME", "token"),
		CookieMaxAge: getEnvDuration("COOKIE_MAX_AGE", time.Hour),
		CookieSecure: getEnvBool("COOKIE_SECURE", appEnv == "production"),

		PasswordHashAlgorithm: strings.ToLower(getEnv("PASSWORD_HASH_ALGORITHM", "bcrypt")),
		BcryptCost:            getEnvInt("BCRYPT_COST", 10),
		RecoveryCodeTTL:       getEnvDuration("RECOVERY_CODE_TTL", 10*time.Minute),
		DefaultAvatarURL:      getEnv("DEFAULT_AVATAR_URL", "https://www.gravatar.com/avatar/?d=mp"),

		Google: GoogleConfig{
			ClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:     getEnv("GOOGLE_REDIRECT_URI", ""),
			MobileClientIDs: getEnvList("GOOGLE_MOBILE_CLIENT_IDS"),
		},

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Simple AuthCore"),

		RateLimit: RateLimitConfig{
			Enabled:                   getEnvBool("RATE_LIMIT_ENABLED", false),
			AuthRequestsPerMinute:     getEnvInt("RATE_LIMIT_AUTH_REQUESTS", 10),
			AuthWindowMinutes:         getEnvInt("RATE_LIMIT_AUTH_WINDOW_MINUTES", 1),
			RecoveryRequestsPerWindow: getEnvInt("RATE_LIMIT_RECOVERY_REQUESTS", 5),
			RecoveryWindowMinutes:     getEnvInt("RATE_LIMIT_RECOVERY_WINDOW_MINUTES", 15),
			ProfileRequestsPerMinute:  getEnvInt("RATE_LIMIT_PROFILE_REQUESTS", 60),
			ProfileWindowMinutes:      getEnvInt("RATE_LIMIT_PROFILE_WINDOW_MINUTES", 1),
		},

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_HEADERS_CSP", "default-src 'none'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HEADERS_HSTS_MAX_AGE", 0),
			FrameOptions:       getEnv("SECURITY_HEADERS_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_HEADERS_CONTENT_TYPE_OPTIONS", "nosniff"),
			XSSProtection:      getEnv("SECURITY_HEADERS_XSS_PROTECTION", "0"),
			ReferrerPolicy:     getEnv("SECURITY_HEADERS_REFERRER_POLICY", "no-referrer"),
			PermissionsPolicy:  getEnv("SECURITY_HEADERS_PERMISSIONS_POLICY", ""),
		},

		Validation: ValidationConfig{
			MaxRequestBodySize:    getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),
			StrictEmailValidation: getEnvBool("STRICT_EMAIL_VALIDATION", false),
			BlockDisposableEmail:  getEnvBool("BLOCK_DISPOSABLE_EMAIL", false),
		},

		PasswordPolicy: PasswordPolicyConfig{
			MinLength:        getEnvInt("PASSWORD_MIN_LENGTH", 8),
			RequireUppercase: getEnvBool("PASSWORD_REQUIRE_UPPERCASE", false),
			RequireLowercase: getEnvBool("PASSWORD_REQUIRE_LOWERCASE", false),
			RequireNumber:    getEnvBool("PASSWORD_REQUIRE_NUMBER", false),
			RequireSpecial:   getEnvBool("PASSWORD_REQUIRE_SPECIAL", false),
		},

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.PasswordHashAlgorithm {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("unsupported PASSWORD_HASH_ALGORITHM %q", c.PasswordHashAlgorithm)
	}
	for name, d := range map[string]time.Duration{
		"SESSION_TTL":         c.SessionTTL,
		"PASSWORD_LOGIN_TTL":  c.PasswordLoginTTL,
		"FEDERATED_LOGIN_TTL": c.FederatedLoginTTL,
		"RECOVERY_CODE_TTL":   c.RecoveryCodeTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// HasGoogleOAuth returns true if the Google authorization-code flow is configured.
func (c *Config) HasGoogleOAuth() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// HasGoogleSignIn returns true if Google ID tokens can be verified.
func (c *Config) HasGoogleSignIn() bool {
	return c.Google.ClientID != ""
}

// HasSMTP returns true if outbound mail is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// SlogLevel parses LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
