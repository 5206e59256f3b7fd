package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// clearEnv blanks variables that a developer shell might carry into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		for _, prefix := range []string{"SERVER_", "DB_", "DATABASE_", "STORE_", "JWT_", "APP_ENV", "COOKIE_", "PASSWORD_", "BCRYPT_", "SESSION_", "FEDERATED_", "RECOVERY_", "GOOGLE_", "SMTP_", "RATE_LIMIT_"} {
			if strings.HasPrefix(key, prefix) {
				t.Setenv(key, "")
			}
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerAddr != "0.0.0.0" {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, "0.0.0.0")
	}
	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, 8080)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, StoreDriverPostgres)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("SessionTTL = %v, want %v", cfg.SessionTTL, time.Hour)
	}
	if cfg.PasswordLoginTTL != 24*time.Hour {
		t.Errorf("PasswordLoginTTL = %v, want %v", cfg.PasswordLoginTTL, 24*time.Hour)
	}
	if cfg.FederatedLoginTTL != time.Hour {
		t.Errorf("FederatedLoginTTL = %v, want %v", cfg.FederatedLoginTTL, time.Hour)
	}
	if cfg.RecoveryCodeTTL != 10*time.Minute {
		t.Errorf("RecoveryCodeTTL = %v, want %v", cfg.RecoveryCodeTTL, 10*time.Minute)
	}
	if cfg.CookieName != "token" {
		t.Errorf("CookieName = %q, want %q", cfg.CookieName, "token")
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure should default to false outside production")
	}
	if cfg.PasswordHashAlgorithm != "bcrypt" || cfg.BcryptCost != 10 {
		t.Errorf("hashing = %s/%d, want bcrypt/10", cfg.PasswordHashAlgorithm, cfg.BcryptCost)
	}
	if cfg.RateLimit.Enabled {
		t.Error("RateLimit should be disabled by default")
	}
}

func TestLoad_RequiredJWTSecret(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); err == nil {
		t.Error("Load should fail when JWT_SECRET is not set")
	}

	t.Setenv("JWT_SECRET", "too-short")
	if _, err := Load(); err == nil {
		t.Error("Load should fail when JWT_SECRET is shorter than 32 characters")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_HOST", "db.example.com")
	t.Setenv("PASSWORD_LOGIN_TTL", "12h")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("APP_ENV", "production")
	t.Setenv("GOOGLE_MOBILE_CLIENT_IDS", "ios-id, android-id,,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerPort != 9090 {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, 9090)
	}
	if cfg.DBHost != "db.example.com" {
		t.Errorf("DBHost = %q, want %q", cfg.DBHost, "db.example.com")
	}
	if cfg.PasswordLoginTTL != 12*time.Hour {
		t.Errorf("PasswordLoginTTL = %v, want %v", cfg.PasswordLoginTTL, 12*time.Hour)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, StoreDriverMemory)
	}
	if !cfg.CookieSecure || !cfg.IsProduction() {
		t.Error("production should imply secure cookies")
	}
	if got := strings.Join(cfg.Google.MobileClientIDs, "|"); got != "ios-id|android-id" {
		t.Errorf("MobileClientIDs = %q, want %q", got, "ios-id|android-id")
	}
	if cfg.Addr() != "0.0.0.0:9090" {
		t.Errorf("Addr() = %q, want %q", cfg.Addr(), "0.0.0.0:9090")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown store", "STORE_DRIVER", "mongo"},
		{"unknown hash", "PASSWORD_HASH_ALGORITHM", "md5"},
		{"negative ttl", "SESSION_TTL", "-1h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("JWT_SECRET", testSecret)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load should fail for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestHasGoogleOAuth(t *testing.T) {
	tests := []struct {
		name         string
		clientID     string
		clientSecret string
		oauth        bool
		signIn       bool
	}{
		{name: "both set", clientID: "client-id", clientSecret: "client-secret", oauth: true, signIn: true},
		{name: "only client id", clientID: "client-id", oauth: false, signIn: true},
		{name: "only client secret", clientSecret: "client-secret", oauth: false, signIn: false},
		{name: "neither set", oauth: false, signIn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Google: GoogleConfig{ClientID: tt.clientID, ClientSecret: tt.clientSecret}}
			if cfg.HasGoogleOAuth() != tt.oauth {
				t.Errorf("HasGoogleOAuth() = %v, want %v", cfg.HasGoogleOAuth(), tt.oauth)
			}
			if cfg.HasGoogleSignIn() != tt.signIn {
				t.Errorf("HasGoogleSignIn() = %v, want %v", cfg.HasGoogleSignIn(), tt.signIn)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		cfg := &Config{LogLevel: in}
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestGetEnvInt_InvalidValue(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")

	result := getEnvInt("TEST_INT", 42)
	if result != 42 {
		t.Errorf("getEnvInt should return default for invalid value, got %d", result)
	}
}

func TestGetEnvDuration_InvalidValue(t *testing.T) {
	t.Setenv("TEST_DURATION", "invalid")

	result := getEnvDuration("TEST_DURATION", 5*time.Minute)
	if result != 5*time.Minute {
		t.Errorf("getEnvDuration should return default for invalid value, got %v", result)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !getEnvBool("TEST_BOOL", true) {
		t.Error("getEnvBool should return default for unparsable value")
	}
	t.Setenv("TEST_BOOL", "false")
	if getEnvBool("TEST_BOOL", true) {
		t.Error("getEnvBool(false) = true, want false")
	}
}
