package httputil

import (
	"net/http"
	"time"
)

const defaultCookieName = "token"

// CookieConfig holds session cookie configuration.
type CookieConfig struct {
	Name     string
	Domain   string
	Path     string
	MaxAge   time.Duration
	Secure   bool // true behind HTTPS
	SameSite http.SameSite
}

// DefaultCookieConfig returns the session cookie used when none is configured.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:     defaultCookieName,
		Path:     "/",
		MaxAge:   time.Hour,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return defaultCookieName
	}
	return c.Name
}

// build returns an HttpOnly cookie scoped by c. maxAge < 0 expires it.
func (c CookieConfig) build(name, value string, maxAge int, sameSite http.SameSite) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
}

// SetSessionCookie stores the session token.
func SetSessionCookie(w http.ResponseWriter, token string, cfg CookieConfig) {
	http.SetCookie(w, cfg.build(cfg.name(), token, int(cfg.MaxAge.Seconds()), cfg.SameSite))
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, cfg.build(cfg.name(), "", -1, cfg.SameSite))
}

// GetSessionTokenFromCookie extracts the session token from its cookie.
func GetSessionTokenFromCookie(r *http.Request, cfg CookieConfig) (string, bool) {
	cookie, err := r.Cookie(cfg.name())
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// SetStateCookie stores OAuth state for the callback to check. It is always
// SameSite=Lax so it survives the top-level redirect back from the provider.
func SetStateCookie(w http.ResponseWriter, name, value string, ttl time.Duration, cfg CookieConfig) {
	http.SetCookie(w, cfg.build(name, value, int(ttl.Seconds()), http.SameSiteLaxMode))
}

// ClearStateCookie expires an OAuth state cookie.
func ClearStateCookie(w http.ResponseWriter, name string, cfg CookieConfig) {
	http.SetCookie(w, cfg.build(name, "", -1, http.SameSiteLaxMode))
}

// IsMobileClient reports whether the caller identified itself with
// X-Client-Type: mobile. Mobile clients get the token in the body only.
func IsMobileClient(r *http.Request) bool {
	return r.Header.Get("X-Client-Type") == "mobile"
}
