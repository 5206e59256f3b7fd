package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-authcore/pkg/domain"
	"github.com/tendant/simple-authcore/pkg/errutil"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code,omitempty"`
	Errors []domain.FieldError `json:"errors,omitempty"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a JSON error message.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidCredential, domain.KindInvalidToken:
		return http.StatusUnauthorized
	case domain.KindInvalidOrExpired, domain.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessages are safe to show to callers. Anything else is reported as
// an internal error without detail.
var publicMessages = []struct {
	err     error
	message string
}{
	{domain.ErrAccountAlreadyExists, "user already exists"},
	{domain.ErrUsernameAlreadyExists, "username already taken"},
	{domain.ErrAccountNotFound, "user not found"},
	{domain.ErrInvalidCredentials, "invalid credentials"},
	{domain.ErrInvalidToken, "invalid or missing token"},
	{domain.ErrInvalidOrExpiredCode, "invalid or expired OTP"},
}

// WriteError classifies err and writes the matching response. Internal
// errors are logged with their code and context and never leak detail.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := domain.KindOf(err)

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		JSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Errors: verr.Fields})
		return
	}

	if kind != domain.KindInternal {
		for _, m := range publicMessages {
			if errors.Is(err, m.err) {
				Error(w, StatusFor(kind), m.message)
				return
			}
		}
	}

	if logger != nil {
		errutil.LogError(logger, "request failed", err)
	}
	JSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: errutil.Code(err)})
}

// DecodeJSON decodes the request body into v. On failure it writes a 413 for
// oversized bodies or a 400 otherwise and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
