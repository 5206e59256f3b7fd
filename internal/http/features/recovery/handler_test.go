package recovery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-authcore/internal/httputil"
	"github.com/tendant/simple-authcore/internal/testkit"
	"github.com/tendant/simple-authcore/pkg/auth"
)

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func lastCode(t *testing.T, fx *testkit.Fixture) string {
	t.Helper()
	messages := fx.Notifier.Messages()
	require.NotEmpty(t, messages)
	match := codePattern.FindStringSubmatch(messages[len(messages)-1].Body)
	require.Len(t, match, 2, "no code in %q", messages[len(messages)-1].Body)
	return match[1]
}

func TestRecoveryFlow(t *testing.T) {
	fx := testkit.New(t)
	fx.Register(t, "Jane", "jane@example.com", "old-password")
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), fx.Service)

	rec := post(h.SendCode, `{"email":"jane@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	messages := fx.Notifier.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "jane@example.com", messages[0].To)
	assert.Equal(t, auth.RecoveryEmailTitle, messages[0].Subject)
	code := lastCode(t, fx)

	rec = post(h.VerifyCode, fmt.Sprintf(`{"email":"jane@example.com","otp":%q}`, code))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Verification does not consume the code.
	rec = post(h.ResetPassword, fmt.Sprintf(`{"email":"jane@example.com","otp":%q,"newPassword":"new-password"}`, code))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Result().Cookies(), "reset must not start a session")

	// Single use.
	rec = post(h.ResetPassword, fmt.Sprintf(`{"email":"jane@example.com","otp":%q,"newPassword":"another-password"}`, code))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	fx.Login(t, "jane@example.com", "new-password")
}

func TestResetPassword_PasswordField(t *testing.T) {
	fx := testkit.New(t)
	fx.Register(t, "Jane", "jane@example.com", "old-password")
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), fx.Service)

	rec := post(h.SendCode, `{"email":"jane@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = post(h.ResetPassword, fmt.Sprintf(`{"email":"jane@example.com","otp":%q,"password":"new-password"}`, lastCode(t, fx)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	fx.Login(t, "jane@example.com", "new-password")
}

func TestRecovery_Errors(t *testing.T) {
	tests := []struct {
		name       string
		call       func(h *Handler) http.HandlerFunc
		body       string
		wantStatus int
		wantError  string
	}{
		{"send unknown email", func(h *Handler) http.HandlerFunc { return h.SendCode }, `{"email":"nobody@example.com"}`, http.StatusNotFound, "user not found"},
		{"send missing email", func(h *Handler) http.HandlerFunc { return h.SendCode }, `{}`, http.StatusBadRequest, "validation failed"},
		{"verify wrong code", func(h *Handler) http.HandlerFunc { return h.VerifyCode }, `{"email":"jane@example.com","otp":"000000"}`, http.StatusBadRequest, "invalid or expired OTP"},
		{"verify without issued code", func(h *Handler) http.HandlerFunc { return h.VerifyCode }, `{"email":"jane@example.com","otp":"123456"}`, http.StatusBadRequest, "invalid or expired OTP"},
		{"reset weak password", func(h *Handler) http.HandlerFunc { return h.ResetPassword }, `{"email":"jane@example.com","otp":"123456","newPassword":"short"}`, http.StatusBadRequest, "validation failed"},
		{"reset invalid json", func(h *Handler) http.HandlerFunc { return h.ResetPassword }, `{`, http.StatusBadRequest, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := testkit.New(t)
			fx.Register(t, "Jane", "jane@example.com", "old-password")
			h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), fx.Service)

			rec := post(tt.call(h), tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp httputil.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestSendCode_NotifierFailure(t *testing.T) {
	fx := testkit.New(t)
	fx.Register(t, "Jane", "jane@example.com", "old-password")
	fx.Notifier.Err = errors.New("smtp: connection refused")
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), fx.Service)

	rec := post(h.SendCode, `{"email":"jane@example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "smtp")

	var resp httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, auth.CodeNotifyFailed, resp.Code)
}
