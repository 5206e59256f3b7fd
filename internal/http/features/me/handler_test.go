package me

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-authcore/internal/http/middleware"
	"github.com/tendant/simple-authcore/internal/httputil"
	"github.com/tendant/simple-authcore/internal/testkit"
	"github.com/tendant/simple-authcore/pkg/domain"
)

func newHandler(t *testing.T) (*Handler, *testkit.Fixture) {
	t.Helper()
	fx := testkit.New(t)
	return NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), fx.Service, httputil.DefaultCookieConfig()), fx
}

func authed(method, body string, id uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/profile", bytes.NewBufferString(body))
	ctx := context.WithValue(req.Context(), middleware.AccountIDKey, id)
	return req.WithContext(ctx)
}

func TestGetMe(t *testing.T) {
	h, fx := newHandler(t)
	account := fx.Register(t, "Jane", "jane@example.com", "correct-horse")

	rec := httptest.NewRecorder()
	h.GetMe(rec, authed(http.MethodGet, "", account.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	var profile domain.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))
	assert.Equal(t, account.ID, profile.ID)
	assert.Equal(t, "jane@example.com", profile.Email)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestGetMe_Unauthenticated(t *testing.T) {
	h, _ := newHandler(t)

	rec := httptest.NewRecorder()
	h.GetMe(rec, httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetMe_AccountVanished(t *testing.T) {
	h, _ := newHandler(t)

	rec := httptest.NewRecorder()
	h.GetMe(rec, authed(http.MethodGet, "", uuid.New()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMe(t *testing.T) {
	h, fx := newHandler(t)
	account := fx.Register(t, "Jane", "jane@example.com", "correct-horse")
	fx.Register(t, "Other", "other@example.com", "correct-horse")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantName   string
	}{
		{"rename", `{"name":"Jane Doe"}`, http.StatusOK, "Jane Doe"},
		{"email taken", `{"email":"other@example.com"}`, http.StatusConflict, ""},
		{"empty update", `{}`, http.StatusBadRequest, ""},
		{"invalid email", `{"email":"not-an-email"}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.UpdateMe(rec, authed(http.MethodPatch, tt.body, account.ID))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantName != "" {
				var profile domain.Profile
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))
				assert.Equal(t, tt.wantName, profile.Name)
			}
		})
	}
}

func TestDeleteMe(t *testing.T) {
	h, fx := newHandler(t)
	account := fx.Register(t, "Jane", "jane@example.com", "correct-horse")

	rec := httptest.NewRecorder()
	h.DeleteMe(rec, authed(http.MethodDelete, "", account.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := fx.Store.FindByID(t.Context(), account.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	rec = httptest.NewRecorder()
	h.DeleteMe(rec, authed(http.MethodDelete, "", account.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
