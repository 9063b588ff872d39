package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/split-engine/auth"
	"github.com/warp/split-engine/ledger"
)

func TestJWTManager_GenerateValidate_RoundTrip(t *testing.T) {
	m := auth.NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestJWTManager_Validate_WrongSecret(t *testing.T) {
	issuer := auth.NewJWTManager("secret-a", time.Hour)
	verifier := auth.NewJWTManager("secret-b", time.Hour)

	token, err := issuer.Generate("user-1")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestJWTManager_Validate_Expired(t *testing.T) {
	m := auth.NewJWTManager("test-secret", -time.Minute)

	token, err := m.Generate("user-1")
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestJWTManager_CurrentUserID(t *testing.T) {
	m := auth.NewJWTManager("test-secret", time.Hour)

	_, err := m.CurrentUserID(context.Background())
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	id, err := m.CurrentUserID(auth.WithUser(context.Background(), "user-1"))
	require.NoError(t, err)
	assert.Equal(t, ledger.UserID("user-1"), id)
}

func TestJWTManager_Middleware(t *testing.T) {
	m := auth.NewJWTManager("test-secret", time.Hour)

	var seen ledger.UserID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.CurrentUserID(r.Context())
		require.NoError(t, err)
		seen = id
		w.WriteHeader(http.StatusNoContent)
	})
	handler := m.Middleware(next)

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := m.Generate("user-1")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, ledger.UserID("user-1"), seen)
	})
}
