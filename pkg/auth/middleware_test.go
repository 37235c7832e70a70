package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/models"
)

type mockAuthService struct {
	claims *Claims
	err    error
}

func (m *mockAuthService) ValidateRequest(*http.Request) (*Claims, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return m.claims, "raw-token", nil
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := GetClaims(r.Context())
	token, _ := GetToken(r.Context())
	_ = json.NewEncoder(w).Encode(map[string]string{"sub": claims.Subject, "token": token})
}

func TestRequireAuth_Unauthorized(t *testing.T) {
	mw := NewMiddleware(&mockAuthService{err: errors.New("expired")}, zap.NewNop())

	rec := httptest.NewRecorder()
	mw.RequireAuth(okHandler)(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body["error"])
}

func TestRequireAuth_StoresClaims(t *testing.T) {
	claims := &Claims{Role: models.RoleViewer}
	claims.Subject = "alice"
	mw := NewMiddleware(&mockAuthService{claims: claims}, zap.NewNop())

	rec := httptest.NewRecorder()
	mw.RequireAuth(okHandler)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["sub"])
	assert.Equal(t, "raw-token", body["token"])
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		wantCode int
	}{
		{"admin allowed", models.RoleAdmin, http.StatusOK},
		{"viewer forbidden", models.RoleViewer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &Claims{Role: tt.role}
			claims.Subject = "alice"
			mw := NewMiddleware(&mockAuthService{claims: claims}, zap.NewNop())

			rec := httptest.NewRecorder()
			handler := mw.RequireAuth(mw.RequireRole(models.RoleAdmin)(okHandler))
			handler(rec, httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequireRole_WithoutClaims(t *testing.T) {
	mw := NewMiddleware(&mockAuthService{}, zap.NewNop())

	rec := httptest.NewRecorder()
	mw.RequireRole(models.RoleAdmin)(okHandler)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionStore_Clear(t *testing.T) {
	store := NewSessionStore("secret", "access_token", false, 0)
	rec := httptest.NewRecorder()
	require.NoError(t, store.Clear(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil)))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "access_token", cookies[0].Name)
	assert.True(t, cookies[0].MaxAge < 0)
}
