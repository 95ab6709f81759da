package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminSecretMiddleware(t *testing.T) {
	t.Setenv("ADMIN_API_SECRET", "s3cret")
	h := AdminSecretMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/fix-subscription-status", nil)
	req.Header.Set("X-Admin-Secret", "s3cret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/fix-subscription-status", nil)
	req.Header.Set("X-Admin-Secret", "wrong")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/fix-subscription-status", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAdminSecretMiddlewareMissingConfig(t *testing.T) {
	t.Setenv("ADMIN_API_SECRET", "")
	h := AdminSecretMiddleware(okHandler())

	// No configured secret means the door stays shut, not open.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/fix-subscription-status", nil)
	req.Header.Set("X-Admin-Secret", "")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestClerkAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	h := ClerkAuthMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/image-usage", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/image-usage", nil)
	req.Header.Set("Authorization", "not-a-bearer-token")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetClerkID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := GetClerkID(req.Context())
	assert.False(t, ok)
}
