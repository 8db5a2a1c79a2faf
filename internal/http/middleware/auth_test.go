// README: Tests for Firebase auth, role gating, request ids and panic recovery.
package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"freightquote/internal/http/middleware"
	"freightquote/internal/infra"
)

// stubVerifier is a test double for infra.TokenVerifier.
type stubVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func newTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/test", func(c *gin.Context) {
		uid := middleware.CallerUID(c)
		role := middleware.CallerRole(c)
		c.JSON(http.StatusOK, gin.H{"uid": uid, "role": role})
	})
	r.POST("/settings", middleware.RequireRole("pricing_admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func serve(r http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingHeader(t *testing.T) {
	r := newTestRouter(&stubVerifier{token: &infra.FirebaseToken{UID: "user1"}})
	if w := serve(r, http.MethodGet, "/test", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_InvalidBearerPrefix(t *testing.T) {
	r := newTestRouter(&stubVerifier{token: &infra.FirebaseToken{UID: "user1"}})
	if w := serve(r, http.MethodGet, "/test", "Token sometoken"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/test", "Bearer   "); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for empty token, got %d", w.Code)
	}
}

func TestAuth_VerifierError(t *testing.T) {
	r := newTestRouter(&stubVerifier{err: errors.New("bad token")})
	if w := serve(r, http.MethodGet, "/test", "Bearer invalidtoken"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken_UIDAndRolePopulated(t *testing.T) {
	token := &infra.FirebaseToken{
		UID:    "dispatcher123",
		Claims: map[string]interface{}{"role": "dispatcher"},
	}
	r := newTestRouter(&stubVerifier{token: token})
	w := serve(r, http.MethodGet, "/test", "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"uid":"dispatcher123"`) {
		t.Errorf("expected uid dispatcher123 in body, got %s", body)
	}
	if !strings.Contains(body, `"role":"dispatcher"`) {
		t.Errorf("expected role dispatcher in body, got %s", body)
	}
}

func TestAuth_ValidToken_NoRoleClaim(t *testing.T) {
	token := &infra.FirebaseToken{
		UID:    "sales456",
		Claims: map[string]interface{}{},
	}
	r := newTestRouter(&stubVerifier{token: token})
	w := serve(r, http.MethodGet, "/test", "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "sales456") {
		t.Errorf("expected uid sales456 in body")
	}
}

func TestRequireRole(t *testing.T) {
	admin := &infra.FirebaseToken{UID: "a", Claims: map[string]interface{}{"role": "pricing_admin"}}
	if w := serve(newTestRouter(&stubVerifier{token: admin}), http.MethodPost, "/settings", "Bearer t"); w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for admin, got %d", w.Code)
	}
	sales := &infra.FirebaseToken{UID: "s", Claims: map[string]interface{}{"role": "sales"}}
	if w := serve(newTestRouter(&stubVerifier{token: sales}), http.MethodPost, "/settings", "Bearer t"); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for sales, got %d", w.Code)
	}
}

func TestStaticVerifier(t *testing.T) {
	v := infra.StaticVerifier{"dev-token": {UID: "dev"}}
	r := newTestRouter(v)
	if w := serve(r, http.MethodGet, "/test", "Bearer dev-token"); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/test", "Bearer other"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestLoggingAndRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Logging(zap.NewNop()), middleware.Recovery(zap.NewNop()), middleware.Anonymous("system"))
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, middleware.CallerUID(c)) })

	w := serve(r, http.MethodGet, "/boom", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if w.Header().Get(middleware.HeaderRequestID) == "" {
		t.Error("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get(middleware.HeaderRequestID); got != "req-1" {
		t.Errorf("request id = %q, want req-1", got)
	}
	if rec.Body.String() != "system" {
		t.Errorf("anonymous actor = %q, want system", rec.Body.String())
	}
}
