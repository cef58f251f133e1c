package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/corbeille/corbeille-backend/pkg/auth"
	"github.com/corbeille/corbeille-backend/pkg/config"
	"github.com/corbeille/corbeille-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "corbeille"}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	token := mintTestToken(t, enums.OperatorRoleAdmin, time.Now().Add(-2*time.Hour))
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	token := mintTestToken(t, enums.OperatorRoleDispatcher, time.Now())

	var operator string
	var role enums.OperatorRole
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator = OperatorIDFromContext(r.Context())
		role = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if operator != "op-42" {
		t.Fatalf("unexpected operator %q", operator)
	}
	if role != enums.OperatorRoleDispatcher {
		t.Fatalf("unexpected role %q", role)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.OperatorRoleAdmin, enums.OperatorRoleDispatcher)(okHandler())

	cases := map[enums.OperatorRole]int{
		enums.OperatorRoleAdmin:      http.StatusOK,
		enums.OperatorRoleDispatcher: http.StatusOK,
		enums.OperatorRoleDriver:     http.StatusForbidden,
		"":                           http.StatusForbidden,
	}
	for role, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithOperator(req.Context(), "op-1", role))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("role %q: expected %d got %d", role, want, resp.Code)
		}
	}
}

func mintTestToken(t *testing.T, role enums.OperatorRole, issuedAt time.Time) string {
	t.Helper()
	token, err := auth.MintOperatorToken(testJWT, issuedAt, time.Hour, auth.OperatorTokenPayload{
		OperatorID: "op-42",
		Role:       role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
