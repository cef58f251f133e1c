package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/corbeille/corbeille-backend/pkg/config"
	"github.com/corbeille/corbeille-backend/pkg/enums"
)

func TestMintAndParseOperatorToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "corbeille"}
	now := time.Now().UTC()

	token, err := MintOperatorToken(cfg, now, time.Hour, OperatorTokenPayload{
		OperatorID: "ops-1",
		Role:       enums.OperatorRoleDispatcher,
	})
	if err != nil {
		t.Fatalf("mint operator token: %v", err)
	}

	claims, err := ParseOperatorToken(cfg, token)
	if err != nil {
		t.Fatalf("parse operator token: %v", err)
	}
	if claims.OperatorID() != "ops-1" {
		t.Fatalf("expected subject ops-1, got %s", claims.OperatorID())
	}
	if claims.Role != enums.OperatorRoleDispatcher {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
}

func TestParseOperatorTokenRejectsExpired(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "corbeille"}
	token, err := MintOperatorToken(cfg, time.Now().Add(-2*time.Hour), time.Hour, OperatorTokenPayload{
		OperatorID: "ops-1",
		Role:       enums.OperatorRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint operator token: %v", err)
	}
	if _, err := ParseOperatorToken(cfg, token); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestParseOperatorTokenRejectsWrongSecretAndIssuer(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "corbeille"}
	token, err := MintOperatorToken(cfg, time.Now(), time.Hour, OperatorTokenPayload{
		OperatorID: "ops-1",
		Role:       enums.OperatorRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint operator token: %v", err)
	}

	if _, err := ParseOperatorToken(config.JWTConfig{Secret: "other", Issuer: "corbeille"}, token); err == nil {
		t.Fatalf("expected signature error")
	}
	if _, err := ParseOperatorToken(config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, token); err == nil {
		t.Fatalf("expected issuer error")
	}
}

func TestMintOperatorTokenValidatesPayload(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "corbeille"}
	if _, err := MintOperatorToken(cfg, time.Now(), time.Hour, OperatorTokenPayload{Role: enums.OperatorRoleAdmin}); err == nil {
		t.Fatalf("expected missing operator id error")
	}
	if _, err := MintOperatorToken(cfg, time.Now(), time.Hour, OperatorTokenPayload{OperatorID: "x", Role: "owner"}); err == nil {
		t.Fatalf("expected invalid role error")
	}
	if _, err := MintOperatorToken(config.JWTConfig{Issuer: "corbeille"}, time.Now(), time.Hour, OperatorTokenPayload{OperatorID: "x", Role: enums.OperatorRoleAdmin}); err == nil {
		t.Fatalf("expected missing secret error")
	}
}
