package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/rbac"
)

func TestGenerateAndParseJWT(t *testing.T) {
	id := uuid.New()
	tok, err := GenerateJWT("secret", id, "Buyer@Example.com", rbac.RoleCustomer, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	claims, err := ParseJWT("secret", tok)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != id || claims.Email != "buyer@example.com" || claims.Role != rbac.RoleCustomer {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseJWTRejects(t *testing.T) {
	tok, _ := GenerateJWT("secret", uuid.New(), "a@example.com", rbac.RoleAdmin, time.Hour)
	if _, err := ParseJWT("other-secret", tok); err == nil {
		t.Error("wrong secret must fail")
	}

	expired, _ := GenerateJWT("secret", uuid.New(), "a@example.com", rbac.RoleAdmin, -time.Hour)
	// negative expiration falls back to 24h
	if _, err := ParseJWT("secret", expired); err != nil {
		t.Errorf("fallback expiration token should parse: %v", err)
	}

	claims := Claims{
		Email: "a@example.com",
		Role:  rbac.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    issuer,
		},
	}
	old, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if _, err := ParseJWT("secret", old); err == nil {
		t.Error("expired token must fail")
	}

	if _, err := GenerateJWT("secret", uuid.New(), "a@example.com", rbac.Role("root"), time.Hour); err == nil {
		t.Error("unknown role must be rejected")
	}
}
