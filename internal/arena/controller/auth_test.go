package controller

import (
	"testing"
	"time"

	pkgerrors "codearena/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims tokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func accessClaims(subject string) tokenClaims {
	return tokenClaims{
		Role:      "player",
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "codearena",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestVerifyValidToken(t *testing.T) {
	t.Parallel()
	verifier := NewTokenVerifier(testSecret, "codearena")
	raw := signToken(t, testSecret, accessClaims("42"))

	info, err := verifier.Verify(raw)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if info.ID != 42 {
		t.Fatalf("expected user 42, got %d", info.ID)
	}
	if info.Role != "player" {
		t.Fatalf("expected player role, got %q", info.Role)
	}
}

func TestVerifyRejectsInvalidTokens(t *testing.T) {
	t.Parallel()
	verifier := NewTokenVerifier(testSecret, "codearena")

	wrongIssuer := accessClaims("42")
	wrongIssuer.Issuer = "someone-else"

	refreshToken := accessClaims("42")
	refreshToken.TokenType = "refresh"

	badSubject := accessClaims("not-a-number")

	tests := []struct {
		name string
		raw  string
		code pkgerrors.ErrorCode
	}{
		{name: "empty token", raw: "", code: pkgerrors.TokenInvalid},
		{name: "garbage token", raw: "not.a.jwt", code: pkgerrors.TokenInvalid},
		{name: "wrong secret", raw: signToken(t, "other-secret", accessClaims("42")), code: pkgerrors.TokenInvalid},
		{name: "wrong issuer", raw: signToken(t, testSecret, wrongIssuer), code: pkgerrors.TokenInvalid},
		{name: "refresh token rejected", raw: signToken(t, testSecret, refreshToken), code: pkgerrors.TokenInvalid},
		{name: "non numeric subject", raw: signToken(t, testSecret, badSubject), code: pkgerrors.TokenInvalid},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := verifier.Verify(tt.raw)
			if !pkgerrors.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
		})
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	t.Parallel()
	verifier := NewTokenVerifier(testSecret, "codearena")
	claims := accessClaims("42")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	raw := signToken(t, testSecret, claims)

	_, err := verifier.Verify(raw)
	if !pkgerrors.Is(err, pkgerrors.TokenExpired) {
		t.Fatalf("expected TokenExpired, got %v", err)
	}
}

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "bearer prefix", header: "Bearer abc", want: "abc"},
		{name: "case insensitive prefix", header: "bearer abc", want: "abc"},
		{name: "missing prefix", header: "abc", want: ""},
		{name: "wrong scheme", header: "Basic abc", want: ""},
		{name: "empty header", header: "", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := extractBearerToken(tt.header); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
