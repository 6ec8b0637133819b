package controller

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserInfo is the identity extracted from a verified access token.
type UserInfo struct {
	ID   int64
	Role string
}

// TokenVerifier validates HS256 access tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Verify parses and validates a raw token string.
func (v *TokenVerifier) Verify(raw string) (UserInfo, error) {
	if raw == "" || len(v.secret) == 0 {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return UserInfo{}, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if !parsed.Valid {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != "access" {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return UserInfo{ID: userID, Role: claims.Role}, nil
}

// AuthMiddleware enforces JWT validation for protected routes.
func AuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth unavailable")
			return
		}
		info, err := verifier.Verify(requestToken(c))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Set("user_id", info.ID)
		c.Set("user_role", info.Role)
		c.Next()
	}
}

// requestToken extracts the access token from the Authorization header,
// falling back to the token query parameter for websocket upgrades where
// browser clients cannot set headers.
func requestToken(c *gin.Context) string {
	if token := extractBearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(c.Query("token"))
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func currentUserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	userID, ok := value.(int64)
	return userID, ok
}
