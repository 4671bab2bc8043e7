package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleksandrVishniakov/versta-2024/pkg/jwt"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
	"github.com/AleksandrVishniakov/versta-2024/pkg/response"
)

const (
	ClaimsKey     = "claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "

	StatusAdmin = "admin"
)

// AuthMiddleware validates bearer access tokens issued by a jwt.Manager.
type AuthMiddleware struct {
	tokens *jwt.Manager
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens *jwt.Manager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth rejects requests without a valid access token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			return
		}

		if !m.authenticate(c, authHeader) {
			return
		}
		c.Next()
	}
}

// OptionalAuth validates the token when one is sent and lets anonymous
// requests through.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader != "" && !m.authenticate(c, authHeader) {
			return
		}
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || claims.Status != StatusAdmin {
			response.Forbidden(c, "admin only")
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context, authHeader string) bool {
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		response.Unauthorized(c, "invalid authorization format")
		return false
	}

	claims, err := m.tokens.ValidateAccessToken(strings.TrimPrefix(authHeader, BearerPrefix))
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrExpiredToken) {
			msg = "token has expired"
		}
		response.Unauthorized(c, msg)
		return false
	}

	c.Set(ClaimsKey, claims)
	c.Set(log.FieldEmail, claims.Email)
	c.Set(log.FieldRole, claims.Status)
	return true
}

// GetClaims extracts the token claims from Gin context.
func GetClaims(c *gin.Context) *jwt.Claims {
	if claims, exists := c.Get(ClaimsKey); exists {
		return claims.(*jwt.Claims)
	}
	return nil
}
