package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the token's "role" claim.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Context keys populated by Authenticate.
const (
	ctxUserID = "userID"
	ctxRole   = "role"
)

// Authenticate verifies the Bearer token and stores the subject and role
// in the request context. Identity issuance lives in a separate service;
// this side only verifies.
func Authenticate(secret string) gin.HandlerFunc {
	keyFunc := func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			respondError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, keyFunc,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			respondError(c, http.StatusUnauthorized, "invalid token")
			return
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			respondError(c, http.StatusUnauthorized, "invalid token")
			return
		}

		role, _ := claims["role"].(string)
		if role == "" {
			role = RoleCustomer
		}

		c.Set(ctxUserID, sub)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireRole rejects authenticated requests whose role does not match.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != role {
			respondError(c, http.StatusForbidden, "insufficient permissions")
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
