package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	UserIDKey = "userID"
	EmailKey  = "email"
	RoleKey   = "role"
)

// AuthMiddleware verifies the bearer token and stores the caller's identity
// on the request context. Token issuance happens elsewhere; this service only
// verifies.
func AuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			return
		}
		tokenString := authHeader[7:]

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		sub, _ := claims["sub"].(string)
		if sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}
		c.Set(UserIDKey, sub)
		if email, ok := claims["email"].(string); ok {
			c.Set(EmailKey, email)
		}
		if role, ok := claims["role"].(string); ok {
			c.Set(RoleKey, role)
		}

		c.Next()
	}
}

// AdminOnly rejects callers whose token does not carry the admin role.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(RoleKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		roleStr, ok := role.(string)
		if !ok || roleStr != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated caller's id.
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	val, exists := c.Get(UserIDKey)
	if !exists {
		return uuid.Nil, fmt.Errorf("user id missing from context")
	}
	s, ok := val.(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("user id has unexpected type")
	}
	return uuid.Parse(s)
}

// GetEmail returns the authenticated caller's email, if present.
func GetEmail(c *gin.Context) string {
	if val, exists := c.Get(EmailKey); exists {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}
