package middleware

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserContext represents user information in the request context
type UserContext struct {
	UserID  uint   `json:"user_id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

// JWTRequired middleware validates JWT tokens and extracts user information
func JWTRequired() gin.HandlerFunc {
	secret := getJWTSecret()

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization format. Expected 'Bearer <token>'",
			})
			return
		}

		claims, err := validateToken(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		userID, okID := claims["user_id"].(float64)
		name, okName := claims["name"].(string)
		if !okID || !okName {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token claims",
			})
			return
		}
		isAdmin, _ := claims["is_admin"].(bool)

		c.Set("user", UserContext{
			UserID:  uint(userID),
			Name:    name,
			IsAdmin: isAdmin,
		})
		c.Next()
	}
}

// AdminRequired rejects requests from non-admin users. Must run after
// JWTRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetUserFromContext(c)
		if !ok || !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			return
		}
		c.Next()
	}
}

// GetUserFromContext extracts user information from the request context
func GetUserFromContext(c *gin.Context) (*UserContext, bool) {
	userInterface, exists := c.Get("user")
	if !exists {
		return nil, false
	}

	user, ok := userInterface.(UserContext)
	if !ok {
		return nil, false
	}
	return &user, true
}

// IssueToken creates a signed JWT for the given user identity.
func IssueToken(userID uint, name string, isAdmin bool, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  float64(userID),
		"name":     name,
		"is_admin": isAdmin,
		"exp":      time.Now().Add(ttl).Unix(),
		"iat":      time.Now().Unix(),
	})
	return token.SignedString([]byte(getJWTSecret()))
}

// validateToken validates a JWT token and returns the claims
func validateToken(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrInvalidKey
}

// getJWTSecret returns the signing secret from the environment.
func getJWTSecret() string {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}
	return "dev-only-secret"
}
