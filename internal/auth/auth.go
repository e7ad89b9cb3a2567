// Package auth issues and verifies the JWTs that carry the tenant scope.
// Handlers never read a global "current business"; the middleware resolves
// the scope from the token and passes it along explicitly.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"biashara-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const scopeContextKey = "auth.scope"

type Claims struct {
	UserID     int64  `json:"user_id"`
	BusinessID int64  `json:"business_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewManager creates a token manager
func NewManager(secret string, tokenTTL time.Duration) *Manager {
	return &Manager{secret: []byte(secret), tokenTTL: tokenTTL}
}

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against its bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueToken signs a token for a user
func (m *Manager) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:     user.ID,
		BusinessID: user.BusinessID,
		Role:       user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a token, returning the tenant scope it
// carries
func (m *Manager) VerifyToken(tokenString string) (models.Scope, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return models.Scope{}, err
	}
	if !token.Valid {
		return models.Scope{}, errors.New("invalid token")
	}

	return models.Scope{
		UserID:     claims.UserID,
		BusinessID: claims.BusinessID,
		Role:       claims.Role,
	}, nil
}

// Middleware authenticates requests and stores the resolved scope on the
// gin context
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"details": "missing bearer token",
			})
			return
		}

		scope, err := m.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"details": "invalid token",
			})
			return
		}

		c.Set(scopeContextKey, scope)
		c.Next()
	}
}

// RequireRole rejects requests whose scope lacks any of the given roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := ScopeFrom(c)
		for _, role := range roles {
			if scope.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"details": "insufficient role",
		})
	}
}

// ScopeFrom returns the tenant scope the middleware stored on the context
func ScopeFrom(c *gin.Context) models.Scope {
	if v, ok := c.Get(scopeContextKey); ok {
		if scope, ok := v.(models.Scope); ok {
			return scope
		}
	}
	return models.Scope{}
}
