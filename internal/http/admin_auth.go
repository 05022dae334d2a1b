package http

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// MinAdminTokenLength is the shortest admin token HashAdminToken accepts.
const MinAdminTokenLength = 16

var (
	ErrAdminTokenTooShort = errors.New("admin token must be at least 16 characters")
	ErrAdminTokenTooLong  = errors.New("admin token exceeds maximum length of 72 bytes")
)

// HashAdminToken creates the bcrypt hash to put in ADMIN_TOKEN_HASH.
func HashAdminToken(token string, cost int) (string, error) {
	if len(token) < MinAdminTokenLength {
		return "", ErrAdminTokenTooShort
	}
	// bcrypt has a 72-byte limit
	if len(token) > 72 {
		return "", ErrAdminTokenTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AdminAuthMiddleware requires "Authorization: Bearer <token>" matching the
// bcrypt hash. An empty hash lets every request through. A non-nil limiter
// locks out clients after repeated bad tokens.
func AdminAuthMiddleware(tokenHash string, limiter *AttemptLimiter) gin.HandlerFunc {
	if tokenHash == "" {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	hash := []byte(tokenHash)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if limiter != nil {
			if allowed, retryAfter := limiter.Allow(ip); !allowed {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many failed authentication attempts"})
				return
			}
		}

		token, ok := bearerToken(c)
		if !ok || bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
			if limiter != nil && limiter.RecordFailure(ip) {
				log.Printf("Admin auth: locked out %s after repeated bad tokens", ip)
			}
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
			return
		}

		if limiter != nil {
			limiter.RecordSuccess(ip)
		}
		c.Next()
	}
}

// bearerToken extracts the token from "Bearer <token>".
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// securityHeadersMiddleware adds the response headers every JSON endpoint carries.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}
