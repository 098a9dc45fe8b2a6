package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/provenance/config"
	"example.com/backstage/services/provenance/utils"
)

const (
	requestIDKey = "X-Request-ID"
	principalKey = "X-Principal-ID"
)

// RequestIDMiddleware adds a request ID to the context
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get request ID from header or generate a new one
		requestID := c.GetHeader(requestIDKey)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header(requestIDKey, requestID)

		c.Next()
	}
}

// CORSMiddleware handles CORS for the configured origins
func CORSMiddleware(cfg config.ServerConfig) gin.HandlerFunc {
	allowAll := len(cfg.CorsOrigins) == 0
	allowed := make(map[string]bool, len(cfg.CorsOrigins))
	for _, origin := range cfg.CorsOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", requestIDKey, principalKey,
		}, ", "))
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// LoggingMiddleware logs API requests
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		requestID := c.GetString(requestIDKey)
		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", requestID).
			Str("principal", c.GetString(principalKey)).
			Msg("API request")
	}
}

// PrincipalMiddleware records the caller identity set by the identity proxy
func PrincipalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if principal := strings.TrimSpace(c.GetHeader(principalKey)); principal != "" {
			c.Set(principalKey, principal)
		}
		c.Next()
	}
}

// RequirePrincipal rejects writes that carry no caller identity
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(principalKey) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing " + principalKey + " header",
				"code":  "UNAUTHENTICATED",
			})
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) string {
	return c.GetString(principalKey)
}

// pathIDs are the URL parameters that carry ledger identifiers. Numeric
// parameters are parsed by their handlers.
var pathIDs = map[string]bool{
	"id":         true,
	"principal":  true,
	"role":       true,
	"standardId": true,
}

// ValidatePathIDs rejects oversized or malformed identifiers in the URL
// before they reach a handler
func ValidatePathIDs() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, param := range c.Params {
			if !pathIDs[param.Key] {
				continue
			}
			if err := utils.ValidateID(param.Key, param.Value); err != nil {
				respondError(c, err)
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
