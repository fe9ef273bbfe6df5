package handler

import (
	"net/http"
	"time"

	"market-echo/internal/domain"
	"market-echo/internal/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows browser clients from any origin to read the API.
func CORS() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}

// RateLimit throttles /api requests per client IP.
func RateLimit(perMin int) gin.HandlerFunc {
	limiter := ratelimit.NewKeyed(perMin)
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			respondError(c, http.StatusTooManyRequests, domain.KindInvalidRequest, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
