package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Flood is a coarse global ingress guard sitting in front of the per-client
// pipeline limiter, so one flooding client cannot starve the service of the
// CPU needed to reject it properly.
func Flood(rps, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "FLOOD_PROTECTION",
				"message": "service is shedding load, retry shortly",
			})
			return
		}
		c.Next()
	}
}
