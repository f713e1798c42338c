package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

const DefaultRequestTimeout = 30 * time.Second

// Timeout bounds the request context; repositories abort on its deadline.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
