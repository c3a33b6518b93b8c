package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	obscontext "github.com/Franc-dev/donate-artist/internal/observability/context"
	"github.com/Franc-dev/donate-artist/internal/observability/logger"
)

const (
	HeaderAdminToken = "X-Admin-Token"

	contextPaymentReferenceKey = "payment_reference"
)

// DonationRateLimit throttles donation submissions per client address. A
// limiter failure lets the request through.
func (s *Server) DonationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("donation rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			}
			logger.FromContext(ctx).Info("donation rate limited", zap.String("client_ip", c.ClientIP()))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// AdminRequired checks the admin token header against the policy for
// object and action.
func (s *Server) AdminRequired(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(HeaderAdminToken))
		if err := s.authz.Authorize(c.Request.Context(), token, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// setPaymentReference tags the request context so every log line for the
// request, including the access log, carries the reference.
func setPaymentReference(c *gin.Context, reference string) {
	if reference = strings.TrimSpace(reference); reference != "" {
		c.Set(contextPaymentReferenceKey, reference)
		c.Request = c.Request.WithContext(obscontext.WithPaymentReference(c.Request.Context(), reference))
	}
}
