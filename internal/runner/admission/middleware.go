package admission

import (
	"time"

	"liverun/internal/common/cache"
	"liverun/internal/runner/observer"
	pkgerrors "liverun/pkg/errors"
	"liverun/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Rejection reasons reported to metrics.
const (
	ReasonRate        = "rate"
	ReasonConcurrency = "concurrency"
	ReasonUnavailable = "unavailable"
)

const slotTTL = time.Hour

// New picks the Redis limiter when a cache is configured and the local one otherwise.
func New(cfg Config, cacheClient cache.BasicOps) Limiter {
	if !cfg.Enabled {
		return Unlimited{}
	}
	if cacheClient != nil {
		return NewRedisLimiter(cacheClient, cfg)
	}
	return NewLocalLimiter(cfg)
}

// Middleware admits the request or aborts it with 429. The slot is held until
// the handler returns, so handlers must block for the lifetime of the session.
func Middleware(limiter Limiter, recorder observer.Recorder) gin.HandlerFunc {
	if recorder == nil {
		recorder = observer.Noop{}
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		release, err := limiter.Acquire(c.Request.Context(), c.ClientIP())
		if err != nil {
			recorder.ConnectionRejected(rejectionReason(err))
			response.AbortWithError(c, err)
			return
		}
		defer release()
		c.Next()
	}
}

func rejectionReason(err error) string {
	e := pkgerrors.GetError(err)
	if reason, ok := e.Details["reason"].(string); ok {
		return reason
	}
	return ReasonUnavailable
}
