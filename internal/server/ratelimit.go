package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// loadLimiter 限制加载类请求（上传、重新扫描）的频率；解析工作簿开销较大
type loadLimiter struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newLoadLimiter(rps float64, burst int, logger *slog.Logger) *loadLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &loadLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// middleware 仅作用于 POST 请求
func (l *loadLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if !l.limiter.Allow() {
			l.logger.WarnContext(c.Request.Context(), "load rate limit exceeded",
				"path", c.Request.URL.Path,
				"remote", c.ClientIP(),
			)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many load requests, retry shortly"})
			return
		}
		c.Next()
	}
}
