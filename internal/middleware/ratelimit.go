package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"Crowd_Conscious/internal/pkg"
)

// RateLimiter 按用户（未登录按 IP）分别限流
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
	lastGC   time.Time
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter perSecond <= 0 表示不限流
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limiters: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastGC) > l.idle {
		for k, v := range l.limiters {
			if now.Sub(v.seen) > l.idle {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}
	v, ok := l.limiters[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = v
	}
	v.seen = now
	return v.lim.AllowN(now, 1)
}

// Handler 只限制写请求；需放在 Auth 之后才能按用户区分
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if uid := c.GetUint64(ContextUserIDKey); uid > 0 {
			key = "user:" + strconv.FormatUint(uid, 10)
		}
		if !l.allow(key) {
			abort(c, pkg.ErrRateLimited)
			return
		}
		c.Next()
	}
}
