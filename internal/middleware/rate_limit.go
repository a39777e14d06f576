package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/noah-isme/hris-leave-api/internal/models"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
	"github.com/noah-isme/hris-leave-api/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter hands out one token bucket per key. Buckets idle for longer
// than limiterIdleTTL are dropped on the next sweep.
type KeyedRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyedLimiter
	r         rate.Limit
	b         int
	now       func() time.Time
	lastSweep time.Time
}

// NewKeyedRateLimiter constructs a limiter allowing r events per second with burst b per key.
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*keyedLimiter),
		r:        r,
		b:        b,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now.
func (l *KeyedRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, entry := range l.limiters {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &keyedLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// RateLimitByUser throttles authenticated callers by user id. Requests without
// claims pass through; the JWT middleware rejects them earlier. A non-positive
// rate disables the limit.
func RateLimitByUser(r rate.Limit, burst int) gin.HandlerFunc {
	if r <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := NewKeyedRateLimiter(r, burst)
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		claims, _ := value.(*models.JWTClaims)
		if !exists || claims == nil {
			c.Next()
			return
		}
		if !limiter.Allow(claims.UserID) {
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
