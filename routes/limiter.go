package routes

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter hands every client IP its own token bucket.
type IPLimiter struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewIPLimiter(rps float64, burst int) *IPLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		ttl:      15 * time.Minute,
		visitors: make(map[string]*visitor),
	}
}

func (l *IPLimiter) Allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	// drop idle visitors on the way
	for key, other := range l.visitors {
		if now.Sub(other.lastSeen) > l.ttl {
			delete(l.visitors, key)
		}
	}
	return v.limiter.AllowN(now, 1)
}

// Middleware answers 429 once a client IP runs out of tokens.
func (l *IPLimiter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !l.Allow(c.RealIP()) {
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"success": false,
				"error":   "rate limit exceeded",
			})
		}
		return next(c)
	}
}
