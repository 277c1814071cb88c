package httpmiddleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// IPLimiter keeps one token bucket per client IP.
type IPLimiter struct {
	limit rate.Limit
	burst int
	log   *logrus.Entry

	mu    sync.Mutex
	state map[string]*client
}

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewIPLimiter allows perMinute requests per IP with bursts of up to burst.
// A non-positive burst defaults to perMinute.
func NewIPLimiter(perMinute, burst int, log *logrus.Entry) *IPLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &IPLimiter{
		limit: rate.Limit(float64(perMinute) / 60),
		burst: burst,
		log:   log,
		state: make(map[string]*client),
	}
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (l *IPLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			l.log.WithFields(logrus.Fields{"ip": ip, "path": c.Request.URL.Path}).Warn("rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "kind": "rate_limited"})
			return
		}
		c.Next()
	}
}

func (l *IPLimiter) allow(key string) bool {
	l.mu.Lock()
	cl, ok := l.state[key]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.state[key] = cl
	}
	cl.seen = time.Now()
	l.mu.Unlock()
	return cl.limiter.Allow()
}

// Sweep drops clients not seen for idle.
func (l *IPLimiter) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, cl := range l.state {
		if cl.seen.Before(cutoff) {
			delete(l.state, k)
			n++
		}
	}
	return n
}

// StartSweeper runs Sweep every interval until ctx is done.
func (l *IPLimiter) StartSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Sweep(idle); n > 0 {
					l.log.WithField("dropped", n).Debug("rate limiter sweep")
				}
			}
		}
	}()
}
