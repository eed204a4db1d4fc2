package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/pkg/logger"
	"github.com/huangang/taskflow/pkg/response"
	"golang.org/x/time/rate"
)

// IPThrottle is a per-client token bucket placed in front of routes that
// run before authentication.
type IPThrottle struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	idle    time.Duration
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPThrottle allows rps requests per second per client IP with bursts of
// up to burst. Buckets idle for five minutes are dropped.
func NewIPThrottle(rps float64, burst int) *IPThrottle {
	t := &IPThrottle{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    5 * time.Minute,
		stop:    make(chan struct{}),
	}
	go t.janitor(3 * time.Minute)
	return t
}

func (t *IPThrottle) bucketFor(ip string, now time.Time) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (t *IPThrottle) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case now := <-ticker.C:
			t.mu.Lock()
			for ip, b := range t.buckets {
				if now.Sub(b.lastSeen) > t.idle {
					delete(t.buckets, ip)
				}
			}
			t.mu.Unlock()
		}
	}
}

// Stop ends the janitor goroutine.
func (t *IPThrottle) Stop() {
	t.once.Do(func() { close(t.stop) })
}

// Middleware rejects a client whose bucket is empty with 429 and the delay
// until its next token.
func (t *IPThrottle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		r := t.bucketFor(c.ClientIP(), now).ReserveN(now, 1)
		if !r.OK() {
			response.TooManyRequests(c, time.Second, "too many requests, please try again later")
			return
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			response.TooManyRequests(c, delay, "too many requests, please try again later")
			return
		}
		c.Next()
	}
}

// WindowLimit enforces the per-caller fixed-window quota of limiter on
// writes; GET, HEAD and OPTIONS pass uncounted. Callers are keyed by user id
// when authenticated and by client IP otherwise; endpoints by method and
// route pattern, e.g. "POST /api/tasks/:id/move".
func WindowLimit(limiter *services.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		identifier := "ip:" + c.ClientIP()
		if userID := GetUserID(c); userID != "" {
			identifier = "user:" + userID
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		endpoint := c.Request.Method + " " + route

		decision, err := limiter.Check(c.Request.Context(), identifier, endpoint)
		if err != nil {
			if errors.Is(err, services.ErrUnavailable) {
				logger.Warn().Err(err).Str("endpoint", endpoint).Msg("rate limit store unavailable")
				response.Error(c, response.NewUnavailable("rate limiting is temporarily unavailable"))
				return
			}
			response.Error(c, err)
			return
		}

		remaining := decision.Limit - decision.Count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			response.TooManyRequests(c, decision.RetryAfter(limiter.Now()), "rate limit exceeded, retry later")
			return
		}
		c.Next()
	}
}
