// ABOUTME: Per-claw token bucket rate limiting for authenticated routes
// ABOUTME: Limiters are created on first request and shared per claw id

package server

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/config"
)

type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func (p *limiterPool) get(clawID string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[clawID]
	if !ok {
		l = rate.NewLimiter(p.rate, p.burst)
		p.limiters[clawID] = l
	}
	return l
}

// perClawRateLimit limits authenticated requests per claw. Must run after
// the auth middleware so the caller identity is in context.
func perClawRateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	pool := &limiterPool{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(cfg.Rate),
		burst:    cfg.Burst,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.FromContext(r.Context())
			if authCtx == nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if !pool.get(authCtx.ClawID).Allow() {
				rateLimited.Inc()
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
