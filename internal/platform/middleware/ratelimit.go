// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/respond"
)

// # Per-IP Token Buckets

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter keeps one token bucket per client IP. Each RateLimitWith call
// owns its own table.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// take spends one token for ip. When the bucket is empty it returns how long
// until a token is available and leaves the bucket untouched.
func (limiter *ipLimiter) take(ip string, now time.Time) (time.Duration, bool) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	entry, found := limiter.buckets[ip]
	if !found {
		entry = &bucket{limiter: rate.NewLimiter(limiter.rps, limiter.burst)}
		limiter.buckets[ip] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return constants.RateLimitClientTTL, false
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return delay, false
	}
	return 0, true
}

func (limiter *ipLimiter) evictIdle(now time.Time) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	for ip, entry := range limiter.buckets {
		if now.Sub(entry.lastSeen) > constants.RateLimitClientTTL {
			delete(limiter.buckets, ip)
		}
	}
}

func (limiter *ipLimiter) size() int {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	return len(limiter.buckets)
}

/*
RateLimitWith throttles requests per client IP with a token bucket of rps
and burst. Rejected requests get 429 RATE_LIMITED with Retry-After set to the
whole seconds until the next token.

Idle buckets are evicted by a janitor goroutine that stops with context.
*/
func RateLimitWith(context context.Context, rps float64, burst int) func(http.Handler) http.Handler {
	limiter := newIPLimiter(rps, burst)

	go func() {
		ticker := time.NewTicker(constants.RateLimitCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				limiter.evictIdle(now)
			case <-context.Done():
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if wait, ok := limiter.take(RealIP(request), time.Now()); !ok {
				respond.Error(writer, request, apperr.RateLimited(retrySeconds(wait)))
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

func retrySeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}
