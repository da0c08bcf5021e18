// Package middleware holds the HTTP handler wrappers of the search API.
package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SecurityHeaders sets the response headers every API reply carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerMin int
	BurstSize      int
	// TrustedProxies are the peers, as addresses or CIDR prefixes, whose
	// X-Forwarded-For and X-Real-IP headers are believed. Empty means headers
	// are ignored.
	TrustedProxies []string
	// OnReject is called for every request turned away.
	OnReject func(r *http.Request)
}

const clientIdleTTL = 3 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// buckets holds one limiter per client address.
type buckets struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*bucket
}

func (b *buckets) get(ip string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.clients[ip]
	if !ok {
		c = &bucket{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (b *buckets) evictIdle(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ip, c := range b.clients {
		if now.Sub(c.lastSeen) > clientIdleTTL {
			delete(b.clients, ip)
		}
	}
}

// RateLimit limits every client IP to cfg.RequestsPerMin with bursts of
// cfg.BurstSize. Rejections carry a Retry-After of the seconds until the
// next token. Idle clients are forgotten until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) func(http.Handler) http.Handler {
	set := &buckets{
		limit:   rate.Limit(float64(cfg.RequestsPerMin) / 60),
		burst:   cfg.BurstSize,
		clients: make(map[string]*bucket),
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				set.evictIdle(now)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			lim := set.get(ClientIP(r, cfg.TrustedProxies), now)

			res := lim.ReserveN(now, 1)
			if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
				res.CancelAt(now)
				if cfg.OnReject != nil {
					cfg.OnReject(r)
				}
				w.Header().Set("Retry-After", retryAfter(res.OK(), delay))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(ok bool, delay time.Duration) string {
	if !ok {
		return "60"
	}
	return strconv.Itoa(int(math.Ceil(delay.Seconds())))
}

// ClientIP returns the address of the client behind r. Forwarding headers
// are only honoured when the direct peer is a trusted proxy; the first
// X-Forwarded-For entry wins over X-Real-IP.
func ClientIP(r *http.Request, trustedProxies []string) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !isTrusted(peer, trustedProxies) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return peer
}

func isTrusted(peer string, proxies []string) bool {
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range proxies {
		if strings.Contains(p, "/") {
			if prefix, err := netip.ParsePrefix(p); err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		if a, err := netip.ParseAddr(p); err == nil && a.Unmap() == addr {
			return true
		}
	}
	return false
}
