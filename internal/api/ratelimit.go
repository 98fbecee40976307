package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds observer traffic per client address
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration // Idle limiters are evicted after two intervals
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		CleanupInterval:   5 * time.Minute,
	}
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // Unix nanos
}

// IPRateLimiter applies one token bucket per client address
type IPRateLimiter struct {
	limiters sync.Map // client ip -> *ipLimiterEntry
	cfg      RateLimitConfig
	stop     chan struct{}
	stopOnce sync.Once

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// RateLimitStats are the limiter's counters
type RateLimitStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
	Tracked  int    `json:"tracked"` // IPs with a live limiter
}

// NewIPRateLimiter fills zero fields from DefaultRateLimitConfig and starts
// the eviction loop. Call Stop when done.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	rl := &IPRateLimiter{cfg: cfg, stop: make(chan struct{})}
	go rl.evictLoop()
	return rl
}

func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *IPRateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	if v, ok := rl.limiters.Load(ip); ok {
		e := v.(*ipLimiterEntry)
		e.lastSeen.Store(now.UnixNano())
		return e.limiter
	}

	fresh := &ipLimiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
	fresh.lastSeen.Store(now.UnixNano())
	v, _ := rl.limiters.LoadOrStore(ip, fresh)
	return v.(*ipLimiterEntry).limiter
}

func (rl *IPRateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			rl.cleanup(now)
		case <-rl.stop:
			return
		}
	}
}

// cleanup removes limiters idle for two cleanup intervals
func (rl *IPRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rl.cfg.CleanupInterval * 2).UnixNano()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*ipLimiterEntry).lastSeen.Load() < cutoff {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Allow takes one token from the client's bucket
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.limiterFor(ip, time.Now()).Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	return false
}

// Middleware answers 429 once a client's bucket is empty
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *IPRateLimiter) Stats() RateLimitStats {
	tracked := 0
	rl.limiters.Range(func(_, _ any) bool {
		tracked++
		return true
	})
	return RateLimitStats{
		Allowed:  rl.allowed.Load(),
		Rejected: rl.rejected.Load(),
		Tracked:  tracked,
	}
}

// GetClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the socket address. Forwarding headers are only as trustworthy as the proxy.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// WebSocketRateLimiter caps concurrent sockets per client address
type WebSocketRateLimiter struct {
	connections sync.Map // map[string]*atomic.Int32
	maxPerIP    int32
	rejected    atomic.Uint64
}

func NewWebSocketRateLimiter(maxPerIP int) *WebSocketRateLimiter {
	return &WebSocketRateLimiter{maxPerIP: int32(maxPerIP)}
}

// Allow reserves a connection slot for this IP
func (wrl *WebSocketRateLimiter) Allow(ip string) bool {
	actual, _ := wrl.connections.LoadOrStore(ip, new(atomic.Int32))
	counter := actual.(*atomic.Int32)

	for {
		current := counter.Load()
		if current >= wrl.maxPerIP {
			wrl.rejected.Add(1)
			return false
		}
		if counter.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release frees a slot reserved by Allow
func (wrl *WebSocketRateLimiter) Release(ip string) {
	if v, ok := wrl.connections.Load(ip); ok {
		v.(*atomic.Int32).Add(-1)
	}
}

func (wrl *WebSocketRateLimiter) ConnectionCount(ip string) int {
	if v, ok := wrl.connections.Load(ip); ok {
		return int(v.(*atomic.Int32).Load())
	}
	return 0
}

// Rejected returns how many connections were refused
func (wrl *WebSocketRateLimiter) Rejected() uint64 {
	return wrl.rejected.Load()
}

// OriginPolicy decides which browser origins may open a WebSocket
type OriginPolicy struct {
	allowed map[string]struct{}
}

// NewOriginPolicy allows the listed origins plus localhost on any port.
// A "*" entry allows every origin.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		p.allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return p
}

// Allowed checks if an origin may connect
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := p.allowed["*"]; ok {
		return true
	}
	if origin == "http://localhost" || strings.HasPrefix(origin, "http://localhost:") ||
		origin == "http://127.0.0.1" || strings.HasPrefix(origin, "http://127.0.0.1:") {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}
