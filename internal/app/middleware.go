package app

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"

	"github.com/arcbridge/toolgate/internal/config"
	"github.com/arcbridge/toolgate/internal/logger"
	"github.com/arcbridge/toolgate/internal/util"
)

// controlRateLimiter bounds the HTTP control surface itself with a
// global-plus-per-IP token bucket. This is distinct from C6, which governs
// per-caller/per-server dataplane invocation rates.
type controlRateLimiter struct {
	globalPerMinute int
	perIPPerMinute  int
	healthPerMinute int
	burstSize       int
	trustProxy      bool
	log             *logger.StyledLogger

	globalTokens     int64
	lastGlobalRefill int64
	ipBuckets        sync.Map

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

type ipBucket struct {
	tokens     int64
	lastRefill int64
	lastAccess int64
}

func newControlRateLimiter(limits config.ServerRateLimits, log *logger.StyledLogger) *controlRateLimiter {
	initialGlobal := int64(0)
	if limits.GlobalRequestsPerMinute > 0 {
		initialGlobal = int64(limits.BurstSize)
	}
	rl := &controlRateLimiter{
		globalPerMinute: limits.GlobalRequestsPerMinute,
		perIPPerMinute:  limits.PerIPRequestsPerMinute,
		healthPerMinute: limits.HealthRequestsPerMinute,
		burstSize:       limits.BurstSize,
		trustProxy:      limits.IPExtractionTrustProxy,
		log:             log,
		globalTokens:    initialGlobal,
		stopCleanup:     make(chan struct{}),
	}
	rl.lastGlobalRefill = time.Now().UnixNano()
	if limits.CleanupInterval > 0 {
		rl.cleanupTicker = time.NewTicker(limits.CleanupInterval)
		go rl.cleanupLoop()
	}
	return rl
}

func (rl *controlRateLimiter) Stop() {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}
	close(rl.stopCleanup)
}

func (rl *controlRateLimiter) cleanupLoop() {
	cutoffWindow := 10 * time.Minute
	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-rl.cleanupTicker.C:
			cutoff := time.Now().Add(-cutoffWindow).UnixNano()
			rl.ipBuckets.Range(func(key, value any) bool {
				if atomic.LoadInt64(&value.(*ipBucket).lastAccess) < cutoff {
					rl.ipBuckets.Delete(key)
				}
				return true
			})
		}
	}
}

// Middleware rate-limits requests by client IP (and a shared global budget),
// setting the standard X-RateLimit-* headers on every response.
func (rl *controlRateLimiter) Middleware(isHealthEndpoint bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := util.GetClientIP(r, rl.trustProxy, nil)

			limit := rl.perIPPerMinute
			if isHealthEndpoint {
				limit = rl.healthPerMinute
			}

			allowed, remaining, retryAfter := rl.checkGlobalThenIP(clientIP, limit, isHealthEndpoint)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				rl.log.Warn("control-surface rate limit exceeded", "client_ip", clientIP, "path", r.URL.Path, "limit", limit)
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *controlRateLimiter) checkGlobalThenIP(clientIP string, limit int, isHealth bool) (allowed bool, remaining, retryAfter int) {
	now := time.Now().UnixNano()

	if rl.globalPerMinute > 0 {
		rl.refillGlobal(now)
		for {
			tokens := atomic.LoadInt64(&rl.globalTokens)
			if tokens <= 0 {
				return false, 0, 60
			}
			if atomic.CompareAndSwapInt64(&rl.globalTokens, tokens, tokens-1) {
				break
			}
		}
	}

	if limit <= 0 {
		return true, limit, 0
	}

	bucketKey := clientIP
	if isHealth {
		bucketKey = clientIP + ":health"
	}
	initial := int64(limit)
	if rl.burstSize < limit {
		initial = int64(rl.burstSize)
	}
	value, _ := rl.ipBuckets.LoadOrStore(bucketKey, &ipBucket{tokens: initial, lastRefill: now, lastAccess: now})
	bucket := value.(*ipBucket)
	rl.refillIP(bucket, limit, now)

	for {
		tokens := atomic.LoadInt64(&bucket.tokens)
		if tokens <= 0 {
			perSecond := float64(limit) / 60.0
			wait := int(1.0 / perSecond)
			if wait < 1 {
				wait = 1
			}
			return false, 0, wait
		}
		if atomic.CompareAndSwapInt64(&bucket.tokens, tokens, tokens-1) {
			atomic.StoreInt64(&bucket.lastAccess, now)
			return true, int(tokens - 1), 0
		}
	}
}

func (rl *controlRateLimiter) refillGlobal(nowNano int64) {
	last := atomic.LoadInt64(&rl.lastGlobalRefill)
	elapsed := nowNano - last
	if elapsed < int64(time.Second) || !atomic.CompareAndSwapInt64(&rl.lastGlobalRefill, last, nowNano) {
		return
	}
	add := elapsed * int64(rl.globalPerMinute) / int64(60*time.Second)
	if add <= 0 {
		return
	}
	for {
		cur := atomic.LoadInt64(&rl.globalTokens)
		next := cur + add
		if max := int64(rl.burstSize); next > max {
			next = max
		}
		if atomic.CompareAndSwapInt64(&rl.globalTokens, cur, next) {
			return
		}
	}
}

func (rl *controlRateLimiter) refillIP(bucket *ipBucket, limit int, nowNano int64) {
	last := atomic.LoadInt64(&bucket.lastRefill)
	elapsed := nowNano - last
	if elapsed < int64(time.Second) || !atomic.CompareAndSwapInt64(&bucket.lastRefill, last, nowNano) {
		return
	}
	add := elapsed * int64(limit) / int64(60*time.Second)
	if add <= 0 {
		return
	}
	for {
		cur := atomic.LoadInt64(&bucket.tokens)
		next := cur + add
		if max := int64(rl.burstSize); next > max {
			next = max
		}
		if atomic.CompareAndSwapInt64(&bucket.tokens, cur, next) {
			return
		}
	}
}

// sizeLimitMiddleware rejects requests whose headers or body exceed the
// configured ceilings before any handler does real work.
func sizeLimitMiddleware(limits config.ServerRequestLimits, log *logger.StyledLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limits.MaxHeaderSize > 0 {
				if size := estimateHeaderSize(r); size > limits.MaxHeaderSize {
					log.Warn("request rejected: headers too large", "size", units.HumanSize(float64(size)), "path", r.URL.Path)
					http.Error(w, "Request headers too large", http.StatusRequestHeaderFieldsTooLarge)
					return
				}
			}
			if limits.MaxBodySize > 0 {
				if r.ContentLength > limits.MaxBodySize {
					log.Warn("request rejected: body too large", "size", units.HumanSize(float64(r.ContentLength)), "path", r.URL.Path)
					http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, limits.MaxBodySize)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func estimateHeaderSize(r *http.Request) int64 {
	var total int64
	for name, values := range r.Header {
		total += int64(len(name))
		for _, v := range values {
			total += int64(len(v))
		}
		total += int64(len(values) * 4)
	}
	total += int64(len(r.Method) + len(r.URL.RequestURI()) + len(r.Proto) + 4)
	return total
}

// corsMiddleware is a go-chi/cors-shaped allow-list: origin, method and
// header matching plus preflight short-circuiting, without the dependency.
func corsMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	allowAll := len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*"
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}
	methods := joinOrDefault(cfg.AllowedMethods, "GET, POST, OPTIONS")
	headers := joinOrDefault(cfg.AllowedHeaders, "Content-Type, Authorization")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || origins[origin]) {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", maxAge)
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func joinOrDefault(values []string, def string) string {
	if len(values) == 0 {
		return def
	}
	out := values[0]
	for _, v := range values[1:] {
		out += ", " + v
	}
	return out
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
