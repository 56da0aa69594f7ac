package mw

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"solana-intent-settlement/internal/httputil"
	"solana-intent-settlement/internal/observability"
	"solana-intent-settlement/internal/storage/redis"
)

// RateBucket configures one token bucket.
type RateBucket struct {
	RefillPerSec int           // tokens added every second
	Burst        int           // bucket size
	TTL          time.Duration // idle keys expire after this
}

// RateLimitMiddleware throttles commit and reveal traffic per client IP and,
// when a token subject is present, per subject.
type RateLimitMiddleware struct {
	rdb   *redis.Client
	byIP  RateBucket
	bySub RateBucket
	now   func() time.Time
}

func NewRateLimit(rdb *redis.Client, byIP, bySubject RateBucket) *RateLimitMiddleware {
	if byIP.TTL == 0 {
		byIP.TTL = 2 * time.Minute
	}
	if bySubject.TTL == 0 {
		bySubject.TTL = 2 * time.Minute
	}
	return &RateLimitMiddleware{rdb: rdb, byIP: byIP, bySub: bySubject, now: time.Now}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := m.now()

		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		ok := m.allow(ctx, m.rdb.Key("rl", "ip", ip), now, m.byIP)

		if sub := SubjectFromContext(ctx); ok && sub != "" {
			ok = m.allow(ctx, m.rdb.Key("rl", "sub", sub), now, m.bySub)
		}

		if !ok {
			observability.RecordRateLimited()
			w.Header().Set("Retry-After", "1")
			_ = httputil.Error(w, r, http.StatusTooManyRequests, httputil.APIError{
				Name:    "rate_limited",
				Message: "rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// --- redis token-bucket (Lua) for atomic and one query ---
var luaTokenBucket = goredis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = now_ms
-- ARGV[2] = refill_per_sec
-- ARGV[3] = burst
-- ARGV[4] = ttl_seconds
local key   = KEYS[1]
local now   = tonumber(ARGV[1])
local rate  = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

local last_ms = tonumber(redis.call('HGET', key, 'ts') or now)
local tokens  = tonumber(redis.call('HGET', key, 'tok') or burst)

if now > last_ms then
  local delta = (now - last_ms) / 1000.0
  tokens = math.min(burst, tokens + (delta * rate))
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tok', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)

return allowed
`)

// allow fails open: an unreachable Redis must not take the API down.
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b RateBucket) bool {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = 120
	}

	allowed, err := luaTokenBucket.Run(ctx, m.rdb, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Int64()
	if err != nil {
		return true
	}
	return allowed == 1
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
