package httpapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultLaunchRateLimitBurst      = 5
	defaultLaunchRateLimitTTLSeconds = 600
	minLaunchRateLimitTTLSeconds     = 30
	rateLimitExceededMessage         = "rate limit exceeded"
)

type clientRateState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// launchRateLimiter throttles the mutating control-plane endpoints
// (/launch/:id, /evict) per client IP, so a misbehaving caller can't
// starve the switch lock with a burst of launch requests. Disabled unless
// LAMMASTUDIO_RATE_LIMIT_RPM is set, the same opt-in-by-env-var shape the
// inbound inference proxy used for its own chat-completions rate limiter.
type launchRateLimiter struct {
	enabled bool
	limit   rate.Limit
	burst   int
	ttl     time.Duration

	mu      sync.Mutex
	clients map[string]*clientRateState
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func newLaunchRateLimiter() *launchRateLimiter {
	rpm := envInt("LAMMASTUDIO_RATE_LIMIT_RPM", 0)
	if rpm <= 0 {
		return &launchRateLimiter{enabled: false}
	}

	burst := envInt("LAMMASTUDIO_RATE_LIMIT_BURST", defaultLaunchRateLimitBurst)
	if burst < 1 {
		burst = 1
	}
	ttlSeconds := envInt("LAMMASTUDIO_RATE_LIMIT_TTL_SECONDS", defaultLaunchRateLimitTTLSeconds)
	if ttlSeconds < minLaunchRateLimitTTLSeconds {
		ttlSeconds = minLaunchRateLimitTTLSeconds
	}

	return &launchRateLimiter{
		enabled: true,
		limit:   rate.Limit(float64(rpm) / 60.0),
		burst:   burst,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		clients: make(map[string]*clientRateState),
	}
}

func (rl *launchRateLimiter) allow(clientKey string) bool {
	now := time.Now()
	cutoff := now.Add(-rl.ttl)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, state := range rl.clients {
		if state.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}

	state, ok := rl.clients[clientKey]
	if !ok {
		state = &clientRateState{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientKey] = state
	}
	state.lastSeen = now
	return state.limiter.Allow()
}

func shouldRateLimitRequest(c *gin.Context) bool {
	if c.Request.Method != http.MethodPost {
		return false
	}
	path := c.Request.URL.Path
	return strings.HasPrefix(path, "/launch/") || path == "/evict"
}

func (rl *launchRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || !rl.enabled || !shouldRateLimitRequest(c) {
			c.Next()
			return
		}

		clientIP := strings.TrimSpace(c.ClientIP())
		if clientIP == "" {
			clientIP = "unknown"
		}

		if !rl.allow(clientIP) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": rateLimitExceededMessage})
			return
		}
		c.Next()
	}
}

func securityHeadersEnabledFromEnv() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("LAMMASTUDIO_SECURITY_HEADERS")))
	if v == "" {
		return true
	}
	return v != "0" && v != "false" && v != "no"
}

// securityHeadersMiddleware sets the same conservative header set the
// inference proxy's own HTTP surface applies, appropriate for a
// control-plane API that is never meant to serve browser content directly.
func securityHeadersMiddleware() gin.HandlerFunc {
	enabled := securityHeadersEnabledFromEnv()
	return func(c *gin.Context) {
		if enabled {
			c.Header("X-Frame-Options", "DENY")
			c.Header("X-Content-Type-Options", "nosniff")
			c.Header("Referrer-Policy", "no-referrer")
			c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

			proto := strings.ToLower(strings.TrimSpace(c.GetHeader("X-Forwarded-Proto")))
			if c.Request.TLS != nil || proto == "https" {
				c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
		}
		c.Next()
	}
}

// bearerAuthMiddleware enforces a static bearer token on mutating routes
// when one is configured; GET routes stay open for local dashboards.
func bearerAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		got := strings.TrimPrefix(auth, "Bearer ")
		if got == "" || got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid bearer token"})
			return
		}
		c.Next()
	}
}
