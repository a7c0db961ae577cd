package httpx

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/gigboard/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// AuthLimit guards credential endpoints (login, registration, resend
// verification) against a user hammering the submit button.
// Override with: RATELIMIT_AUTH_REQUESTS, RATELIMIT_AUTH_WINDOW_SEC, RATELIMIT_AUTH_BURST
var AuthLimit = RateLimitConfig{
	RequestsPerWindow: 10,
	Window:            time.Minute,
	Burst:             5,
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_AUTH_REQUESTS, RATELIMIT_AUTH_WINDOW_SEC, RATELIMIT_AUTH_BURST
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// RateLimitError is returned instead of sending a request the limiter refused.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Key, e.RetryAfter)
}

// KeyExtractor groups outbound requests for rate limiting purposes.
// Returning "" exempts the request.
type KeyExtractor func(*http.Request) string

// PathKeyExtractor limits each method+path pair independently.
func PathKeyExtractor(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

// PathsKeyExtractor limits only requests whose path ends in one of paths, each
// independently. Suffix matching lets the base URL carry a prefix like /api.
func PathsKeyExtractor(paths ...string) KeyExtractor {
	return func(r *http.Request) string {
		for _, p := range paths {
			if strings.HasSuffix(r.URL.Path, p) {
				return PathKeyExtractor(r)
			}
		}
		return ""
	}
}

// rateLimiter manages rate limiters for different keys
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	mu       sync.Mutex
	// Cleanup old limiters periodically
	lastCleanup time.Time
}

func newRateLimiter(config RateLimitConfig) *rateLimiter {
	ratePerSecond := float64(config.RequestsPerWindow) / config.Window.Seconds()
	return &rateLimiter{
		rate:        rate.Limit(ratePerSecond),
		burst:       config.Burst,
		lastCleanup: time.Now(),
	}
}

// getLimiter retrieves or creates a rate limiter for the given key
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	actual, _ := rl.limiters.LoadOrStore(key, limiter)

	rl.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket has refilled, i.e. keys that have
// gone quiet.
func (rl *rateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}

	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		limiter := value.(*rate.Limiter)
		if limiter.Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitedTransport refuses outbound requests that exceed config instead of
// sending them. It never waits: there is no automatic retry, the user decides
// when to try again.
type RateLimitedTransport struct {
	base   http.RoundTripper
	config RateLimitConfig
	keys   KeyExtractor
	rl     *rateLimiter
}

// NewRateLimitedTransport wraps base (http.DefaultTransport when nil).
func NewRateLimitedTransport(base http.RoundTripper, config RateLimitConfig, keys KeyExtractor) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if keys == nil {
		keys = PathKeyExtractor
	}
	return &RateLimitedTransport{
		base:   base,
		config: config,
		keys:   keys,
		rl:     newRateLimiter(config),
	}
}

func (t *RateLimitedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	key := t.keys(r)
	if key == "" {
		return t.base.RoundTrip(r)
	}

	limiter := t.rl.getLimiter(key)
	if !limiter.Allow() {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel() // Don't actually consume the reservation

		slogx.FromContext(r.Context()).Warn("rate limit exceeded",
			"key", key,
			"retry_after", delay,
			"limit", t.config.RequestsPerWindow,
			"window", t.config.Window,
		)

		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, &RateLimitError{Key: key, RetryAfter: delay}
	}

	return t.base.RoundTrip(r)
}
