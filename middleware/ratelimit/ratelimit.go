package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"golang.org/x/time/rate"
)

type Config struct {
	// PerSecond is the refill rate of each client bucket
	PerSecond float64
	Burst     int
	// TTL is how long an idle bucket is kept
	TTL time.Duration
	// KeyGenerator identifies the client, defaults to ctx.IP()
	KeyGenerator func(ctx router.Context) string
	// LimitReached handles rejected requests
	LimitReached router.HandlerFunc
	Now          func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per client key
type Limiter struct {
	cfg       Config
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 1
	}

	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = func(ctx router.Context) string {
			return ctx.IP()
		}
	}

	if cfg.LimitReached == nil {
		cfg.LimitReached = func(ctx router.Context) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
		}
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return cfg
}

func NewLimiter(config ...Config) *Limiter {
	cfg := GetDefaultConfig(config...)
	return &Limiter{
		cfg:       cfg,
		buckets:   make(map[string]*bucket),
		lastSweep: cfg.Now(),
	}
}

// Allow reports whether the client identified by key may proceed
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	now := l.cfg.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.cfg.TTL {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.cfg.PerSecond), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.seen = now

	return b.lim.AllowN(now, 1)
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.cfg.TTL {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// Middleware rejects clients that ran out of tokens
func (l *Limiter) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if !l.Allow(l.cfg.KeyGenerator(ctx)) {
				return l.cfg.LimitReached(ctx)
			}
			return next(ctx)
		}
	}
}

// New returns a rate limiting middleware with its own buckets
func New(config ...Config) router.MiddlewareFunc {
	return NewLimiter(config...).Middleware()
}
