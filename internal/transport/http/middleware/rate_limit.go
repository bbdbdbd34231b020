package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/core/port"
	appLogger "github.com/Satya1612t/ela/internal/infra/logger"
	"github.com/Satya1612t/ela/internal/infra/security"
)

// rateLimitCode is reported in the error envelope when a rule rejects a request.
const rateLimitCode = "RATE_LIMITED"

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

func (r RateLimitRule) usable() bool {
	return r.Identifier != nil && r.Limit > 0 && r.Window > 0
}

// RateLimiter enforces sliding-window limits backed by a shared store.
// Store failures let the request through.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// verdict is the outcome of one rule for one request.
type verdict struct {
	rule       string
	identifier string
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// tighter reports whether v should drive the response headers instead of other.
func (v verdict) tighter(other verdict) bool {
	if v.allowed != other.allowed {
		return !v.allowed
	}
	if v.remaining != other.remaining {
		return v.remaining < other.remaining
	}
	return v.reset.Before(other.reset)
}

func (v verdict) retrySeconds() int {
	return max(int(math.Ceil(v.retryAfter.Seconds())), 0)
}

// RateLimitResponse is the error envelope returned with 429 answers.
type RateLimitResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	Rule       string `json:"rule"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// CookieIdentifier scopes a rule to the hash of a cookie value, e.g. the refresh token.
func CookieIdentifier(name string) IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		value, err := c.Cookie(name)
		if err != nil || value == "" {
			return "", false
		}
		return security.HashToken(value), true
	}
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules in order.
// The first rejecting rule answers 429; otherwise the tightest verdict sets the headers.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.usable() {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var headline *verdict

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			v, err := rl.check(c.Request.Context(), rule, identifier, now)
			if err != nil {
				rl.logger.Warn("rate limit check failed, allowing request",
					zap.String("rule", rule.Name),
					zap.String("identifier", appLogger.MaskIdentifier(identifier)),
					zap.Error(err),
				)
				continue
			}

			if !v.allowed {
				rl.reject(c, v)
				return
			}
			if headline == nil || v.tighter(*headline) {
				headline = &v
			}
		}

		if headline != nil {
			writeRateLimitHeaders(c, *headline)
		}
		c.Next()
	}
}

// check trims the window, counts what is left and records the attempt when it fits.
func (rl *RateLimiter) check(ctx context.Context, rule RateLimitRule, identifier string, now time.Time) (verdict, error) {
	key := rule.Name + ":" + identifier

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return verdict{}, err
	}
	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return verdict{}, err
	}
	oldest, found, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return verdict{}, err
	}

	v := verdict{
		rule:       rule.Name,
		identifier: identifier,
		limit:      rule.Limit,
		reset:      now.Add(rule.Window),
	}
	if found {
		v.reset = oldest.Add(rule.Window)
	}
	v.retryAfter = max(v.reset.Sub(now), 0)

	if count >= rule.Limit {
		return v, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return verdict{}, err
	}
	v.allowed = true
	v.remaining = max(rule.Limit-count-1, 0)
	return v, nil
}

func writeRateLimitHeaders(c *gin.Context, v verdict) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(v.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(v.reset.Unix(), 10))
	if !v.allowed {
		headers.Set("Retry-After", strconv.Itoa(v.retrySeconds()))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, v verdict) {
	writeRateLimitHeaders(c, v)
	seconds := v.retrySeconds()

	rl.logger.Info("rate limit exceeded",
		zap.String("rule", v.rule),
		zap.String("path", c.Request.URL.Path),
		zap.String("identifier", appLogger.MaskIdentifier(v.identifier)),
		zap.Int("retry_after", seconds),
	)

	c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitResponse{
		Error:      fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Code:       rateLimitCode,
		Rule:       v.rule,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}
