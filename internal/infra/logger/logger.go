package logger

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns a singleton zap.Logger. Production emits JSON, everything else a coloured console.
func New(env, service string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		lg, err = cfg.Build(zap.Fields(zap.String("service", service), zap.String("env", env)))
	})

	return lg, err
}

// WithContext returns the process logger annotated with the request and trace ids found on ctx.
func WithContext(ctx context.Context) *zap.Logger {
	base := lg
	if base == nil {
		base = zap.NewNop()
	}
	if ctx == nil {
		return base
	}

	fields := make([]zap.Field, 0, 2)
	if id := requestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	return base.With(fields...)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return val
	}
	return ""
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

const mask = "***"

// MaskEmail keeps at most three characters of the local part: asha.rao@nexa.in -> ash***@nexa.in
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || domain == "" {
		return mask
	}
	if len(local) > 3 {
		local = local[:3]
	}
	return local + mask + "@" + domain
}

// MaskPhone keeps the country prefix and the last four digits: +919876543210 -> +919***3210
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	phone = strings.TrimSpace(phone)
	prefix, digits := "", phone
	if strings.HasPrefix(digits, "+") {
		prefix, digits = "+", digits[1:]
	}
	if len(digits) >= 8 {
		return prefix + digits[:3] + mask + digits[len(digits)-4:]
	}
	if len(phone) > 4 {
		return mask + phone[len(phone)-4:]
	}
	return mask
}

// MaskIdentifier hides the host part of an IP address (192.168.*.*) and truncates anything else,
// such as token hashes, to an eight character prefix.
func MaskIdentifier(identifier string) string {
	if addr, err := netip.ParseAddr(identifier); err == nil {
		if addr.Is4() {
			octets := addr.As4()
			return fmt.Sprintf("%d.%d.*.*", octets[0], octets[1])
		}
		groups := addr.As16()
		return fmt.Sprintf("%x:%x:*:*:*:*:*:*", uint16(groups[0])<<8|uint16(groups[1]), uint16(groups[2])<<8|uint16(groups[3]))
	}
	if len(identifier) > 8 {
		return identifier[:8] + mask
	}
	return mask
}
