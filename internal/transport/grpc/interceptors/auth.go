package interceptors

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
)

const (
	authorizationKey = "authorization"
	bearerPrefix     = "bearer "
)

var (
	errMissingMetadata   = errors.New("missing metadata")
	errTokenRequired     = errors.New("authorization token required")
	errMalformedMetadata = errors.New("invalid authorization header")
)

// AuthOptions fine-tunes interceptor behaviour.
type AuthOptions struct {
	AllowMethods []string
	Logger       *zap.Logger
}

// AuthInterceptor validates incoming requests using session access tokens.
type AuthInterceptor struct {
	codec  port.SessionTokenCodec
	logger *zap.Logger
	allow  map[string]struct{}
}

// NewAuthInterceptor constructs a new AuthInterceptor instance.
func NewAuthInterceptor(codec port.SessionTokenCodec, opts AuthOptions) *AuthInterceptor {
	allow := make(map[string]struct{}, len(opts.AllowMethods))
	for _, method := range opts.AllowMethods {
		if method = strings.TrimSpace(method); method != "" {
			allow[method] = struct{}{}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthInterceptor{codec: codec, logger: logger, allow: allow}
}

// UnaryServerInterceptor returns a gRPC unary interceptor that enforces access token authentication.
func (ai *AuthInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := ai.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor enforces the same rules for streaming calls such as reflection.
func (ai *AuthInterceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := ai.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &claimStream{ServerStream: ss, ctx: ctx})
	}
}

func (ai *AuthInterceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	if ai == nil || ai.codec == nil {
		return ctx, nil
	}
	if _, ok := ai.allow[method]; ok {
		return ctx, nil
	}

	token, err := tokenFromMetadata(ctx)
	if err != nil {
		ai.logger.Warn("gRPC authentication failed", zap.String("method", method), zap.Error(err))
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	claim, err := ai.codec.Verify(token, domain.TokenClassAccess)
	if err != nil {
		ai.logger.Warn("gRPC token validation failed", zap.String("method", method), zap.Error(err))
		if domain.CodeOf(err) == domain.CodeTokenExpired {
			return nil, status.Error(codes.Unauthenticated, "access token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid access token")
	}

	return WithSessionClaim(ctx, claim), nil
}

type claimStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *claimStream) Context() context.Context { return s.ctx }

type sessionClaimKey struct{}

// WithSessionClaim returns a derived context carrying the caller's session claim.
func WithSessionClaim(ctx context.Context, claim *domain.SessionClaim) context.Context {
	if claim == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionClaimKey{}, claim)
}

// SessionClaimFromContext extracts the caller's session claim when available.
func SessionClaimFromContext(ctx context.Context) (*domain.SessionClaim, bool) {
	if ctx == nil {
		return nil, false
	}
	claim, ok := ctx.Value(sessionClaimKey{}).(*domain.SessionClaim)
	return claim, ok && claim != nil
}

func tokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errMissingMetadata
	}

	values := md.Get(authorizationKey)
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", errTokenRequired
	}

	value := strings.TrimSpace(values[0])
	if len(value) < len(bearerPrefix) || !strings.HasPrefix(strings.ToLower(value), bearerPrefix) {
		return "", errMalformedMetadata
	}

	token := strings.TrimSpace(value[len(bearerPrefix):])
	if token == "" {
		return "", errTokenRequired
	}
	return token, nil
}
