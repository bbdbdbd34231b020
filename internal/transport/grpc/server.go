package transportgrpc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Satya1612t/ela/internal/core/port"
	grpcinterceptors "github.com/Satya1612t/ela/internal/transport/grpc/interceptors"
)

// ServiceName is the health service name reported for the whole API.
const ServiceName = "nexa.v1.Api"

const defaultProbeTimeout = 2 * time.Second

// HealthCheck probes one dependency; a non-nil error marks the server NOT_SERVING.
type HealthCheck func(ctx context.Context) error

// ServerDependencies encapsulates services required by the gRPC server layer.
type ServerDependencies struct {
	Codec         port.SessionTokenCodec
	Logger        *zap.Logger
	Metrics       *grpcinterceptors.GRPCMetrics
	Tracing       *grpcinterceptors.TracingInterceptor
	HealthChecks  map[string]HealthCheck
	PublicMethods []string // methods that don't require authentication
}

// Server bundles the gRPC server with the health service it reports through.
type Server struct {
	*grpc.Server
	health *health.Server
	checks map[string]HealthCheck
	logger *zap.Logger
}

// NewServer wires the health and reflection services with authentication enforced through interceptors.
func NewServer(deps ServerDependencies) (*Server, error) {
	if deps.Codec == nil {
		return nil, fmt.Errorf("session token codec is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	public := append([]string{
		healthpb.Health_Check_FullMethodName,
		healthpb.Health_Watch_FullMethodName,
	}, deps.PublicMethods...)

	authInterceptor := grpcinterceptors.NewAuthInterceptor(deps.Codec, grpcinterceptors.AuthOptions{
		Logger:       logger,
		AllowMethods: public,
	})

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			deps.Tracing.Unary(),
			deps.Metrics.UnaryServerInterceptor(),
			authInterceptor.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			deps.Tracing.Stream(),
			deps.Metrics.StreamServerInterceptor(),
			authInterceptor.StreamServerInterceptor(),
		),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	// Register reflection service for tools like Postman, grpcurl, etc.
	reflection.Register(server)

	return &Server{
		Server: server,
		health: healthServer,
		checks: deps.HealthChecks,
		logger: logger,
	}, nil
}

// Probe runs every health check once and publishes the aggregate status.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
		err := check(probeCtx)
		cancel()
		if err != nil {
			s.logger.Warn("gRPC health probe failed", zap.String("check", name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// WatchHealth probes on every tick until ctx is cancelled.
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Shutdown marks the server NOT_SERVING and stops it gracefully.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.GracefulStop()
}
