package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") health status.
const ServiceName = "appointly.Appointments"

const defaultRequestTimeout = 10 * time.Second

// HealthServer exposes grpc.health.v1 for orchestrator probes.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewHealthServer(log *slog.Logger, requestTimeout time.Duration, opts ...grpc.ServerOption) *HealthServer {
	if log == nil {
		log = slog.Default()
	}
	opts = append([]grpc.ServerOption{
		grpc.UnaryInterceptor(DefaultRequestTimeoutInterceptor(requestTimeout)),
	}, opts...)

	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{
		srv:    srv,
		health: hs,
		log:    log.With(slog.String("component", "grpc.health")),
	}
}

// Serve marks the service SERVING and blocks until the server stops.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.log.Info("grpc health server started", slog.String("addr", lis.Addr().String()))

	err := s.srv.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Shutdown flips every status to NOT_SERVING, then stops gracefully, forcing
// the stop once timeout elapses.
func (s *HealthServer) Shutdown(timeout time.Duration) {
	s.health.Shutdown()
	s.log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		s.log.Info("grpc server stopped")
	case <-timer.C:
		s.log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.srv.Stop()
	}
}

// DefaultRequestTimeoutInterceptor applies timeout to unary calls that arrive
// without a deadline.
func DefaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}
