package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/core"
	mw "github.com/autopeer-io/drivermgr/internal/pkg/middleware/grpc"
	"github.com/autopeer-io/drivermgr/pkg/log"
	"github.com/autopeer-io/drivermgr/pkg/options"
)

// ServiceName is the health-checked service of the driver manager.
const ServiceName = "autopeer.drivermgr.v1.AttachmentManager"

// Server exposes the standard gRPC health service. The driver manager service is
// SERVING only while the controlling system is operational.
type Server struct {
	server  *grpc.Server
	health  *health.Server
	options *options.GrpcOptions
}

func NewServer(opts *options.GrpcOptions, operational core.OperationalState) *Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(mw.UnaryServerTimeoutInterceptor(opts.Timeout)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	srv := &Server{server: s, health: hs, options: opts}
	srv.SetServing(operational.IsOperational())
	return srv
}

// SetServing updates the health status of the driver manager service.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Register exposes the underlying server for additional services.
func (s *Server) Register(fn func(grpc.ServiceRegistrar)) { fn(s.server) }

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve runs the server on lis until ctx ends.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	log.Info("Starting gRPC Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		return nil
	}
}
