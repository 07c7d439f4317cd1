// Package grpc serves the operator endpoint: the standard health service and
// the admin key rotation RPC.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/placementhub/vault/internal/logging"
	"github.com/placementhub/vault/internal/server/auth"
	"github.com/placementhub/vault/internal/server/revocation"
)

// KeyRotator re-encrypts stored fields from one key version to another.
type KeyRotator interface {
	RotateKey(ctx context.Context, oldVersion, newVersion uint32) (int, error)
}

type GRPCServer struct {
	address  string
	rotator  KeyRotator
	tokens   *auth.TokenManager
	denylist revocation.Denylist
	logger   logging.Logger
	health   *health.Server
}

// NewGRPCServer returns a server listening on address once Run is called.
// denylist may be nil.
func NewGRPCServer(address string, l logging.Logger, rotator KeyRotator, tokens *auth.TokenManager, denylist revocation.Denylist) *GRPCServer {
	return &GRPCServer{
		address:  address,
		rotator:  rotator,
		tokens:   tokens,
		denylist: denylist,
		logger:   l.With("module", "grpc_server"),
		health:   health.NewServer(),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.adminInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)
	srv.RegisterService(&adminServiceDesc, s)
	s.health.SetServingStatus(adminServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

// Run serves until ctx is canceled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
