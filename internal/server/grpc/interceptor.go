package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/server/auth"
)

// adminInterceptor guards every admin method with an ADMIN session token
// passed in the session_token metadata key. Health checks pass through.
func (s *GRPCServer) adminInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+adminServiceName+"/") {
		return handler(ctx, req)
	}

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.SessionMetadataKey); len(values) > 0 {
			token = values[0]
		}
	}
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	id, err := s.tokens.Verify(token)
	if err != nil {
		s.logger.Debug(ctx, "admin token rejected", "reason", err.Error())
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, id.TokenID)
		if err != nil {
			s.logger.Error(ctx, "denylist lookup failed", "error", err)
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		if revoked {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
	}

	if !id.IsAdmin() {
		s.logger.Warn(ctx, "non-admin called admin rpc", "subject_id", id.SubjectID, "method", info.FullMethod)
		return nil, status.Error(codes.PermissionDenied, "admin role required")
	}

	return handler(auth.WithIdentity(ctx, id), req)
}
