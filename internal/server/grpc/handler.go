package grpc

import (
	"context"
	"errors"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/server/auth"
)

const (
	adminServiceName = "vault.admin.v1.Admin"
	rotateKeyMethod  = "/" + adminServiceName + "/RotateKey"
)

// adminServer is the handler type of the admin service. Requests and
// replies are google.protobuf.Struct so no generated code is needed.
type adminServer interface {
	RotateKey(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*adminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RotateKey", Handler: rotateKeyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vault/admin/v1/admin.proto",
}

func rotateKeyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).RotateKey(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rotateKeyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(adminServer).RotateKey(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RotateKey expects {"oldVersion": n, "newVersion": m} and replies with
// {"rotated": count}.
func (s *GRPCServer) RotateKey(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	oldVersion, err := keyVersion(req, "oldVersion")
	if err != nil {
		return nil, err
	}
	newVersion, err := keyVersion(req, "newVersion")
	if err != nil {
		return nil, err
	}

	caller := ""
	if id, ok := auth.FromContext(ctx); ok {
		caller = id.SubjectID
	}
	s.logger.Info(ctx, "key rotation requested", "subject_id", caller, "old_version", oldVersion, "new_version", newVersion)

	n, err := s.rotator.RotateKey(ctx, oldVersion, newVersion)
	if err != nil {
		var ve *common.ValidationError
		switch {
		case errors.As(err, &ve):
			return nil, status.Error(codes.InvalidArgument, ve.Message)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, status.FromContextError(err).Err()
		default:
			s.logger.Error(ctx, "key rotation failed", "rotated", n, "error", err)
			return nil, status.Error(codes.Internal, "key rotation failed")
		}
	}

	s.logger.Info(ctx, "key rotation finished", "rotated", n)
	return structpb.NewStruct(map[string]any{"rotated": n})
}

func keyVersion(req *structpb.Struct, name string) (uint32, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) || n.NumberValue < 1 || n.NumberValue > math.MaxUint32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
	}
	return uint32(n.NumberValue), nil
}

// RotateKey calls the admin RotateKey RPC over conn with token as the
// session credential.
func RotateKey(ctx context.Context, conn grpc.ClientConnInterface, token string, oldVersion, newVersion uint32) (int, error) {
	in, err := structpb.NewStruct(map[string]any{
		"oldVersion": oldVersion,
		"newVersion": newVersion,
	})
	if err != nil {
		return 0, err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, common.SessionMetadataKey, token)

	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, rotateKeyMethod, in, out); err != nil {
		return 0, err
	}
	return int(out.GetFields()["rotated"].GetNumberValue()), nil
}
