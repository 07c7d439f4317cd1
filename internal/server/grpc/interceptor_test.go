package grpc

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/logging"
	"github.com/placementhub/vault/internal/server/auth"
	"github.com/placementhub/vault/internal/server/models"
)

func withToken(token string) context.Context {
	md := metadata.New(map[string]string{common.SessionMetadataKey: token})
	return metadata.NewIncomingContext(context.Background(), md)
}

var rotateInfo = &grpc.UnaryServerInfo{FullMethod: rotateKeyMethod}

func TestInterceptor_HealthAllowsWithoutToken(t *testing.T) {
	s := NewGRPCServer("", logging.Nop{}, &fakeRotator{}, newTokens(t), nil)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	handlerCalled := false
	h := func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.adminInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled || resp != "ok" {
		t.Fatalf("handler not called or bad resp: %v", resp)
	}
}

func TestInterceptor_Rejects(t *testing.T) {
	tokens := newTokens(t)
	studentToken, _ := issue(t, tokens, models.RoleStudent)
	adminToken, adminID := issue(t, tokens, models.RoleAdmin)

	tests := []struct {
		name     string
		ctx      context.Context
		denylist *fakeDenylist
		code     codes.Code
	}{
		{"missing token", context.Background(), nil, codes.Unauthenticated},
		{"garbage token", withToken("not-a-jwt"), nil, codes.Unauthenticated},
		{"non-admin", withToken(studentToken), nil, codes.PermissionDenied},
		{"revoked", withToken(adminToken), &fakeDenylist{revoked: map[string]bool{adminID.TokenID: true}}, codes.Unauthenticated},
		{"denylist error", withToken(adminToken), &fakeDenylist{err: errors.New("down")}, codes.Unauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewGRPCServer("", logging.Nop{}, &fakeRotator{}, tokens, nil)
			if tt.denylist != nil {
				s.denylist = tt.denylist
			}
			h := func(ctx context.Context, req any) (any, error) {
				t.Fatal("handler should not be called")
				return nil, nil
			}
			_, err := s.adminInterceptor(tt.ctx, nil, rotateInfo, h)
			if status.Code(err) != tt.code {
				t.Fatalf("expected %v, got %v (%v)", tt.code, status.Code(err), err)
			}
		})
	}
}

func TestInterceptor_AdminTokenSetsIdentity(t *testing.T) {
	tokens := newTokens(t)
	token, issued := issue(t, tokens, models.RoleAdmin)
	s := NewGRPCServer("", logging.Nop{}, &fakeRotator{}, tokens, &fakeDenylist{})

	var got *auth.Identity
	h := func(ctx context.Context, req any) (any, error) {
		got, _ = auth.FromContext(ctx)
		return "ok", nil
	}

	resp, err := s.adminInterceptor(withToken(token), nil, rotateInfo, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if got == nil || got.TokenID != issued.TokenID || got.Role != models.RoleAdmin {
		t.Fatalf("identity not propagated: %+v", got)
	}
}
