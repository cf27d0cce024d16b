package middleware

import (
	"context"
	"strings"

	"github.com/MrEthical07/goLease/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryLeaseInterceptor enforces the current lease on unary RPCs. The lease
// id travels in the x-lease-id metadata key and the identity in
// authorization. Methods listed in publicMethods skip the check.
func UnaryLeaseInterceptor(validator LeaseValidator, verifier identity.Verifier, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		ctx, err := checkLeaseMetadata(ctx, validator, verifier)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamLeaseInterceptor is the streaming counterpart of
// UnaryLeaseInterceptor. The lease is checked once when the stream opens.
func StreamLeaseInterceptor(validator LeaseValidator, verifier identity.Verifier, publicMethods map[string]bool) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if publicMethods[info.FullMethod] {
			return handler(srv, ss)
		}
		ctx, err := checkLeaseMetadata(ss.Context(), validator, verifier)
		if err != nil {
			return err
		}
		return handler(srv, &leaseStream{ServerStream: ss, ctx: ctx})
	}
}

type leaseStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *leaseStream) Context() context.Context {
	return s.ctx
}

func checkLeaseMetadata(ctx context.Context, validator LeaseValidator, verifier identity.Verifier) (context.Context, error) {
	var authorization, leaseID string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		authorization = firstValue(md, "authorization")
		leaseID = firstValue(md, metadataLeaseID)
	}

	next, err := checkLease(ctx, verifier, validator, authorization, leaseID)
	switch classify(err) {
	case outcomeOK:
		return next, nil
	case outcomeUnauthenticated:
		return ctx, status.Error(codes.Unauthenticated, CodeUnauthenticated)
	case outcomeSuperseded:
		_ = grpc.SetHeader(ctx, metadata.Pairs(strings.ToLower(HeaderLeaseStatus), StatusSuperseded))
		return ctx, status.Error(codes.FailedPrecondition, CodeLeaseSuperseded)
	default:
		return ctx, status.Error(codes.Unavailable, CodeRegistryUnavailable)
	}
}

func firstValue(md metadata.MD, key string) string {
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
