package grpcserver

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"journaltransporter/internal/auth"
)

// New builds a grpc.Server with logging and staff authentication and registers srv on it.
func New(srv TransporterServer, authn *auth.Authenticator, log *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if log == nil {
		log = zap.NewNop()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor(log), AuthInterceptor(authn)))
	s := grpc.NewServer(opts...)
	RegisterTransporterServer(s, srv)
	return s
}

func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("latency", time.Since(start)),
		}
		switch code {
		case codes.OK:
			log.Info("grpc request", fields...)
		case codes.Internal, codes.Unknown:
			log.Error("grpc request", fields...)
		default:
			log.Warn("grpc request", fields...)
		}
		return resp, err
	}
}

// AuthInterceptor accepts "authorization" metadata carrying either basic credentials
// or a bearer token issued by the HTTP login.
func AuthInterceptor(authn *auth.Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if authn == nil {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, auth.DetailNotProvided)
		}

		if err := verify(ctx, authn, values[0]); err != nil {
			if _, ok := status.FromError(err); ok {
				return nil, err
			}
			return nil, status.Error(codes.Internal, "internal error")
		}
		return handler(ctx, req)
	}
}

func verify(ctx context.Context, authn *auth.Authenticator, header string) error {
	scheme, value, _ := strings.Cut(header, " ")
	switch strings.ToLower(scheme) {
	case "basic":
		raw, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return status.Error(codes.PermissionDenied, auth.DetailInvalidPassword)
		}
		email, password, _ := strings.Cut(string(raw), ":")
		if _, err := authn.VerifyPassword(ctx, email, password); err != nil {
			return permissionErr(err, auth.DetailInvalidPassword)
		}
		return nil
	case "bearer":
		if _, _, err := authn.VerifyToken(ctx, strings.TrimSpace(value)); err != nil {
			return permissionErr(err, auth.DetailInvalidToken)
		}
		return nil
	default:
		return status.Error(codes.PermissionDenied, auth.DetailInvalidToken)
	}
}

func permissionErr(err error, detail string) error {
	if auth.IsCredentialError(err) {
		return status.Error(codes.PermissionDenied, detail)
	}
	return err
}
