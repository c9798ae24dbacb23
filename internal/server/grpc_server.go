package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/oggyb/campus-connect/internal/auth"
	"github.com/oggyb/campus-connect/internal/config"
)

// GRPCServer wraps grpc.Server with the interceptor chain and health service.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	addr   string
	log    *slog.Logger
}

// NewGRPCServer builds a gRPC server and registers all provided services.
func NewGRPCServer(cfg *config.Config, verifier *auth.Verifier, log *slog.Logger, registrars ...Registrar) *GRPCServer {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(recoverUnary(log), logUnary(log), verifier.UnaryInterceptor()),
		grpc.ChainStreamInterceptor(recoverStream(log), logStream(log), verifier.StreamInterceptor()),
	)

	// register all services
	for _, r := range registrars {
		r.Register(srv)
	}

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	// enable reflection for easier debugging with grpcurl
	reflection.Register(srv)

	return &GRPCServer{
		srv:    srv,
		health: hs,
		addr:   fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port),
		log:    log,
	}
}

// Server exposes the underlying grpc.Server, mostly for tests.
func (g *GRPCServer) Server() *grpc.Server { return g.srv }

// Serve blocks serving on lis until the server stops.
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if err := g.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Run listens on the configured address and serves until ctx is canceled,
// then drains in-flight calls.
func (g *GRPCServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.addr, err)
	}
	g.log.Info("starting gRPC server", "addr", g.addr)

	go func() {
		<-ctx.Done()
		g.health.Shutdown()
		g.srv.GracefulStop()
	}()
	return g.Serve(lis)
}

func recoverUnary(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in handler", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func recoverStream(log *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in stream", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(srv, ss)
	}
}

func logUnary(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(log, info.FullMethod, start, err)
		return resp, err
	}
}

func logStream(log *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(log, info.FullMethod, start, err)
		return err
	}
}

func logCall(log *slog.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	attrs := []any{"method", method, "code", code.String(), "duration", time.Since(start)}
	switch code {
	case codes.OK, codes.Canceled:
		log.Debug("grpc call", attrs...)
	case codes.Internal, codes.Unavailable, codes.Unknown:
		log.Error("grpc call failed", append(attrs, "err", err)...)
	default:
		log.Info("grpc call rejected", attrs...)
	}
}
