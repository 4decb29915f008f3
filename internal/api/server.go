// Package api runs the HTTP model API and the gRPC health service side by
// side, and shuts both down together.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "tushare.Provider"

// Server hosts HTTP and gRPC listeners.
type Server struct {
	httpAddr string
	grpcAddr string
	handler  http.Handler
	log      *slog.Logger

	shutdownTimeout time.Duration

	grpc   *grpc.Server
	health *health.Server
}

// NewServer creates a Server that serves handler on httpAddr and the gRPC
// health service on grpcAddr. An empty grpcAddr disables gRPC.
func NewServer(httpAddr, grpcAddr string, handler http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		httpAddr:        httpAddr,
		grpcAddr:        grpcAddr,
		handler:         handler,
		log:             log.With("component", "api"),
		shutdownTimeout: 5 * time.Second,
		grpc:            grpc.NewServer(),
		health:          health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// ListenAndServe opens both listeners and serves until ctx is cancelled or
// either listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	var grpcLn net.Listener
	if s.grpcAddr != "" {
		grpcLn, err = net.Listen("tcp", s.grpcAddr)
		if err != nil {
			httpLn.Close()
			return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
		}
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve serves on already open listeners. grpcLn may be nil.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	})

	if grpcLn != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		g.Go(func() error {
			s.log.Info("gRPC health listening", "addr", grpcLn.Addr().String())
			if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("serving gRPC: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down listeners")
		s.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("HTTP shutdown error", "error", err)
		}
		s.grpc.GracefulStop()
		return nil
	})

	return g.Wait()
}
