package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/example/freshcart/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is one dependency the service needs in order to take orders.
type Check struct {
	Name   string
	Pinger Pinger
}

// HealthServer serves grpc.health.v1 for the checkout service. The serving
// status follows the result of pinging every registered dependency.
type HealthServer struct {
	config  *config.GRPCConfig
	service string
	checks  []Check
	logger  *zap.Logger
	health  *health.Server
	server  *grpc.Server

	mu     sync.Mutex
	status healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthServer(cfg *config.GRPCConfig, service string, logger *zap.Logger, checks ...Check) *HealthServer {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &HealthServer{
		config:  cfg,
		service: service,
		checks:  checks,
		logger:  logger,
		health:  hs,
		server:  srv,
		status:  healthpb.HealthCheckResponse_UNKNOWN,
	}
}

// Refresh pings every dependency and publishes the combined status.
func (s *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, c := range s.checks {
		if err := c.Pinger.Ping(ctx); err != nil {
			s.logger.Warn("Dependency unhealthy", zap.String("dependency", c.Name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.mu.Lock()
	changed := status != s.status
	s.status = status
	s.mu.Unlock()
	if changed {
		s.logger.Info("Health status changed", zap.String("status", status.String()))
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
	return status
}

// Watch refreshes the status every probe interval until ctx is done.
func (s *HealthServer) Watch(ctx context.Context) {
	interval := s.config.ProbeInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pctx, cancel := context.WithTimeout(ctx, interval)
		s.Refresh(pctx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("Health service started", zap.String("address", lis.Addr().String()))
	return s.server.Serve(lis)
}

func (s *HealthServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
