package gameserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/rhymeduel/internal/archive"
)

// AdminServer serves the standard gRPC health service on the admin port.
type AdminServer struct {
	addr   string
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewAdminServer creates an AdminServer that reports NOT_SERVING until the
// first successful store check.
func NewAdminServer(addr string, logger *zap.Logger) *AdminServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &AdminServer{addr: addr, grpc: srv, health: hs, logger: logger}
}

// SetServing updates the overall serving status.
func (a *AdminServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	a.health.SetServingStatus("", status)
}

// Serve serves on lis until Stop is called.
func (a *AdminServer) Serve(lis net.Listener) error {
	a.logger.Info("admin gRPC server listening", zap.String("addr", lis.Addr().String()))
	return a.grpc.Serve(lis)
}

// Start listens on the configured address and serves until Stop.
func (a *AdminServer) Start() error {
	lis, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.addr, err)
	}
	return a.Serve(lis)
}

// Stop marks the service NOT_SERVING and stops the server gracefully.
func (a *AdminServer) Stop() {
	a.health.Shutdown()
	a.grpc.GracefulStop()
}

// StoreMonitor pings the archive store on an interval and publishes the
// result to the admin health service.
type StoreMonitor struct {
	store    archive.Store
	admin    *AdminServer
	interval time.Duration
	logger   *zap.Logger
	healthy  bool
	checked  bool
}

// NewStoreMonitor creates a StoreMonitor.
//
// Precondition: interval must be > 0.
func NewStoreMonitor(store archive.Store, admin *AdminServer, interval time.Duration, logger *zap.Logger) *StoreMonitor {
	if interval <= 0 {
		panic("gameserver.NewStoreMonitor: interval must be > 0")
	}
	return &StoreMonitor{store: store, admin: admin, interval: interval, logger: logger}
}

// Check pings the store once and updates the serving status. Transitions
// are logged.
func (m *StoreMonitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	err := m.store.Ping(ctx)
	healthy := err == nil
	m.admin.SetServing(healthy)

	if !m.checked || healthy != m.healthy {
		if healthy {
			m.logger.Info("archive store healthy")
		} else {
			m.logger.Warn("archive store unavailable", zap.Error(err))
		}
	}
	m.checked = true
	m.healthy = healthy
	return healthy
}

// Run checks immediately and then once per interval until ctx is cancelled.
func (m *StoreMonitor) Run(ctx context.Context) error {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
