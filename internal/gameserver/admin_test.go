package gameserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/rhymeduel/internal/archive"
)

func startAdmin(t *testing.T) (*AdminServer, healthpb.HealthClient) {
	t.Helper()
	admin := NewAdminServer("127.0.0.1:0", zaptest.NewLogger(t))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = admin.Serve(lis)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		admin.Stop()
		<-served
	})
	return admin, healthpb.NewHealthClient(conn)
}

func healthStatus(t *testing.T, client healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestAdminServer_StartsNotServing(t *testing.T) {
	_, client := startAdmin(t)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, healthStatus(t, client))
}

func TestStoreMonitor_FlipsStatus(t *testing.T) {
	admin, client := startAdmin(t)
	store := archive.NewMemoryStore()
	monitor := NewStoreMonitor(store, admin, time.Hour, zaptest.NewLogger(t))

	assert.True(t, monitor.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, healthStatus(t, client))

	require.NoError(t, store.Close())
	assert.False(t, monitor.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, healthStatus(t, client))
}

func TestStoreMonitor_RunChecksImmediately(t *testing.T) {
	admin, client := startAdmin(t)
	monitor := NewStoreMonitor(archive.NewMemoryStore(), admin, time.Hour, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNewStoreMonitor_PanicsOnZeroInterval(t *testing.T) {
	admin := NewAdminServer("127.0.0.1:0", zaptest.NewLogger(t))
	assert.Panics(t, func() {
		NewStoreMonitor(archive.NewMemoryStore(), admin, 0, zaptest.NewLogger(t))
	})
}
