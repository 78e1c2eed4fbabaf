package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	started atomic.Bool
	stopped atomic.Bool
	startFn func() error
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	// Block until stopped
	for !m.stopped.Load() {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (m *mockService) Stop() {
	m.stopped.Store(true)
}

type orderRecorder struct {
	mu    sync.Mutex
	names []string
}

func (o *orderRecorder) record(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func waitStarted(t *testing.T, svcs ...*mockService) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		all := true
		for _, s := range svcs {
			if !s.started.Load() {
				all = false
			}
		}
		if all {
			return
		}
		select {
		case <-deadline:
			t.Fatal("services did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestLifecycleStartsAndStopsServices(t *testing.T) {
	logger := zaptest.NewLogger(t)
	lc := NewLifecycle(logger)

	svc1 := &mockService{}
	svc2 := &mockService{}

	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- lc.Run(ctx)
	}()

	waitStarted(t, svc1, svc2)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
}

func TestLifecycleStopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	rec := &orderRecorder{}

	for _, name := range []string{"first", "second", "third"} {
		block := make(chan struct{})
		var once sync.Once
		lc.Add(name, &FuncService{
			StartFn: func() error { <-block; return nil },
			StopFn: func() {
				rec.record(name)
				once.Do(func() { close(block) })
			},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.Equal(t, []string{"third", "second", "first"}, rec.names)
}

func TestLifecycleReturnsFirstServiceError(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	healthy := &mockService{}
	failing := &mockService{startFn: func() error { return errors.New("bind failed") }}
	lc.Add("healthy", healthy)
	lc.Add("failing", failing)

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "service failing")
		assert.Contains(t, err.Error(), "bind failed")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down after service failure")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	err := svc.Start()
	assert.NoError(t, err)
	assert.True(t, started)

	svc.Stop()
	assert.True(t, stopped)
}

func TestLoopService_StopCancelsLoop(t *testing.T) {
	var ticks atomic.Int32
	svc := NewLoopService(func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
				ticks.Add(1)
			}
		}
	})

	done := make(chan error, 1)
	go func() { done <- svc.Start() }()

	require.Eventually(t, func() bool { return ticks.Load() > 0 }, time.Second, 5*time.Millisecond)
	svc.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is not a failure")
	case <-time.After(time.Second):
		t.Fatal("loop did not return after Stop")
	}
}

func TestLoopService_ErrorPropagates(t *testing.T) {
	svc := NewLoopService(func(ctx context.Context) error {
		return errors.New("boom")
	})
	assert.EqualError(t, svc.Start(), "boom")
}

func TestLoopService_StopBeforeStart(t *testing.T) {
	var ran atomic.Bool
	svc := NewLoopService(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	svc.Stop()
	assert.NoError(t, svc.Start())
	assert.False(t, ran.Load())
}
