package gameserver

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/rhymeduel/internal/archive"
	"github.com/cory-johannsen/rhymeduel/internal/game/room"
	"github.com/cory-johannsen/rhymeduel/internal/generator"
)

type harness struct {
	srv      *httptest.Server
	registry *room.Registry
	sessions *SessionServer
	store    *archive.MemoryStore
}

// newHarness serves the full router over httptest with an in-memory archive.
// A nil gen uses a static generator.
func newHarness(t *testing.T, gen generator.Generator, opts room.Options) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store := archive.NewMemoryStore()
	archiver := archive.NewArchiver(store, logger, 16, time.Second)
	go func() { _ = archiver.Start() }()

	opts.Observer = archiver
	registry := room.NewRegistry(logger, opts)
	if gen == nil {
		gen = generator.NewStatic([]string{"static one", "static two"})
	}
	sessions := NewSessionServer(registry, gen, logger, SessionOptions{})
	srv := httptest.NewServer(NewRouter(sessions, registry, store, logger))

	// Sessions must finish logging before the test ends.
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sessions.Shutdown(ctx)
		srv.Close()
		archiver.Stop()
	})
	return &harness{srv: srv, registry: registry, sessions: sessions, store: store}
}
