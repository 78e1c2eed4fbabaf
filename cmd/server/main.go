// Package main provides the battle room server: websocket sessions, match
// history over HTTP, and a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/cory-johannsen/rhymeduel/internal/archive"
	"github.com/cory-johannsen/rhymeduel/internal/config"
	"github.com/cory-johannsen/rhymeduel/internal/game/room"
	"github.com/cory-johannsen/rhymeduel/internal/gameserver"
	"github.com/cory-johannsen/rhymeduel/internal/generator"
	"github.com/cory-johannsen/rhymeduel/internal/observability"
	"github.com/cory-johannsen/rhymeduel/internal/server"
	"github.com/cory-johannsen/rhymeduel/internal/storage/postgres"
	"github.com/cory-johannsen/rhymeduel/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("no env file loaded from %s: %v", *envFile, err)
	}

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting battle room server",
		zap.String("http_addr", cfg.Server.Addr()),
		zap.String("admin_addr", cfg.Admin.Addr()),
		zap.String("storage", cfg.Storage.Driver),
	)

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("initializing tracing", zap.Error(err))
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}()

	storeStart := time.Now()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening archive store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing archive store", zap.Error(err))
		}
	}()
	logger.Info("archive store ready",
		zap.String("driver", cfg.Storage.Driver),
		zap.Duration("elapsed", time.Since(storeStart)),
	)

	archiver := archive.NewArchiver(store, logger, cfg.Storage.QueueSize, cfg.Storage.SaveTimeout)
	registry := room.NewRegistry(logger, room.Options{
		MaxRounds: cfg.Rooms.MaxRounds,
		Observer:  archiver,
	})

	gen, err := generator.New(cfg.Generator, logger)
	if err != nil {
		logger.Fatal("configuring content generator", zap.Error(err))
	}

	sessions := gameserver.NewSessionServer(registry, gen, logger, gameserver.SessionOptions{
		WriteTimeout:   cfg.Server.WriteTimeout,
		OutboxSize:     cfg.Server.OutboxSize,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	var handler http.Handler = gameserver.NewRouter(sessions, registry, store, logger)
	if cfg.Tracing.Enabled {
		handler = otelhttp.NewHandler(handler, "http")
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	admin := gameserver.NewAdminServer(cfg.Admin.Addr(), logger)
	monitor := gameserver.NewStoreMonitor(store, admin, cfg.Admin.HealthInterval, logger)
	sweeper := gameserver.NewRoomSweeper(registry, cfg.Rooms.SweepInterval, cfg.Rooms.Retention, logger)

	// Services stop in reverse order: sessions end before the archiver drains.
	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("archiver", archiver)
	lifecycle.Add("admin", admin)
	lifecycle.Add("store-health", server.NewLoopService(monitor.Run))
	lifecycle.Add("sweeper", server.NewLoopService(sweeper.Run))
	lifecycle.Add("http", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", httpServer.Addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", httpServer.Addr, err)
			}
			logger.Info("http server listening", zap.String("addr", lis.Addr().String()))
			if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		StopFn: func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(sctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			if err := sessions.Shutdown(sctx); err != nil {
				logger.Warn("session shutdown", zap.Error(err))
			}
		},
	})

	logger.Info("battle room server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("max_rounds", cfg.Rooms.MaxRounds),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("server exited with error", zap.Error(err))
	}
	if n := archiver.Dropped(); n > 0 {
		logger.Warn("archive jobs dropped during run", zap.Int64("dropped", n))
	}
}

// openStore returns the archive store selected by cfg.Storage.Driver.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		return sqlite.Open(cfg.Storage.SQLitePath)
	case "postgres":
		version, err := postgres.Migrate(cfg.Database.DSN())
		if err != nil {
			return nil, err
		}
		logger.Info("postgres schema migrated", zap.Uint("version", version))
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return postgres.NewMatchRepository(pool), nil
	case "memory":
		return archive.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
