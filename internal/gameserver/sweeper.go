package gameserver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rhymeduel/internal/game/room"
)

// RoomSweeper periodically deletes rooms that have no occupants and are
// older than the retention period.
type RoomSweeper struct {
	registry  *room.Registry
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewRoomSweeper returns a sweeper that runs every interval.
//
// Precondition: interval must be > 0; registry and logger must be non-nil.
func NewRoomSweeper(registry *room.Registry, interval, retention time.Duration, logger *zap.Logger) *RoomSweeper {
	if interval <= 0 {
		panic("gameserver.NewRoomSweeper: interval must be > 0")
	}
	return &RoomSweeper{
		registry:  registry,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// SweepOnce runs a single sweep and returns the number of rooms removed.
func (s *RoomSweeper) SweepOnce() int {
	start := time.Now()
	removed := s.registry.Sweep(s.now(), s.retention)
	if removed > 0 {
		stats := s.registry.Stats()
		s.logger.Info("swept idle rooms",
			zap.Int("removed", removed),
			zap.Int("rooms", stats.Rooms),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return removed
}

// Run sweeps once per interval until ctx is cancelled.
//
// Postcondition: Returns ctx.Err() once ctx is done.
func (s *RoomSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}
