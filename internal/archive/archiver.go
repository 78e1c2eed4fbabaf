package archive

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rhymeduel/internal/game/room"
)

// DefaultQueueSize bounds pending archive jobs when unconfigured.
const DefaultQueueSize = 256

type job struct {
	kind string
	id   string
	save func(ctx context.Context) error
}

// Archiver writes room events to a Store from a single worker goroutine.
// Observer callbacks only enqueue; when the queue is full the job is dropped.
type Archiver struct {
	store       Store
	logger      *zap.Logger
	saveTimeout time.Duration
	now         func() time.Time

	queue   chan job
	dropped atomic.Int64

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewArchiver creates an Archiver writing to store.
//
// Precondition: store and logger must be non-nil.
func NewArchiver(store Store, logger *zap.Logger, queueSize int, saveTimeout time.Duration) *Archiver {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Archiver{
		store:       store,
		logger:      logger,
		saveTimeout: saveTimeout,
		now:         time.Now,
		queue:       make(chan job, queueSize),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// PayloadConfigured enqueues the payload for archival.
func (a *Archiver) PayloadConfigured(roomKey, participant string, seat room.Seat, payload json.RawMessage) {
	rec := PayloadRecord{
		RoomKey:      roomKey,
		Participant:  participant,
		Seat:         int(seat),
		Payload:      payload,
		ConfiguredAt: a.now(),
	}
	a.enqueue(job{
		kind: "payload",
		id:   participant,
		save: func(ctx context.Context) error { return a.store.SavePayload(ctx, rec) },
	})
}

// MatchFinished enqueues the finished match for archival.
func (a *Archiver) MatchFinished(roomKey string, match room.Match) {
	rec := NewMatchRecord(roomKey, match)
	a.enqueue(job{
		kind: "match",
		id:   rec.ID,
		save: func(ctx context.Context) error { return a.store.SaveMatch(ctx, rec) },
	})
}

// Dropped returns how many jobs were discarded because the queue was full
// or the archiver had stopped.
func (a *Archiver) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Archiver) enqueue(j job) {
	select {
	case <-a.stop:
		a.drop(j, "archiver stopped")
		return
	default:
	}
	select {
	case a.queue <- j:
	default:
		a.drop(j, "archive queue full")
	}
}

func (a *Archiver) drop(j job, reason string) {
	a.dropped.Add(1)
	a.logger.Warn(reason+", dropping job",
		zap.String("kind", j.kind),
		zap.String("id", j.id),
	)
}

// Start drains the queue until Stop, then saves whatever is still queued.
func (a *Archiver) Start() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	a.mu.Unlock()
	defer close(a.done)

	for {
		select {
		case j := <-a.queue:
			a.save(j)
		case <-a.stop:
			for {
				select {
				case j := <-a.queue:
					a.save(j)
				default:
					return nil
				}
			}
		}
	}
}

// Stop signals the worker and waits for the queue to drain.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	started := a.started
	close(a.stop)
	a.mu.Unlock()

	if started {
		<-a.done
	}
}

func (a *Archiver) save(j job) {
	ctx := context.Background()
	if a.saveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.saveTimeout)
		defer cancel()
	}
	start := time.Now()
	if err := j.save(ctx); err != nil {
		a.logger.Error("archive save failed",
			zap.String("kind", j.kind),
			zap.String("id", j.id),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	a.logger.Debug("archived",
		zap.String("kind", j.kind),
		zap.String("id", j.id),
		zap.Duration("elapsed", time.Since(start)),
	)
}
