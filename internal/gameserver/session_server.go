package gameserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/cory-johannsen/rhymeduel/internal/game/room"
	"github.com/cory-johannsen/rhymeduel/internal/game/session"
	"github.com/cory-johannsen/rhymeduel/internal/generator"
	"github.com/cory-johannsen/rhymeduel/internal/protocol"
)

const maxFrameBytes = 64 << 10

// SessionOptions configures a SessionServer.
type SessionOptions struct {
	// WriteTimeout bounds each websocket write.
	WriteTimeout time.Duration
	// OutboxSize is the per-connection buffered frame count.
	OutboxSize int
	// AllowedOrigins are websocket origin patterns accepted in addition to the host itself.
	AllowedOrigins []string
}

// SessionServer accepts websocket connections, decodes inbound frames and
// dispatches them to the room registry.
type SessionServer struct {
	registry *room.Registry
	gen      generator.Generator
	sessions *session.Manager
	logger   *zap.Logger
	opts     SessionOptions

	wg sync.WaitGroup
}

// NewSessionServer creates a SessionServer.
//
// Precondition: registry, gen, and logger must be non-nil.
func NewSessionServer(registry *room.Registry, gen generator.Generator, logger *zap.Logger, opts SessionOptions) *SessionServer {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = session.DefaultOutboxSize
	}
	return &SessionServer{
		registry: registry,
		gen:      gen,
		sessions: session.NewManager(),
		logger:   logger,
		opts:     opts,
	}
}

// ActiveSessions returns the number of open connections.
func (s *SessionServer) ActiveSessions() int {
	return s.sessions.Count()
}

// ServeHTTP upgrades the request and runs the session until the peer
// disconnects or the server shuts down.
func (s *SessionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Draining() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := session.NewConn(uuid.NewString(), s.opts.OutboxSize)
	stop := func() {
		go func() { _ = ws.Close(websocket.StatusGoingAway, "server shutting down") }()
	}
	sess := session.NewSession(conn, r.RemoteAddr, time.Now(), stop)
	s.wg.Add(1)
	defer s.wg.Done()
	if err := s.sessions.Add(sess); err != nil {
		_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.sessions.Remove(sess.ID)

	logger := s.logger.With(zap.String("participant", sess.ID))
	logger.Info("session opened", zap.String("remote_addr", sess.RemoteAddr))

	writerDone := make(chan struct{})
	go s.writeLoop(ws, conn, cancel, logger, writerDone)

	s.unicast(conn, protocol.ParticipantID{ID: sess.ID})
	s.readLoop(ctx, ws, conn, logger)

	s.registry.Leave(sess.ID)
	_ = conn.Close()
	<-writerDone

	_ = ws.Close(websocket.StatusNormalClosure, "")
	logger.Info("session closed", zap.Duration("duration", time.Since(sess.OpenedAt)))
}

// Shutdown refuses new connections, closes every live session with
// StatusGoingAway and waits for them to finish or ctx to expire.
func (s *SessionServer) Shutdown(ctx context.Context) error {
	start := time.Now()
	n := s.sessions.Drain()
	s.logger.Info("draining sessions", zap.Int("sessions", n))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("sessions drained", zap.Duration("elapsed", time.Since(start)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining sessions: %w", ctx.Err())
	}
}

// writeLoop drains the outbox until it is closed. After a failed write the
// session is cancelled and remaining frames are discarded.
func (s *SessionServer) writeLoop(ws *websocket.Conn, conn *session.Conn, cancel context.CancelFunc, logger *zap.Logger, done chan<- struct{}) {
	defer close(done)
	failed := false
	for data := range conn.Outbox() {
		if failed {
			continue
		}
		ctx, writeCancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		err := ws.Write(ctx, websocket.MessageText, data)
		writeCancel()
		if err != nil {
			logger.Warn("websocket write failed", zap.Error(err))
			failed = true
			cancel()
		}
	}
}

func (s *SessionServer) readLoop(ctx context.Context, ws *websocket.Conn, conn *session.Conn, logger *zap.Logger) {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			switch {
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				logger.Debug("peer closed connection")
			case ctx.Err() != nil:
				logger.Debug("session cancelled")
			default:
				logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			s.unicast(conn, protocol.ProtocolError{Message: "only text frames are supported"})
			continue
		}
		s.dispatch(ctx, conn, data, logger)
	}
}

func (s *SessionServer) dispatch(ctx context.Context, conn *session.Conn, data []byte, logger *zap.Logger) {
	in, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) {
			logger.Warn("unknown message kind", zap.Error(err))
		} else {
			logger.Debug("malformed frame", zap.Error(err))
		}
		s.unicast(conn, protocol.ProtocolError{Message: err.Error()})
		return
	}

	id := conn.ID()
	switch msg := in.(type) {
	case *protocol.JoinRoom:
		if _, err := s.registry.Join(msg.RoomKey, id, conn); err != nil {
			s.unicast(conn, protocol.JoinRoomError{Message: err.Error()})
		}
	case *protocol.MarkReady:
		s.registry.SetReady(id, msg.Payload)
	case *protocol.StartMatch:
		s.registry.StartMatch(id)
	case *protocol.SubmitTurn:
		if len(msg.ContentUnits) == 0 {
			s.compose(ctx, id, logger)
			return
		}
		s.registry.SubmitTurn(id, msg.ContentUnits)
	case *protocol.RelayNote:
		s.registry.RelayNote(id, msg.Text)
	default:
		logger.Warn("unhandled inbound message", zap.String("kind", in.Kind()))
		s.unicast(conn, protocol.ProtocolError{Message: fmt.Sprintf("unsupported message kind %q", in.Kind())})
	}
}

// compose generates participant's pending turn and submits it. The room
// re-validates the turn on submission.
func (s *SessionServer) compose(ctx context.Context, participant string, logger *zap.Logger) {
	rm, ok := s.registry.Lookup(participant)
	if !ok {
		return
	}
	tc, ok := rm.PendingTurn(participant)
	if !ok {
		logger.Debug("no pending turn to compose")
		return
	}

	start := time.Now()
	lines, err := s.gen.Generate(ctx, generator.Request{
		Seat:            int(tc.Seat),
		Round:           tc.Round,
		Payload:         tc.Payload,
		OpponentPayload: tc.OpponentPayload,
		PriorContent:    tc.PriorContent,
	})
	if err != nil {
		logger.Warn("composing turn failed", zap.String("match_id", tc.MatchID), zap.Error(err))
		return
	}
	if !rm.SubmitTurn(participant, lines) {
		logger.Debug("composed turn no longer applicable", zap.String("match_id", tc.MatchID))
		return
	}
	logger.Debug("composed turn submitted",
		zap.String("match_id", tc.MatchID),
		zap.Int("round", tc.Round),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (s *SessionServer) unicast(conn *session.Conn, evt protocol.Outbound) {
	data, err := protocol.Encode(evt)
	if err != nil {
		s.logger.Error("encoding event", zap.String("kind", evt.Kind()), zap.Error(err))
		return
	}
	if err := conn.Send(data); err != nil {
		s.logger.Warn("send to participant failed",
			zap.String("participant", conn.ID()),
			zap.String("kind", evt.Kind()),
			zap.Error(err),
		)
	}
}
