package room

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/rhymeduel/internal/protocol"
)

// Conn is the outbound side of a participant's connection.
// Send must not block; its errors are logged and otherwise ignored.
type Conn interface {
	ID() string
	Send(data []byte) error
}

// Room pairs at most two participants around one SessionState.
//
// Invariant: every exported method runs under mu, so all mutations and the
// events they emit are serialized per room.
type Room struct {
	key       string
	createdAt time.Time
	maxRounds int
	now       func() time.Time
	observer  Observer
	logger    *zap.Logger

	mu    sync.Mutex
	slots map[string]*Slot
	state SessionState
}

func newRoom(key string, opts Options, logger *zap.Logger) *Room {
	return &Room{
		key:       key,
		createdAt: opts.Now(),
		maxRounds: opts.MaxRounds,
		now:       opts.Now,
		observer:  opts.Observer,
		logger:    logger.With(zap.String("room", key)),
		slots:     make(map[string]*Slot, 2),
		state:     SessionState{Status: StatusWaiting},
	}
}

// Key returns the room key.
func (r *Room) Key() string {
	return r.key
}

// CreatedAt returns when the room was created.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// OccupantCount returns the number of occupied seats.
func (r *Room) OccupantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Snapshot returns a deep copy of the current session state.
func (r *Room) Snapshot() SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Slots returns copies of the occupied slots ordered by seat.
func (r *Room) Slots() []Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Slot, 0, len(r.slots))
	for _, s := range r.slotsBySeat() {
		cp := *s
		cp.Payload = cloneRaw(s.Payload)
		cp.conn = nil
		out = append(out, cp)
	}
	return out
}

// SeatOf returns the seat held by participant.
func (r *Room) SeatOf(participant string) (Seat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[participant]
	if !ok {
		return SeatNone, false
	}
	return s.Seat, true
}

// admit seats participant in the lowest free seat and notifies both sides.
//
// Postcondition: Returns the assigned seat, or ErrRoomFull with the room unchanged.
func (r *Room) admit(participant string, conn Conn) (Seat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.slots[participant]; ok {
		existing.conn = conn
		r.unicast(existing, r.joinedEvent(existing.Seat))
		return existing.Seat, nil
	}
	if len(r.slots) >= 2 {
		return SeatNone, ErrRoomFull
	}

	seat := Seat1
	if r.seatTaken(Seat1) {
		seat = Seat2
	}
	slot := &Slot{Participant: participant, Seat: seat, conn: conn}
	r.slots[participant] = slot

	r.unicast(slot, r.joinedEvent(seat))
	r.broadcastExcept(participant, protocol.OccupantJoined{
		Seat:          int(seat),
		OccupantCount: len(r.slots),
	})

	r.logger.Info("participant joined",
		zap.String("participant", participant),
		zap.Int("seat", int(seat)),
		zap.Int("occupants", len(r.slots)),
	)
	return seat, nil
}

// remove vacates participant's seat and notifies the remaining occupant.
// The session state is not reset.
//
// Postcondition: Returns the remaining occupant count and whether a slot was removed.
func (r *Room) remove(participant string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[participant]
	if !ok {
		return len(r.slots), false
	}
	delete(r.slots, participant)

	r.broadcastExcept(participant, protocol.OccupantLeft{
		Seat:          int(slot.Seat),
		OccupantCount: len(r.slots),
	})

	r.logger.Info("participant left",
		zap.String("participant", participant),
		zap.Int("seat", int(slot.Seat)),
		zap.Int("occupants", len(r.slots)),
		zap.String("status", string(r.state.Status)),
	)
	return len(r.slots), true
}

// SetReady marks participant's seat ready with payload and advances the room
// to ReadyToBattle once both seats are ready with non-empty payloads.
//
// Postcondition: Returns false, changing nothing, when participant is not
// seated here or the room is already battling or finished.
func (r *Room) SetReady(participant string, payload json.RawMessage) bool {
	r.mu.Lock()

	slot, ok := r.slots[participant]
	if !ok || (r.state.Status != StatusWaiting && r.state.Status != StatusReadyToBattle) {
		r.staleLocked("mark-ready", participant)
		r.mu.Unlock()
		return false
	}

	slot.Ready = true
	slot.Payload = cloneRaw(payload)
	seat := slot.Seat
	r.broadcastExcept(participant, protocol.OccupantConfigured{
		Seat:    int(seat),
		Payload: payloadOrNull(slot.Payload),
	})

	if r.state.Status == StatusWaiting && r.bothReady() {
		r.state.Status = StatusReadyToBattle
		r.logger.Info("room ready to battle")
		r.broadcastState()
	}
	r.mu.Unlock()

	r.observer.PayloadConfigured(r.key, participant, seat, cloneRaw(payload))
	return true
}

// StartMatch freezes both seats' payloads into a new match and gives seat 1
// the first turn.
//
// Postcondition: Returns false, changing nothing, unless the room is
// ReadyToBattle with both seats occupied and ready.
func (r *Room) StartMatch(participant string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[participant]; !ok || r.state.Status != StatusReadyToBattle || !r.bothReady() {
		r.staleLocked("start-match", participant)
		return false
	}

	match := &Match{
		ID:        uuid.NewString(),
		MaxRounds: r.maxRounds,
		Turns:     make([]TurnRecord, 0, 2*r.maxRounds),
		StartedAt: r.now(),
	}
	for _, s := range r.slots {
		match.Payloads[s.Seat-1] = cloneRaw(s.Payload)
	}

	r.state = SessionState{
		Status:      StatusBattling,
		CurrentTurn: Seat1,
		Match:       match,
	}
	r.logger.Info("match started",
		zap.String("match_id", match.ID),
		zap.Int("max_rounds", match.MaxRounds),
	)
	r.broadcastState()
	return true
}

// SubmitTurn appends participant's turn and passes the turn to the other
// seat, finishing the match when the turn limit is reached.
//
// Postcondition: Returns false, changing nothing, unless the room is
// Battling and participant holds the current turn.
func (r *Room) SubmitTurn(participant string, contentUnits []string) bool {
	r.mu.Lock()

	slot, ok := r.slots[participant]
	if !ok || r.state.Status != StatusBattling || slot.Seat != r.state.CurrentTurn {
		r.staleLocked("submit-turn", participant)
		r.mu.Unlock()
		return false
	}

	match := r.state.Match
	record := TurnRecord{
		Seat:         slot.Seat,
		Payload:      cloneRaw(match.Payload(slot.Seat)),
		ContentUnits: append([]string(nil), contentUnits...),
		At:           r.now(),
	}
	match.Turns = append(match.Turns, record)

	finished := match.Finished()
	if finished {
		r.state.Status = StatusFinished
		r.state.CurrentTurn = SeatNone
		match.FinishedAt = record.At
	} else {
		r.state.CurrentTurn = slot.Seat.Other()
	}

	r.broadcastState()
	r.broadcastExcept("", protocol.TurnSubmitted{
		Seat:         int(record.Seat),
		Payload:      payloadOrNull(record.Payload),
		ContentUnits: nonNil(record.ContentUnits),
		Finished:     finished,
	})

	var archived Match
	if finished {
		archived = match.clone()
		r.logger.Info("match finished",
			zap.String("match_id", match.ID),
			zap.Int("turns", len(match.Turns)),
		)
	}
	r.mu.Unlock()

	if finished {
		r.observer.MatchFinished(r.key, archived)
	}
	return true
}

// RelayNote forwards text from participant to the other occupant.
//
// Postcondition: Returns false when participant is not seated here.
func (r *Room) RelayNote(participant, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[participant]
	if !ok {
		r.staleLocked("relay-note", participant)
		return false
	}
	r.broadcastExcept(participant, protocol.NoteRelayed{Seat: int(slot.Seat), Text: text})
	return true
}

// TurnContext describes the pending turn for participant, for composing it.
type TurnContext struct {
	MatchID         string
	Seat            Seat
	Payload         json.RawMessage
	OpponentPayload json.RawMessage
	// PriorContent is the opponent's most recent content units, if any.
	PriorContent []string
	// Round is the 1-based round this turn belongs to.
	Round int
}

// PendingTurn returns the context of participant's turn.
//
// Postcondition: ok is false unless the room is Battling and participant
// holds the current turn.
func (r *Room) PendingTurn(participant string) (TurnContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[participant]
	if !ok || r.state.Status != StatusBattling || slot.Seat != r.state.CurrentTurn {
		return TurnContext{}, false
	}
	match := r.state.Match
	tc := TurnContext{
		MatchID:         match.ID,
		Seat:            slot.Seat,
		Payload:         cloneRaw(match.Payload(slot.Seat)),
		OpponentPayload: cloneRaw(match.Payload(slot.Seat.Other())),
		Round:           len(match.Turns)/2 + 1,
	}
	if n := len(match.Turns); n > 0 && match.Turns[n-1].Seat != slot.Seat {
		tc.PriorContent = append([]string(nil), match.Turns[n-1].ContentUnits...)
	}
	return tc, true
}

func (r *Room) seatTaken(seat Seat) bool {
	for _, s := range r.slots {
		if s.Seat == seat {
			return true
		}
	}
	return false
}

func (r *Room) bothReady() bool {
	if len(r.slots) != 2 {
		return false
	}
	for _, s := range r.slots {
		if !s.Ready || protocol.IsEmptyPayload(s.Payload) {
			return false
		}
	}
	return true
}

func (r *Room) slotsBySeat() []*Slot {
	out := make([]*Slot, 0, len(r.slots))
	for _, seat := range []Seat{Seat1, Seat2} {
		for _, s := range r.slots {
			if s.Seat == seat {
				out = append(out, s)
			}
		}
	}
	return out
}

func (r *Room) joinedEvent(seat Seat) protocol.RoomJoined {
	return protocol.RoomJoined{
		RoomKey:       r.key,
		Seat:          int(seat),
		OccupantCount: len(r.slots),
		SessionState:  r.state.wire(),
	}
}

func (r *Room) broadcastState() {
	r.broadcastExcept("", r.state.wire())
}

// broadcastExcept encodes evt once and sends it to every occupant other than
// exclude. An empty exclude reaches everyone.
func (r *Room) broadcastExcept(exclude string, evt protocol.Outbound) {
	data, err := protocol.Encode(evt)
	if err != nil {
		r.logger.Error("encoding broadcast event", zap.String("kind", evt.Kind()), zap.Error(err))
		return
	}
	for _, s := range r.slotsBySeat() {
		if s.Participant == exclude {
			continue
		}
		r.send(s, evt.Kind(), data)
	}
}

func (r *Room) unicast(slot *Slot, evt protocol.Outbound) {
	data, err := protocol.Encode(evt)
	if err != nil {
		r.logger.Error("encoding event", zap.String("kind", evt.Kind()), zap.Error(err))
		return
	}
	r.send(slot, evt.Kind(), data)
}

func (r *Room) send(slot *Slot, kind string, data []byte) {
	if slot.conn == nil {
		return
	}
	if err := slot.conn.Send(data); err != nil {
		r.logger.Warn("send to participant failed",
			zap.String("participant", slot.Participant),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

func (r *Room) staleLocked(op, participant string) {
	r.logger.Debug("ignoring stale operation",
		zap.String("op", op),
		zap.String("participant", participant),
		zap.String("status", string(r.state.Status)),
	)
}
