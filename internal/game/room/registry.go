package room

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options configures a Registry and the rooms it creates.
type Options struct {
	// MaxRounds is the number of turn pairs per match. Zero means DefaultMaxRounds.
	MaxRounds int
	// Now supplies timestamps. Nil means time.Now.
	Now func() time.Time
	// Observer receives archival events. Nil means NopObserver.
	Observer Observer
}

func (o Options) withDefaults() Options {
	if o.MaxRounds <= 0 {
		o.MaxRounds = DefaultMaxRounds
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	return o
}

// Stats is a point-in-time count of registry contents.
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
}

// Registry maps room keys to rooms and participants to the room they occupy.
//
// Invariant: members[p] == k iff rooms[k] holds a slot for p. Both maps are
// mutated together under mu. Lock order is Registry.mu then Room.mu.
type Registry struct {
	logger *zap.Logger
	opts   Options

	mu      sync.Mutex
	rooms   map[string]*Room
	members map[string]string
}

// NewRegistry creates an empty Registry.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger, opts Options) *Registry {
	return &Registry{
		logger:  logger,
		opts:    opts.withDefaults(),
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
	}
}

// Join seats participant in the room named roomKey, creating it if absent.
// A participant already seated elsewhere leaves that room first; rejoining
// the current room re-sends the join confirmation without changes.
//
// Postcondition: Returns the assigned seat, or an *AdmissionError wrapping
// ErrRoomFull or ErrEmptyRoomKey. A failed join leaves every room and any
// previous membership untouched.
func (r *Registry) Join(roomKey, participant string, conn Conn) (Seat, error) {
	if roomKey == "" {
		return SeatNone, &AdmissionError{RoomKey: roomKey, Err: ErrEmptyRoomKey}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomKey]
	current, member := r.members[participant]

	if exists && !(member && current == roomKey) && rm.OccupantCount() >= 2 {
		r.logger.Info("join rejected",
			zap.String("room", roomKey),
			zap.String("participant", participant),
			zap.Error(ErrRoomFull),
		)
		return SeatNone, &AdmissionError{RoomKey: roomKey, Err: ErrRoomFull}
	}

	if member && current != roomKey {
		r.leaveLocked(participant)
	}

	if !exists {
		rm = newRoom(roomKey, r.opts, r.logger)
		r.rooms[roomKey] = rm
		r.logger.Debug("room created", zap.String("room", roomKey))
	}

	seat, err := rm.admit(participant, conn)
	if err != nil {
		if !exists && rm.OccupantCount() == 0 {
			delete(r.rooms, roomKey)
		}
		return SeatNone, &AdmissionError{RoomKey: roomKey, Err: err}
	}
	r.members[participant] = roomKey
	return seat, nil
}

// Leave removes participant from its room, deleting the room when it
// becomes empty. Leave without a room is a no-op.
//
// Postcondition: participant has no room.
func (r *Registry) Leave(participant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(participant)
}

func (r *Registry) leaveLocked(participant string) {
	key, ok := r.members[participant]
	if !ok {
		return
	}
	delete(r.members, participant)

	rm, ok := r.rooms[key]
	if !ok {
		return
	}
	remaining, _ := rm.remove(participant)
	if remaining == 0 {
		delete(r.rooms, key)
		r.logger.Debug("room deleted", zap.String("room", key))
	}
}

// Lookup returns the room participant currently occupies.
func (r *Registry) Lookup(participant string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.members[participant]
	if !ok {
		return nil, false
	}
	rm, ok := r.rooms[key]
	return rm, ok
}

// Room returns the room registered under key.
func (r *Registry) Room(key string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[key]
	return rm, ok
}

// SetReady resolves participant's room and applies Room.SetReady.
func (r *Registry) SetReady(participant string, payload json.RawMessage) bool {
	rm, ok := r.Lookup(participant)
	if !ok {
		return false
	}
	return rm.SetReady(participant, payload)
}

// StartMatch resolves participant's room and applies Room.StartMatch.
func (r *Registry) StartMatch(participant string) bool {
	rm, ok := r.Lookup(participant)
	if !ok {
		return false
	}
	return rm.StartMatch(participant)
}

// SubmitTurn resolves participant's room and applies Room.SubmitTurn.
func (r *Registry) SubmitTurn(participant string, contentUnits []string) bool {
	rm, ok := r.Lookup(participant)
	if !ok {
		return false
	}
	return rm.SubmitTurn(participant, contentUnits)
}

// RelayNote resolves participant's room and applies Room.RelayNote.
func (r *Registry) RelayNote(participant, text string) bool {
	rm, ok := r.Lookup(participant)
	if !ok {
		return false
	}
	return rm.RelayNote(participant, text)
}

// Sweep deletes every room with no occupants that is older than retention.
//
// Postcondition: Returns the number of rooms deleted.
func (r *Registry) Sweep(now time.Time, retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, rm := range r.rooms {
		if rm.OccupantCount() != 0 || now.Sub(rm.CreatedAt()) <= retention {
			continue
		}
		delete(r.rooms, key)
		for p, k := range r.members {
			if k == key {
				delete(r.members, p)
			}
		}
		removed++
		r.logger.Debug("swept idle room",
			zap.String("room", key),
			zap.Duration("age", now.Sub(rm.CreatedAt())),
		)
	}
	return removed
}

// Stats returns the current room and participant counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Rooms: len(r.rooms), Participants: len(r.members)}
}
