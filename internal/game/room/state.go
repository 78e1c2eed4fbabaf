// Package room implements two-seat battle rooms: seat admission, the
// Waiting → ReadyToBattle → Battling → Finished session state machine, and
// the registry that maps room keys and participants to rooms.
package room

import (
	"encoding/json"
	"time"
)

// Seat is a participant's stable turn-order position within a room.
type Seat int

// Seats. SeatNone marks the absence of a current turn.
const (
	SeatNone Seat = 0
	Seat1    Seat = 1
	Seat2    Seat = 2
)

// Other returns the opposing seat.
//
// Precondition: s is Seat1 or Seat2.
func (s Seat) Other() Seat {
	if s == Seat1 {
		return Seat2
	}
	return Seat1
}

// Valid reports whether s names an actual seat.
func (s Seat) Valid() bool {
	return s == Seat1 || s == Seat2
}

// Status is the session state machine's current phase.
type Status string

// Session statuses in the order a room moves through them.
const (
	StatusWaiting       Status = "waiting"
	StatusReadyToBattle Status = "ready-to-battle"
	StatusBattling      Status = "battling"
	StatusFinished      Status = "finished"
)

// DefaultMaxRounds is the number of turn pairs in a match when unconfigured.
const DefaultMaxRounds = 6

// Slot is one participant's membership in a room.
type Slot struct {
	Participant string
	Seat        Seat
	Ready       bool
	Payload     json.RawMessage
	conn        Conn
}

// TurnRecord is one seat's contribution to a match. Records are appended and
// never modified.
type TurnRecord struct {
	Seat         Seat
	Payload      json.RawMessage
	ContentUnits []string
	At           time.Time
}

// Match is the exchange frozen when a room starts battling.
type Match struct {
	ID         string
	MaxRounds  int
	Payloads   [2]json.RawMessage
	Turns      []TurnRecord
	StartedAt  time.Time
	FinishedAt time.Time
}

// Payload returns the payload frozen for seat at match start.
//
// Precondition: seat.Valid().
func (m Match) Payload(seat Seat) json.RawMessage {
	return m.Payloads[seat-1]
}

// TurnLimit is the number of turn records that finishes the match.
func (m Match) TurnLimit() int {
	return 2 * m.MaxRounds
}

// Finished reports whether the match has reached its turn limit.
func (m Match) Finished() bool {
	return len(m.Turns) >= m.TurnLimit()
}

func (m Match) clone() Match {
	out := m
	out.Payloads = [2]json.RawMessage{cloneRaw(m.Payloads[0]), cloneRaw(m.Payloads[1])}
	out.Turns = make([]TurnRecord, len(m.Turns))
	for i, tr := range m.Turns {
		out.Turns[i] = TurnRecord{
			Seat:         tr.Seat,
			Payload:      cloneRaw(tr.Payload),
			ContentUnits: append([]string(nil), tr.ContentUnits...),
			At:           tr.At,
		}
	}
	return out
}

// SessionState is a room's status, turn pointer, and match history.
type SessionState struct {
	Status Status
	// CurrentTurn is SeatNone outside StatusBattling.
	CurrentTurn Seat
	Match       *Match
}

// Turns returns the match's turn records in order, or nil before a match starts.
func (s SessionState) Turns() []TurnRecord {
	if s.Match == nil {
		return nil
	}
	return s.Match.Turns
}

func (s SessionState) clone() SessionState {
	out := s
	if s.Match != nil {
		m := s.Match.clone()
		out.Match = &m
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
