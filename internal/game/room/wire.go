package room

import (
	"encoding/json"

	"github.com/cory-johannsen/rhymeduel/internal/protocol"
)

var nullPayload = json.RawMessage("null")

// wire converts the state to its session-state event payload.
func (s SessionState) wire() protocol.SessionState {
	out := protocol.SessionState{
		Status: string(s.Status),
		Turns:  []protocol.TurnRecord{},
	}
	if s.CurrentTurn.Valid() {
		turn := int(s.CurrentTurn)
		out.CurrentTurn = &turn
	}
	if s.Match == nil {
		return out
	}

	m := s.Match
	wm := &protocol.Match{
		ID:        m.ID,
		MaxRounds: m.MaxRounds,
		Seats: []protocol.SeatPayload{
			{Seat: int(Seat1), Payload: payloadOrNull(m.Payload(Seat1))},
			{Seat: int(Seat2), Payload: payloadOrNull(m.Payload(Seat2))},
		},
		StartedAt: m.StartedAt,
	}
	if !m.FinishedAt.IsZero() {
		finished := m.FinishedAt
		wm.FinishedAt = &finished
	}
	out.Match = wm

	out.Turns = make([]protocol.TurnRecord, len(m.Turns))
	for i, tr := range m.Turns {
		out.Turns[i] = protocol.TurnRecord{
			Seat:         int(tr.Seat),
			Payload:      payloadOrNull(tr.Payload),
			ContentUnits: nonNil(tr.ContentUnits),
			At:           tr.At,
		}
	}
	return out
}

// Wire returns the session-state event for s.
func (s SessionState) Wire() protocol.SessionState {
	return s.wire()
}

// payloadOrNull keeps json.Marshal from rejecting an unset payload.
func payloadOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nullPayload
	}
	return raw
}

func nonNil(units []string) []string {
	if units == nil {
		return []string{}
	}
	return units
}
