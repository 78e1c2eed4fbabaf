package protocol

import (
	"encoding/json"
	"time"
)

// Outbound message kinds.
const (
	KindParticipantID      = "participant-id"
	KindRoomJoined         = "room-joined"
	KindJoinRoomError      = "join-room-error"
	KindOccupantJoined     = "occupant-joined"
	KindOccupantLeft       = "occupant-left"
	KindOccupantConfigured = "occupant-configured"
	KindSessionState       = "session-state"
	KindTurnSubmitted      = "turn-submitted"
	KindProtocolError      = "protocol-error"
	// relay-note is shared with the inbound kind of the same name.
)

// Outbound is any event the server sends to a participant.
type Outbound interface {
	Kind() string
}

// ParticipantID tells a new connection its participant identifier.
type ParticipantID struct {
	ID string `json:"id"`
}

// RoomJoined confirms a successful join to the joiner.
type RoomJoined struct {
	RoomKey       string       `json:"roomKey"`
	Seat          int          `json:"seat"`
	OccupantCount int          `json:"occupantCount"`
	SessionState  SessionState `json:"sessionState"`
}

// JoinRoomError reports an admission failure to the requester only.
type JoinRoomError struct {
	Message string `json:"message"`
}

// OccupantJoined notifies the existing occupant that a seat was filled.
type OccupantJoined struct {
	Seat          int `json:"seat"`
	OccupantCount int `json:"occupantCount"`
}

// OccupantLeft notifies the remaining occupant that a seat was vacated.
type OccupantLeft struct {
	Seat          int `json:"seat"`
	OccupantCount int `json:"occupantCount"`
}

// OccupantConfigured carries the other seat's configured payload.
type OccupantConfigured struct {
	Seat    int             `json:"seat"`
	Payload json.RawMessage `json:"payload"`
}

// SessionState is the full snapshot broadcast on every state transition.
// CurrentTurn is null outside a running match.
type SessionState struct {
	Status      string       `json:"status"`
	CurrentTurn *int         `json:"currentTurn"`
	Match       *Match       `json:"match"`
	Turns       []TurnRecord `json:"turns"`
}

// Match is the frozen two-seat exchange. Its turns travel in SessionState.Turns.
type Match struct {
	ID         string        `json:"id"`
	MaxRounds  int           `json:"maxRounds"`
	Seats      []SeatPayload `json:"seats"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
}

// SeatPayload pairs a seat with the payload frozen at match start.
type SeatPayload struct {
	Seat    int             `json:"seat"`
	Payload json.RawMessage `json:"payload"`
}

// TurnRecord is one seat's contribution to a match.
type TurnRecord struct {
	Seat         int             `json:"seat"`
	Payload      json.RawMessage `json:"payload"`
	ContentUnits []string        `json:"contentUnits"`
	At           time.Time       `json:"at"`
}

// TurnSubmitted announces a newly appended turn to both occupants.
type TurnSubmitted struct {
	Seat         int             `json:"seat"`
	Payload      json.RawMessage `json:"payload"`
	ContentUnits []string        `json:"contentUnits"`
	Finished     bool            `json:"finished"`
}

// NoteRelayed is a relay-note forwarded to the other occupant.
type NoteRelayed struct {
	Seat int    `json:"seat"`
	Text string `json:"text"`
}

// ProtocolError reports an undecodable or unsupported frame.
type ProtocolError struct {
	Message string `json:"message"`
}

func (ParticipantID) Kind() string      { return KindParticipantID }
func (RoomJoined) Kind() string         { return KindRoomJoined }
func (JoinRoomError) Kind() string      { return KindJoinRoomError }
func (OccupantJoined) Kind() string     { return KindOccupantJoined }
func (OccupantLeft) Kind() string       { return KindOccupantLeft }
func (OccupantConfigured) Kind() string { return KindOccupantConfigured }
func (SessionState) Kind() string       { return KindSessionState }
func (TurnSubmitted) Kind() string      { return KindTurnSubmitted }
func (NoteRelayed) Kind() string        { return KindRelayNote }
func (ProtocolError) Kind() string      { return KindProtocolError }
