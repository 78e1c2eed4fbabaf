package protocol

import "encoding/json"

// Inbound message kinds.
const (
	KindJoinRoom   = "join-room"
	KindMarkReady  = "mark-ready"
	KindStartMatch = "start-match"
	KindSubmitTurn = "submit-turn"
	KindRelayNote  = "relay-note"
)

// Inbound is the closed set of messages a participant may send. Only the
// types in this file implement it.
type Inbound interface {
	Kind() string
	isInbound()
}

// JoinRoom asks to occupy a seat in the room identified by RoomKey.
type JoinRoom struct {
	RoomKey string `json:"roomKey"`
}

// MarkReady marks the sender's seat ready with its configured identity.
type MarkReady struct {
	Payload json.RawMessage `json:"payload"`
}

// StartMatch asks to begin the match once both seats are ready.
type StartMatch struct{}

// SubmitTurn delivers the sender's content for the current turn. An empty
// ContentUnits asks the server to compose the turn.
type SubmitTurn struct {
	ContentUnits []string `json:"contentUnits"`
}

// RelayNote is free text passed through to the other occupant.
type RelayNote struct {
	Text string `json:"text"`
}

func (*JoinRoom) Kind() string   { return KindJoinRoom }
func (*MarkReady) Kind() string  { return KindMarkReady }
func (*StartMatch) Kind() string { return KindStartMatch }
func (*SubmitTurn) Kind() string { return KindSubmitTurn }
func (*RelayNote) Kind() string  { return KindRelayNote }

func (*JoinRoom) isInbound()   {}
func (*MarkReady) isInbound()  {}
func (*StartMatch) isInbound() {}
func (*SubmitTurn) isInbound() {}
func (*RelayNote) isInbound()  {}
