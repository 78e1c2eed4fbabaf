package room

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Observer receives room events destined for collaborators outside the
// room, such as archival. Calls are made after the room lock is released
// and must not block.
type Observer interface {
	// PayloadConfigured is called after a participant marks ready.
	PayloadConfigured(roomKey, participant string, seat Seat, payload json.RawMessage)
	// MatchFinished is called once with the complete match when it finishes.
	MatchFinished(roomKey string, match Match)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) PayloadConfigured(string, string, Seat, json.RawMessage) {}
func (NopObserver) MatchFinished(string, Match)                           {}

// ErrRoomFull is the admission failure for a room that already seats two.
var ErrRoomFull = errors.New("room is full")

// ErrEmptyRoomKey is the admission failure for a blank room key.
var ErrEmptyRoomKey = errors.New("room key required")

// AdmissionError reports why a participant could not join a room. It is
// surfaced to the requester only.
type AdmissionError struct {
	RoomKey string
	Err     error
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("joining room %q: %v", e.RoomKey, e.Err)
}

func (e *AdmissionError) Unwrap() error {
	return e.Err
}
