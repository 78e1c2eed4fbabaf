// Package protocol defines the JSON wire format exchanged with participants:
// the {kind, payload} envelope, the closed set of inbound messages, and the
// outbound event payloads.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the outer frame of every message in both directions.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrMalformed is returned by Decode when a frame is not a valid envelope or
// its payload does not match the kind.
var ErrMalformed = errors.New("malformed envelope")

// ErrUnknownKind is returned by Decode for a well-formed envelope whose kind
// is not an inbound kind.
var ErrUnknownKind = errors.New("unknown message kind")

// Decode parses one inbound frame into its typed message.
//
// Postcondition: Returns exactly one of a non-nil Inbound or an error that
// wraps ErrMalformed or ErrUnknownKind.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Kind == "" {
		return nil, fmt.Errorf("%w: missing kind", ErrMalformed)
	}

	var msg Inbound
	switch env.Kind {
	case KindJoinRoom:
		msg = &JoinRoom{}
	case KindMarkReady:
		msg = &MarkReady{}
	case KindStartMatch:
		msg = &StartMatch{}
	case KindSubmitTurn:
		msg = &SubmitTurn{}
	case KindRelayNote:
		msg = &RelayNote{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}

	if !isAbsent(env.Payload) {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Kind, err)
		}
	}
	return msg, nil
}

// Encode wraps an outbound event in an envelope and serializes it.
//
// Postcondition: Returns the JSON frame or a non-nil error.
func Encode(evt Outbound) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", evt.Kind(), err)
	}
	data, err := json.Marshal(Envelope{Kind: evt.Kind(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", evt.Kind(), err)
	}
	return data, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// IsEmptyPayload reports whether an opaque participant payload carries no
// content: absent, null, "", {} or [].
func IsEmptyPayload(raw json.RawMessage) bool {
	if isAbsent(raw) {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return len(bytes.TrimSpace([]byte(t))) == 0
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
