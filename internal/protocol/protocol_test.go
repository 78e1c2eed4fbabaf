package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecode_JoinRoom(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"join-room","payload":{"roomKey":"ABCDEF"}}`))
	require.NoError(t, err)
	join, ok := msg.(*JoinRoom)
	require.True(t, ok)
	assert.Equal(t, "ABCDEF", join.RoomKey)
	assert.Equal(t, KindJoinRoom, join.Kind())
}

func TestDecode_MarkReadyKeepsPayloadOpaque(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"mark-ready","payload":{"payload":{"name":"MC Byte","style":"boom bap"}}}`))
	require.NoError(t, err)
	ready := msg.(*MarkReady)
	assert.JSONEq(t, `{"name":"MC Byte","style":"boom bap"}`, string(ready.Payload))
}

func TestDecode_StartMatchWithoutPayload(t *testing.T) {
	for _, frame := range []string{
		`{"kind":"start-match"}`,
		`{"kind":"start-match","payload":null}`,
		`{"kind":"start-match","payload":{}}`,
	} {
		msg, err := Decode([]byte(frame))
		require.NoError(t, err, frame)
		_, ok := msg.(*StartMatch)
		assert.True(t, ok, frame)
	}
}

func TestDecode_SubmitTurn(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"submit-turn","payload":{"contentUnits":["a","b"]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, msg.(*SubmitTurn).ContentUnits)
}

func TestDecode_RelayNote(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"relay-note","payload":{"text":"gg"}}`))
	require.NoError(t, err)
	assert.Equal(t, "gg", msg.(*RelayNote).Text)
}

func TestDecode_Malformed(t *testing.T) {
	for _, frame := range []string{
		`not json`,
		`{"payload":{}}`,
		`{"kind":""}`,
		`{"kind":"join-room","payload":{"roomKey":42}}`,
		`{"kind":"submit-turn","payload":{"contentUnits":"one line"}}`,
		`[]`,
	} {
		_, err := Decode([]byte(frame))
		require.Error(t, err, frame)
		assert.True(t, errors.Is(err, ErrMalformed), "frame %s: %v", frame, err)
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"battle_rhyme","payload":{}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
	assert.Contains(t, err.Error(), "battle_rhyme")
}

func TestEncode_WrapsKind(t *testing.T) {
	data, err := Encode(OccupantJoined{Seat: 2, OccupantCount: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"occupant-joined","payload":{"seat":2,"occupantCount":2}}`, string(data))
}

func TestEncode_SessionStateNullTurn(t *testing.T) {
	data, err := Encode(SessionState{Status: "waiting", Turns: []TurnRecord{}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"kind":"session-state","payload":{"status":"waiting","currentTurn":null,"match":null,"turns":[]}}`,
		string(data))
}

func TestEncode_RelayNoteSharesInboundKind(t *testing.T) {
	data, err := Encode(NoteRelayed{Seat: 1, Text: "hi"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, KindRelayNote, env.Kind)
}

func TestIsEmptyPayload(t *testing.T) {
	empty := []string{``, `null`, `  `, `""`, `"   "`, `{}`, `[]`, `{bad`}
	for _, raw := range empty {
		assert.True(t, IsEmptyPayload(json.RawMessage(raw)), "%q should be empty", raw)
	}
	filled := []string{`{"name":"x"}`, `"x"`, `[1]`, `0`, `false`}
	for _, raw := range filled {
		assert.False(t, IsEmptyPayload(json.RawMessage(raw)), "%q should not be empty", raw)
	}
}

// Property: relay-note text survives decoding unchanged.
func TestPropertyDecodeRelayNoteText(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		payload, err := json.Marshal(RelayNote{Text: text})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		frame, err := json.Marshal(Envelope{Kind: KindRelayNote, Payload: payload})
		if err != nil {
			t.Fatalf("marshal envelope: %v", err)
		}
		msg, err := Decode(frame)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got := msg.(*RelayNote).Text; got != text {
			t.Fatalf("text = %q, want %q", got, text)
		}
	})
}

// Property: Decode never panics and never returns both a message and an error.
func TestPropertyDecodeTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		msg, err := Decode(data)
		if (msg == nil) == (err == nil) {
			t.Fatalf("Decode(%q) = (%v, %v)", data, msg, err)
		}
	})
}
