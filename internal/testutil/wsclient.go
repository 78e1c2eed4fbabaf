package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/cory-johannsen/rhymeduel/internal/protocol"
)

// frameTimeout bounds how long a test waits for one frame.
const frameTimeout = 5 * time.Second

// WSClient is a websocket participant for end-to-end tests.
type WSClient struct {
	t    *testing.T
	conn *websocket.Conn
	// ID is the participant id announced by the server on connect.
	ID string
}

// DialSession connects to the session endpoint at baseURL + "/ws" and
// consumes the participant-id frame.
//
// Precondition: baseURL is an http:// or https:// server root.
// Postcondition: Returns a connected client or fails the test. The
// connection is closed on test cleanup.
func DialSession(t *testing.T, baseURL string) *WSClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	c := &WSClient{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	var id protocol.ParticipantID
	c.ExpectInto(protocol.KindParticipantID, &id)
	c.ID = id.ID
	return c
}

// Send writes one {kind, payload} frame. A nil payload is omitted.
func (c *WSClient) Send(kind string, payload any) {
	c.t.Helper()
	env := protocol.Envelope{Kind: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("encoding %s payload: %v", kind, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		c.t.Fatalf("encoding %s envelope: %v", kind, err)
	}
	c.SendRaw(data)
}

// SendRaw writes data as a single text frame.
func (c *WSClient) SendRaw(data []byte) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.t.Fatalf("writing frame: %v", err)
	}
}

// Next reads the next frame.
func (c *WSClient) Next() protocol.Envelope {
	c.t.Helper()
	env, err := c.read()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	return env
}

// Expect reads the next frame, fails unless it has kind, and returns its payload.
func (c *WSClient) Expect(kind string) json.RawMessage {
	c.t.Helper()
	env := c.Next()
	if env.Kind != kind {
		c.t.Fatalf("expected %s frame, got %s: %s", kind, env.Kind, env.Payload)
	}
	return env.Payload
}

// ExpectInto is Expect followed by decoding the payload into v.
func (c *WSClient) ExpectInto(kind string, v any) {
	c.t.Helper()
	raw := c.Expect(kind)
	if err := json.Unmarshal(raw, v); err != nil {
		c.t.Fatalf("decoding %s payload: %v", kind, err)
	}
}

// Await skips frames until one with kind arrives and decodes it into v.
// v may be nil.
func (c *WSClient) Await(kind string, v any) {
	c.t.Helper()
	for {
		env := c.Next()
		if env.Kind != kind {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(env.Payload, v); err != nil {
				c.t.Fatalf("decoding %s payload: %v", kind, err)
			}
		}
		return
	}
}

// ReadErr reads one frame and returns the read error, if any. It is used to
// observe the server closing the connection.
func (c *WSClient) ReadErr() error {
	_, err := c.read()
	return err
}

// Close closes the connection with a normal closure.
func (c *WSClient) Close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *WSClient) read() (protocol.Envelope, error) {
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return protocol.Envelope{}, err
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return protocol.Envelope{}, err
	}
	return env, nil
}
