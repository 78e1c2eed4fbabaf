// Package archive persists finished matches and configured payloads off the
// room hot path.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cory-johannsen/rhymeduel/internal/game/room"
)

// ErrMatchNotFound is returned when no archived match has the requested id.
var ErrMatchNotFound = errors.New("match not found")

// TurnRecord is one archived turn.
type TurnRecord struct {
	Seat         int             `json:"seat"`
	Payload      json.RawMessage `json:"payload"`
	ContentUnits []string        `json:"contentUnits"`
	At           time.Time       `json:"at"`
}

// MatchRecord is a finished match as stored.
type MatchRecord struct {
	ID         string          `json:"id"`
	RoomKey    string          `json:"roomKey"`
	MaxRounds  int             `json:"maxRounds"`
	Seat1      json.RawMessage `json:"seat1"`
	Seat2      json.RawMessage `json:"seat2"`
	Turns      []TurnRecord    `json:"turns"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// MatchSummary is the listing view of a MatchRecord.
type MatchSummary struct {
	ID         string    `json:"id"`
	RoomKey    string    `json:"roomKey"`
	TurnCount  int       `json:"turnCount"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// PayloadRecord is one mark-ready payload as stored.
type PayloadRecord struct {
	RoomKey      string          `json:"roomKey"`
	Participant  string          `json:"participant"`
	Seat         int             `json:"seat"`
	Payload      json.RawMessage `json:"payload"`
	ConfiguredAt time.Time       `json:"configuredAt"`
}

// Store is durable storage for archived matches and payloads.
type Store interface {
	// SaveMatch inserts rec, replacing any record with the same id.
	SaveMatch(ctx context.Context, rec MatchRecord) error
	SavePayload(ctx context.Context, rec PayloadRecord) error
	// GetMatch returns ErrMatchNotFound when id is unknown.
	GetMatch(ctx context.Context, id string) (MatchRecord, error)
	// ListMatches returns at most limit summaries, most recently finished first.
	ListMatches(ctx context.Context, limit int) ([]MatchSummary, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewMatchRecord converts a finished room match.
func NewMatchRecord(roomKey string, m room.Match) MatchRecord {
	rec := MatchRecord{
		ID:         m.ID,
		RoomKey:    roomKey,
		MaxRounds:  m.MaxRounds,
		Seat1:      m.Payload(room.Seat1),
		Seat2:      m.Payload(room.Seat2),
		Turns:      make([]TurnRecord, len(m.Turns)),
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
	for i, tr := range m.Turns {
		rec.Turns[i] = TurnRecord{
			Seat:         int(tr.Seat),
			Payload:      tr.Payload,
			ContentUnits: tr.ContentUnits,
			At:           tr.At,
		}
	}
	return rec
}

// Summary returns the listing view of rec.
func (rec MatchRecord) Summary() MatchSummary {
	return MatchSummary{
		ID:         rec.ID,
		RoomKey:    rec.RoomKey,
		TurnCount:  len(rec.Turns),
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
}
