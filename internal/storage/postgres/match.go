package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/rhymeduel/internal/archive"
)

// MatchRepository stores archived matches and payloads.
type MatchRepository struct {
	pool *Pool
}

// NewMatchRepository creates a MatchRepository backed by pool.
//
// Precondition: pool must be connected and migrated.
func NewMatchRepository(pool *Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// SaveMatch upserts rec by id.
func (r *MatchRepository) SaveMatch(ctx context.Context, rec archive.MatchRecord) error {
	turns, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("encoding turns: %w", err)
	}
	_, err = r.pool.DB().Exec(ctx,
		`INSERT INTO matches (id, room_key, max_rounds, seat1, seat2, turns, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		     room_key = EXCLUDED.room_key,
		     max_rounds = EXCLUDED.max_rounds,
		     seat1 = EXCLUDED.seat1,
		     seat2 = EXCLUDED.seat2,
		     turns = EXCLUDED.turns,
		     started_at = EXCLUDED.started_at,
		     finished_at = EXCLUDED.finished_at`,
		rec.ID, rec.RoomKey, rec.MaxRounds,
		jsonbOrNil(rec.Seat1), jsonbOrNil(rec.Seat2), turns,
		rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("saving match %s: %w", rec.ID, err)
	}
	return nil
}

// SavePayload appends rec.
func (r *MatchRepository) SavePayload(ctx context.Context, rec archive.PayloadRecord) error {
	_, err := r.pool.DB().Exec(ctx,
		`INSERT INTO payloads (room_key, participant, seat, payload, configured_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.RoomKey, rec.Participant, rec.Seat, jsonbOrNil(rec.Payload), rec.ConfiguredAt,
	)
	if err != nil {
		return fmt.Errorf("saving payload for %s: %w", rec.Participant, err)
	}
	return nil
}

// GetMatch returns the match with id, or archive.ErrMatchNotFound.
func (r *MatchRepository) GetMatch(ctx context.Context, id string) (archive.MatchRecord, error) {
	var (
		rec          archive.MatchRecord
		seat1, seat2 []byte
		turns        []byte
	)
	err := r.pool.DB().QueryRow(ctx,
		`SELECT id, room_key, max_rounds, seat1, seat2, turns, started_at, finished_at
		 FROM matches WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.RoomKey, &rec.MaxRounds, &seat1, &seat2, &turns, &rec.StartedAt, &rec.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return archive.MatchRecord{}, archive.ErrMatchNotFound
	}
	if err != nil {
		return archive.MatchRecord{}, fmt.Errorf("loading match %s: %w", id, err)
	}
	rec.Seat1 = seat1
	rec.Seat2 = seat2
	if err := json.Unmarshal(turns, &rec.Turns); err != nil {
		return archive.MatchRecord{}, fmt.Errorf("decoding turns of match %s: %w", id, err)
	}
	return rec, nil
}

// ListMatches returns up to limit summaries, most recently finished first.
func (r *MatchRepository) ListMatches(ctx context.Context, limit int) ([]archive.MatchSummary, error) {
	rows, err := r.pool.DB().Query(ctx,
		`SELECT id, room_key, jsonb_array_length(turns), started_at, finished_at
		 FROM matches ORDER BY finished_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	out := []archive.MatchSummary{}
	for rows.Next() {
		var s archive.MatchSummary
		if err := rows.Scan(&s.ID, &s.RoomKey, &s.TurnCount, &s.StartedAt, &s.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning match summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return out, nil
}

// Ping reports whether the database is reachable.
func (r *MatchRepository) Ping(ctx context.Context) error {
	return r.pool.DB().Ping(ctx)
}

// Close releases the pool.
func (r *MatchRepository) Close() error {
	r.pool.Close()
	return nil
}

func jsonbOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
