// Package sqlite archives matches in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/cory-johannsen/rhymeduel/internal/archive"
	"github.com/cory-johannsen/rhymeduel/migrations"
)

// Store is a SQLite-backed archive.Store.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path, creating parent directories, and applies
// the embedded migrations.
//
// Precondition: path must be non-empty.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func applyMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations.SQLite, "sqlite")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	// m.Close would close db along with the driver.
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// SaveMatch upserts rec by id.
func (s *Store) SaveMatch(ctx context.Context, rec archive.MatchRecord) error {
	turns, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("encode turns: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO matches (id, room_key, max_rounds, seat1, seat2, turns, turn_count, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	room_key = excluded.room_key,
	max_rounds = excluded.max_rounds,
	seat1 = excluded.seat1,
	seat2 = excluded.seat2,
	turns = excluded.turns,
	turn_count = excluded.turn_count,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at
`,
		rec.ID,
		rec.RoomKey,
		rec.MaxRounds,
		textOrNull(rec.Seat1),
		textOrNull(rec.Seat2),
		string(turns),
		len(rec.Turns),
		rec.StartedAt.UTC().UnixMilli(),
		rec.FinishedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save match %s: %w", rec.ID, err)
	}
	return nil
}

// SavePayload appends rec.
func (s *Store) SavePayload(ctx context.Context, rec archive.PayloadRecord) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO payloads (room_key, participant, seat, payload, configured_at)
VALUES (?, ?, ?, ?, ?)
`,
		rec.RoomKey,
		rec.Participant,
		rec.Seat,
		textOrNull(rec.Payload),
		rec.ConfiguredAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save payload for %s: %w", rec.Participant, err)
	}
	return nil
}

// GetMatch returns the match with id, or archive.ErrMatchNotFound.
func (s *Store) GetMatch(ctx context.Context, id string) (archive.MatchRecord, error) {
	var (
		rec               archive.MatchRecord
		seat1, seat2      sql.NullString
		turns             string
		started, finished int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, room_key, max_rounds, seat1, seat2, turns, started_at, finished_at
FROM matches WHERE id = ?
`, id).Scan(&rec.ID, &rec.RoomKey, &rec.MaxRounds, &seat1, &seat2, &turns, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return archive.MatchRecord{}, archive.ErrMatchNotFound
	}
	if err != nil {
		return archive.MatchRecord{}, fmt.Errorf("get match %s: %w", id, err)
	}
	if seat1.Valid {
		rec.Seat1 = json.RawMessage(seat1.String)
	}
	if seat2.Valid {
		rec.Seat2 = json.RawMessage(seat2.String)
	}
	if err := json.Unmarshal([]byte(turns), &rec.Turns); err != nil {
		return archive.MatchRecord{}, fmt.Errorf("decode turns of match %s: %w", id, err)
	}
	rec.StartedAt = time.UnixMilli(started).UTC()
	rec.FinishedAt = time.UnixMilli(finished).UTC()
	return rec, nil
}

// ListMatches returns up to limit summaries, most recently finished first.
func (s *Store) ListMatches(ctx context.Context, limit int) ([]archive.MatchSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, room_key, turn_count, started_at, finished_at
FROM matches
ORDER BY finished_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	out := []archive.MatchSummary{}
	for rows.Next() {
		var (
			sum               archive.MatchSummary
			started, finished int64
		)
		if err := rows.Scan(&sum.ID, &sum.RoomKey, &sum.TurnCount, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan match summary: %w", err)
		}
		sum.StartedAt = time.UnixMilli(started).UTC()
		sum.FinishedAt = time.UnixMilli(finished).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

// Ping reports whether the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func textOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
