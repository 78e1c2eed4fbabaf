package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/rhymeduel/internal/archive"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(id string, finished time.Time) archive.MatchRecord {
	return archive.MatchRecord{
		ID:        id,
		RoomKey:   "ABCDEF",
		MaxRounds: 1,
		Seat1:     json.RawMessage(`{"name":"MC Byte"}`),
		Turns: []archive.TurnRecord{
			{Seat: 1, Payload: json.RawMessage(`{"name":"MC Byte"}`), ContentUnits: []string{"a"}, At: finished.Add(-time.Second)},
			{Seat: 2, ContentUnits: []string{"b"}, At: finished},
		},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.SaveMatch(context.Background(), record("m1", time.Now())))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err, "reopening applies no new migrations")
	defer second.Close()
	_, err = second.GetMatch(context.Background(), "m1")
	require.NoError(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveMatch(ctx, record("m1", at)))

	got, err := store.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF", got.RoomKey)
	assert.JSONEq(t, `{"name":"MC Byte"}`, string(got.Seat1))
	assert.Nil(t, got.Seat2)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, []string{"b"}, got.Turns[1].ContentUnits)
	assert.True(t, got.FinishedAt.Equal(at))
	assert.True(t, got.StartedAt.Equal(at.Add(-time.Minute)))
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetMatch(context.Background(), "missing")
	assert.ErrorIs(t, err, archive.ErrMatchNotFound)
}

func TestStore_SaveIsUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rec := record("m1", time.Now())
	require.NoError(t, store.SaveMatch(ctx, rec))
	rec.Turns = rec.Turns[:1]
	require.NoError(t, store.SaveMatch(ctx, rec))

	list, err := store.ListMatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].TurnCount)
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveMatch(ctx, record(fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	list, err := store.ListMatches(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"m4", "m3", "m2"}, []string{list[0].ID, list[1].ID, list[2].ID})

	_, err = store.ListMatches(ctx, 0)
	assert.Error(t, err)
}

func TestStore_SavePayload(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePayload(ctx, archive.PayloadRecord{
		RoomKey:      "ABCDEF",
		Participant:  "p1",
		Seat:         1,
		Payload:      json.RawMessage(`{"name":"MC Byte"}`),
		ConfiguredAt: time.Now(),
	}))

	var count int
	require.NoError(t, store.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM payloads`).Scan(&count))
	assert.Equal(t, 1, count)

	err := store.SavePayload(ctx, archive.PayloadRecord{RoomKey: "R", Participant: "p", Seat: 3, ConfiguredAt: time.Now()})
	assert.Error(t, err, "seat is constrained to 1 or 2")
}

func TestStore_PingAfterClose(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	assert.Error(t, store.Ping(context.Background()))
}

// Property: content units survive a save and load unchanged.
func TestPropertyContentUnitsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	n := 0
	rapid.Check(t, func(rt *rapid.T) {
		units := rapid.SliceOf(rapid.String()).Draw(rt, "units")
		n++
		rec := record(fmt.Sprintf("prop-%d", n), time.Now())
		rec.Turns[0].ContentUnits = units

		if err := store.SaveMatch(ctx, rec); err != nil {
			rt.Fatalf("save: %v", err)
		}
		got, err := store.GetMatch(ctx, rec.ID)
		if err != nil {
			rt.Fatalf("get: %v", err)
		}
		if len(got.Turns[0].ContentUnits) != len(units) {
			rt.Fatalf("got %d units, want %d", len(got.Turns[0].ContentUnits), len(units))
		}
		for i := range units {
			if got.Turns[0].ContentUnits[i] != units[i] {
				rt.Fatalf("unit %d: got %q want %q", i, got.Turns[0].ContentUnits[i], units[i])
			}
		}
	})
}
