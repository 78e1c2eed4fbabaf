package archive

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var errStoreClosed = errors.New("store closed")

// MemoryStore is an in-process Store. Records do not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	matches  map[string]MatchRecord
	payloads []PayloadRecord
	closed   bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{matches: make(map[string]MatchRecord)}
}

func (s *MemoryStore) SaveMatch(ctx context.Context, rec MatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[rec.ID] = rec
	return nil
}

func (s *MemoryStore) SavePayload(ctx context.Context, rec PayloadRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, rec)
	return nil
}

func (s *MemoryStore) GetMatch(ctx context.Context, id string) (MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.matches[id]
	if !ok {
		return MatchRecord{}, ErrMatchNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListMatches(ctx context.Context, limit int) ([]MatchSummary, error) {
	s.mu.RLock()
	out := make([]MatchSummary, 0, len(s.matches))
	for _, rec := range s.matches {
		out = append(out, rec.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Payloads returns every saved payload in save order.
func (s *MemoryStore) Payloads() []PayloadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PayloadRecord(nil), s.payloads...)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
