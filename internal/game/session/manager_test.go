package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestSession(id string) (*Session, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return NewSession(NewConn(id, 4), "127.0.0.1:1234", time.Now(), cancel), ctx
}

func TestManager_AddAndGet(t *testing.T) {
	m := NewManager()
	sess, _ := newTestSession("p1")
	require.NoError(t, m.Add(sess))

	got, ok := m.Get("p1")
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, 1, m.Count())
}

func TestManager_AddDuplicate(t *testing.T) {
	m := NewManager()
	first, _ := newTestSession("p1")
	second, _ := newTestSession("p1")
	require.NoError(t, m.Add(first))
	err := m.Add(second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestManager_RemoveUnknownIsNoop(t *testing.T) {
	m := NewManager()
	m.Remove("ghost")
	assert.Equal(t, 0, m.Count())
}

func TestManager_IDsSorted(t *testing.T) {
	m := NewManager()
	for _, id := range []string{"c", "a", "b"} {
		sess, _ := newTestSession(id)
		require.NoError(t, m.Add(sess))
	}
	assert.Equal(t, []string{"a", "b", "c"}, m.IDs())
}

func TestManager_DrainCancelsAndRefuses(t *testing.T) {
	m := NewManager()
	sess, ctx := newTestSession("p1")
	require.NoError(t, m.Add(sess))

	assert.Equal(t, 1, m.Drain())
	assert.True(t, m.Draining())
	select {
	case <-ctx.Done():
	default:
		t.Fatal("session context not cancelled by Drain")
	}

	late, _ := newTestSession("p2")
	assert.ErrorIs(t, m.Add(late), ErrDraining)
	assert.Equal(t, 1, m.Count(), "drained sessions stay registered until removed")
}

func TestManager_ConcurrentAddRemove(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			sess, _ := newTestSession(id)
			_ = m.Add(sess)
			_, _ = m.Get(id)
			m.Remove(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, m.Count())
}

// Property: Count always equals the number of distinct ids added minus those removed.
func TestPropertyManagerCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewManager()
		live := map[string]bool{}
		ops := rapid.IntRange(1, 40).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			id := rapid.SampledFrom([]string{"a", "b", "c", "d"}).Draw(t, "id")
			if rapid.Bool().Draw(t, "add") {
				sess, _ := newTestSession(id)
				err := m.Add(sess)
				if live[id] != (err != nil) {
					t.Fatalf("add %s: live=%v err=%v", id, live[id], err)
				}
				live[id] = true
			} else {
				m.Remove(id)
				delete(live, id)
			}
			if m.Count() != len(live) {
				t.Fatalf("count %d, want %d", m.Count(), len(live))
			}
		}
	})
}
