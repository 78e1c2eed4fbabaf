package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrDraining is returned by Add once Drain has been called.
var ErrDraining = errors.New("session manager is draining")

// Session is one live participant connection.
type Session struct {
	// ID is the participant identifier minted on connect.
	ID string
	// RemoteAddr is the peer address, for logging.
	RemoteAddr string
	// OpenedAt is when the connection was accepted.
	OpenedAt time.Time
	// Conn carries outbound frames to the transport writer.
	Conn *Conn

	stop func()
}

// NewSession creates a Session that Drain ends by calling stop.
// stop must not block.
//
// Precondition: conn and stop must be non-nil.
func NewSession(conn *Conn, remoteAddr string, openedAt time.Time, stop func()) *Session {
	return &Session{
		ID:         conn.ID(),
		RemoteAddr: remoteAddr,
		OpenedAt:   openedAt,
		Conn:       conn,
		stop:       stop,
	}
}

// Manager tracks all live sessions.
// All methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	draining bool
}

// NewManager creates an empty session Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Add registers sess.
//
// Postcondition: Returns ErrDraining after Drain, or an error if the id is
// already registered.
func (m *Manager) Add(sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.draining {
		return ErrDraining
	}
	if _, exists := m.sessions[sess.ID]; exists {
		return fmt.Errorf("session %q already registered", sess.ID)
	}
	m.sessions[sess.ID] = sess
	return nil
}

// Remove unregisters the session with id. Removing an unknown id is a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the ids of all live sessions in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Draining reports whether Drain has been called.
func (m *Manager) Draining() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.draining
}

// Drain refuses further sessions and stops every live one.
//
// Postcondition: Returns the number of sessions stopped. Sessions remain
// registered until their owners call Remove.
func (m *Manager) Drain() int {
	m.mu.Lock()
	m.draining = true
	live := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		live = append(live, sess)
	}
	m.mu.Unlock()

	for _, sess := range live {
		sess.stop()
	}
	return len(live)
}
