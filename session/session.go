// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/wfunc/poolroom/models"
	"github.com/wfunc/poolroom/network"
)

// Binding ties a connection to a participant of a room.
type Binding struct {
	RoomCode      string
	ParticipantID string
}

// Session is one live connection. Its id doubles as the participant's
// connectionRef while bound.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	lastActive time.Time
	binding    Binding
	clock      quartz.Clock
	mutex      sync.RWMutex
}

// NewSession wraps conn. A nil clock means wall time.
func NewSession(id string, conn network.Connection, clock quartz.Clock) *Session {
	if clock == nil {
		clock = quartz.NewReal()
	}
	now := clock.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		clock:      clock,
	}
}

func (s *Session) GetID() string {
	return s.ID
}

// Send queues a packet; it never waits on the network.
func (s *Session) Send(msgID uint16, data []byte) error {
	return s.Conn.Send(msgID, data)
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Touch records inbound activity.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = s.clock.Now()
	s.mutex.Unlock()
}

func (s *Session) Bind(roomCode, participantID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.binding = Binding{RoomCode: roomCode, ParticipantID: participantID}
}

// Unbind clears the binding and returns what it was.
func (s *Session) Unbind() Binding {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	b := s.binding
	s.binding = Binding{}
	return b
}

// UnbindIf clears the binding only if it still points at b.
func (s *Session) UnbindIf(b Binding) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.binding != b {
		return false
	}
	s.binding = Binding{}
	return true
}

// Binding returns the current binding and whether there is one.
func (s *Session) Binding() (Binding, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.binding, s.binding.RoomCode != ""
}

// View is the admin form of the session.
func (s *Session) View() models.SessionView {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return models.SessionView{
		ID:            s.ID,
		ParticipantID: s.binding.ParticipantID,
		RemoteAddr:    s.Conn.RemoteAddr().String(),
		ConnectedAt:   s.CreatedAt.UnixMilli(),
		LastActive:    s.lastActive.UnixMilli(),
	}
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns every open session.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

// GetByRoom returns every session currently bound to roomCode.
func (m *Manager) GetByRoom(roomCode string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if b, ok := session.Binding(); ok && b.RoomCode == roomCode {
			result = append(result, session)
		}
	}
	return result
}
