package room

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coder/quartz"

	"github.com/wfunc/poolroom/models"
)

const codeAttempts = 64

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for timestamps.
func WithClock(clock quartz.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithCodeGenerator replaces the random room code source.
func WithCodeGenerator(gen func() string) Option {
	return func(m *Manager) { m.generateCode = gen }
}

// WithLogCapacity sets how many log entries each room keeps.
func WithLogCapacity(n int) Option {
	return func(m *Manager) { m.logCapacity = n }
}

// Manager 管理所有房间。
//
// The registry lock only guards the map. A room's own lock is always taken
// first when both are needed, so Manager never blocks on a room while
// holding the registry.
type Manager struct {
	rooms        map[string]*Room
	mutex        sync.RWMutex
	clock        quartz.Clock
	generateCode func() string
	logCapacity  int
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(opts ...Option) *Manager {
	m := &Manager{
		rooms:        make(map[string]*Room),
		clock:        quartz.NewReal(),
		generateCode: RandomCode,
		logCapacity:  DefaultLogCapacity,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRoom registers a new room under an unused code with ownerName as its
// only participant and owner.
func (m *Manager) CreateRoom(ownerName string, startingBalance int64, connID string) (*Room, *Participant, error) {
	name, err := normalizeName(ownerName)
	if err != nil {
		return nil, nil, err
	}
	if startingBalance <= 0 {
		return nil, nil, invalidInput("starting balance must be positive")
	}
	if startingBalance > MaxStartingBalance {
		return nil, nil, invalidInput(fmt.Sprintf("starting balance must be at most %d", int64(MaxStartingBalance)))
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	code, err := m.newCodeLocked()
	if err != nil {
		return nil, nil, err
	}

	room := newRoom(code, startingBalance, m.clock, m.logCapacity)
	owner := room.addParticipant(name, connID)
	room.logf("%s created room %s", owner.Name, code)
	m.rooms[code] = room
	return room, owner, nil
}

func (m *Manager) newCodeLocked() (string, error) {
	if len(m.rooms) >= codeSpace {
		return "", ErrRoomsExhausted
	}
	for i := 0; i < codeAttempts; i++ {
		code := m.generateCode()
		if _, taken := m.rooms[code]; !taken && ValidCode(code) {
			return code, nil
		}
	}
	for n := 0; n < codeSpace; n++ {
		code := formatCode(n)
		if _, taken := m.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrRoomsExhausted
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[code]
	return room, exists
}

// RemoveRoom 从管理器中移除一个房间; removing an unknown code is a no-op.
func (m *Manager) RemoveRoom(code string) {
	m.mutex.Lock()
	room, exists := m.rooms[code]
	delete(m.rooms, code)
	m.mutex.Unlock()

	if exists {
		room.mu.Lock()
		room.closed = true
		room.mu.Unlock()
	}
}

// Do runs fn with exclusive access to the room. Calls for the same code are
// serialised in lock order; different rooms proceed in parallel. A room
// left without participants is deleted before the lock is released.
func (m *Manager) Do(code string, fn func(r *Room) error) error {
	room, ok := m.GetRoom(code)
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return ErrRoomNotFound
	}
	err := fn(room)
	if len(room.Participants) == 0 {
		room.closed = true
		m.mutex.Lock()
		if m.rooms[code] == room {
			delete(m.rooms, code)
		}
		m.mutex.Unlock()
	}
	return err
}

// Snapshot returns the current state of a room.
func (m *Manager) Snapshot(code string) (models.RoomSnapshot, error) {
	var snap models.RoomSnapshot
	err := m.Do(code, func(r *Room) error {
		snap = r.Snapshot()
		return nil
	})
	return snap, err
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Rooms lists every live room, ordered by code.
func (m *Manager) Rooms() []models.RoomSummary {
	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mutex.RUnlock()

	out := make([]models.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			out = append(out, r.Summary())
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
