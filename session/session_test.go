package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/poolroom/network"
	"github.com/wfunc/poolroom/timer"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error { return nil }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{}, nil)

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_GetByRoom(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{}, nil)
	sess1.Bind("1000", "p1")
	sess2 := NewSession("session2", &MockConnection{}, nil)
	sess2.Bind("2000", "p2")
	sess3 := NewSession("session3", &MockConnection{}, nil)
	sess3.Bind("1000", "p3")
	sess4 := NewSession("session4", &MockConnection{}, nil)

	for _, s := range []*Session{sess1, sess2, sess3, sess4} {
		manager.Add(s)
	}

	assert.Len(t, manager.GetByRoom("1000"), 2)
	assert.Len(t, manager.GetByRoom("2000"), 1)
	assert.Empty(t, manager.GetByRoom("3000"))
}

func TestSession_Binding(t *testing.T) {
	sess := NewSession("s", &MockConnection{}, nil)

	_, ok := sess.Binding()
	assert.False(t, ok)

	sess.Bind("1234", "p1")
	b, ok := sess.Binding()
	require.True(t, ok)
	assert.Equal(t, Binding{RoomCode: "1234", ParticipantID: "p1"}, b)

	assert.False(t, sess.UnbindIf(Binding{RoomCode: "1234", ParticipantID: "p2"}))
	assert.True(t, sess.UnbindIf(b))
	_, ok = sess.Binding()
	assert.False(t, ok)

	sess.Bind("5678", "p9")
	assert.Equal(t, Binding{RoomCode: "5678", ParticipantID: "p9"}, sess.Unbind())
}

func TestTracker_ScheduleRemoval(t *testing.T) {
	clock := quartz.NewMock(t)

	type expiry struct {
		room, participant string
		epoch             uint64
	}
	var (
		mu    sync.Mutex
		fired []expiry
	)
	tracker := NewTracker(timer.NewTimerManager(clock), 30*time.Second, func(room, participant string, epoch uint64) {
		mu.Lock()
		fired = append(fired, expiry{room, participant, epoch})
		mu.Unlock()
	})

	tracker.ScheduleRemoval("1234", "p1", 3)
	assert.Equal(t, []string{"1234/p1/3"}, tracker.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock.Advance(29 * time.Second).MustWait(ctx)
	mu.Lock()
	assert.Empty(t, fired, "removal must wait for the full grace period")
	mu.Unlock()

	clock.Advance(time.Second).MustWait(ctx)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, expiry{"1234", "p1", 3}, fired[0])
	assert.Empty(t, tracker.Pending())
}

func TestTracker_DefaultGrace(t *testing.T) {
	tracker := NewTracker(timer.NewTimerManager(quartz.NewMock(t)), 0, func(string, string, uint64) {})
	assert.Equal(t, DefaultGracePeriod, tracker.GracePeriod())
}

func TestSession_TouchFollowsClock(t *testing.T) {
	clock := quartz.NewMock(t)
	start := clock.Now()
	sess := NewSession("s", &MockConnection{}, clock)
	sess.Bind("1234", "p1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock.Advance(5 * time.Second).MustWait(ctx)
	sess.Touch()

	view := sess.View()
	assert.Equal(t, "p1", view.ParticipantID)
	assert.Equal(t, start.UnixMilli(), view.ConnectedAt)
	assert.Equal(t, start.Add(5*time.Second).UnixMilli(), view.LastActive)
}

func TestTracker_CancelAndReschedule(t *testing.T) {
	clock := quartz.NewMock(t)
	var (
		mu    sync.Mutex
		fired []uint64
	)
	tracker := NewTracker(timer.NewTimerManager(clock), 30*time.Second, func(_, _ string, epoch uint64) {
		mu.Lock()
		fired = append(fired, epoch)
		mu.Unlock()
	})

	tracker.ScheduleRemoval("1234", "p1", 1)
	tracker.ScheduleRemoval("1234", "p1", 2)
	assert.Equal(t, []string{"1234/p1/2"}, tracker.Pending(), "a newer drop replaces the older timer")
	assert.Equal(t, 1, tracker.Count())

	tracker.Cancel("1234", "p1")
	tracker.Cancel("1234", "p1")
	assert.Zero(t, tracker.Count())

	tracker.ScheduleRemoval("1234", "p2", 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock.Advance(30 * time.Second).MustWait(ctx)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, tracker.Count())
}
