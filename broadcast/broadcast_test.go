package broadcast

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/poolroom/network"
	"github.com/wfunc/poolroom/session"
)

// MockConnection records every packet it is asked to send.
type MockConnection struct {
	mu   sync.Mutex
	sent []uint16
	err  error
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msgID)
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func (m *MockConnection) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func setup(t *testing.T, ids ...string) (*session.Manager, map[string]*MockConnection) {
	t.Helper()
	manager := session.NewManager()
	conns := make(map[string]*MockConnection)
	for _, id := range ids {
		conn := &MockConnection{}
		conns[id] = conn
		manager.Add(session.NewSession(id, conn, nil))
	}
	return manager, conns
}

func TestRoomBroadcaster_BroadcastToRoom(t *testing.T) {
	manager, conns := setup(t, "s1", "s2", "s3")
	b := NewRoomBroadcaster(manager, nil)

	b.Subscribe("1111", "s1")
	b.Subscribe("1111", "s2")
	b.Subscribe("2222", "s3")

	require.NoError(t, b.BroadcastToRoom("1111", network.MsgTypeRoomState, []byte("{}")))
	assert.Equal(t, 1, conns["s1"].count())
	assert.Equal(t, 1, conns["s2"].count())
	assert.Equal(t, 0, conns["s3"].count())

	require.NoError(t, b.BroadcastToRoom("1111", network.MsgTypeRoomState, []byte("{}"), "s1"))
	assert.Equal(t, 1, conns["s1"].count())
	assert.Equal(t, 2, conns["s2"].count())
}

func TestRoomBroadcaster_Unsubscribe(t *testing.T) {
	manager, conns := setup(t, "s1")
	b := NewRoomBroadcaster(manager, nil)

	b.Subscribe("1111", "s1")
	b.Unsubscribe("1111", "s1")
	b.Unsubscribe("1111", "s1")

	require.NoError(t, b.BroadcastToRoom("1111", network.MsgTypeRoomState, nil))
	assert.Equal(t, 0, conns["s1"].count())
	assert.Empty(t, b.Subscribers("1111"))
}

func TestRoomBroadcaster_DropsOnFullQueue(t *testing.T) {
	manager, conns := setup(t, "s1", "s2")
	conns["s1"].err = network.ErrSendQueueFull

	var dropped []string
	b := NewRoomBroadcaster(manager, func(room, id string) { dropped = append(dropped, room+"/"+id) })
	b.Subscribe("1111", "s1")
	b.Subscribe("1111", "s2")

	require.NoError(t, b.BroadcastToRoom("1111", network.MsgTypeRoomEvent, nil))
	assert.Equal(t, []string{"1111/s1"}, dropped)
	assert.Equal(t, 1, conns["s2"].count(), "a slow subscriber must not block the others")
}

func TestRoomBroadcaster_SendToSession(t *testing.T) {
	manager, conns := setup(t, "s1")
	b := NewRoomBroadcaster(manager, nil)

	require.NoError(t, b.SendToSession("s1", network.MsgTypeRemoved, nil))
	assert.Equal(t, 1, conns["s1"].count())
	assert.ErrorIs(t, b.SendToSession("missing", network.MsgTypeRemoved, nil), ErrSessionNotFound)
}

func TestRoomBroadcaster_DropRoom(t *testing.T) {
	manager, _ := setup(t, "s1")
	b := NewRoomBroadcaster(manager, nil)
	b.Subscribe("1111", "s1")
	b.DropRoom("1111")
	assert.Empty(t, b.Subscribers("1111"))
}

func TestRoomBroadcaster_OversizedPayloadIsNotADrop(t *testing.T) {
	manager, conns := setup(t, "s1", "s2")
	conns["s1"].err = network.ErrPayloadTooLarge
	conns["s2"].err = network.ErrPayloadTooLarge

	var dropped []string
	b := NewRoomBroadcaster(manager, func(room, id string) { dropped = append(dropped, id) })
	b.Subscribe("1111", "s1")
	b.Subscribe("1111", "s2")

	err := b.BroadcastToRoom("1111", network.MsgTypeRoomState, nil)
	assert.ErrorIs(t, err, network.ErrPayloadTooLarge)
	assert.Empty(t, dropped)
	assert.ErrorIs(t, b.SendToSession("s1", network.MsgTypeRoomState, nil), network.ErrPayloadTooLarge)
	assert.Empty(t, dropped)
}
