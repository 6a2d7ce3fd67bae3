// broadcast/broadcast.go
package broadcast

import (
	"errors"
	"sync"

	"github.com/wfunc/poolroom/logger"
	"github.com/wfunc/poolroom/network"
	"github.com/wfunc/poolroom/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// 广播接口
type Broadcaster interface {
	Subscribe(roomCode, sessionID string)
	Unsubscribe(roomCode, sessionID string)
	BroadcastToRoom(roomCode string, msgID uint16, data []byte, exclude ...string) error
	SendToSession(sessionID string, msgID uint16, data []byte) error
	Subscribers(roomCode string) []string
	Rooms() []string
	DropRoom(roomCode string)
}

var _ Broadcaster = (*RoomBroadcaster)(nil)

// DropFunc is told about every message a full connection queue rejected.
type DropFunc func(roomCode, sessionID string)

// 基于房间的广播器.
//
// Delivery only enqueues on each session's connection; a slow client loses
// messages instead of stalling the room that is publishing.
type RoomBroadcaster struct {
	sessionManager *session.Manager
	subscribers    map[string]map[string]struct{} // roomCode -> sessionIDs
	mutex          sync.RWMutex
	onDrop         DropFunc
}

func NewRoomBroadcaster(sessionManager *session.Manager, onDrop DropFunc) *RoomBroadcaster {
	if onDrop == nil {
		onDrop = func(string, string) {}
	}
	return &RoomBroadcaster{
		sessionManager: sessionManager,
		subscribers:    make(map[string]map[string]struct{}),
		onDrop:         onDrop,
	}
}

func (b *RoomBroadcaster) Subscribe(roomCode, sessionID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subs, ok := b.subscribers[roomCode]
	if !ok {
		subs = make(map[string]struct{})
		b.subscribers[roomCode] = subs
	}
	subs[sessionID] = struct{}{}
}

func (b *RoomBroadcaster) Unsubscribe(roomCode, sessionID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if subs, ok := b.subscribers[roomCode]; ok {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(b.subscribers, roomCode)
		}
	}
}

// DropRoom forgets every subscriber of a deleted room.
func (b *RoomBroadcaster) DropRoom(roomCode string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.subscribers, roomCode)
}

// Rooms lists the codes that have at least one subscriber.
func (b *RoomBroadcaster) Rooms() []string {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	codes := make([]string, 0, len(b.subscribers))
	for code := range b.subscribers {
		codes = append(codes, code)
	}
	return codes
}

// Subscribers returns the session ids attached to roomCode.
func (b *RoomBroadcaster) Subscribers(roomCode string) []string {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	ids := make([]string, 0, len(b.subscribers[roomCode]))
	for id := range b.subscribers[roomCode] {
		ids = append(ids, id)
	}
	return ids
}

func (b *RoomBroadcaster) BroadcastToRoom(roomCode string, msgID uint16, data []byte, exclude ...string) error {
	for _, id := range b.Subscribers(roomCode) {
		if contains(exclude, id) {
			continue
		}
		s, ok := b.sessionManager.Get(id)
		if !ok {
			continue
		}
		if err := s.Send(msgID, data); err != nil {
			if errors.Is(err, network.ErrPayloadTooLarge) {
				// Same payload for every subscriber.
				logger.Log.Errorf("Message %d for room %s exceeds the frame limit (%d bytes)", msgID, roomCode, len(data))
				return err
			}
			logger.Log.Warnf("Dropped message %d for session %s in room %s: %v", msgID, id, roomCode, err)
			b.onDrop(roomCode, id)
		}
	}
	return nil
}

func (b *RoomBroadcaster) SendToSession(sessionID string, msgID uint16, data []byte) error {
	s, ok := b.sessionManager.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if err := s.Send(msgID, data); err != nil {
		if errors.Is(err, network.ErrPayloadTooLarge) {
			logger.Log.Errorf("Message %d for session %s exceeds the frame limit (%d bytes)", msgID, sessionID, len(data))
		} else {
			b.onDrop("", sessionID)
		}
		return err
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
