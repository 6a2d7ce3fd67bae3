package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/poolroom/logger"
	"github.com/wfunc/poolroom/timer"
)

const DefaultGracePeriod = 30 * time.Second

// ExpireFunc is called when a dropped participant's grace period ends. The
// epoch identifies the connection that dropped; the callee must compare it
// against the participant before removing anything.
type ExpireFunc func(roomCode, participantID string, epoch uint64)

type pendingRemoval struct {
	timerID int64
	epoch   uint64
}

// Tracker defers the removal of participants whose connection dropped.
// A timer that fires after a reconnect finds a newer epoch and does
// nothing, so Cancel only keeps the pending set tidy.
type Tracker struct {
	timers   *timer.TimerManager
	grace    time.Duration
	onExpire ExpireFunc
	pending  map[string]pendingRemoval // code/pid -> timer
	mutex    sync.Mutex
}

func NewTracker(timers *timer.TimerManager, grace time.Duration, onExpire ExpireFunc) *Tracker {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Tracker{
		timers:   timers,
		grace:    grace,
		onExpire: onExpire,
		pending:  make(map[string]pendingRemoval),
	}
}

func slotKey(roomCode, participantID string) string {
	return roomCode + "/" + participantID
}

func removalKey(roomCode, participantID string, epoch uint64) string {
	return fmt.Sprintf("%s/%s/%d", roomCode, participantID, epoch)
}

// ScheduleRemoval starts the grace timer for a participant that dropped at
// the given connection epoch. An older timer for the same participant is
// replaced.
func (t *Tracker) ScheduleRemoval(roomCode, participantID string, epoch uint64) {
	slot := slotKey(roomCode, participantID)
	key := removalKey(roomCode, participantID, epoch)

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if old, ok := t.pending[slot]; ok {
		t.timers.RemoveTimer(old.timerID)
	}
	id := t.timers.AddTimer(key, t.grace, func() {
		t.mutex.Lock()
		if p, ok := t.pending[slot]; ok && p.epoch == epoch {
			delete(t.pending, slot)
		}
		t.mutex.Unlock()

		logger.Log.Debugf("Grace period over for %s", key)
		t.onExpire(roomCode, participantID, epoch)
	})
	t.pending[slot] = pendingRemoval{timerID: id, epoch: epoch}
	logger.Log.Infof("Participant %s dropped from room %s, removal in %s", participantID, roomCode, t.grace)
}

// Cancel drops the pending removal of a participant, if any.
func (t *Tracker) Cancel(roomCode, participantID string) {
	slot := slotKey(roomCode, participantID)

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if p, ok := t.pending[slot]; ok {
		t.timers.RemoveTimer(p.timerID)
		delete(t.pending, slot)
	}
}

// Pending lists the keys of removals that have not fired yet.
func (t *Tracker) Pending() []string {
	return t.timers.Pending()
}

// Count is the number of removals that have not fired yet.
func (t *Tracker) Count() int {
	return t.timers.Len()
}

func (t *Tracker) GracePeriod() time.Duration {
	return t.grace
}

// Stop drops every pending removal.
func (t *Tracker) Stop() {
	t.timers.Stop()

	t.mutex.Lock()
	t.pending = make(map[string]pendingRemoval)
	t.mutex.Unlock()
}
