// timer/timer.go
package timer

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// TimerTask is a pending one-shot callback.
type TimerTask struct {
	Id       int64
	Key      string
	Execute  time.Time
	Callback func()
	timer    *quartz.Timer
}

// TimerManager schedules keyed one-shot callbacks on a quartz clock, so
// tests can drive time with quartz.NewMock.
type TimerManager struct {
	clock   quartz.Clock
	tasks   map[int64]*TimerTask
	mutex   sync.Mutex
	nextId  int64
	stopped bool
}

func NewTimerManager(clock quartz.Clock) *TimerManager {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &TimerManager{
		clock:  clock,
		tasks:  make(map[int64]*TimerTask),
		nextId: 1,
	}
}

// AddTimer runs callback once after delay and returns the task id. It
// returns 0 and schedules nothing after Stop.
func (m *TimerManager) AddTimer(key string, delay time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.stopped {
		return 0
	}

	task := &TimerTask{
		Id:       m.nextId,
		Key:      key,
		Execute:  m.clock.Now().Add(delay),
		Callback: callback,
	}
	m.nextId++

	id := task.Id
	task.timer = m.clock.AfterFunc(delay, func() {
		if m.take(id) {
			callback()
		}
	}, "timer", key)
	m.tasks[id] = task
	return id
}

// take removes a task that is about to fire. It reports false if the task
// was cancelled in the meantime.
func (m *TimerManager) take(id int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return false
	}
	delete(m.tasks, id)
	return true
}

// RemoveTimer cancels a pending task. Unknown ids are ignored.
func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if task, ok := m.tasks[timerId]; ok {
		task.timer.Stop()
		delete(m.tasks, timerId)
	}
}

// Pending returns the keys of tasks that have not fired yet.
func (m *TimerManager) Pending() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	keys := make([]string, 0, len(m.tasks))
	for _, task := range m.tasks {
		keys = append(keys, task.Key)
	}
	return keys
}

func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}

// Stop cancels every pending task and refuses new ones.
func (m *TimerManager) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.stopped = true
	for id, task := range m.tasks {
		task.timer.Stop()
		delete(m.tasks, id)
	}
}
