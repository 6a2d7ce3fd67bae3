package room

import (
	"fmt"
	"time"

	"github.com/wfunc/poolroom/models"
)

const DefaultLogCapacity = 50

// LogEntry is one timestamped line of room history.
type LogEntry struct {
	At   time.Time
	Text string
}

func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.At.Format("15:04:05"), e.Text)
}

// EventLog is a fixed-capacity ring of log entries; the oldest entry is
// evicted first.
type EventLog struct {
	entries []LogEntry
	start   int
	size    int
}

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &EventLog{entries: make([]LogEntry, capacity)}
}

func (l *EventLog) Append(at time.Time, text string) {
	c := len(l.entries)
	idx := (l.start + l.size) % c
	l.entries[idx] = LogEntry{At: at, Text: text}
	if l.size < c {
		l.size++
		return
	}
	l.start = (l.start + 1) % c
}

func (l *EventLog) Len() int {
	return l.size
}

// Entries returns the log oldest first.
func (l *EventLog) Entries() []LogEntry {
	out := make([]LogEntry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.entries[(l.start+i)%len(l.entries)]
	}
	return out
}

func (l *EventLog) items() []models.LogItem {
	entries := l.Entries()
	items := make([]models.LogItem, len(entries))
	for i, e := range entries {
		items[i] = models.LogItem{Timestamp: e.At.UnixMilli(), Content: e.String()}
	}
	return items
}
