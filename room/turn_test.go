package room

import (
	"testing"
	"time"
)

func TestNextActive(t *testing.T) {
	tests := []struct {
		name   string
		packed []bool
		from   int
		want   int
	}{
		{"simple advance", []bool{false, false, false}, 0, 1},
		{"wraps around", []bool{false, false, false}, 2, 0},
		{"skips packed", []bool{false, true, false}, 0, 2},
		{"skips several and wraps", []bool{false, true, true, true}, 0, 0},
		{"lands on self when only active", []bool{true, false, true}, 1, 1},
		{"all packed leaves index", []bool{true, true, true}, 1, 1},
		{"empty", nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextActive(tt.packed, tt.from); got != tt.want {
				t.Errorf("NextActive(%v, %d) = %d, want %d", tt.packed, tt.from, got, tt.want)
			}
		})
	}
}

func TestEventLog_EvictsOldest(t *testing.T) {
	log := NewEventLog(3)
	for i := 0; i < 5; i++ {
		log.Append(timeAt(i), string(rune('a'+i)))
	}

	entries := log.Entries()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"c", "d", "e"} {
		if entries[i].Text != want {
			t.Errorf("entry %d = %q, want %q", i, entries[i].Text, want)
		}
	}
}

func timeAt(sec int) time.Time {
	return time.Date(2025, 1, 1, 12, 0, sec, 0, time.UTC)
}
