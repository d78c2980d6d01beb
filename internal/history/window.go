// Package history keeps a bounded, time-ordered window of readings for one device.
package history

import (
	"sort"
	"time"

	"github.com/synheart/roomwatch/internal/models"
)

// Window retains readings whose timestamps lie within a trailing retention
// period of the newest reading. It is not safe for concurrent use; callers
// serialize access per device.
type Window struct {
	retention time.Duration
	entries   []models.Reading
	head      int
}

// NewWindow creates an empty window with the given retention
func NewWindow(retention time.Duration) *Window {
	return &Window{retention: retention}
}

// Retention returns the configured retention period
func (w *Window) Retention() time.Duration {
	return w.retention
}

// Append inserts r in timestamp order and evicts entries older than the
// retention period relative to the newest timestamp.
func (w *Window) Append(r models.Reading) {
	n := len(w.entries)
	if n == w.head || !r.Timestamp.Before(w.entries[n-1].Timestamp) {
		w.entries = append(w.entries, r)
	} else {
		// Late arrival: place it after every entry with a timestamp <= r.
		live := w.entries[w.head:]
		i := sort.Search(len(live), func(i int) bool {
			return live[i].Timestamp.After(r.Timestamp)
		})
		pos := w.head + i
		w.entries = append(w.entries, models.Reading{})
		copy(w.entries[pos+1:], w.entries[pos:])
		w.entries[pos] = r
	}
	w.evict()
}

func (w *Window) evict() {
	newest := w.entries[len(w.entries)-1].Timestamp
	horizon := newest.Add(-w.retention)
	for w.head < len(w.entries) && w.entries[w.head].Timestamp.Before(horizon) {
		w.entries[w.head] = models.Reading{}
		w.head++
	}

	if w.head > 0 && w.head >= len(w.entries)/2 {
		n := copy(w.entries, w.entries[w.head:])
		for i := n; i < len(w.entries); i++ {
			w.entries[i] = models.Reading{}
		}
		w.entries = w.entries[:n]
		w.head = 0
	}
}

// Len returns the number of retained readings
func (w *Window) Len() int {
	return len(w.entries) - w.head
}

// Latest returns the newest reading
func (w *Window) Latest() (models.Reading, bool) {
	if w.Len() == 0 {
		return models.Reading{}, false
	}
	return w.entries[len(w.entries)-1], true
}

// All returns every retained reading, oldest first
func (w *Window) All() []models.Reading {
	return clone(w.entries[w.head:])
}

// Window returns readings within d of the newest reading, oldest first
func (w *Window) Window(d time.Duration) []models.Reading {
	latest, ok := w.Latest()
	if !ok {
		return nil
	}
	return w.Since(latest.Timestamp.Add(-d))
}

// Since returns readings with timestamps at or after t, oldest first
func (w *Window) Since(t time.Time) []models.Reading {
	live := w.entries[w.head:]
	i := sort.Search(len(live), func(i int) bool {
		return !live[i].Timestamp.Before(t)
	})
	return clone(live[i:])
}

// Last returns up to n of the newest readings, oldest first
func (w *Window) Last(n int) []models.Reading {
	if n <= 0 {
		return nil
	}
	live := w.entries[w.head:]
	if n > len(live) {
		n = len(live)
	}
	return clone(live[len(live)-n:])
}

// LastMatching scans from newest to oldest and returns the first reading
// satisfying pred.
func (w *Window) LastMatching(pred func(models.Reading) bool) (models.Reading, bool) {
	for i := len(w.entries) - 1; i >= w.head; i-- {
		if pred(w.entries[i]) {
			return w.entries[i], true
		}
	}
	return models.Reading{}, false
}

func clone(readings []models.Reading) []models.Reading {
	if len(readings) == 0 {
		return nil
	}
	out := make([]models.Reading, len(readings))
	copy(out, readings)
	return out
}
