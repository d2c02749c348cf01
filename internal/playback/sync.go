// Package playback maps media time onto transcript chunks and tracks which
// chunk is active (under the playhead) and which one the user is viewing.
package playback

import (
	"fmt"
	"sync"

	"github.com/tubelearn/tubelearn-agent/internal/learn"
)

// Locate returns the index of the chunk containing tMs, or -1 when tMs falls
// before the first chunk, after the last, or in a gap. Intervals are
// half-open except the last, which includes its end.
func Locate(chunks []learn.Chunk, tMs int64) int {
	last := len(chunks) - 1
	for i, c := range chunks {
		if tMs < c.StartTimeMs {
			return -1
		}
		if tMs < c.EndTimeMs || (i == last && tMs == c.EndTimeMs) {
			return i
		}
	}
	return -1
}

// State is a snapshot of the tracker.
type State struct {
	Active    int  `json:"active"`
	Viewing   int  `json:"viewing"`
	Following bool `json:"following"`
}

// Change reports what an update moved.
type Change struct {
	State
	ActiveChanged  bool
	ViewingChanged bool
}

// Tracker keeps the active and viewing chunk independently. Viewing follows
// active until Navigate moves it elsewhere; Follow resumes following.
type Tracker struct {
	mu        sync.Mutex
	chunks    []learn.Chunk
	active    int
	viewing   int
	following bool
}

// NewTracker starts in follow mode viewing the first chunk.
func NewTracker(chunks []learn.Chunk) *Tracker {
	t := &Tracker{chunks: chunks, active: -1, viewing: -1, following: true}
	if len(chunks) > 0 {
		t.viewing = 0
	}
	return t
}

func (t *Tracker) Len() int {
	return len(t.chunks)
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) stateLocked() State {
	return State{Active: t.active, Viewing: t.viewing, Following: t.following}
}

// Update re-evaluates the active chunk for tMs. While following, viewing moves
// with active; a gap leaves viewing on its last chunk.
func (t *Tracker) Update(tMs int64) Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	prevActive, prevViewing := t.active, t.viewing
	t.active = Locate(t.chunks, tMs)
	if t.following && t.active >= 0 {
		t.viewing = t.active
	}
	return t.changeLocked(prevActive, prevViewing)
}

// Navigate moves the viewing chunk to index. Navigating onto the active chunk
// resumes following.
func (t *Tracker) Navigate(index int) (Change, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.chunks) {
		return Change{State: t.stateLocked()}, fmt.Errorf("chunk index %d out of range [0, %d)", index, len(t.chunks))
	}
	prevActive, prevViewing := t.active, t.viewing
	t.viewing = index
	t.following = index == t.active
	return t.changeLocked(prevActive, prevViewing), nil
}

// Step navigates relative to the viewing chunk.
func (t *Tracker) Step(delta int) (Change, error) {
	t.mu.Lock()
	target := t.viewing + delta
	t.mu.Unlock()
	return t.Navigate(target)
}

// Follow jumps back to the active chunk and re-enables following.
func (t *Tracker) Follow() Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	prevActive, prevViewing := t.active, t.viewing
	t.following = true
	if t.active >= 0 {
		t.viewing = t.active
	}
	return t.changeLocked(prevActive, prevViewing)
}

func (t *Tracker) changeLocked(prevActive, prevViewing int) Change {
	return Change{
		State:          t.stateLocked(),
		ActiveChanged:  prevActive != t.active,
		ViewingChanged: prevViewing != t.viewing,
	}
}
