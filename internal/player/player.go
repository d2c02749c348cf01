// Package player models the host page's media element. The agent cannot touch
// the element directly: the overlay reports its state and receives queued
// commands in return.
package player

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Element is the subset of a media element the pipeline drives.
type Element interface {
	CurrentTimeMs() int64
	SetCurrentTime(ms int64)
	Paused() bool
	Pause()
	Play()
}

type CommandType string

const (
	CommandPause CommandType = "pause"
	CommandPlay  CommandType = "play"
	CommandSeek  CommandType = "seek"
)

// Command is a pending write for the overlay to apply to the element.
type Command struct {
	Type       CommandType `json:"type"`
	PositionMs int64       `json:"position_ms,omitempty"`
}

// Report is one state sample sent by the overlay.
type Report struct {
	PositionMs   int64   `json:"position_ms"`
	Paused       bool    `json:"paused"`
	PlaybackRate float64 `json:"playback_rate,omitempty"`
}

// Remote implements Element from overlay reports. Between reports a playing
// element's position is extrapolated from the last report.
type Remote struct {
	clock clock.Clock

	mu         sync.Mutex
	positionMs int64
	paused     bool
	rate       float64
	reportedAt time.Time
	reported   bool
	queue      []Command
}

func NewRemote(clk clock.Clock) *Remote {
	if clk == nil {
		clk = clock.New()
	}
	return &Remote{clock: clk, paused: true, rate: 1}
}

// Apply records a report and returns the commands queued since the last one.
func (r *Remote) Apply(rep Report) []Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.positionMs = rep.PositionMs
	r.paused = rep.Paused
	r.rate = rep.PlaybackRate
	if r.rate <= 0 {
		r.rate = 1
	}
	r.reportedAt = r.clock.Now()
	r.reported = true

	// Commands queued after the element produced this sample still apply.
	r.applyQueuedLocked()

	out := r.queue
	r.queue = nil
	return out
}

func (r *Remote) applyQueuedLocked() {
	for _, c := range r.queue {
		switch c.Type {
		case CommandPause:
			r.paused = true
		case CommandPlay:
			r.paused = false
		case CommandSeek:
			r.positionMs = c.PositionMs
		}
	}
}

// Reported is false until the overlay has sent its first report.
func (r *Remote) Reported() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reported
}

// Pending returns a copy of the queued commands.
func (r *Remote) Pending() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.queue...)
}

func (r *Remote) CurrentTimeMs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked()
}

func (r *Remote) currentLocked() int64 {
	if r.paused || r.reportedAt.IsZero() {
		return r.positionMs
	}
	elapsed := r.clock.Since(r.reportedAt)
	return r.positionMs + int64(float64(elapsed.Milliseconds())*r.rate)
}

func (r *Remote) SetCurrentTime(ms int64) {
	if ms < 0 {
		ms = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positionMs = ms
	r.reportedAt = r.clock.Now()
	r.enqueueLocked(Command{Type: CommandSeek, PositionMs: ms})
}

func (r *Remote) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

func (r *Remote) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positionMs = r.currentLocked()
	r.reportedAt = r.clock.Now()
	r.paused = true
	r.enqueueLocked(Command{Type: CommandPause})
}

func (r *Remote) Play() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reportedAt = r.clock.Now()
	r.paused = false
	r.enqueueLocked(Command{Type: CommandPlay})
}

// enqueueLocked collapses consecutive pause/play toggles and repeated seeks so
// the overlay only sees the latest intent.
func (r *Remote) enqueueLocked(c Command) {
	if n := len(r.queue); n > 0 {
		last := r.queue[n-1]
		toggle := func(t CommandType) bool { return t == CommandPause || t == CommandPlay }
		if (toggle(last.Type) && toggle(c.Type)) || (last.Type == CommandSeek && c.Type == CommandSeek) {
			r.queue[n-1] = c
			return
		}
	}
	r.queue = append(r.queue, c)
}
