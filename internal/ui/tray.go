// Package ui runs the system tray menu.
package ui

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/tubelearn/tubelearn-agent/internal/session"
)

const refreshInterval = 2 * time.Second

// Sessions is what the tray reads and controls.
type Sessions interface {
	Current() (session.Snapshot, bool)
	End() bool
}

// PrefetchControl pauses and resumes lookahead generation.
type PrefetchControl interface {
	Pause()
	Resume()
	IsPaused() bool
}

type Tray struct {
	sessions Sessions
	prefetch PrefetchControl
	logger   *slog.Logger

	statusItem *systray.MenuItem
	videoItem  *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu   sync.Mutex
	stop chan struct{}

	onClearCache func()
	onQuit       func()
}

type TrayConfig struct {
	Sessions     Sessions
	Prefetch     PrefetchControl
	Logger       *slog.Logger
	OnClearCache func()
	OnQuit       func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		sessions:     cfg.Sessions,
		prefetch:     cfg.Prefetch,
		logger:       cfg.Logger,
		stop:         make(chan struct{}),
		onClearCache: cfg.OnClearCache,
		onQuit:       cfg.OnQuit,
	}
}

// Run blocks until the tray quits.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("TubeLearn")
	systray.SetTooltip("TubeLearn Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current session status")
	t.statusItem.Disable()

	t.videoItem = systray.AddMenuItem("No video", "Current video")
	t.videoItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem(pauseLabel(false), "Pause explanation prefetch")
	clearItem := systray.AddMenuItem("Clear Explanation Cache", "Drop memoized explanations")
	endItem := systray.AddMenuItem("End Session", "Stop following the current video")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit TubeLearn Agent")

	go t.refreshLoop()

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-clearItem.ClickedCh:
				if t.onClearCache != nil {
					t.onClearCache()
				}
				t.logger.Info("explanation cache cleared from tray")
			case <-endItem.ClickedCh:
				if t.sessions != nil && t.sessions.End() {
					t.logger.Info("session ended from tray")
				}
				t.refresh()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	close(t.stop)
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Tray) refresh() {
	if t.sessions == nil {
		return
	}
	snap, ok := t.sessions.Current()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle(statusLabel(snap, ok))
	t.videoItem.SetTitle(videoLabel(snap, ok))
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.prefetch == nil {
		return
	}

	if t.prefetch.IsPaused() {
		t.prefetch.Resume()
	} else {
		t.prefetch.Pause()
	}
	t.pauseItem.SetTitle(pauseLabel(t.prefetch.IsPaused()))
}

func (t *Tray) Quit() {
	systray.Quit()
}

func statusLabel(snap session.Snapshot, ok bool) string {
	if !ok {
		return "Status: Idle"
	}
	switch snap.State {
	case session.StateLoading:
		return "Status: Loading transcript"
	case session.StateFailed:
		return "Status: Failed"
	}
	explained := 0
	for _, c := range snap.Chunks {
		if c.Explanation != "" {
			explained++
		}
	}
	return fmt.Sprintf("Status: %d/%d explained", explained, len(snap.Chunks))
}

func videoLabel(snap session.Snapshot, ok bool) string {
	if !ok {
		return "No video"
	}
	title := snap.Metadata.Title
	if title == "" {
		title = snap.VideoID
	}
	if r := []rune(title); len(r) > 40 {
		title = string(r[:39]) + "…"
	}
	return title
}

func pauseLabel(paused bool) string {
	if paused {
		return "Resume Prefetch"
	}
	return "Pause Prefetch"
}
