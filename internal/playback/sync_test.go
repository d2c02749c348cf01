package playback

import (
	"testing"

	"github.com/tubelearn/tubelearn-agent/internal/learn"
)

func chunks(bounds ...[2]int64) []learn.Chunk {
	out := make([]learn.Chunk, len(bounds))
	for i, b := range bounds {
		out[i] = learn.Chunk{ID: learn.ChunkID(i), Index: i, StartTimeMs: b[0], EndTimeMs: b[1]}
	}
	return out
}

func TestLocate(t *testing.T) {
	cs := chunks([2]int64{1000, 45000}, [2]int64{45000, 90000}, [2]int64{95000, 120000})

	tests := []struct {
		t    int64
		want int
	}{
		{0, -1},
		{999, -1},
		{1000, 0},
		{44999, 0},
		{45000, 1},
		{89999, 1},
		{90000, -1},
		{94999, -1},
		{95000, 2},
		{120000, 2},
		{120001, -1},
	}
	for _, tt := range tests {
		if got := Locate(cs, tt.t); got != tt.want {
			t.Errorf("Locate(%d) = %d, want %d", tt.t, got, tt.want)
		}
	}

	if got := Locate(nil, 10); got != -1 {
		t.Errorf("Locate(nil) = %d", got)
	}
}

func TestLocate_AtMostOneMatch(t *testing.T) {
	cs := chunks([2]int64{0, 45000}, [2]int64{45000, 90000}, [2]int64{90000, 135000}, [2]int64{135000, 140000})

	for tm := int64(-10); tm <= 141000; tm += 250 {
		matches := 0
		for i, c := range cs {
			last := i == len(cs)-1
			if tm >= c.StartTimeMs && (tm < c.EndTimeMs || (last && tm == c.EndTimeMs)) {
				matches++
			}
		}
		if matches > 1 {
			t.Fatalf("time %d matched %d chunks", tm, matches)
		}
		idx := Locate(cs, tm)
		if (idx >= 0) != (matches == 1) {
			t.Fatalf("Locate(%d) = %d, matches = %d", tm, idx, matches)
		}
	}
}

func TestTracker_FollowsActive(t *testing.T) {
	tr := NewTracker(chunks([2]int64{0, 45000}, [2]int64{45000, 90000}, [2]int64{90000, 95000}))

	if s := tr.State(); s.Viewing != 0 || s.Active != -1 || !s.Following {
		t.Fatalf("initial state = %+v", s)
	}

	ch := tr.Update(1000)
	if ch.Active != 0 || !ch.ActiveChanged || ch.ViewingChanged {
		t.Errorf("Update(1000) = %+v", ch)
	}

	ch = tr.Update(50000)
	if ch.Active != 1 || ch.Viewing != 1 || !ch.ViewingChanged {
		t.Errorf("Update(50000) = %+v", ch)
	}

	ch = tr.Update(50500)
	if ch.ActiveChanged || ch.ViewingChanged {
		t.Errorf("no-op update reported change: %+v", ch)
	}
}

func TestTracker_NavigateStopsFollowing(t *testing.T) {
	tr := NewTracker(chunks([2]int64{0, 45000}, [2]int64{45000, 90000}, [2]int64{90000, 135000}))
	tr.Update(10000)

	ch, err := tr.Navigate(2)
	if err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if ch.Viewing != 2 || ch.Following {
		t.Errorf("after Navigate(2) = %+v", ch)
	}

	ch = tr.Update(60000)
	if ch.Active != 1 || ch.Viewing != 2 || ch.ViewingChanged {
		t.Errorf("viewing should stay put while not following: %+v", ch)
	}

	ch = tr.Follow()
	if ch.Viewing != 1 || !ch.Following || !ch.ViewingChanged {
		t.Errorf("after Follow() = %+v", ch)
	}

	ch = tr.Update(100000)
	if ch.Viewing != 2 {
		t.Errorf("following resumed, viewing = %d, want 2", ch.Viewing)
	}
}

func TestTracker_NavigateOntoActiveResumesFollowing(t *testing.T) {
	tr := NewTracker(chunks([2]int64{0, 45000}, [2]int64{45000, 90000}))
	tr.Update(100)
	tr.Navigate(1)

	ch, _ := tr.Step(-1)
	if ch.Viewing != 0 || !ch.Following {
		t.Errorf("Step back onto active = %+v", ch)
	}
}

func TestTracker_GapKeepsViewing(t *testing.T) {
	tr := NewTracker(chunks([2]int64{0, 45000}, [2]int64{50000, 90000}))
	tr.Update(30000)

	ch := tr.Update(47000)
	if ch.Active != -1 || ch.Viewing != 0 || ch.ViewingChanged {
		t.Errorf("gap update = %+v", ch)
	}
}

func TestTracker_NavigateOutOfRange(t *testing.T) {
	tr := NewTracker(chunks([2]int64{0, 45000}))

	if _, err := tr.Navigate(1); err == nil {
		t.Error("Navigate(1) should fail")
	}
	if _, err := tr.Step(-1); err == nil {
		t.Error("Step(-1) from first chunk should fail")
	}
	if s := tr.State(); s.Viewing != 0 || !s.Following {
		t.Errorf("failed navigation changed state: %+v", s)
	}

	empty := NewTracker(nil)
	if s := empty.State(); s.Viewing != -1 {
		t.Errorf("empty tracker viewing = %d", s.Viewing)
	}
}
