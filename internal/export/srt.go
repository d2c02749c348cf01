package export

import (
	"fmt"
	"strings"

	"github.com/tubelearn/tubelearn-agent/internal/learn"
)

// GenerateSRT renders one subtitle cue per chunk. Chunks without text are
// skipped and cues are renumbered.
func GenerateSRT(chunks []learn.Chunk) string {
	var lines []string
	n := 0
	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		n++
		lines = append(lines,
			fmt.Sprintf("%d", n),
			fmt.Sprintf("%s --> %s", msToTimestamp(c.StartTimeMs), msToTimestamp(c.EndTimeMs)),
			text,
			"",
		)
	}
	return strings.Join(lines, "\n")
}

func msToTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	millis := ms % 1000
	totalSeconds := ms / 1000
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
