// Package learn partitions a transcript into fixed-duration chunks, the
// units the explainer works on.
package learn

import (
	"fmt"
	"strings"

	"github.com/tubelearn/tubelearn-agent/internal/transcript"
)

const DefaultTargetDurationMs int64 = 45000

// Chunk is a span of transcript text with time bounds. Only Explanation and
// Error change after BuildChunks returns.
type Chunk struct {
	ID          string `json:"id"`
	Index       int    `json:"index"`
	Text        string `json:"text"`
	StartTimeMs int64  `json:"start_time_ms"`
	EndTimeMs   int64  `json:"end_time_ms"`
	Explanation string `json:"explanation,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ChunkID is the stable id of the chunk at index.
func ChunkID(index int) string {
	return fmt.Sprintf("chunk-%d", index)
}

// BuildChunks closes the open chunk as soon as a segment starts at least
// targetMs after the chunk's first segment. The last chunk ends at its last
// segment's start plus that event's duration.
func BuildChunks(t transcript.RawTranscript, targetMs int64) []Chunk {
	if targetMs <= 0 {
		targetMs = DefaultTargetDurationMs
	}

	chunks := []Chunk{}
	var (
		open       bool
		start      int64
		parts      []string
		lastStart  int64
		lastEvtDur int64
	)

	closeChunk := func(end int64) {
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:          ChunkID(idx),
			Index:       idx,
			Text:        strings.Join(parts, " "),
			StartTimeMs: start,
			EndTimeMs:   end,
		})
		parts = nil
		open = false
	}

	for _, ev := range t.Events {
		for _, seg := range ev.Segments {
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			segStart := ev.StartOffsetMs + seg.OffsetWithinEventMs

			if open && segStart-start >= targetMs {
				closeChunk(segStart)
			}
			if !open {
				open = true
				start = segStart
			}
			parts = append(parts, text)
			lastStart = segStart
			lastEvtDur = ev.DurationMs
		}
	}

	if open {
		if lastEvtDur <= 0 {
			lastEvtDur = transcript.DefaultEventDurationMs
		}
		end := lastStart + lastEvtDur
		if end < start {
			end = start
		}
		closeChunk(end)
	}
	return chunks
}

// FormatChunkTime renders the chunk bounds as "m:ss - m:ss".
func FormatChunkTime(c Chunk) string {
	return formatClock(c.StartTimeMs) + " - " + formatClock(c.EndTimeMs)
}

func formatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	sec := ms / 1000
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}
