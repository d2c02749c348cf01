package export

import (
	"fmt"
	"strings"

	"github.com/tubelearn/tubelearn-agent/internal/learn"
)

const untitled = "Untitled video"

// GenerateNotes renders Markdown study notes: one section per chunk with its
// time range, explanation (when present) and quoted transcript.
func GenerateNotes(title string, chunks []learn.Chunk) string {
	if strings.TrimSpace(title) == "" {
		title = untitled
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.TrimSpace(title))

	explained := 0
	for _, c := range chunks {
		if c.Explanation != "" {
			explained++
		}
	}
	fmt.Fprintf(&b, "_%d sections, %d explained._\n", len(chunks), explained)

	for _, c := range chunks {
		fmt.Fprintf(&b, "\n## %s\n\n", learn.FormatChunkTime(c))
		if c.Explanation != "" {
			b.WriteString(strings.TrimSpace(c.Explanation))
			b.WriteString("\n\n")
		}
		for _, line := range strings.Split(strings.TrimSpace(c.Text), "\n") {
			b.WriteString("> ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}
