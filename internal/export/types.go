// Package export renders a video's chunks as downloadable study notes or
// subtitles.
package export

import (
	"fmt"

	"github.com/tubelearn/tubelearn-agent/internal/catalog"
	"github.com/tubelearn/tubelearn-agent/internal/learn"
	"github.com/tubelearn/tubelearn-agent/internal/transcript"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatSRT      Format = "srt"
)

// ParseFormat maps a query value to a Format. Empty means markdown.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatSRT:
		return FormatSRT, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f Format) Extension() string {
	if f == FormatSRT {
		return ".srt"
	}
	return ".md"
}

func (f Format) ContentType() string {
	if f == FormatSRT {
		return "application/x-subrip; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

// Render produces the document for chunks in format f.
func Render(f Format, title string, chunks []learn.Chunk) string {
	if f == FormatSRT {
		return GenerateSRT(chunks)
	}
	return GenerateNotes(title, chunks)
}

// ChunksFromCatalog rebuilds a stored video's chunks and attaches the
// explanations recorded for it.
func ChunksFromCatalog(v *catalog.Video, explanations []*catalog.Explanation, targetMs int64) ([]learn.Chunk, error) {
	if len(v.Transcript) == 0 {
		return nil, fmt.Errorf("video %s has no stored transcript", v.ID)
	}
	t, err := transcript.ParseJSON3(v.Transcript)
	if err != nil {
		return nil, fmt.Errorf("decode stored transcript: %w", err)
	}

	chunks := learn.BuildChunks(t, targetMs)
	for _, e := range explanations {
		if e.ChunkID < 0 || e.ChunkID >= len(chunks) {
			continue
		}
		// A different chunk duration yields different boundaries.
		if chunks[e.ChunkID].StartTimeMs != e.StartMs {
			continue
		}
		chunks[e.ChunkID].Explanation = e.Explanation
	}
	return chunks, nil
}
