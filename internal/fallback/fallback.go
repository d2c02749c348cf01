// Package fallback fetches a video's native captions without the remote job
// service. A fetch is a single attempt with no retry.
package fallback

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tubelearn/tubelearn-agent/internal/transcript"
)

const (
	DefaultBaseURL  = "https://www.youtube.com"
	DefaultLanguage = "en"

	ModeWatchPage = "watchpage"
	ModeYtdlp     = "ytdlp"
)

// Fetcher returns the native captions for videoID, or a
// *transcript.NotFoundError when the video has none.
type Fetcher interface {
	FetchBestEffort(ctx context.Context, videoID string) (transcript.RawTranscript, error)
}

// WatchURL builds the public watch page URL for videoID.
func WatchURL(baseURL, videoID string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/") + "/watch?v=" + url.QueryEscape(videoID)
}

func validateID(videoID string) error {
	if strings.TrimSpace(videoID) == "" {
		return fmt.Errorf("video id is required")
	}
	return nil
}
