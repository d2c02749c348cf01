package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tubelearn/tubelearn-agent/internal/logging"
	"github.com/tubelearn/tubelearn-agent/internal/transcript"
)

const maxPageBytes = 8 << 20

var captionTracksKey = []byte(`"captionTracks":`)

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// WatchPage scrapes caption tracks from the watch page's embedded player data
// and downloads the timed-text XML of the preferred track.
type WatchPage struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

type WatchPageConfig struct {
	BaseURL    string
	Language   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewWatchPage(cfg WatchPageConfig) *WatchPage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &WatchPage{
		baseURL:    cfg.BaseURL,
		language:   cfg.Language,
		httpClient: cfg.HTTPClient,
		logger:     logging.WithComponent(logger, "fallback"),
	}
}

func (w *WatchPage) FetchBestEffort(ctx context.Context, videoID string) (transcript.RawTranscript, error) {
	if err := validateID(videoID); err != nil {
		return transcript.RawTranscript{}, err
	}

	pageURL := WatchURL(w.baseURL, videoID)
	page, err := w.get(ctx, pageURL)
	if err != nil {
		return transcript.RawTranscript{}, fmt.Errorf("fetch watch page: %w", err)
	}

	tracks, err := extractCaptionTracks(page)
	if err != nil {
		return transcript.RawTranscript{}, &transcript.NotFoundError{VideoID: videoID, Reason: err.Error()}
	}

	track := pickTrack(tracks, w.language)
	trackURL, err := resolve(pageURL, track.BaseURL)
	if err != nil {
		return transcript.RawTranscript{}, fmt.Errorf("caption track url: %w", err)
	}

	logging.WithVideoID(w.logger, videoID).Info("fetching native captions",
		"language", track.LanguageCode,
		"kind", track.Kind,
	)

	body, err := w.get(ctx, trackURL)
	if err != nil {
		return transcript.RawTranscript{}, fmt.Errorf("fetch caption track: %w", err)
	}

	tr, err := ParseTimedText(body)
	if err != nil {
		return transcript.RawTranscript{}, err
	}
	if tr.IsEmpty() {
		return transcript.RawTranscript{}, &transcript.NotFoundError{VideoID: videoID, Reason: "caption track is empty"}
	}
	return tr, nil
}

func (w *WatchPage) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", w.language)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: HTTP %d", u, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// extractCaptionTracks decodes the first captionTracks array in the page.
func extractCaptionTracks(page []byte) ([]captionTrack, error) {
	i := bytes.Index(page, captionTracksKey)
	if i < 0 {
		return nil, fmt.Errorf("watch page lists no caption tracks")
	}

	var tracks []captionTrack
	dec := json.NewDecoder(bytes.NewReader(page[i+len(captionTracksKey):]))
	if err := dec.Decode(&tracks); err != nil {
		return nil, fmt.Errorf("decode caption tracks: %w", err)
	}

	usable := tracks[:0]
	for _, t := range tracks {
		if t.BaseURL != "" {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("watch page lists no caption tracks")
	}
	return usable, nil
}

// pickTrack prefers a manual track in lang, then any track in lang, then the
// first track.
func pickTrack(tracks []captionTrack, lang string) captionTrack {
	var auto *captionTrack
	for i, t := range tracks {
		if !strings.EqualFold(t.LanguageCode, lang) {
			continue
		}
		if t.Kind != "asr" {
			return t
		}
		if auto == nil {
			auto = &tracks[i]
		}
	}
	if auto != nil {
		return *auto
	}
	return tracks[0]
}

func resolve(pageURL, ref string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(r).String(), nil
}

type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

// ParseTimedText converts <transcript><text start dur> XML into events. Times
// are seconds in the XML and milliseconds in the result.
func ParseTimedText(data []byte) (transcript.RawTranscript, error) {
	var tt timedText
	if err := xml.Unmarshal(data, &tt); err != nil {
		return transcript.RawTranscript{}, fmt.Errorf("decode timed text: %w", err)
	}

	tr := transcript.RawTranscript{Events: make([]transcript.Event, 0, len(tt.Texts))}
	for _, t := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(t.Body))
		if text == "" {
			continue
		}
		tr.Events = append(tr.Events, transcript.Event{
			StartOffsetMs: secondsToMs(t.Start),
			DurationMs:    secondsToMs(t.Dur),
			Segments:      []transcript.Segment{{Text: text}},
		})
	}
	return tr, nil
}

func secondsToMs(s string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(f*1000 + 0.5)
}
