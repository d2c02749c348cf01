package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lrstanley/go-ytdlp"

	"github.com/tubelearn/tubelearn-agent/internal/logging"
	"github.com/tubelearn/tubelearn-agent/internal/transcript"
)

// downloadFunc writes subtitle files for videoURL into dir.
type downloadFunc func(ctx context.Context, dir, videoURL, lang string) error

// Ytdlp asks yt-dlp for manual or automatic json3 subtitles without
// downloading the media.
type Ytdlp struct {
	baseURL  string
	language string
	workDir  string
	logger   *slog.Logger
	download downloadFunc

	installOnce sync.Once
	installErr  error
	install     func(ctx context.Context) error
}

type YtdlpConfig struct {
	BaseURL  string
	Language string
	// WorkDir holds per-fetch temp directories; empty uses the OS temp dir.
	WorkDir string
	Logger  *slog.Logger
}

func NewYtdlp(cfg YtdlpConfig) *Ytdlp {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Ytdlp{
		baseURL:  cfg.BaseURL,
		language: cfg.Language,
		workDir:  cfg.WorkDir,
		logger:   logging.WithComponent(logger, "fallback"),
		download: runYtdlp,
		install: func(ctx context.Context) error {
			_, err := ytdlp.Install(ctx, nil)
			return err
		},
	}
}

func runYtdlp(ctx context.Context, dir, videoURL, lang string) error {
	_, err := ytdlp.New().
		SkipDownload().
		WriteSubs().
		WriteAutoSubs().
		SubLangs(lang).
		SubFormat("json3").
		Output(filepath.Join(dir, "%(id)s.%(ext)s")).
		Run(ctx, videoURL)
	return err
}

func (y *Ytdlp) FetchBestEffort(ctx context.Context, videoID string) (transcript.RawTranscript, error) {
	if err := validateID(videoID); err != nil {
		return transcript.RawTranscript{}, err
	}

	y.installOnce.Do(func() { y.installErr = y.install(ctx) })
	if y.installErr != nil {
		return transcript.RawTranscript{}, fmt.Errorf("install yt-dlp: %w", y.installErr)
	}

	dir, err := os.MkdirTemp(y.workDir, "subs-*")
	if err != nil {
		return transcript.RawTranscript{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	logging.WithVideoID(y.logger, videoID).Info("fetching captions with yt-dlp", "language", y.language)

	if err := y.download(ctx, dir, WatchURL(y.baseURL, videoID), y.language); err != nil {
		return transcript.RawTranscript{}, fmt.Errorf("yt-dlp: %w", err)
	}

	path, err := findSubtitleFile(dir, y.language)
	if err != nil {
		return transcript.RawTranscript{}, &transcript.NotFoundError{VideoID: videoID, Reason: err.Error()}
	}

	f, err := os.Open(path)
	if err != nil {
		return transcript.RawTranscript{}, err
	}
	defer f.Close()

	tr, err := transcript.DecodeJSON3(f)
	if err != nil {
		return transcript.RawTranscript{}, err
	}
	if tr.IsEmpty() {
		return transcript.RawTranscript{}, &transcript.NotFoundError{VideoID: videoID, Reason: "subtitle file is empty"}
	}
	return tr, nil
}

// findSubtitleFile picks <id>.<lang>.json3 when present, else the first
// json3 file written.
func findSubtitleFile(dir, lang string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json3"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp wrote no subtitles")
	}
	sort.Strings(matches)
	suffix := "." + lang + ".json3"
	for _, m := range matches {
		if strings.HasSuffix(m, suffix) {
			return m, nil
		}
	}
	return matches[0], nil
}
