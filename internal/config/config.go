// Package config provides configuration management for the TubeLearn Agent.
// Values are layered: defaults, then an optional YAML file, then environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultDataDir  = ".tubelearn"

	DefaultJobPushURL      = "https://mango.sievedata.com/v2/push"
	DefaultJobsURL         = "https://mango.sievedata.com/v2/jobs"
	DefaultJobFunction     = "sieve/youtube-downloader"
	DefaultJobPollInterval = time.Second
	DefaultJobMaxPolls     = 120
	DefaultRetryAttempts   = 2
	DefaultRetryBackoff    = 2 * time.Second

	DefaultChunkDuration     = 45 * time.Second
	DefaultPrefetchLookahead = 3
	DefaultPrefetchStagger   = time.Second
	DefaultSampleInterval    = 500 * time.Millisecond
	DefaultCacheSize         = 1024
	DefaultGenerationTimeout = 60 * time.Second

	DefaultOpenAIModel  = "gpt-3.5-turbo"
	DefaultFallbackMode = FallbackWatchPage
	DefaultWatchBaseURL = "https://www.youtube.com"

	FallbackWatchPage = "watchpage"
	FallbackYtdlp     = "ytdlp"

	// Environment variable names
	EnvConfigFile        = "TUBELEARN_CONFIG_FILE"
	EnvPort              = "TUBELEARN_PORT"
	EnvLogLevel          = "TUBELEARN_LOG_LEVEL"
	EnvDataDir           = "TUBELEARN_DATA_DIR"
	EnvHeadless          = "TUBELEARN_HEADLESS"
	EnvJobPushURL        = "TUBELEARN_JOB_PUSH_URL"
	EnvJobsURL           = "TUBELEARN_JOBS_URL"
	EnvJobFunction       = "TUBELEARN_JOB_FUNCTION"
	EnvSubtitleLanguages = "TUBELEARN_SUBTITLE_LANGUAGES"
	EnvJobPollInterval   = "TUBELEARN_JOB_POLL_INTERVAL"
	EnvJobMaxPolls       = "TUBELEARN_JOB_MAX_POLLS"
	EnvJobMetadata       = "TUBELEARN_JOB_METADATA"
	EnvRetryAttempts     = "TUBELEARN_RETRY_ATTEMPTS"
	EnvRetryBackoff      = "TUBELEARN_RETRY_BACKOFF"
	EnvChunkDuration     = "TUBELEARN_CHUNK_DURATION"
	EnvPrefetchLookahead = "TUBELEARN_PREFETCH_LOOKAHEAD"
	EnvPrefetchStagger   = "TUBELEARN_PREFETCH_STAGGER"
	EnvSampleInterval    = "TUBELEARN_SAMPLE_INTERVAL"
	EnvCacheSize         = "TUBELEARN_CACHE_SIZE"
	EnvGenerationTimeout = "TUBELEARN_GENERATION_TIMEOUT"
	EnvOpenAIBaseURL     = "TUBELEARN_OPENAI_BASE_URL"
	EnvOpenAIModel       = "TUBELEARN_OPENAI_MODEL"
	EnvFallbackMode      = "TUBELEARN_FALLBACK_MODE"
	EnvWatchBaseURL      = "TUBELEARN_WATCH_BASE_URL"

	// Database filename
	DBFilename = "tubelearn.db"

	// ConfigFilename is looked up in the data dir when EnvConfigFile is unset.
	ConfigFilename = "config.yaml"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	Headless() bool

	JobPushURL() string
	JobsURL() string
	JobFunction() string
	SubtitleLanguages() []string
	JobPollInterval() time.Duration
	JobMaxPolls() int
	JobMetadata() bool
	RetryAttempts() int
	RetryBackoff() time.Duration

	ChunkDuration() time.Duration
	PrefetchLookahead() int
	PrefetchStagger() time.Duration
	SampleInterval() time.Duration
	CacheSize() int
	GenerationTimeout() time.Duration

	OpenAIBaseURL() string
	OpenAIModel() string
	FallbackMode() string
	WatchBaseURL() string
}

// fileConfig mirrors the YAML file. Empty fields leave the default alone.
type fileConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	Headless *bool  `yaml:"headless"`

	Jobs struct {
		PushURL           string   `yaml:"push_url"`
		JobsURL           string   `yaml:"jobs_url"`
		Function          string   `yaml:"function"`
		SubtitleLanguages []string `yaml:"subtitle_languages"`
		PollInterval      string   `yaml:"poll_interval"`
		MaxPolls          int      `yaml:"max_polls"`
		Metadata          *bool    `yaml:"metadata"`
		RetryAttempts     *int     `yaml:"retry_attempts"`
		RetryBackoff      string   `yaml:"retry_backoff"`
	} `yaml:"jobs"`

	Learning struct {
		ChunkDuration     string `yaml:"chunk_duration"`
		PrefetchLookahead int    `yaml:"prefetch_lookahead"`
		PrefetchStagger   string `yaml:"prefetch_stagger"`
		SampleInterval    string `yaml:"sample_interval"`
		CacheSize         int    `yaml:"cache_size"`
		GenerationTimeout string `yaml:"generation_timeout"`
	} `yaml:"learning"`

	OpenAI struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"openai"`

	Fallback struct {
		Mode         string `yaml:"mode"`
		WatchBaseURL string `yaml:"watch_base_url"`
	} `yaml:"fallback"`
}

// EnvConfig holds the resolved configuration
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	jobPushURL        string
	jobsURL           string
	jobFunction       string
	subtitleLanguages []string
	jobPollInterval   time.Duration
	jobMaxPolls       int
	jobMetadata       bool
	retryAttempts     int
	retryBackoff      time.Duration

	chunkDuration     time.Duration
	prefetchLookahead int
	prefetchStagger   time.Duration
	sampleInterval    time.Duration
	cacheSize         int
	generationTimeout time.Duration

	openAIBaseURL string
	openAIModel   string
	fallbackMode  string
	watchBaseURL  string
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// New creates a new EnvConfig with defaults, file values and environment
// variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:              DefaultPort,
		logLevel:          DefaultLogLevel,
		dataDir:           defaultDataDir(),
		jobPushURL:        DefaultJobPushURL,
		jobsURL:           DefaultJobsURL,
		jobFunction:       DefaultJobFunction,
		subtitleLanguages: []string{"en"},
		jobPollInterval:   DefaultJobPollInterval,
		jobMaxPolls:       DefaultJobMaxPolls,
		jobMetadata:       true,
		retryAttempts:     DefaultRetryAttempts,
		retryBackoff:      DefaultRetryBackoff,
		chunkDuration:     DefaultChunkDuration,
		prefetchLookahead: DefaultPrefetchLookahead,
		prefetchStagger:   DefaultPrefetchStagger,
		sampleInterval:    DefaultSampleInterval,
		cacheSize:         DefaultCacheSize,
		generationTimeout: DefaultGenerationTimeout,
		openAIModel:       DefaultOpenAIModel,
		fallbackMode:      DefaultFallbackMode,
		watchBaseURL:      DefaultWatchBaseURL,
	}

	// The data dir may come from the environment before the file is read,
	// since the default file lives inside it.
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	// An empty override means the default file, which may be absent.
	path := os.Getenv(EnvConfigFile)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.dataDir, ConfigFilename)
	}
	if err := cfg.applyFile(path, explicit); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if f.Port != 0 {
		c.port = f.Port
	}
	setString(&c.logLevel, f.LogLevel)
	setString(&c.dataDir, f.DataDir)
	if f.Headless != nil {
		c.headless = *f.Headless
	}

	setString(&c.jobPushURL, f.Jobs.PushURL)
	setString(&c.jobsURL, f.Jobs.JobsURL)
	setString(&c.jobFunction, f.Jobs.Function)
	if len(f.Jobs.SubtitleLanguages) > 0 {
		c.subtitleLanguages = f.Jobs.SubtitleLanguages
	}
	if f.Jobs.MaxPolls != 0 {
		c.jobMaxPolls = f.Jobs.MaxPolls
	}
	if f.Jobs.Metadata != nil {
		c.jobMetadata = *f.Jobs.Metadata
	}
	if f.Jobs.RetryAttempts != nil {
		c.retryAttempts = *f.Jobs.RetryAttempts
	}
	if f.Learning.PrefetchLookahead != 0 {
		c.prefetchLookahead = f.Learning.PrefetchLookahead
	}
	if f.Learning.CacheSize != 0 {
		c.cacheSize = f.Learning.CacheSize
	}
	setString(&c.openAIBaseURL, f.OpenAI.BaseURL)
	setString(&c.openAIModel, f.OpenAI.Model)
	setString(&c.fallbackMode, f.Fallback.Mode)
	setString(&c.watchBaseURL, f.Fallback.WatchBaseURL)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"jobs.poll_interval", f.Jobs.PollInterval, &c.jobPollInterval},
		{"jobs.retry_backoff", f.Jobs.RetryBackoff, &c.retryBackoff},
		{"learning.chunk_duration", f.Learning.ChunkDuration, &c.chunkDuration},
		{"learning.prefetch_stagger", f.Learning.PrefetchStagger, &c.prefetchStagger},
		{"learning.sample_interval", f.Learning.SampleInterval, &c.sampleInterval},
		{"learning.generation_timeout", f.Learning.GenerationTimeout, &c.generationTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", d.name, path, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))

	if h := os.Getenv(EnvHeadless); h != "" {
		v, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = v
	}

	if m := os.Getenv(EnvJobMetadata); m != "" {
		v, err := strconv.ParseBool(m)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvJobMetadata, err)
		}
		c.jobMetadata = v
	}

	setString(&c.jobPushURL, os.Getenv(EnvJobPushURL))
	setString(&c.jobsURL, os.Getenv(EnvJobsURL))
	setString(&c.jobFunction, os.Getenv(EnvJobFunction))
	if langs := os.Getenv(EnvSubtitleLanguages); langs != "" {
		c.subtitleLanguages = splitList(langs)
	}
	setString(&c.openAIBaseURL, os.Getenv(EnvOpenAIBaseURL))
	setString(&c.openAIModel, os.Getenv(EnvOpenAIModel))
	setString(&c.fallbackMode, os.Getenv(EnvFallbackMode))
	setString(&c.watchBaseURL, os.Getenv(EnvWatchBaseURL))

	ints := []struct {
		env string
		dst *int
	}{
		{EnvJobMaxPolls, &c.jobMaxPolls},
		{EnvRetryAttempts, &c.retryAttempts},
		{EnvPrefetchLookahead, &c.prefetchLookahead},
		{EnvCacheSize, &c.cacheSize},
	}
	for _, i := range ints {
		raw := os.Getenv(i.env)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", i.env, err)
		}
		*i.dst = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{EnvJobPollInterval, &c.jobPollInterval},
		{EnvRetryBackoff, &c.retryBackoff},
		{EnvChunkDuration, &c.chunkDuration},
		{EnvPrefetchStagger, &c.prefetchStagger},
		{EnvSampleInterval, &c.sampleInterval},
		{EnvGenerationTimeout, &c.generationTimeout},
	}
	for _, d := range durations {
		raw := os.Getenv(d.env)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.env, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.port)
	}
	if c.retryAttempts < 0 {
		return fmt.Errorf("invalid retry attempts %d: must not be negative", c.retryAttempts)
	}
	if c.jobMaxPolls < 1 {
		return fmt.Errorf("invalid max polls %d: must be positive", c.jobMaxPolls)
	}
	if c.chunkDuration < time.Second {
		return fmt.Errorf("invalid chunk duration %s: must be at least 1s", c.chunkDuration)
	}
	if c.prefetchLookahead < 0 {
		return fmt.Errorf("invalid prefetch lookahead %d: must not be negative", c.prefetchLookahead)
	}
	if c.cacheSize < 1 {
		return fmt.Errorf("invalid cache size %d: must be positive", c.cacheSize)
	}
	positive := map[string]time.Duration{
		"poll interval":      c.jobPollInterval,
		"prefetch stagger":   c.prefetchStagger,
		"sample interval":    c.sampleInterval,
		"generation timeout": c.generationTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("invalid %s %s: must be positive", name, d)
		}
	}
	switch c.fallbackMode {
	case FallbackWatchPage, FallbackYtdlp:
	default:
		return fmt.Errorf("invalid fallback mode %q: want %s or %s", c.fallbackMode, FallbackWatchPage, FallbackYtdlp)
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// Headless disables the system tray.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) JobPushURL() string {
	return c.jobPushURL
}

func (c *EnvConfig) JobsURL() string {
	return c.jobsURL
}

func (c *EnvConfig) JobFunction() string {
	return c.jobFunction
}

// SubtitleLanguages returns a copy of the requested caption languages.
func (c *EnvConfig) SubtitleLanguages() []string {
	return append([]string(nil), c.subtitleLanguages...)
}

func (c *EnvConfig) JobPollInterval() time.Duration {
	return c.jobPollInterval
}

func (c *EnvConfig) JobMaxPolls() int {
	return c.jobMaxPolls
}

// JobMetadata reports whether job submissions ask for video metadata.
func (c *EnvConfig) JobMetadata() bool {
	return c.jobMetadata
}

// RetryAttempts is the number of retries after the first job attempt.
func (c *EnvConfig) RetryAttempts() int {
	return c.retryAttempts
}

func (c *EnvConfig) RetryBackoff() time.Duration {
	return c.retryBackoff
}

func (c *EnvConfig) ChunkDuration() time.Duration {
	return c.chunkDuration
}

func (c *EnvConfig) PrefetchLookahead() int {
	return c.prefetchLookahead
}

func (c *EnvConfig) PrefetchStagger() time.Duration {
	return c.prefetchStagger
}

func (c *EnvConfig) SampleInterval() time.Duration {
	return c.sampleInterval
}

func (c *EnvConfig) CacheSize() int {
	return c.cacheSize
}

func (c *EnvConfig) GenerationTimeout() time.Duration {
	return c.generationTimeout
}

// OpenAIBaseURL is empty for the public endpoint.
func (c *EnvConfig) OpenAIBaseURL() string {
	return c.openAIBaseURL
}

func (c *EnvConfig) OpenAIModel() string {
	return c.openAIModel
}

func (c *EnvConfig) FallbackMode() string {
	return c.fallbackMode
}

func (c *EnvConfig) WatchBaseURL() string {
	return c.watchBaseURL
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
