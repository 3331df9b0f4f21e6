// Package config holds the crawl configuration. A Config is built once at
// startup (defaults, then config file, then environment, then flags),
// validated, and passed by value to the scheduler; nothing mutates it
// afterwards.
package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	AppName = "linkcrawler"

	DefaultConnections = 10

	// DefaultTimeout bounds one whole fetch, body included.
	DefaultTimeout = 300 * time.Second

	DefaultConnectTimeout = 30 * time.Second

	// DefaultMaxDepth of 1 fetches the seeds and the pages they link to.
	DefaultMaxDepth = 1

	DefaultUserAgent = "linkcrawler/1.0 (+https://github.com/linkcrawler/linkcrawler)"

	DefaultOutputDir = "output"

	DefaultStateFile = "crawl-state.json"

	// DefaultCheckpointEvery is the number of completed fetches between
	// two checkpoints.
	DefaultCheckpointEvery = 10

	// DefaultMinDelay is the politeness spacing applied to every host that
	// does not ask for more via robots.txt crawl-delay.
	DefaultMinDelay = 1 * time.Second

	DefaultRobotsTimeout = 10 * time.Second

	DefaultMaxRedirects = 5

	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	DefaultPollInterval = 1 * time.Second

	// DefaultMaxPersistFailures consecutive checkpoint failures abort the crawl.
	DefaultMaxPersistFailures = 3

	AgentRandom = "random"
	AgentFirst  = "first"

	ExtractorTokenizer = "tokenizer"
	ExtractorGoquery   = "goquery"
)

// Config is the full set of crawl settings.
type Config struct {
	// SeedFile is the line-oriented URL list; "-" reads stdin.
	SeedFile string
	// Seeds are additional seed URLs given directly (flags or config file).
	Seeds []string

	Connections    int
	Timeout        time.Duration
	ConnectTimeout time.Duration

	// MaxDepth 0 crawls the seeds only.
	MaxDepth    int
	SearchLinks bool

	UserAgents []string
	// AgentPolicy is AgentRandom or AgentFirst.
	AgentPolicy string
	// AgentSeed seeds the random agent picker; 0 means time-based.
	AgentSeed uint64

	Resume  bool
	Headers map[string]string

	OutputDir string
	// StatePath defaults to OutputDir/DefaultStateFile.
	StatePath string

	CheckpointEvery    int
	MaxPersistFailures int
	PollInterval       time.Duration

	MinDelay      time.Duration
	RobotsTimeout time.Duration
	MaxRedirects  int
	MaxBodySize   int64

	// Extractor is ExtractorTokenizer or ExtractorGoquery.
	Extractor string
	SavePages bool

	// Keyword, when set, is searched for case-insensitively in every
	// fetched page.
	Keyword string

	// DBPath enables the SQLite result store when set.
	DBPath string
	// MongoURI enables the MongoDB result store when set.
	MongoURI      string
	MongoDatabase string

	// MetricsAddr serves /metrics when set, e.g. ":2112".
	MetricsAddr string

	Verbose bool
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Connections:        DefaultConnections,
		Timeout:            DefaultTimeout,
		ConnectTimeout:     DefaultConnectTimeout,
		MaxDepth:           DefaultMaxDepth,
		UserAgents:         []string{DefaultUserAgent},
		AgentPolicy:        AgentRandom,
		Headers:            map[string]string{},
		OutputDir:          DefaultOutputDir,
		CheckpointEvery:    DefaultCheckpointEvery,
		MaxPersistFailures: DefaultMaxPersistFailures,
		PollInterval:       DefaultPollInterval,
		MinDelay:           DefaultMinDelay,
		RobotsTimeout:      DefaultRobotsTimeout,
		MaxRedirects:       DefaultMaxRedirects,
		MaxBodySize:        DefaultMaxBodySize,
		Extractor:          ExtractorTokenizer,
		MongoDatabase:      "linkcrawler",
	}
}

// CheckpointPath returns where crawl state is written.
func (c *Config) CheckpointPath() string {
	if c.StatePath != "" {
		return c.StatePath
	}
	return filepath.Join(c.OutputDir, DefaultStateFile)
}

// XDGConfigDir returns the per-user config directory, searched for a
// config file after the working and home directories.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate reports the first invalid setting. Every error it returns
// wraps one of the sentinels in errors.go.
func (c *Config) Validate() error {
	// a resumed crawl takes its frontier from the snapshot
	if len(c.Seeds) == 0 && !c.Resume {
		return ErrNoSeeds
	}
	if c.Connections < 1 {
		return ErrInvalidConnections
	}
	if c.Timeout <= 0 || c.ConnectTimeout <= 0 || c.RobotsTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxDepth < 0 {
		return ErrInvalidDepth
	}
	if len(c.UserAgents) == 0 {
		return ErrNoUserAgent
	}
	for _, ua := range c.UserAgents {
		if ua == "" {
			return ErrNoUserAgent
		}
	}
	if c.AgentPolicy != AgentRandom && c.AgentPolicy != AgentFirst {
		return ErrInvalidAgentPolicy
	}
	if c.Extractor != ExtractorTokenizer && c.Extractor != ExtractorGoquery {
		return ErrInvalidExtractor
	}
	if c.CheckpointEvery < 1 || c.MaxPersistFailures < 1 {
		return ErrInvalidCheckpointEvery
	}
	if c.MinDelay < 0 || c.PollInterval <= 0 {
		return ErrInvalidDelay
	}
	if c.MaxRedirects < 0 || c.MaxBodySize <= 0 {
		return ErrInvalidLimit
	}
	return nil
}
