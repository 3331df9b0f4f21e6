package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory, the home
// directory and XDGConfigDir, in that order.
const DefaultConfigFile = ".linkcrawler.yaml"

// File mirrors Config for YAML. Unset keys leave the current value alone.
type File struct {
	Seeds              []string          `yaml:"seeds"`
	Connections        *int              `yaml:"connections"`
	Timeout            *time.Duration    `yaml:"timeout"`
	ConnectTimeout     *time.Duration    `yaml:"connect_timeout"`
	MaxDepth           *int              `yaml:"max_depth"`
	SearchLinks        *bool             `yaml:"search_links"`
	UserAgents         []string          `yaml:"user_agents"`
	AgentPolicy        *string           `yaml:"agent_policy"`
	AgentSeed          *uint64           `yaml:"agent_seed"`
	Resume             *bool             `yaml:"resume"`
	Headers            map[string]string `yaml:"headers"`
	OutputDir          *string           `yaml:"output_dir"`
	StatePath          *string           `yaml:"state_path"`
	CheckpointEvery    *int              `yaml:"checkpoint_every"`
	MaxPersistFailures *int              `yaml:"max_persist_failures"`
	PollInterval       *time.Duration    `yaml:"poll_interval"`
	MinDelay           *time.Duration    `yaml:"min_delay"`
	RobotsTimeout      *time.Duration    `yaml:"robots_timeout"`
	MaxRedirects       *int              `yaml:"max_redirects"`
	MaxBodySize        *int64            `yaml:"max_body_size"`
	Extractor          *string           `yaml:"extractor"`
	SavePages          *bool             `yaml:"save_pages"`
	Keyword            *string           `yaml:"keyword"`
	DBPath             *string           `yaml:"db_path"`
	MongoDatabase      *string           `yaml:"mongo_database"`
	MetricsAddr        *string           `yaml:"metrics_addr"`
}

// LoadConfigFile parses the YAML file at path. A missing file returns
// ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindConfigFile returns configPath if it exists, otherwise the first
// DefaultConfigFile found in the search path, or "".
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	dirs = append(dirs, XDGConfigDir())

	for _, dir := range dirs {
		p := filepath.Join(dir, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Apply copies every key set in the file onto c.
func (f *File) Apply(c *Config) {
	if len(f.Seeds) > 0 {
		c.Seeds = append(c.Seeds, f.Seeds...)
	}
	if len(f.UserAgents) > 0 {
		c.UserAgents = append([]string(nil), f.UserAgents...)
	}
	if len(f.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(f.Headers))
		}
		for k, v := range f.Headers {
			c.Headers[k] = v
		}
	}
	set(&c.Connections, f.Connections)
	set(&c.Timeout, f.Timeout)
	set(&c.ConnectTimeout, f.ConnectTimeout)
	set(&c.MaxDepth, f.MaxDepth)
	set(&c.SearchLinks, f.SearchLinks)
	set(&c.AgentPolicy, f.AgentPolicy)
	set(&c.AgentSeed, f.AgentSeed)
	set(&c.Resume, f.Resume)
	set(&c.OutputDir, f.OutputDir)
	set(&c.StatePath, f.StatePath)
	set(&c.CheckpointEvery, f.CheckpointEvery)
	set(&c.MaxPersistFailures, f.MaxPersistFailures)
	set(&c.PollInterval, f.PollInterval)
	set(&c.MinDelay, f.MinDelay)
	set(&c.RobotsTimeout, f.RobotsTimeout)
	set(&c.MaxRedirects, f.MaxRedirects)
	set(&c.MaxBodySize, f.MaxBodySize)
	set(&c.Extractor, f.Extractor)
	set(&c.SavePages, f.SavePages)
	set(&c.Keyword, f.Keyword)
	set(&c.DBPath, f.DBPath)
	set(&c.MongoDatabase, f.MongoDatabase)
	set(&c.MetricsAddr, f.MetricsAddr)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
