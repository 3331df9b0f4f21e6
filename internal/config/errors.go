package config

import "errors"

// Configuration errors. All of them are fatal: the crawl does not start.
var (
	ErrSeedFile = errors.New("cannot read seed file")

	ErrNoSeeds = errors.New("no seed URLs: give a seed file or --url")

	ErrInvalidConnections = errors.New("invalid connections: must be at least 1")

	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	ErrInvalidDepth = errors.New("invalid max depth: must be non-negative")

	ErrNoUserAgent = errors.New("no user agent: at least one non-empty agent is required")

	ErrInvalidAgentPolicy = errors.New("invalid agent policy: must be random or first")

	ErrInvalidExtractor = errors.New("invalid extractor: must be tokenizer or goquery")

	ErrInvalidCheckpointEvery = errors.New("invalid checkpoint settings: interval and failure limit must be at least 1")

	ErrInvalidDelay = errors.New("invalid delay: min delay must be non-negative and poll interval positive")

	ErrInvalidLimit = errors.New("invalid limit: redirects must be non-negative and max body size positive")

	ErrConfigNotFound = errors.New("configuration file not found")
)
