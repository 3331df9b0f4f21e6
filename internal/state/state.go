// Package state persists crawl progress so an interrupted crawl can resume.
//
// A snapshot is a single JSON document:
//
//	{
//	  "version": 1,
//	  "created_at": "2026-01-02T15:04:05Z",
//	  "last_checkpoint": "2026-01-02T15:09:00Z",
//	  "visited": ["http://a.test/", ...],
//	  "frontier": [{"url": "http://b.test/", "depth": 1}, ...],
//	  "stats": {"succeeded": 1, "failed": 0, "skipped": 0, "edges": 2,
//	            "host_links": {"b.test": 2}}
//	}
//
// visited holds every URL already fetched (successfully or not). frontier
// holds everything still to fetch in dispatch order, including fetches
// that were in flight when the snapshot was taken.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"linkcrawler/internal/frontier"
)

// Version is the snapshot schema version written by this build.
const Version = 1

var (
	ErrNoSnapshot         = errors.New("no snapshot")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// Stats are the running counters carried across resumes.
type Stats struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Edges     int `json:"edges"`
	// HostLinks counts discovered links per target host.
	HostLinks map[string]int `json:"host_links,omitempty"`
}

type Snapshot struct {
	Version        int                `json:"version"`
	CreatedAt      time.Time          `json:"created_at"`
	LastCheckpoint time.Time          `json:"last_checkpoint"`
	Visited        []string           `json:"visited"`
	Frontier       []frontier.URLTask `json:"frontier"`
	Stats          Stats              `json:"stats"`
}

// Store saves and loads snapshots.
type Store interface {
	Save(s *Snapshot) error
	Load() (*Snapshot, error)
	Location() string
}

// FileStore keeps the snapshot in one file. Save never leaves a partially
// written file at Path: it writes a temp file in the same directory,
// syncs it and renames it over the old one.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (fs *FileStore) Location() string { return fs.Path }

func (fs *FileStore) Save(s *Snapshot) error {
	dir := filepath.Dir(fs.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(fs.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	// no-op once the rename succeeded
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func (fs *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(fs.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", fs.Path, err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	return &s, nil
}
