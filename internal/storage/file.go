package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	ResultsFile = "results.jsonl"
	EdgesFile   = "edges.csv"
)

// FileRecorder appends results as JSON lines and edges as CSV rows in
// dir. Existing files are appended to, so a resumed crawl extends the
// logs of the interrupted one.
//
// When resuming, URLs already present in the results log are not written
// again, and neither are the edges found on them. Pages fetched after the
// last checkpoint of the interrupted run are fetched a second time but
// keep their first line.
type FileRecorder struct {
	mu      sync.Mutex
	results *os.File
	edgesF  *os.File
	edges   *csv.Writer
	enc     *json.Encoder
	prior   map[string]struct{}
}

func NewFileRecorder(dir string, resume bool) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var prior map[string]struct{}
	if resume {
		var err error
		if prior, err = recordedURLs(filepath.Join(dir, ResultsFile)); err != nil {
			return nil, err
		}
	}
	results, err := os.OpenFile(filepath.Join(dir, ResultsFile), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open results log: %w", err)
	}
	if err := endLine(results); err != nil {
		results.Close()
		return nil, fmt.Errorf("open results log: %w", err)
	}
	edgesPath := filepath.Join(dir, EdgesFile)
	_, statErr := os.Stat(edgesPath)
	edgesF, err := os.OpenFile(edgesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		results.Close()
		return nil, fmt.Errorf("open edges file: %w", err)
	}

	fr := &FileRecorder{
		results: results,
		edgesF:  edgesF,
		edges:   csv.NewWriter(edgesF),
		enc:     json.NewEncoder(results),
		prior:   prior,
	}
	if os.IsNotExist(statErr) {
		if err := fr.edges.Write([]string{"source", "target"}); err != nil {
			fr.Close()
			return nil, err
		}
		fr.edges.Flush()
	}
	return fr, nil
}

func (fr *FileRecorder) RecordResult(_ context.Context, r Result) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if _, ok := fr.prior[r.URL]; ok {
		return nil
	}
	return fr.enc.Encode(r)
}

func (fr *FileRecorder) RecordEdges(_ context.Context, edges []Edge) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	for _, e := range edges {
		if _, ok := fr.prior[e.Source]; ok {
			continue
		}
		if err := fr.edges.Write([]string{e.Source, e.Target}); err != nil {
			return err
		}
	}
	fr.edges.Flush()
	return fr.edges.Error()
}

func (fr *FileRecorder) Close() error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.edges.Flush()
	err1 := fr.results.Close()
	err2 := fr.edgesF.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// recordedURLs returns the URLs of every line in an existing results log.
// A missing log yields an empty set. A torn last line left by a crash is
// ignored.
func recordedURLs(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read results log: %w", err)
	}
	defer f.Close()

	urls := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		var r struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.URL == "" {
			continue
		}
		urls[r.URL] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read results log: %w", err)
	}
	return urls, nil
}

// endLine terminates a torn last line so the next record starts on a
// line of its own.
func endLine(f *os.File) error {
	fi, err := f.Stat()
	if err != nil || fi.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}
