package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadSeeds parses a seed list: one URL per line, blank lines and lines
// starting with '#' are skipped.
func ReadSeeds(r io.Reader) ([]string, error) {
	var seeds []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return seeds, nil
}

// LoadSeedFile reads seeds from path, or from stdin when path is "-".
// Any failure wraps ErrSeedFile.
func LoadSeedFile(path string, stdin io.Reader) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path) //nolint:gosec // user supplied seed list
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSeedFile, err)
		}
		defer f.Close()
		r = f
	}
	seeds, err := ReadSeeds(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSeedFile, path, err)
	}
	return seeds, nil
}
