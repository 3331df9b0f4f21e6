package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkcrawler/internal/config"
	"linkcrawler/internal/frontier"
	"linkcrawler/internal/state"
	"linkcrawler/internal/storage"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	assert.Equal(t, "crawl [seed-file]", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Version)

	v := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, v)
	assert.Equal(t, "v", v.Shorthand)

	for name, def := range map[string]string{
		"connections":      "10",
		"depth":            "1",
		"timeout":          "5m0s",
		"min-delay":        "1s",
		"checkpoint-every": "10",
		"extractor":        "tokenizer",
		"output":           "output",
	} {
		f := cmd.Flags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, def, f.DefValue, name)
	}
}

func TestBuildConfig(t *testing.T) {
	t.Run("defaults plus seed file", func(t *testing.T) {
		dir := t.TempDir()
		seeds := writeFile(t, dir, "seeds.txt", "# seeds\nhttp://a.test/\n\nhttp://b.test/\n")

		cmd := NewRootCmd()
		cfg, err := buildConfig(cmd, []string{seeds})
		require.NoError(t, err)
		assert.Equal(t, []string{"http://a.test/", "http://b.test/"}, cfg.Seeds)
		assert.Equal(t, config.DefaultConnections, cfg.Connections)
		assert.Equal(t, config.DefaultMaxDepth, cfg.MaxDepth)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("flags override the config file", func(t *testing.T) {
		dir := t.TempDir()
		cfgFile := writeFile(t, dir, "crawl.yaml", "connections: 4\nmax_depth: 3\nmin_delay: 2s\nseeds:\n  - http://c.test/\n")

		cmd := NewRootCmd()
		require.NoError(t, cmd.Flags().Set("config", cfgFile))
		require.NoError(t, cmd.Flags().Set("depth", "5"))
		require.NoError(t, cmd.Flags().Set("header", "Authorization: Bearer abc"))
		require.NoError(t, cmd.Flags().Set("header", "X-Trace=1"))
		require.NoError(t, cmd.Flags().Set("user-agent", "bot-a"))
		require.NoError(t, cmd.Flags().Set("user-agent", "bot-b"))
		require.NoError(t, cmd.Flags().Set("url", "http://d.test/"))

		cfg, err := buildConfig(cmd, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Connections)
		assert.Equal(t, 5, cfg.MaxDepth)
		assert.Equal(t, 2*time.Second, cfg.MinDelay)
		assert.Equal(t, []string{"http://c.test/", "http://d.test/"}, cfg.Seeds)
		assert.Equal(t, []string{"bot-a", "bot-b"}, cfg.UserAgents)
		assert.Equal(t, "Bearer abc", cfg.Headers["Authorization"])
		assert.Equal(t, "1", cfg.Headers["X-Trace"])
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		cmd := NewRootCmd()
		require.NoError(t, cmd.Flags().Set("config", filepath.Join(t.TempDir(), "nope.yaml")))
		_, err := buildConfig(cmd, nil)
		assert.ErrorIs(t, err, config.ErrConfigNotFound)
	})

	t.Run("unreadable seed file", func(t *testing.T) {
		cmd := NewRootCmd()
		_, err := buildConfig(cmd, []string{filepath.Join(t.TempDir(), "missing.txt")})
		assert.ErrorIs(t, err, config.ErrSeedFile)
	})

	t.Run("seeds from stdin", func(t *testing.T) {
		cmd := NewRootCmd()
		cmd.SetIn(strings.NewReader("http://stdin.test/\n"))
		cfg, err := buildConfig(cmd, []string{"-"})
		require.NoError(t, err)
		assert.Equal(t, []string{"http://stdin.test/"}, cfg.Seeds)
	})

	t.Run("bad header", func(t *testing.T) {
		cmd := NewRootCmd()
		require.NoError(t, cmd.Flags().Set("header", "no-separator"))
		_, err := buildConfig(cmd, nil)
		assert.Error(t, err)
	})
}

func TestParseHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, name, value string
		ok              bool
	}{
		{"Accept: text/html", "Accept", "text/html", true},
		{"X-A=b=c", "X-A", "b=c", true},
		{"Cookie:", "Cookie", "", true},
		{": value", "", "", false},
		{"novalue", "", "", false},
	}
	for _, tt := range tests {
		name, value, err := parseHeader(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.name, name)
		assert.Equal(t, tt.value, value)
	}
}

func TestExecuteCrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = io.WriteString(w, "User-agent: *\nDisallow: /private\n")
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, `<a href="/a">a</a><a href="/private/x">x</a>`)
		case "/a":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, `<title>A</title>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	seeds := writeFile(t, dir, "seeds.txt", srv.URL+"/\n")
	db := filepath.Join(dir, "crawl.db")

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{seeds, "-s", "-o", out, "--min-delay", "0s", "--db", db, "--keyword", "HREF"})
	require.NoError(t, cmd.Execute(), stderr.String())

	assert.Contains(t, stdout.String(), "FINAL STATS")
	assert.Contains(t, stdout.String(), "Visited    : 3")

	for _, name := range []string{
		storage.ResultsFile, storage.EdgesFile, config.DefaultStateFile, LogFile, "summary.md",
		storage.GraphCSVFile, storage.GraphJSONFile,
	} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(out, storage.ResultsFile))
	require.NoError(t, err)
	outcomes := map[string]string{}
	matched := map[string]bool{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var r storage.Result
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		outcomes[strings.TrimPrefix(r.URL, srv.URL)] = r.Outcome
		matched[strings.TrimPrefix(r.URL, srv.URL)] = r.KeywordMatch
	}
	assert.True(t, matched["/"])
	assert.False(t, matched["/a"])
	assert.Equal(t, map[string]string{
		"/":          storage.OutcomeSuccess,
		"/a":         storage.OutcomeSuccess,
		"/private/x": storage.OutcomeSkipped,
	}, outcomes)

	sqlite, err := storage.OpenSQLite(db)
	require.NoError(t, err)
	defer sqlite.Close()
	edges, err := sqlite.Edges(t.Context())
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	graph, err := storage.LoadGraph(out)
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 2)
	assert.Len(t, graph.Edges, 2)
}

func TestExecuteResumeWithoutSeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "out")
	store := state.NewFileStore(filepath.Join(out, config.DefaultStateFile))
	require.NoError(t, store.Save(&state.Snapshot{
		Version:  state.Version,
		Frontier: []frontier.URLTask{{URL: srv.URL + "/left-over"}},
	}))

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--resume", "-o", out, "--min-delay", "0s"})
	require.NoError(t, cmd.Execute(), stderr.String())
	assert.Contains(t, stdout.String(), "Visited    : 1")

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/left-over"}, snap.Visited)
	assert.Empty(t, snap.Frontier)
}

func TestExecuteInvalidConfig(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--connections", "0", "--url", "http://a.test/", "-o", t.TempDir()})
	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalidConnections), fmt.Sprint(err))
}
