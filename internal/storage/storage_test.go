package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(url string) Result {
	return Result{
		URL:            url,
		Depth:          1,
		Outcome:        OutcomeSuccess,
		Status:         200,
		ElapsedSeconds: 0.25,
		EffectiveURL:   url,
		Title:          "Page",
		Bytes:          42,
		FetchedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFileRecorder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	fr, err := NewFileRecorder(dir, false)
	require.NoError(t, err)
	require.NoError(t, fr.RecordResult(ctx, sampleResult("http://a.test/")))
	require.NoError(t, fr.RecordEdges(ctx, []Edge{{"http://a.test/", "http://b.test/"}}))
	require.NoError(t, fr.Close())

	// reopening appends and does not repeat the csv header
	fr, err = NewFileRecorder(dir, false)
	require.NoError(t, err)
	require.NoError(t, fr.RecordResult(ctx, Result{URL: "http://b.test/", Outcome: OutcomeFailure, Reason: "status 500", Status: 500}))
	require.NoError(t, fr.RecordEdges(ctx, []Edge{{"http://b.test/", "http://c.test/"}}))
	require.NoError(t, fr.Close())

	f, err := os.Open(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)
	defer f.Close()
	var results []Result
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Result
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		results = append(results, r)
	}
	require.Len(t, results, 2)
	assert.Equal(t, sampleResult("http://a.test/"), results[0])
	assert.Equal(t, "status 500", results[1].Reason)

	ef, err := os.Open(filepath.Join(dir, EdgesFile))
	require.NoError(t, err)
	defer ef.Close()
	rows, err := csv.NewReader(ef).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"source", "target"},
		{"http://a.test/", "http://b.test/"},
		{"http://b.test/", "http://c.test/"},
	}, rows)
}

func TestFileRecorderResumeSkipsRecorded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	fr, err := NewFileRecorder(dir, false)
	require.NoError(t, err)
	require.NoError(t, fr.RecordResult(ctx, sampleResult("http://a.test/")))
	require.NoError(t, fr.RecordEdges(ctx, []Edge{{"http://a.test/", "http://b.test/"}}))
	require.NoError(t, fr.Close())
	// a crash can leave a partial line behind
	torn, err := os.OpenFile(filepath.Join(dir, ResultsFile), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = torn.WriteString(`{"url":"http://tor`)
	require.NoError(t, err)
	require.NoError(t, torn.Close())

	fr, err = NewFileRecorder(dir, true)
	require.NoError(t, err)
	// a.test was fetched after the last checkpoint and comes round again
	require.NoError(t, fr.RecordResult(ctx, sampleResult("http://a.test/")))
	require.NoError(t, fr.RecordEdges(ctx, []Edge{{"http://a.test/", "http://b.test/"}}))
	require.NoError(t, fr.RecordResult(ctx, sampleResult("http://b.test/")))
	require.NoError(t, fr.RecordEdges(ctx, []Edge{{"http://b.test/", "http://c.test/"}}))
	require.NoError(t, fr.Close())

	data, err := os.ReadFile(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), `"url":"http://a.test/"`))
	assert.Equal(t, 1, strings.Count(string(data), `"url":"http://b.test/"`))
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	var last Result
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, "http://b.test/", last.URL)

	ef, err := os.Open(filepath.Join(dir, EdgesFile))
	require.NoError(t, err)
	defer ef.Close()
	rows, err := csv.NewReader(ef).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"source", "target"},
		{"http://a.test/", "http://b.test/"},
		{"http://b.test/", "http://c.test/"},
	}, rows)
}

func TestSQLiteRecorder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "crawl.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.RecordResult(ctx, sampleResult("http://a.test/")))
	require.NoError(t, db.RecordResult(ctx, Result{URL: "http://b.test/", Outcome: OutcomeSkipped, Reason: "robots"}))
	require.NoError(t, db.RecordEdges(ctx, []Edge{
		{"http://a.test/", "http://c.test/"},
		{"http://a.test/", "http://b.test/"},
		{"http://a.test/", "http://b.test/"},
	}))

	counts, err := db.CountByOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{OutcomeSuccess: 1, OutcomeSkipped: 1}, counts)

	edges, err := db.Edges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Edge{
		{"http://a.test/", "http://b.test/"},
		{"http://a.test/", "http://c.test/"},
	}, edges)
}

type failingRecorder struct{ closed bool }

func (f *failingRecorder) RecordResult(context.Context, Result) error {
	return errors.New("result down")
}

func (f *failingRecorder) RecordEdges(context.Context, []Edge) error {
	return errors.New("edges down")
}

func (f *failingRecorder) Close() error {
	f.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	fr, err := NewFileRecorder(dir, false)
	require.NoError(t, err)
	bad := &failingRecorder{}
	m := Multi{fr, bad, Discard{}}

	err = m.RecordResult(ctx, sampleResult("http://a.test/"))
	assert.ErrorContains(t, err, "result down")
	assert.NoError(t, m.RecordEdges(ctx, nil))
	assert.ErrorContains(t, m.RecordEdges(ctx, []Edge{{"a", "b"}}), "edges down")
	require.NoError(t, m.Close())
	assert.True(t, bad.closed)

	data, err := os.ReadFile(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "http://a.test/", "healthy sinks still receive the record")
}

func TestNewMongoInvalidURI(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewMongo(ctx, "not-a-mongodb-uri", "linkcrawler")
	assert.Error(t, err)
}

func TestExportGraph(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	fr, err := NewFileRecorder(dir, false)
	require.NoError(t, err)
	a := sampleResult("https://blog.a.test/")
	a.Type, a.Domain, a.Depth = "Blog", "blog.a.test", 0
	require.NoError(t, fr.RecordResult(ctx, a))
	require.NoError(t, fr.RecordResult(ctx, Result{URL: "https://b.test/", Outcome: OutcomeFailure, Reason: "status 500"}))
	require.NoError(t, fr.RecordEdges(ctx, []Edge{
		{"https://blog.a.test/", "https://b.test/"},
		{"https://blog.a.test/", "https://c.test/"},
	}))
	require.NoError(t, fr.Close())

	g, err := ExportGraph(dir)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1, "failures are not nodes")
	assert.Equal(t, Node{URL: "https://blog.a.test/", Type: "Blog", Domain: "blog.a.test", ResponseTime: 0.25}, g.Nodes[0])
	assert.Len(t, g.Edges, 2)

	cf, err := os.Open(filepath.Join(dir, GraphCSVFile))
	require.NoError(t, err)
	defer cf.Close()
	rows, err := csv.NewReader(cf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"URL", "Type", "Domain", "Response Time", "Depth"},
		{"https://blog.a.test/", "Blog", "blog.a.test", "0.250", "0"},
	}, rows)

	data, err := os.ReadFile(filepath.Join(dir, GraphJSONFile))
	require.NoError(t, err)
	var back Graph
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *g, back)
}

func TestExportGraphMissingResults(t *testing.T) {
	t.Parallel()
	_, err := ExportGraph(t.TempDir())
	assert.Error(t, err)
}
