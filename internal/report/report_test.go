package report

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkcrawler/internal/crawler"
)

func testSummary() *crawler.Summary {
	return &crawler.Summary{
		Visited:        12,
		Succeeded:      9,
		Failed:         2,
		Skipped:        1,
		Duplicates:     30,
		Edges:          41,
		Remaining:      5,
		Elapsed:        3*time.Second + 250*time.Millisecond,
		CheckpointPath: "output/crawl-state.json",
		Interrupted:    true,
		TopHosts: []crawler.HostCount{
			{Host: "example.com", Links: 20},
			{Host: "example.org", Links: 4},
		},
	}
}

func TestWriteText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, testSummary()))

	out := buf.String()
	assert.Contains(t, out, "FINAL STATS")
	assert.Contains(t, out, "interrupted")
	assert.Contains(t, out, "Visited    : 12")
	assert.Contains(t, out, "Remaining  : 5")
	assert.Contains(t, out, "3.25s")
	assert.Contains(t, out, "example.com")
}

func TestWriteTextWithoutHosts(t *testing.T) {
	t.Parallel()

	sum := testSummary()
	sum.TopHosts = nil
	sum.Interrupted = false

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sum))
	assert.NotContains(t, buf.String(), "Most linked hosts")
	assert.NotContains(t, buf.String(), "interrupted")
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, testSummary()))

	out := buf.String()
	assert.Contains(t, out, "# Crawl Summary")
	assert.Contains(t, out, "## Outcomes")
	assert.Contains(t, out, "Interrupted")
	assert.Contains(t, out, "## Most Linked Hosts")
	assert.Contains(t, out, "`example.org`")
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := WriteFile(dir, testSummary())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Crawl Summary")

	_, err = WriteFile(dir+"/missing/dir", testSummary())
	assert.Error(t, err)
}
