// Package report renders the end-of-crawl summary, as plain text for the
// terminal and as a Markdown file next to the other crawl outputs.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"linkcrawler/internal/crawler"
)

// SummaryFile is the Markdown summary's name inside the output directory.
const SummaryFile = "summary.md"

// WriteText prints the summary in the layout used at the end of a run.
func WriteText(w io.Writer, sum *crawler.Summary) error {
	var sb strings.Builder

	sb.WriteString("------- FINAL STATS -------\n")
	if sum.Interrupted {
		sb.WriteString("Status     : interrupted (resume with --resume)\n")
	}
	fmt.Fprintf(&sb, "Visited    : %d\n", sum.Visited)
	fmt.Fprintf(&sb, "Succeeded  : %d\n", sum.Succeeded)
	fmt.Fprintf(&sb, "Failed     : %d\n", sum.Failed)
	fmt.Fprintf(&sb, "Skipped    : %d\n", sum.Skipped)
	fmt.Fprintf(&sb, "Edges      : %d\n", sum.Edges)
	fmt.Fprintf(&sb, "Duplicates : %d\n", sum.Duplicates)
	fmt.Fprintf(&sb, "Remaining  : %d (never visited)\n", sum.Remaining)
	fmt.Fprintf(&sb, "Elapsed    : %s\n", sum.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&sb, "Checkpoint : %s\n", sum.CheckpointPath)

	if len(sum.TopHosts) > 0 {
		sb.WriteString("\nMost linked hosts:\n")
		for _, h := range sum.TopHosts {
			fmt.Fprintf(&sb, "  %6d  %s\n", h.Links, h.Host)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteMarkdown renders the summary as a Markdown document.
func WriteMarkdown(w io.Writer, sum *crawler.Summary) error {
	md := markdown.NewMarkdown(w)

	md.H1("Crawl Summary")
	md.PlainText("")

	status := "Complete"
	if sum.Interrupted {
		status = "Interrupted"
	}
	if sum.Resumed {
		status += " (resumed)"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Status", status},
			{"Elapsed", sum.Elapsed.Round(time.Millisecond).String()},
			{"Checkpoint", "`" + sum.CheckpointPath + "`"},
		},
	})
	md.PlainText("")

	md.H2("Outcomes")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Visited", strconv.Itoa(sum.Visited)},
			{"Succeeded", strconv.Itoa(sum.Succeeded)},
			{"Failed", strconv.Itoa(sum.Failed)},
			{"Skipped (robots)", strconv.Itoa(sum.Skipped)},
			{"Edges", strconv.Itoa(sum.Edges)},
			{"Duplicate links", strconv.Itoa(sum.Duplicates)},
			{"Remaining", strconv.Itoa(sum.Remaining)},
		},
	})
	md.PlainText("")

	if len(sum.TopHosts) > 0 {
		md.H2("Most Linked Hosts")
		md.PlainText("")
		rows := make([][]string, 0, len(sum.TopHosts))
		for _, h := range sum.TopHosts {
			rows = append(rows, []string{"`" + h.Host + "`", strconv.Itoa(h.Links)})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Host", "Links"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	return md.Build()
}

// WriteFile writes SummaryFile into dir and returns its path.
func WriteFile(dir string, sum *crawler.Summary) (string, error) {
	path := filepath.Join(dir, SummaryFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create summary: %w", err)
	}
	if err := WriteMarkdown(f, sum); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write summary: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close summary: %w", err)
	}
	return path, nil
}
