package storage

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

const (
	GraphCSVFile  = "crawled_data.csv"
	GraphJSONFile = "crawled_data.json"
)

// Node is a successfully fetched page in the exported link graph.
type Node struct {
	URL          string  `json:"url"`
	Type         string  `json:"type"`
	Domain       string  `json:"domain"`
	ResponseTime float64 `json:"response_time"`
	Depth        int     `json:"depth"`
}

// Graph is the link graph written by ExportGraph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ExportGraph builds the link graph from the results log and edge list in
// dir and writes it as GraphCSVFile (one row per node) and GraphJSONFile.
// Only successful fetches become nodes; the first line for a URL wins.
func ExportGraph(dir string) (*Graph, error) {
	g, err := LoadGraph(dir)
	if err != nil {
		return nil, err
	}
	if err := writeNodesCSV(filepath.Join(dir, GraphCSVFile), g.Nodes); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, GraphJSONFile), data, 0o640); err != nil {
		return nil, fmt.Errorf("write %s: %w", GraphJSONFile, err)
	}
	return g, nil
}

// LoadGraph reads the graph back from the files a FileRecorder wrote.
func LoadGraph(dir string) (*Graph, error) {
	g := &Graph{Nodes: []Node{}, Edges: []Edge{}}

	rf, err := os.Open(filepath.Join(dir, ResultsFile))
	if err != nil {
		return nil, fmt.Errorf("read results log: %w", err)
	}
	defer rf.Close()
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(rf)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		var r Result
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Outcome != OutcomeSuccess {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		g.Nodes = append(g.Nodes, Node{
			URL:          r.URL,
			Type:         r.Type,
			Domain:       r.Domain,
			ResponseTime: r.ElapsedSeconds,
			Depth:        r.Depth,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read results log: %w", err)
	}

	ef, err := os.Open(filepath.Join(dir, EdgesFile))
	if errors.Is(err, os.ErrNotExist) {
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read edges: %w", err)
	}
	defer ef.Close()
	cr := csv.NewReader(ef)
	cr.FieldsPerRecord = 2
	header := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read edges: %w", err)
		}
		if header {
			header = false
			continue
		}
		g.Edges = append(g.Edges, Edge{Source: row[0], Target: row[1]})
	}
	return g, nil
}

func writeNodesCSV(path string, nodes []Node) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"URL", "Type", "Domain", "Response Time", "Depth"})
	for _, n := range nodes {
		_ = w.Write([]string{
			n.URL,
			n.Type,
			n.Domain,
			strconv.FormatFloat(n.ResponseTime, 'f', 3, 64),
			strconv.Itoa(n.Depth),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
