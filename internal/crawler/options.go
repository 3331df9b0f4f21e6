package crawler

import (
	"log/slog"
	"net/http"
	"time"

	"linkcrawler/internal/parser"
	"linkcrawler/internal/state"
	"linkcrawler/internal/storage"
)

// Option customises a Scheduler. Anything left unset is built from the
// Config passed to New.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithRecorder sets where results and edges go. The scheduler does not
// close it.
func WithRecorder(r storage.Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

func WithStore(st state.Store) Option {
	return func(s *Scheduler) { s.store = st }
}

func WithExtractor(e parser.Extractor) Option {
	return func(s *Scheduler) { s.extractor = e }
}

// WithGate replaces the robots/spacing gate.
func WithGate(g Gate) Option {
	return func(s *Scheduler) { s.gate = g }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Scheduler) { s.client = c }
}

func WithAgentPicker(p AgentPicker) Option {
	return func(s *Scheduler) { s.picker = p }
}

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}
