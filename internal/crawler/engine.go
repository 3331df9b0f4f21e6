package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"linkcrawler/internal/config"
	"linkcrawler/internal/frontier"
	"linkcrawler/internal/hostman"
	"linkcrawler/internal/metrics"
	"linkcrawler/internal/parser"
	"linkcrawler/internal/state"
	"linkcrawler/internal/storage"
)

// State is the scheduler's position in its loop.
type State int

const (
	Idle State = iota
	Dispatching
	Draining
	Checkpointing
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Draining:
		return "draining"
	case Checkpointing:
		return "checkpointing"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const progressInterval = time.Minute

// HostCount is the number of links discovered pointing at one host.
type HostCount struct {
	Host  string
	Links int
}

// Summary is what Run reports once the crawl has stopped.
type Summary struct {
	Visited    int
	Succeeded  int
	Failed     int
	Skipped    int
	Duplicates int
	Edges      int
	// Remaining tasks were still in the frontier at the final checkpoint.
	Remaining int
	// Aborted counts dispatches cancelled before any request went out.
	Aborted        int
	Elapsed        time.Duration
	CheckpointPath string
	Interrupted    bool
	Resumed        bool
	TopHosts       []HostCount
}

// Scheduler owns the frontier and the crawl state. Only the goroutine
// running Run touches them; workers talk back through the pool's results
// channel.
type Scheduler struct {
	cfg config.Config

	logger    *slog.Logger
	recorder  storage.Recorder
	store     state.Store
	extractor parser.Extractor
	gate      Gate
	client    *http.Client
	picker    AgentPicker
	now       func() time.Time

	frontier *frontier.Frontier
	state    State
	stats    state.Stats

	createdAt       time.Time
	resumed         bool
	duplicates      int
	aborted         int
	hostLinks       map[string]int
	sinceCheckpoint int
	persistFailures int
	frontierEmpty   bool
}

// New wires a Scheduler for cfg. cfg is expected to be validated.
func New(cfg config.Config, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		cfg:       cfg,
		hostLinks: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.recorder == nil {
		s.recorder = storage.Discard{}
	}
	if s.store == nil {
		s.store = state.NewFileStore(cfg.CheckpointPath())
	}
	if s.extractor == nil {
		ex, err := parser.New(cfg.Extractor)
		if err != nil {
			return nil, err
		}
		s.extractor = ex
	}
	if s.client == nil {
		s.client = NewHTTPClient(cfg.ConnectTimeout, cfg.MaxRedirects)
	}
	if s.gate == nil {
		s.gate = hostman.New(s.client,
			hostman.WithMinDelay(cfg.MinDelay),
			hostman.WithRobotsTimeout(cfg.RobotsTimeout),
			hostman.WithRobotsAgent(firstAgent(cfg.UserAgents)),
			hostman.WithLogger(s.logger),
		)
	}
	if s.picker == nil {
		if len(cfg.UserAgents) == 0 {
			return nil, config.ErrNoUserAgent
		}
		s.picker = NewPicker(cfg.AgentPolicy, cfg.UserAgents, cfg.AgentSeed)
	}
	if s.cfg.CheckpointEvery < 1 {
		s.cfg.CheckpointEvery = config.DefaultCheckpointEvery
	}
	if s.cfg.MaxPersistFailures < 1 {
		s.cfg.MaxPersistFailures = config.DefaultMaxPersistFailures
	}
	if s.cfg.PollInterval <= 0 {
		s.cfg.PollInterval = config.DefaultPollInterval
	}
	return s, nil
}

// State returns the loop's current state. It is only meaningful from the
// goroutine running Run or after Run returned.
func (s *Scheduler) State() State { return s.state }

// Run crawls until the frontier is exhausted and nothing is in flight, or
// until ctx is cancelled and in-flight work has drained. A final
// checkpoint is always attempted. On cancellation the summary is
// returned with Interrupted set and a nil error.
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	s.setState(Idle)
	if err := s.prepare(); err != nil {
		s.setState(Terminated)
		return nil, err
	}

	var pageDir string
	if s.cfg.SavePages {
		pageDir = filepath.Join(s.cfg.OutputDir, "pages")
	}
	pool, err := NewPool(s.client, s.gate, PoolConfig{
		Connections: s.cfg.Connections,
		Timeout:     s.cfg.Timeout,
		MaxBodySize: s.cfg.MaxBodySize,
		Headers:     s.cfg.Headers,
		PageDir:     pageDir,
	}, s.logger)
	if err != nil {
		s.setState(Terminated)
		return nil, err
	}

	s.logger.Info("crawl started",
		"queued", s.frontier.Len(),
		"visited", s.frontier.Visited().Size(),
		"connections", s.cfg.Connections,
		"max_depth", s.cfg.MaxDepth,
		"resumed", s.resumed,
	)

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	progress := time.NewTicker(progressInterval)
	defer progress.Stop()

	var (
		outstanding int
		stopping    bool
		fatal       error
		done        = ctx.Done()
	)

	for {
		if !stopping && ctx.Err() == nil {
			outstanding += s.dispatch(ctx, pool)
		}
		metrics.FrontierSize.Set(float64(s.frontier.Len()))

		if outstanding == 0 && (stopping || s.frontier.Len() == 0) {
			break
		}

		s.setState(Draining)
		select {
		case out := <-pool.Results():
			outstanding--
			s.handle(ctx, out)
			if err := s.maybeCheckpoint(); err != nil && fatal == nil {
				s.logger.Error("giving up after repeated checkpoint failures", "error", err)
				fatal = err
				stopping = true
			}
		case <-poll.C:
		case <-done:
			s.logger.Warn("crawl interrupted, draining in-flight fetches", "in_flight", outstanding)
			stopping = true
			done = nil
		case <-progress.C:
			s.logger.Info("progress",
				"elapsed", time.Since(start).Round(time.Second),
				"visited", s.frontier.Visited().Size(),
				"queued", s.frontier.Len(),
				"in_flight", outstanding,
			)
		}
	}
	pool.Wait()

	if err := s.checkpoint(); err != nil {
		s.logger.Error("final checkpoint failed", "path", s.store.Location(), "error", err)
		if fatal == nil {
			fatal = fmt.Errorf("%w: %w", ErrPersistence, err)
		}
	}
	s.setState(Terminated)

	sum := s.summary(time.Since(start))
	sum.Interrupted = ctx.Err() != nil
	s.logger.Info("crawl finished",
		"visited", sum.Visited,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"remaining", sum.Remaining,
		"elapsed", sum.Elapsed.Round(time.Millisecond),
		"interrupted", sum.Interrupted,
	)
	return sum, fatal
}

// prepare loads the snapshot when resuming and queues the seeds.
func (s *Scheduler) prepare() error {
	s.createdAt = s.now().UTC()
	s.frontier = frontier.New(s.cfg.MaxDepth)

	if s.cfg.Resume {
		snap, err := s.store.Load()
		switch {
		case errors.Is(err, state.ErrNoSnapshot):
			s.logger.Warn("no checkpoint to resume from, starting fresh", "path", s.store.Location())
		case err != nil:
			return fmt.Errorf("resume from %s: %w", s.store.Location(), err)
		default:
			s.frontier = frontier.Restored(s.cfg.MaxDepth, snap.Visited, snap.Frontier)
			s.stats = snap.Stats
			for host, n := range snap.Stats.HostLinks {
				s.hostLinks[host] = n
			}
			s.stats.HostLinks = nil
			if !snap.CreatedAt.IsZero() {
				s.createdAt = snap.CreatedAt
			}
			s.resumed = true
			s.logger.Info("resumed from checkpoint",
				"path", s.store.Location(),
				"visited", len(snap.Visited),
				"frontier", s.frontier.Len(),
				"last_checkpoint", snap.LastCheckpoint,
			)
		}
	}

	valid := 0
	for _, seed := range s.cfg.Seeds {
		switch s.frontier.Push(frontier.URLTask{URL: seed, Depth: 0}) {
		case frontier.Invalid:
			s.logger.Warn("ignoring invalid seed", "url", seed)
		default:
			valid++
		}
	}
	if valid == 0 && !s.resumed {
		return fmt.Errorf("%w: no valid seed URL", config.ErrNoSeeds)
	}
	s.frontierEmpty = s.frontier.Len() == 0
	return nil
}

// dispatch hands tasks to free slots until either runs out and returns
// how many were started.
func (s *Scheduler) dispatch(ctx context.Context, pool *Pool) int {
	n := 0
	for s.frontier.Len() > 0 && pool.TryAcquire() {
		task, ok := s.frontier.Pop()
		if !ok {
			pool.Release()
			break
		}
		if n == 0 {
			s.setState(Dispatching)
		}
		ua := s.picker.Pick()
		s.logger.Debug("dispatch", "url", task.URL, "depth", task.Depth, "user_agent", ua)
		pool.Dispatch(ctx, task, ua)
		n++
	}
	return n
}

func (s *Scheduler) handle(ctx context.Context, out Outcome) {
	if out.Kind == Aborted {
		s.frontier.Restore(out.Task)
		s.aborted++
		return
	}
	s.frontier.Commit(out.Task.URL)
	s.sinceCheckpoint++
	metrics.Outcomes.WithLabelValues(out.Kind.String()).Inc()

	res := storage.Result{
		URL:            out.Task.URL,
		Depth:          out.Task.Depth,
		Type:           parser.ClassifyPage(out.Task.URL),
		Domain:         frontier.Host(out.Task.URL),
		Status:         out.Status,
		Reason:         out.Reason,
		ElapsedSeconds: out.Elapsed.Seconds(),
		EffectiveURL:   out.EffectiveURL,
		File:           out.File,
		FetchedAt:      s.now().UTC(),
	}

	// sinks must keep working while an interrupted crawl drains
	sinkCtx := context.WithoutCancel(ctx)
	var edges []storage.Edge

	switch out.Kind {
	case Success:
		s.stats.Succeeded++
		res.Outcome = storage.OutcomeSuccess
		res.Bytes = len(out.Content)
		res.Truncated = out.Truncated
		if parser.ContainsKeyword(out.Content, s.cfg.Keyword) {
			res.KeywordMatch = true
			s.logger.Info("keyword found", "keyword", s.cfg.Keyword, "url", out.Task.URL)
		}
		html := isHTML(out.ContentType, out.Content)
		if html {
			res.Title = parser.Title(out.Content)
		}
		if html && s.cfg.SearchLinks && out.Task.Depth < s.cfg.MaxDepth {
			edges = s.expand(out)
		}
		s.logger.Info("fetched", "url", out.Task.URL, "status", out.Status, "bytes", res.Bytes, "links", len(edges))
	case Failure:
		s.stats.Failed++
		res.Outcome = storage.OutcomeFailure
		s.logger.Info("fetch failed", "url", out.Task.URL, "reason", out.Reason)
	case Skipped:
		s.stats.Skipped++
		res.Outcome = storage.OutcomeSkipped
		s.logger.Info("skipped", "url", out.Task.URL, "reason", out.Reason)
	}

	if err := s.recorder.RecordResult(sinkCtx, res); err != nil {
		s.logger.Warn("record result", "url", res.URL, "error", err)
	}
	if len(edges) > 0 {
		s.stats.Edges += len(edges)
		metrics.Edges.Add(float64(len(edges)))
		if err := s.recorder.RecordEdges(sinkCtx, edges); err != nil {
			s.logger.Warn("record edges", "url", res.URL, "error", err)
		}
	}
}

// expand extracts the links of a fetched page, returns one edge per
// distinct target and pushes the targets one level deeper.
func (s *Scheduler) expand(out Outcome) (edges []storage.Edge) {
	base := out.EffectiveURL
	if base == "" {
		base = out.Task.URL
	}
	links, err := s.extractor.Links(out.Content, base)
	if err != nil {
		s.logger.Warn("link extraction failed", "url", out.Task.URL, "error", err)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("link extraction failed", "url", out.Task.URL, "panic", r)
		}
	}()

	seen := make(map[string]struct{})
	for link := range links {
		target, err := frontier.Normalize(link)
		if err != nil {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		edges = append(edges, storage.Edge{Source: out.Task.URL, Target: target})
		s.hostLinks[frontier.Host(target)]++

		if s.frontier.Push(frontier.URLTask{URL: target, Depth: out.Task.Depth + 1}) == frontier.Duplicate {
			s.duplicates++
		}
	}
	return edges
}

// maybeCheckpoint saves every CheckpointEvery outcomes and whenever the
// frontier has just drained.
func (s *Scheduler) maybeCheckpoint() error {
	empty := s.frontier.Len() == 0
	becameEmpty := empty && !s.frontierEmpty
	s.frontierEmpty = empty
	if s.sinceCheckpoint < s.cfg.CheckpointEvery && !becameEmpty {
		return nil
	}
	if err := s.checkpoint(); err != nil {
		s.persistFailures++
		metrics.CheckpointFailures.Inc()
		s.logger.Warn("checkpoint failed",
			"path", s.store.Location(),
			"consecutive", s.persistFailures,
			"error", err,
		)
		if s.persistFailures >= s.cfg.MaxPersistFailures {
			return fmt.Errorf("%w: %d consecutive failures: %w", ErrPersistence, s.persistFailures, err)
		}
		return nil
	}
	s.persistFailures = 0
	return nil
}

func (s *Scheduler) checkpoint() error {
	prev := s.state
	s.setState(Checkpointing)
	defer s.setState(prev)

	snap := &state.Snapshot{
		Version:        state.Version,
		CreatedAt:      s.createdAt,
		LastCheckpoint: s.now().UTC(),
		Visited:        s.frontier.Visited().List(),
		Frontier:       s.frontier.Snapshot(),
		Stats:          s.stats,
	}
	snap.Stats.HostLinks = maps.Clone(s.hostLinks)
	if err := s.store.Save(snap); err != nil {
		return err
	}
	s.sinceCheckpoint = 0
	s.logger.Debug("checkpoint saved", "path", s.store.Location(), "visited", len(snap.Visited), "frontier", len(snap.Frontier))
	return nil
}

func (s *Scheduler) setState(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("scheduler state", "from", s.state, "to", st)
	s.state = st
}

func (s *Scheduler) summary(elapsed time.Duration) *Summary {
	return &Summary{
		Visited:        s.frontier.Visited().Size(),
		Succeeded:      s.stats.Succeeded,
		Failed:         s.stats.Failed,
		Skipped:        s.stats.Skipped,
		Duplicates:     s.duplicates,
		Edges:          s.stats.Edges,
		Remaining:      s.frontier.Len() + s.frontier.InFlight(),
		Aborted:        s.aborted,
		Elapsed:        elapsed,
		CheckpointPath: s.store.Location(),
		Resumed:        s.resumed,
		TopHosts:       topHosts(s.hostLinks, 10),
	}
}

func topHosts(counts map[string]int, n int) []HostCount {
	out := make([]HostCount, 0, len(counts))
	for h, c := range counts {
		out = append(out, HostCount{Host: h, Links: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Links != out[j].Links {
			return out[i].Links > out[j].Links
		}
		return out[i].Host < out[j].Host
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func isHTML(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return strings.Contains(strings.ToLower(contentType), "html")
}

func firstAgent(agents []string) string {
	if len(agents) == 0 {
		return ""
	}
	return agents[0]
}
