package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"linkcrawler/internal/frontier"
	"linkcrawler/internal/hostman"
	"linkcrawler/internal/metrics"
)

// Gate is the politeness check a worker runs before fetching.
type Gate interface {
	Authorize(ctx context.Context, rawURL, userAgent string) (hostman.Decision, error)
}

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Connections int
	Timeout     time.Duration
	MaxBodySize int64
	Headers     map[string]string
	// PageDir, when set, receives every successful response body.
	PageDir string
}

// Pool runs at most Connections fetches at once. Every dispatched task
// yields exactly one Outcome on Results.
type Pool struct {
	sem      *semaphore.Weighted
	client   *http.Client
	gate     Gate
	timeout  time.Duration
	maxBody  int64
	headers  map[string]string
	pageDir  string
	logger   *slog.Logger
	results  chan Outcome
	wg       sync.WaitGroup
	inflight atomic.Int64
}

func NewPool(client *http.Client, gate Gate, cfg PoolConfig, logger *slog.Logger) (*Pool, error) {
	if cfg.Connections < 1 {
		return nil, fmt.Errorf("pool needs at least one connection, got %d", cfg.Connections)
	}
	if cfg.PageDir != "" {
		if err := os.MkdirAll(cfg.PageDir, 0o750); err != nil {
			return nil, fmt.Errorf("create page dir: %w", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(cfg.Connections)),
		client:  client,
		gate:    gate,
		timeout: cfg.Timeout,
		maxBody: cfg.MaxBodySize,
		headers: cfg.Headers,
		pageDir: cfg.PageDir,
		logger:  logger,
		results: make(chan Outcome, cfg.Connections),
	}, nil
}

// TryAcquire claims a free slot without blocking. A successful call must
// be followed by exactly one Dispatch or Release.
func (p *Pool) TryAcquire() bool {
	return p.sem.TryAcquire(1)
}

func (p *Pool) Release() {
	p.sem.Release(1)
}

// Dispatch starts a worker for task on a slot claimed with TryAcquire.
// Cancelling ctx aborts a worker that is still waiting for its politeness
// slot; a request already on the wire runs to completion or timeout.
func (p *Pool) Dispatch(ctx context.Context, task frontier.URLTask, ua string) {
	p.wg.Add(1)
	metrics.InFlight.Set(float64(p.inflight.Add(1)))
	go func() {
		defer p.wg.Done()
		out := p.run(ctx, task, ua)
		p.results <- out
		metrics.InFlight.Set(float64(p.inflight.Add(-1)))
		p.sem.Release(1)
	}()
}

func (p *Pool) Results() <-chan Outcome { return p.results }

func (p *Pool) InFlight() int { return int(p.inflight.Load()) }

// Wait blocks until every dispatched worker has reported.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context, task frontier.URLTask, ua string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic", "url", task.URL, "panic", r)
			out = Outcome{Task: task, UserAgent: ua, Kind: Failure, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if ctx.Err() != nil {
		return Outcome{Task: task, UserAgent: ua, Kind: Aborted, Reason: "cancelled"}
	}

	// robots lookups are cached for the whole run, so they must not be
	// cut short by the crawl being cancelled
	detached := context.WithoutCancel(ctx)
	dec, err := p.gate.Authorize(detached, task.URL, ua)
	if err != nil {
		return Outcome{Task: task, UserAgent: ua, Kind: Failure, Reason: err.Error()}
	}
	if !dec.Allowed {
		return Outcome{Task: task, UserAgent: ua, Kind: Skipped, Reason: "robots"}
	}
	if dec.Wait > 0 {
		p.logger.Debug("politeness wait", "url", task.URL, "wait", dec.Wait)
	}
	if err := sleepCtx(ctx, dec.Wait); err != nil {
		if dec.Cancel != nil {
			dec.Cancel()
		}
		return Outcome{Task: task, UserAgent: ua, Kind: Aborted, Reason: "cancelled"}
	}

	out = p.fetch(detached, task, ua)
	if out.Kind == Success {
		metrics.BytesFetched.Add(float64(len(out.Content)))
	}
	metrics.FetchDuration.Observe(out.Elapsed.Seconds())
	return out
}
