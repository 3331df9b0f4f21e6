package hostman

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// Decision is the gate's answer for one URL.
type Decision struct {
	Allowed bool
	// Wait is how long the caller must sleep before issuing the request.
	Wait time.Duration
	// Spacing is the minimum gap between dispatches to the host that
	// produced Wait.
	Spacing time.Duration
	// Cancel gives the reserved slot back to the host when the request
	// will not be made after all. Nil when nothing was reserved.
	Cancel func()
}

// HostInfo stores crawl policy & limiter for one host.
type HostInfo struct {
	once   sync.Once
	robots *robotstxt.RobotsData // nil if fetch failed or was skipped

	mu          sync.Mutex
	limiter     *rate.Limiter // burst 1, one token per spacing
	lastFetchAt time.Time
}

// Manager holds HostInfo for every host we touch. Entries live for the
// lifetime of the Manager.
type Manager struct {
	mu    sync.Mutex
	hosts map[string]*HostInfo

	client        *http.Client
	robotsAgent   string
	minDelay      time.Duration
	robotsTimeout time.Duration
	maxRobotsSize int64
	logger        *slog.Logger
	now           func() time.Time
}

type Option func(*Manager)

// WithMinDelay sets the default spacing between two dispatches to the
// same host. Robots crawl-delay can only make it longer.
func WithMinDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.minDelay = d
		}
	}
}

func WithRobotsTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.robotsTimeout = d
		}
	}
}

// WithRobotsAgent sets the User-Agent sent when downloading robots.txt.
func WithRobotsAgent(ua string) Option {
	return func(m *Manager) {
		if ua != "" {
			m.robotsAgent = ua
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New returns a ready Manager. client is used for robots.txt only.
func New(client *http.Client, opts ...Option) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	m := &Manager{
		hosts:         make(map[string]*HostInfo),
		client:        client,
		robotsAgent:   "linkcrawler-robots/1.0",
		minDelay:      time.Second,
		robotsTimeout: 10 * time.Second,
		maxRobotsSize: 512 * 1024,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Authorize decides whether rawURL may be fetched by userAgent and, if
// so, reserves the next dispatch slot for its host. The reservation is
// taken under the host lock, so concurrent callers for one host always
// see each other's timestamps.
func (m *Manager) Authorize(ctx context.Context, rawURL, userAgent string) (Decision, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Decision{}, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	h := m.host(u.Host)
	h.once.Do(func() {
		h.robots = m.fetchRobots(ctx, u.Scheme, u.Host)
	})

	spacing := m.minDelay
	if h.robots != nil {
		grp := h.robots.FindGroup(userAgent)
		if !grp.Test(u.RequestURI()) {
			return Decision{Allowed: false}, nil
		}
		if grp.CrawlDelay > spacing {
			spacing = grp.CrawlDelay
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := m.now()
	if h.limiter == nil {
		h.limiter = rate.NewLimiter(limitFor(spacing), 1)
	} else if h.limiter.Limit() != limitFor(spacing) {
		h.limiter.SetLimitAt(now, limitFor(spacing))
	}
	r := h.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	prev := h.lastFetchAt
	at := now.Add(wait)
	// a stale clock reading must not move the host backwards
	if at.After(h.lastFetchAt) {
		h.lastFetchAt = at
	}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			r.CancelAt(m.now())
			if h.lastFetchAt.Equal(at) {
				h.lastFetchAt = prev
			}
		})
	}
	return Decision{Allowed: true, Wait: wait, Spacing: spacing, Cancel: cancel}, nil
}

// LastFetch returns the most recent reserved dispatch time for host.
func (m *Manager) LastFetch(host string) time.Time {
	m.mu.Lock()
	h, ok := m.hosts[host]
	m.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastFetchAt
}

// Hosts returns the number of hosts seen so far.
func (m *Manager) Hosts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hosts)
}

func (m *Manager) host(name string) *HostInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[name]
	if !ok {
		h = &HostInfo{}
		m.hosts[name] = h
	}
	return h
}

func limitFor(spacing time.Duration) rate.Limit {
	if spacing <= 0 {
		return rate.Inf
	}
	return rate.Every(spacing)
}

// --- helpers -------------------------------------------------------------

// fetchRobots fails open: any error returns nil, which allows every path.
func (m *Manager) fetchRobots(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	robotsURL := scheme + "://" + host + "/robots.txt"

	ctx, cancel := context.WithTimeout(ctx, m.robotsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		m.logger.Warn("robots request", "host", host, "error", err)
		return nil
	}
	req.Header.Set("User-Agent", m.robotsAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("robots fetch failed, allowing host", "host", host, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		m.logger.Warn("robots fetch failed, allowing host", "host", host, "status", resp.StatusCode)
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, m.maxRobotsSize))
	if err != nil {
		m.logger.Warn("robots read failed, allowing host", "host", host, "error", err)
		return nil
	}
	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		m.logger.Warn("robots parse failed, allowing host", "host", host, "error", err)
		return nil
	}
	m.logger.Debug("robots loaded", "host", host, "status", resp.StatusCode)
	return robots
}
