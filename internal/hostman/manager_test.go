package hostman

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestAuthorizeRobots(t *testing.T) {
	t.Parallel()

	srv, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n\nUser-agent: slowbot\nCrawl-delay: 5\n")
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := New(srv.Client(), WithClock(clock.Now), WithLogger(quietLogger()), WithMinDelay(time.Second))
	ctx := context.Background()

	d, err := m.Authorize(ctx, srv.URL+"/private/page", "testbot")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = m.Authorize(ctx, srv.URL+"/public", "testbot")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Zero(t, d.Wait)
	assert.Equal(t, time.Second, d.Spacing)

	d, err = m.Authorize(ctx, srv.URL+"/public", "slowbot")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5*time.Second, d.Spacing)

	assert.Equal(t, int32(1), hits.Load(), "robots.txt is fetched once per host")
	assert.Equal(t, 1, m.Hosts())
}

func TestAuthorizeSpacing(t *testing.T) {
	t.Parallel()

	srv, _ := robotsServer(t, http.StatusNotFound, "")
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := New(srv.Client(), WithClock(clock.Now), WithLogger(quietLogger()), WithMinDelay(2*time.Second))
	ctx := context.Background()

	d, err := m.Authorize(ctx, srv.URL+"/a", "bot")
	require.NoError(t, err)
	assert.Zero(t, d.Wait)

	// second dispatch right away waits the full spacing
	d, err = m.Authorize(ctx, srv.URL+"/b", "bot")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d.Wait)

	// a third one queues behind the second
	d, err = m.Authorize(ctx, srv.URL+"/c", "bot")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, d.Wait)

	host := srv.Listener.Addr().String()
	assert.Equal(t, time.Unix(1004, 0), m.LastFetch(host))

	// elapsed time is credited
	clock.Advance(10 * time.Second)
	d, err = m.Authorize(ctx, srv.URL+"/d", "bot")
	require.NoError(t, err)
	assert.Zero(t, d.Wait)
}

func TestAuthorizeCancelReleasesSlot(t *testing.T) {
	t.Parallel()

	srv, _ := robotsServer(t, http.StatusNotFound, "")
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := New(srv.Client(), WithClock(clock.Now), WithLogger(quietLogger()), WithMinDelay(2*time.Second))
	ctx := context.Background()
	host := srv.Listener.Addr().String()

	first, err := m.Authorize(ctx, srv.URL+"/a", "bot")
	require.NoError(t, err)
	require.Zero(t, first.Wait)

	second, err := m.Authorize(ctx, srv.URL+"/b", "bot")
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, second.Wait)
	require.NotNil(t, second.Cancel)
	assert.Equal(t, time.Unix(1002, 0), m.LastFetch(host))

	second.Cancel()
	second.Cancel() // idempotent
	assert.Equal(t, time.Unix(1000, 0), m.LastFetch(host))

	// the next dispatch takes the slot the cancelled one left behind
	third, err := m.Authorize(ctx, srv.URL+"/c", "bot")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, third.Wait)
	assert.Equal(t, time.Unix(1002, 0), m.LastFetch(host))
}

func TestAuthorizeConcurrentSameHost(t *testing.T) {
	t.Parallel()

	srv, _ := robotsServer(t, http.StatusNotFound, "")
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := New(srv.Client(), WithClock(clock.Now), WithLogger(quietLogger()), WithMinDelay(time.Second))

	const n = 20
	waits := make(chan time.Duration, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := m.Authorize(context.Background(), srv.URL+"/", "bot")
			if err == nil {
				waits <- d.Wait
			}
		}()
	}
	wg.Wait()
	close(waits)

	seen := make(map[time.Duration]bool)
	for w := range waits {
		assert.False(t, seen[w], "two dispatches share wait %s", w)
		seen[w] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen[0])
	assert.True(t, seen[time.Duration(n-1)*time.Second])
}

func TestAuthorizeFailsOpen(t *testing.T) {
	t.Parallel()

	t.Run("server error", func(t *testing.T) {
		t.Parallel()
		srv, _ := robotsServer(t, http.StatusInternalServerError, "User-agent: *\nDisallow: /\n")
		m := New(srv.Client(), WithLogger(quietLogger()), WithMinDelay(0))
		d, err := m.Authorize(context.Background(), srv.URL+"/x", "bot")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Zero(t, d.Wait)
	})

	t.Run("unreachable host", func(t *testing.T) {
		t.Parallel()
		srv, _ := robotsServer(t, http.StatusOK, "")
		addr := srv.URL
		srv.Close()
		m := New(&http.Client{Timeout: time.Second}, WithLogger(quietLogger()))
		d, err := m.Authorize(context.Background(), addr+"/x", "bot")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, time.Second, d.Spacing)
	})
}
