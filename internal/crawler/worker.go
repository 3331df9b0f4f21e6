package crawler

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"linkcrawler/internal/frontier"
)

// NewHTTPClient returns the client shared by all fetch slots. The overall
// per-fetch deadline is applied per request, not here.
func NewHTTPClient(connectTimeout time.Duration, maxRedirects int) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// fetch performs one GET and always returns an Outcome of kind Success or
// Failure.
func (p *Pool) fetch(ctx context.Context, task frontier.URLTask, ua string) Outcome {
	out := Outcome{Task: task, UserAgent: ua}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return fail(out, &FetchError{URL: task.URL, Err: err})
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", ua)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		out.Elapsed = time.Since(start)
		return fail(out, &FetchError{URL: task.URL, Timeout: isTimeout(ctx, err), Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody+1))
	out.Elapsed = time.Since(start)
	out.Status = resp.StatusCode
	out.ContentType = resp.Header.Get("Content-Type")
	out.EffectiveURL = resp.Request.URL.String()
	if err != nil {
		return fail(out, &FetchError{URL: task.URL, Timeout: isTimeout(ctx, err), Err: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(out, &FetchError{URL: task.URL, StatusCode: resp.StatusCode})
	}

	if int64(len(body)) > p.maxBody {
		body = body[:p.maxBody]
		out.Truncated = true
		p.logger.Warn("body truncated", "url", task.URL, "limit", p.maxBody)
	}

	out.Kind = Success
	out.Content = body
	if p.pageDir != "" {
		name, err := p.savePage(task.URL, body)
		if err != nil {
			p.logger.Warn("save page failed", "url", task.URL, "error", err)
		} else {
			out.File = name
		}
	}
	return out
}

func fail(out Outcome, err *FetchError) Outcome {
	out.Kind = Failure
	out.Reason = err.Reason()
	if err.StatusCode != 0 {
		out.Status = err.StatusCode
	}
	return out
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// savePage writes body under pageDir, named by a hash of the URL so that
// a resumed crawl never collides with earlier files.
func (p *Pool) savePage(u string, body []byte) (string, error) {
	h := fnv.New64a()
	h.Write([]byte(u))
	name := fmt.Sprintf("doc_%016x.dat", h.Sum64())
	if err := os.WriteFile(filepath.Join(p.pageDir, name), body, 0o640); err != nil {
		return "", err
	}
	return name, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
