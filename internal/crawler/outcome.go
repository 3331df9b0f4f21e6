package crawler

import (
	"errors"
	"fmt"
	"time"

	"linkcrawler/internal/frontier"
)

// Kind tags an Outcome.
type Kind int

const (
	Success Kind = iota
	Failure
	Skipped
	// Aborted means the crawl was cancelled before the request went out.
	// The task goes back to the frontier instead of being marked visited.
	Aborted
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Skipped:
		return "skipped"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the single report a worker makes for a dispatched task.
type Outcome struct {
	Task      frontier.URLTask
	Kind      Kind
	UserAgent string

	Status       int
	Reason       string
	Content      []byte
	ContentType  string
	EffectiveURL string
	Elapsed      time.Duration
	File         string
	Truncated    bool // Content holds only the first MaxBodySize bytes
}

// ErrPersistence is returned by Run when checkpoints keep failing.
var ErrPersistence = errors.New("checkpoint persistence failed")

// FetchError describes a failed fetch. Reason is what goes into the
// result log.
type FetchError struct {
	URL        string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason())
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Reason() string {
	switch {
	case e.Timeout:
		return "timeout"
	case e.StatusCode != 0:
		return fmt.Sprintf("status %d", e.StatusCode)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "unknown error"
	}
}
