package storage

import (
	"context"
	"errors"
	"time"
)

// Outcome labels used in Result.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Result is one line of the per-URL result log.
type Result struct {
	URL            string    `json:"url" bson:"url"`
	Depth          int       `json:"depth" bson:"depth"`
	Outcome        string    `json:"outcome" bson:"outcome"`
	Type           string    `json:"type" bson:"type"`
	Domain         string    `json:"domain" bson:"domain"`
	Status         int       `json:"status,omitempty" bson:"status,omitempty"`
	Reason         string    `json:"reason,omitempty" bson:"reason,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds" bson:"elapsed_seconds"`
	EffectiveURL   string    `json:"effective_url,omitempty" bson:"effective_url,omitempty"`
	Title          string    `json:"title,omitempty" bson:"title,omitempty"`
	Bytes          int       `json:"bytes,omitempty" bson:"bytes,omitempty"`
	Truncated      bool      `json:"truncated,omitempty" bson:"truncated,omitempty"`
	KeywordMatch   bool      `json:"keyword_match,omitempty" bson:"keyword_match,omitempty"`
	File           string    `json:"file,omitempty" bson:"file,omitempty"`
	FetchedAt      time.Time `json:"fetched_at" bson:"fetched_at"`
}

// Edge is a discovered link from Source to Target.
type Edge struct {
	Source string `json:"source" bson:"source"`
	Target string `json:"target" bson:"target"`
}

// Recorder receives crawl results and edges. Implementations are called
// from the scheduler goroutine only.
type Recorder interface {
	RecordResult(ctx context.Context, r Result) error
	RecordEdges(ctx context.Context, edges []Edge) error
	Close() error
}

// Multi fans every call out to all recorders and joins their errors.
type Multi []Recorder

func (m Multi) RecordResult(ctx context.Context, r Result) error {
	var errs []error
	for _, rec := range m {
		if err := rec.RecordResult(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) RecordEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	var errs []error
	for _, rec := range m {
		if err := rec.RecordEdges(ctx, edges); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, rec := range m {
		if err := rec.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) RecordResult(context.Context, Result) error { return nil }
func (Discard) RecordEdges(context.Context, []Edge) error  { return nil }
func (Discard) Close() error                               { return nil }
