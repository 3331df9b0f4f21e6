package parser

import (
	"errors"
	"fmt"
	"iter"
	"net/url"
)

// Extractor pulls absolute link targets out of a fetched page.
type Extractor interface {
	Links(content []byte, baseURL string) (iter.Seq[string], error)
}

const (
	KindTokenizer = "tokenizer"
	KindGoquery   = "goquery"
)

var ErrUnknownExtractor = errors.New("unknown extractor")

// New returns the extractor registered under kind.
func New(kind string) (Extractor, error) {
	switch kind {
	case "", KindTokenizer:
		return TokenizerExtractor{}, nil
	case KindGoquery:
		return QueryExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, kind)
	}
}

func parseBase(baseURL string) (*url.URL, error) {
	bu, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("base url %q: %w", baseURL, err)
	}
	if !bu.IsAbs() {
		return nil, fmt.Errorf("base url %q is not absolute", baseURL)
	}
	return bu, nil
}
