package parser

import (
	"bytes"
	"iter"
	"net/url"

	"golang.org/x/net/html"
)

// TokenizerExtractor streams links out of the page with the x/net/html
// tokenizer. Nothing is parsed until the sequence is ranged over.
type TokenizerExtractor struct{}

func (TokenizerExtractor) Links(content []byte, baseURL string) (iter.Seq[string], error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	return func(yield func(string) bool) {
		z := html.NewTokenizer(bytes.NewReader(content))
		cur := base
		for {
			tt := z.Next()
			if tt == html.ErrorToken {
				return
			}
			if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
				continue
			}
			t := z.Token()
			switch t.Data {
			case "base":
				// <base href> rebases everything after it
				if href := attr(t, "href"); href != "" {
					if bu, err := url.Parse(href); err == nil {
						cur = base.ResolveReference(bu)
					}
				}
			case "a", "area":
				if abs, ok := ResolveLink(cur, attr(t, "href")); ok {
					if !yield(abs) {
						return
					}
				}
			}
		}
	}, nil
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
