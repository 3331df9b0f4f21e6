package parser

import (
	"bytes"
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// QueryExtractor builds a goquery document and selects anchors. It parses
// the whole page up front, so malformed input surfaces as an error.
type QueryExtractor struct{}

func (QueryExtractor) Links(content []byte, baseURL string) (iter.Seq[string], error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if bu, err := url.Parse(href); err == nil {
			base = base.ResolveReference(bu)
		}
	}
	return func(yield func(string) bool) {
		doc.Find("a[href], area[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			abs, ok := ResolveLink(base, href)
			if !ok {
				return true
			}
			return yield(abs)
		})
	}, nil
}

// Title returns the trimmed <title> text, or "" for non-HTML content.
func Title(htmlBody []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBody))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}
