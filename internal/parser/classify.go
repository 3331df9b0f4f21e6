package parser

import (
	"bytes"
	"strings"
)

// Page types assigned by ClassifyPage.
const (
	PageYouTube = "YouTube"
	PageBlog    = "Blog"
	PageNews    = "News"
	PageOther   = "Other"
)

// ClassifyPage labels a page by substrings of its URL. The first match
// wins.
func ClassifyPage(rawURL string) string {
	u := strings.ToLower(rawURL)
	switch {
	case strings.Contains(u, "youtube.com"):
		return PageYouTube
	case strings.Contains(u, "blog"):
		return PageBlog
	case strings.Contains(u, "news"):
		return PageNews
	default:
		return PageOther
	}
}

// ContainsKeyword reports whether content holds keyword, ignoring case.
// An empty keyword never matches.
func ContainsKeyword(content []byte, keyword string) bool {
	if keyword == "" {
		return false
	}
	return bytes.Contains(bytes.ToLower(content), bytes.ToLower([]byte(keyword)))
}
