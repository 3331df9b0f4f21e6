package parser

import (
	"net/url"
	"strings"

	"linkcrawler/internal/frontier"
)

// ResolveLink turns an href found on a page with the given base into the
// canonical absolute form the frontier deduplicates on. ok is false for
// empty and fragment-only references and for anything that is not
// http(s) once resolved (mailto:, javascript:, tel:, data: ...).
func ResolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || href[0] == '#' {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs, err := frontier.Normalize(base.ResolveReference(ref).String())
	if err != nil {
		return "", false
	}
	return abs, true
}
