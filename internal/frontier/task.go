package frontier

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// URLTask is one unit of crawl work. Depth is the number of link hops
// from the seed that produced it.
type URLTask struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

var ErrUnsupportedURL = errors.New("unsupported url")

// Normalize returns the canonical form used for dedup: lowercase scheme
// and host, no fragment, no default port, "/" for an empty path.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrUnsupportedURL
	}
	if u.Host == "" {
		return "", ErrUnsupportedURL
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Host returns the host[:port] of a normalised URL, or "" when it does
// not parse.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
