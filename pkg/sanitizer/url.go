package sanitizer

import (
	"net/url"
	"strings"
)

// NormalizeFeedURL rewrites webcal links to https and lowercases the scheme
// and host. Path and query are kept verbatim since calendar providers put
// case sensitive secrets there.
func NormalizeFeedURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}

	switch strings.ToLower(u.Scheme) {
	case "webcal", "webcals":
		u.Scheme = "https"
	default:
		u.Scheme = strings.ToLower(u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)

	return u.String()
}
