// Package urlutil normalizes candidate URLs so the same resource always
// produces the same dedup key.
package urlutil

import (
	"net/url"
	"regexp"
	"strings"
)

// trackingParams are query parameters stripped during canonicalization.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"ref":          {},
	"ref_src":      {},
}

// arxivVersionRe matches an abs/pdf arXiv path carrying a version suffix.
var arxivVersionRe = regexp.MustCompile(`^(/(?:abs|pdf)/\d+\.\d+)v\d+$`)

// Canonicalize returns the canonical form of rawURL. The operation is
// idempotent: Canonicalize(Canonicalize(u)) == Canonicalize(u). An empty or
// unparsable input yields "".
func Canonicalize(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = filterQuery(u.RawQuery)

	path := strings.ToLower(u.Path)
	path = strings.TrimRight(path, "/")
	if path == "" {
		path = "/"
	}
	if isArxivHost(u.Host) {
		if m := arxivVersionRe.FindStringSubmatch(path); m != nil {
			path = m[1]
		}
	}
	u.Path = path
	u.RawPath = ""

	return u.String()
}

// filterQuery drops tracking parameters while preserving the order of the
// remaining ones.
func filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if idx := strings.Index(pair, "="); idx >= 0 {
			key = pair[:idx]
		}
		if _, drop := trackingParams[strings.ToLower(key)]; drop {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

func isArxivHost(host string) bool {
	return host == "arxiv.org" || strings.HasSuffix(host, ".arxiv.org")
}
