package spider

import (
	"net/url"
	"sort"
	"strings"
)

// linkSet records item links by canonical form so that listing pages
// linking the same item with a fragment, a default port, a reordered query
// or a trailing slash yield one fetch.
type linkSet map[string]struct{}

// add reports whether raw was new.
func (s linkSet) add(raw string) bool {
	key := canonicalURL(raw)
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = u.Hostname()
	}

	if u.RawQuery != "" {
		params := u.Query()
		for _, vals := range params {
			sort.Strings(vals)
		}
		// Encode sorts by key.
		u.RawQuery = params.Encode()
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
