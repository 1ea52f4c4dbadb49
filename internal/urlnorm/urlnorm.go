package urlnorm

import (
	"fmt"
	"net/url"
	"strings"
)

// Tracking parameters stripped during canonicalization.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
}

// Normalize canonicalizes a candidate link: tracking parameters are dropped,
// trailing slashes on a non-root path are removed, everything else is
// preserved verbatim (paths stay case-sensitive). Normalize is a projection:
// applying it twice yields the same result.
func Normalize(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	parsed.RawQuery = stripTracking(parsed.RawQuery)
	parsed.Fragment = ""

	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
		if parsed.RawPath != "" {
			parsed.RawPath = strings.TrimRight(parsed.RawPath, "/")
		}
		if parsed.Path == "" {
			parsed.Path = "/"
			parsed.RawPath = ""
		}
	}

	return parsed.String(), nil
}

// stripTracking filters utm parameters while keeping the remaining query
// string in its original order and encoding.
func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		name := part
		if idx := strings.IndexByte(part, '='); idx >= 0 {
			name = part[:idx]
		}
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if _, tracking := trackingParams[strings.ToLower(name)]; tracking {
			continue
		}
		kept = append(kept, part)
	}

	return strings.Join(kept, "&")
}

// DedupSet holds the canonical URLs already stored for one client. It is
// loaded once per batch run and extended as candidates are accepted, so two
// near-identical items inside the same batch cannot both pass.
type DedupSet struct {
	seen map[string]struct{}
}

// NewDedupSet preloads previously stored canonical URLs.
func NewDedupSet(known []string) *DedupSet {
	set := &DedupSet{seen: make(map[string]struct{}, len(known))}
	for _, u := range known {
		set.seen[u] = struct{}{}
	}
	return set
}

// Seen reports whether the canonical URL was already stored or accepted.
func (s *DedupSet) Seen(canonical string) bool {
	_, ok := s.seen[canonical]
	return ok
}

// Add marks a canonical URL as accepted for the remainder of the run.
func (s *DedupSet) Add(canonical string) {
	s.seen[canonical] = struct{}{}
}
