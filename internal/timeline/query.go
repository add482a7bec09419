package timeline

import "strings"

// MinQueryLength is the shortest non-empty query accepted for streaming.
const MinQueryLength = 2

// SearchQuery is a validated query string. The zero value is EmptyQuery,
// the "no active query" sentinel. Non-empty instances can only be built
// through NewSearchQuery, so every non-sentinel value meets the minimum
// length requirement.
type SearchQuery struct {
	value string
}

// EmptyQuery is the sentinel meaning no active query.
var EmptyQuery = SearchQuery{}

// NewSearchQuery validates s and wraps it. The empty string yields
// EmptyQuery. Strings shorter than MinQueryLength or made of only
// whitespace are rejected with ok=false.
func NewSearchQuery(s string) (SearchQuery, bool) {
	if s == "" {
		return EmptyQuery, true
	}
	if len(s) < MinQueryLength || strings.TrimSpace(s) == "" {
		return SearchQuery{}, false
	}
	return SearchQuery{value: s}, true
}

// Value returns the wrapped query string.
func (q SearchQuery) Value() string { return q.value }

// IsEmpty reports whether q is the no-active-query sentinel.
func (q SearchQuery) IsEmpty() bool { return q.value == "" }
