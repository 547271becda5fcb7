// Package source implements the upstream adapters feeding raw postings
// into the pipeline. Each adapter owns its provider's URL scheme, paging
// and authentication, and returns one RawPosting per upstream item with
// the item's own JSON as payload. Rate limiting and retry wrap adapters
// as decorators.
package source

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const userAgent = "conveyor/1.0 (+https://github.com/nextrole/conveyor)"

// rawID extracts a string id from a raw JSON value that providers encode
// as either a number or a string.
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "null" {
		return ""
	}
	return s
}

// parseRetryAfter parses a Retry-After header in seconds format. Returns
// zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
