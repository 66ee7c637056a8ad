package shared

import (
	"net/http"
	"strconv"
)

// Pagination bounds for collection endpoints.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// PageParams reads limit and offset from the query string, clamping them to
// sane bounds. Unparseable values fall back to the defaults.
func PageParams(r *http.Request) (limit, offset int) {
	limit = DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
