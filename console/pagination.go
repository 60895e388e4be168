package console

import (
	"net/http"
	"strconv"

	"github.com/jmcleod/tokendesk/tokens"
)

const maxPageLimit = 1000

// PageMeta describes the page of the upstream collection a list came from.
type PageMeta struct {
	Skip    int  `json:"skip"`
	Limit   int  `json:"limit"`
	Count   int  `json:"count"`
	HasMore bool `json:"has_more"`
}

// parsePagination reads "skip" and "limit" query parameters. Missing or
// invalid values fall back to the tokens store defaults; limit is capped at
// maxPageLimit.
func parsePagination(r *http.Request) (skip, limit int) {
	q := r.URL.Query()

	limit = tokens.DefaultLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	skip = tokens.DefaultSkip
	if v := q.Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			skip = n
		}
	}

	return skip, limit
}

// pageMeta fills PageMeta for a page that returned count records. A full
// page may be followed by more.
func pageMeta(skip, limit, count int) PageMeta {
	return PageMeta{
		Skip:    skip,
		Limit:   limit,
		Count:   count,
		HasMore: count >= limit,
	}
}
