package server

import (
	"net/http"
	"strconv"
	"time"
)

// Sep2 list paging caps. A limit of 0 returns attributes only; the standard
// default is one entry per page.
const (
	defaultPageLimit = 1
	maxPageLimit     = 500
)

// paging holds the parsed sep2 list query parameters: s (start index),
// l (limit) and a (changed-after watermark, epoch seconds).
type paging struct {
	Start int
	Limit int
	After time.Time
}

func parsePaging(r *http.Request) paging {
	p := paging{Start: 0, Limit: defaultPageLimit, After: time.Unix(0, 0).UTC()}

	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("s")); err == nil && v >= 0 {
		p.Start = v
	}
	if raw := q.Get("l"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			p.Limit = v
		}
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if v, err := strconv.ParseInt(q.Get("a"), 10, 64); err == nil && v > 0 {
		p.After = time.Unix(v, 0).UTC()
	}
	return p
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
