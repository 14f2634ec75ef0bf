// Package admin is the operator facing JSON API: aggregator and certificate
// management, site visibility, control and tariff ingestion, calculation
// audit logs and archive access.
package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 500

	maxBodyBytes = 10 << 20
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body, rejecting unknown fields so operator
// typos surface as errors instead of silently dropped data.
func readJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pageParams reads start/limit query parameters with the admin defaults.
func pageParams(r *http.Request) (start, limit int) {
	start, limit = 0, defaultPageLimit
	if raw := r.URL.Query().Get("start"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			start = v
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return start, limit
}

// afterParam reads the optional changed-since watermark.
func afterParam(r *http.Request) time.Time {
	raw := r.URL.Query().Get("after")
	if raw == "" {
		return time.Time{}
	}
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// writePage emits the standard pagination envelope with the items under the
// given key.
func writePage(w http.ResponseWriter, total, start, limit int, key string, items any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"total_count": total,
		"start":       start,
		"limit":       limit,
		key:           items,
	})
}

// pathID parses one numeric path segment.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// pathTime parses an epoch-seconds path segment.
func pathTime(r *http.Request, name string) (time.Time, error) {
	epoch, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return time.Time{}, errors.New("invalid " + name)
	}
	return time.Unix(epoch, 0).UTC(), nil
}
