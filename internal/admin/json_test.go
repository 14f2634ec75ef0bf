package admin

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/aggregator", nil)
	start, limit := pageParams(r)
	assert.Equal(t, 0, start)
	assert.Equal(t, defaultPageLimit, limit)

	r = httptest.NewRequest("GET", "/aggregator?start=40&limit=20", nil)
	start, limit = pageParams(r)
	assert.Equal(t, 40, start)
	assert.Equal(t, 20, limit)

	r = httptest.NewRequest("GET", "/aggregator?start=-1&limit=0", nil)
	start, limit = pageParams(r)
	assert.Equal(t, 0, start)
	assert.Equal(t, defaultPageLimit, limit)

	r = httptest.NewRequest("GET", "/aggregator?limit=100000", nil)
	_, limit = pageParams(r)
	assert.Equal(t, maxPageLimit, limit)
}

func TestAfterParam(t *testing.T) {
	r := httptest.NewRequest("GET", "/site", nil)
	assert.True(t, afterParam(r).IsZero())

	r = httptest.NewRequest("GET", "/site?after=1700000000", nil)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), afterParam(r))

	r = httptest.NewRequest("GET", "/site?after=2024-05-01T10:00:00Z", nil)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), afterParam(r))

	r = httptest.NewRequest("GET", "/site?after=yesterday", nil)
	assert.True(t, afterParam(r).IsZero())
}

func TestWritePage(t *testing.T) {
	w := httptest.NewRecorder()
	writePage(w, 42, 10, 5, "sites", []string{"a", "b"})

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(42), body["total_count"])
	assert.Equal(t, float64(10), body["start"])
	assert.Equal(t, float64(5), body["limit"])
	assert.Equal(t, []any{"a", "b"}, body["sites"])
}

func TestReadJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest("POST", "/aggregator", strings.NewReader(`{"name":"x","bogus":1}`))
	w := httptest.NewRecorder()
	assert.False(t, readJSON(w, r, &target))
	assert.Equal(t, 400, w.Code)

	r = httptest.NewRequest("POST", "/aggregator", strings.NewReader(`{"name":"x"}`))
	w = httptest.NewRecorder()
	require.True(t, readJSON(w, r, &target))
	assert.Equal(t, "x", target.Name)
}

func TestPathTime(t *testing.T) {
	r := httptest.NewRequest("GET", "/calculation_log/period/1700000000/1700003600", nil)
	r.SetPathValue("period_start", "1700000000")
	got, err := pathTime(r, "period_start")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got)

	r.SetPathValue("period_start", "noon")
	_, err = pathTime(r, "period_start")
	assert.Error(t, err)
}
