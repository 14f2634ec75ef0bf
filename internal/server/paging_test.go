package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePagingDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/edev", nil)
	p := parsePaging(r)
	assert.Equal(t, 0, p.Start)
	assert.Equal(t, defaultPageLimit, p.Limit)
	assert.Equal(t, time.Unix(0, 0).UTC(), p.After)
}

func TestParsePagingQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/edev?s=3&l=25&a=1700000000", nil)
	p := parsePaging(r)
	assert.Equal(t, 3, p.Start)
	assert.Equal(t, 25, p.Limit)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), p.After)
}

func TestParsePagingZeroLimitMeansAttributesOnly(t *testing.T) {
	r := httptest.NewRequest("GET", "/edev?l=0", nil)
	assert.Equal(t, 0, parsePaging(r).Limit)
}

func TestParsePagingCapsLimit(t *testing.T) {
	r := httptest.NewRequest("GET", "/edev?l=100000", nil)
	assert.Equal(t, maxPageLimit, parsePaging(r).Limit)
}

func TestParsePagingIgnoresGarbage(t *testing.T) {
	r := httptest.NewRequest("GET", "/edev?s=-1&l=abc&a=-5", nil)
	p := parsePaging(r)
	assert.Equal(t, 0, p.Start)
	assert.Equal(t, defaultPageLimit, p.Limit)
	assert.Equal(t, time.Unix(0, 0).UTC(), p.After)
}

func TestPathID(t *testing.T) {
	r := httptest.NewRequest("GET", "/edev/42", nil)
	r.SetPathValue("site", "42")
	id, ok := pathID(r, "site")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	r.SetPathValue("site", "-1")
	_, ok = pathID(r, "site")
	assert.False(t, ok)

	r.SetPathValue("site", "abc")
	_, ok = pathID(r, "site")
	assert.False(t, ok)
}
