package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridserve/internal/models"
)

func ptr(v int64) *int64 { return &v }

func TestParseSubscribedResource(t *testing.T) {
	cases := []struct {
		href     string
		resource models.SubscriptionResource
		siteID   *int64
		rid      *int64
	}{
		{"/edev", models.ResourceSite, nil, nil},
		{"/edev/", models.ResourceSite, nil, nil},
		{"/edev/12", models.ResourceSite, ptr(12), nil},
		{"/edev/12/fsa", models.ResourceFunctionSetAssignments, ptr(12), nil},
		{"/edev/12/derp", models.ResourceSiteControlGroup, ptr(12), nil},
		{"/edev/12/derp/3/derc", models.ResourceDynamicOperatingEnvelope, ptr(12), ptr(3)},
		{"/edev/12/derp/3/dderc", models.ResourceDefaultSiteControl, ptr(12), ptr(3)},
		{"/edev/12/tp/7/rc", models.ResourceTariffGeneratedRate, ptr(12), ptr(7)},
		{"/edev/12/der/1/dera", models.ResourceSiteDERAvailability, ptr(12), ptr(1)},
		{"/edev/12/der/1/dercap", models.ResourceSiteDERRating, ptr(12), ptr(1)},
		{"/edev/12/der/1/derg", models.ResourceSiteDERSetting, ptr(12), ptr(1)},
		{"/edev/12/der/1/ders", models.ResourceSiteDERStatus, ptr(12), ptr(1)},
		{"/mup/5", models.ResourceReading, nil, ptr(5)},
	}
	for _, c := range cases {
		resource, siteID, rid, err := parseSubscribedResource(c.href, "")
		require.NoError(t, err, "href %q", c.href)
		assert.Equal(t, c.resource, resource, "href %q", c.href)
		assert.Equal(t, c.siteID, siteID, "href %q", c.href)
		assert.Equal(t, c.rid, rid, "href %q", c.href)
	}
}

func TestParseSubscribedResourceStripsPrefix(t *testing.T) {
	resource, siteID, _, err := parseSubscribedResource("/api/v1/edev/12", "/api/v1")
	require.NoError(t, err)
	assert.Equal(t, models.ResourceSite, resource)
	assert.Equal(t, ptr(12), siteID)
}

func TestParseSubscribedResourceRejectsUnknown(t *testing.T) {
	for _, href := range []string{
		"",
		"/dcap",
		"/tm",
		"/edev/abc",
		"/edev/-1",
		"/edev/12/derp/3",
		"/edev/12/derp/3/actderc",
		"/edev/12/tp/7",
		"/edev/12/der/1",
		"/edev/12/der/1/unknown",
		"/mup",
		"/mup/abc",
	} {
		_, _, _, err := parseSubscribedResource(href, "")
		assert.Error(t, err, "href %q", href)
	}
}

func TestSubscribedResourceHrefRoundTrip(t *testing.T) {
	hrefs := Hrefs{Prefix: "/api/v1"}
	for _, href := range []string{
		"/api/v1/edev/12",
		"/api/v1/edev/12/fsa",
		"/api/v1/edev/12/derp",
		"/api/v1/edev/12/derp/3/derc",
		"/api/v1/edev/12/derp/3/dderc",
		"/api/v1/edev/12/tp/7/rc",
		"/api/v1/edev/12/der/1/dera",
		"/api/v1/edev/12/der/1/dercap",
		"/api/v1/edev/12/der/1/derg",
		"/api/v1/edev/12/der/1/ders",
		"/api/v1/mup/5",
	} {
		resource, siteID, rid, err := parseSubscribedResource(href, hrefs.Prefix)
		require.NoError(t, err, "href %q", href)
		sub := &models.Subscription{
			ResourceType: resource,
			ScopedSiteID: siteID,
			ResourceID:   rid,
		}
		assert.Equal(t, href, SubscribedResourceHref(hrefs, sub, 12), "href %q", href)
	}
}

func TestSubscribedResourceHrefUnscopedSiteList(t *testing.T) {
	hrefs := Hrefs{}
	sub := &models.Subscription{ResourceType: models.ResourceSite}
	assert.Equal(t, "/edev", SubscribedResourceHref(hrefs, sub, 12))
}
