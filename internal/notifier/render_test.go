package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridserve/internal/models"
	"gridserve/internal/server"
)

func TestInnerXML(t *testing.T) {
	assert.Equal(t, []byte("<a>1</a>"), innerXML([]byte("<Root><a>1</a></Root>")))
	assert.Equal(t, []byte(""), innerXML([]byte("<Root></Root>")))
	assert.Nil(t, innerXML([]byte("not xml")))
	assert.Nil(t, innerXML(nil))
}

func TestPowerEncoding(t *testing.T) {
	r := &renderer{pow10: -2}
	p := r.power(f64(1500.126))
	require.NotNil(t, p)
	assert.Equal(t, int64(150013), p.Value)
	assert.Equal(t, int32(-2), p.Multiplier)

	assert.Nil(t, r.power(nil))

	whole := &renderer{pow10: 0}
	assert.Equal(t, int64(1500), whole.power(f64(1500.4)).Value)
}

func f64(v float64) *float64 { return &v }

func TestRenderSites(t *testing.T) {
	r := &renderer{hrefs: server.Hrefs{}, pow10: -2}
	changed := time.Unix(1700000000, 0).UTC()
	p, err := r.sites([]models.Site{
		{SiteID: 7, LFDI: "3e4f45ab31edfe5b67e343e5e4562e31984e23e5", SFDI: 167261211391, ChangedTime: changed, DeviceCategory: 0x0F},
	})
	require.NoError(t, err)

	assert.Equal(t, "EndDeviceList", p.xsiType)
	assert.True(t, p.list)
	assert.Equal(t, 1, p.count)
	raw := string(p.raw)
	assert.Contains(t, raw, `href="/edev/7"`)
	assert.Contains(t, raw, "<lFDI>3e4f45ab31edfe5b67e343e5e4562e31984e23e5</lFDI>")
	assert.Contains(t, raw, "<sFDI>167261211391</sFDI>")

	res := p.resource()
	require.NotNil(t, res.All)
	assert.Equal(t, 1, *res.All)
}

func TestRenderControls(t *testing.T) {
	r := &renderer{hrefs: server.Hrefs{}, pow10: -2}
	now := time.Unix(1700000000, 0).UTC()
	importLimit := 5000.0
	p, err := r.controls(7, 2, []models.DynamicOperatingEnvelope{
		{
			DynamicOperatingEnvelopeID: 9,
			SiteID:                     7,
			StartTime:                  now.Add(-time.Minute),
			EndTime:                    now.Add(time.Hour),
			ChangedTime:                now,
			ImportLimitActiveWatts:     &importLimit,
		},
		{
			DynamicOperatingEnvelopeID: 10,
			SiteID:                     7,
			StartTime:                  now.Add(time.Hour),
			EndTime:                    now.Add(2 * time.Hour),
			ChangedTime:                now,
		},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, "DERControlList", p.xsiType)
	assert.Equal(t, 2, p.count)
	raw := string(p.raw)
	assert.Contains(t, raw, `href="/edev/7/derp/2/derc/9"`)
	assert.Contains(t, raw, "<mRID>0000000000000d0e0000000000000009</mRID>")
	// Only the first control is currently active.
	assert.Contains(t, raw, "<currentStatus>1</currentStatus>")
	assert.Contains(t, raw, "<currentStatus>0</currentStatus>")
	assert.Contains(t, raw, "<value>500000</value>")
}
