package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrationPIN(t *testing.T) {
	// Check digit makes the total digit sum a multiple of ten.
	cases := []struct {
		pin  int32
		want int64
	}{
		{0, 0},
		{12345, 123455},
		{11111, 111115},
		{99999, 999995},
		{10000, 100009},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, registrationPIN(c.pin), "pin %d", c.pin)
	}
}

func TestHrefPrefixJoining(t *testing.T) {
	h := Hrefs{Prefix: "/api/v1"}
	assert.Equal(t, "/api/v1/dcap", h.DeviceCapability())
	assert.Equal(t, "/api/v1/edev/7/derp/2/derc/9", h.DERControl(7, 2, 9))
	assert.Equal(t, "/api/v1/edev/7/tp/3/rc/2024-05-01/1/tti/88", h.TimeTariffInterval(7, 3, "2024-05-01", 1, 88))
	assert.Equal(t, "/api/v1/edev/7/rsps/doe/rsp", h.ResponseList(7, "doe"))

	bare := Hrefs{}
	assert.Equal(t, "/edev", bare.EndDeviceList())
	assert.Equal(t, "/mup/4", bare.MirrorUsagePoint(4))
}
