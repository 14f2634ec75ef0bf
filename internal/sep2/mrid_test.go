package sep2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMRID(t *testing.T) {
	mrid := EncodeMRID(MRIDTagDOE, 0x2A)
	assert.Equal(t, HexBinary("0000000000000d0e000000000000002a"), mrid)
	assert.Len(t, string(mrid), 32)
}

func TestDecodeMRIDRoundTrip(t *testing.T) {
	for _, tag := range []uint16{MRIDTagControlGroup, MRIDTagDOE, MRIDTagTariff, MRIDTagFSA} {
		mrid := EncodeMRID(tag, 9001)
		gotTag, gotID, ok := DecodeMRID(string(mrid))
		require.True(t, ok)
		assert.Equal(t, tag, gotTag)
		assert.Equal(t, int64(9001), gotID)
	}
}

func TestDecodeMRIDRejectsForeignIDs(t *testing.T) {
	cases := []string{
		"",
		"0d0e000000000000002a",                 // too short
		"ffffffffffff0d0e000000000000002a",     // non-zero prefix
		"0000000000000d0e00000000000000zz",     // not hex
		"00000000000000000d0e000000000000002a", // too long
	}
	for _, c := range cases {
		_, _, ok := DecodeMRID(c)
		assert.False(t, ok, "mrid %q", c)
	}
}

func TestRateMRIDEmbedsPriceType(t *testing.T) {
	for _, priceType := range AllPricingReadingTypes {
		mrid := RateMRID(priceType, 77)
		tag, id, ok := DecodeMRID(string(mrid))
		require.True(t, ok)
		assert.Equal(t, MRIDTagRateBase|uint16(priceType), tag)
		assert.Equal(t, int64(77), id)
	}
}

func TestHexBinary32(t *testing.T) {
	assert.Equal(t, HexBinary("00000000"), HexBinary32(0))
	assert.Equal(t, HexBinary("0000000f"), HexBinary32(15))
	assert.Equal(t, HexBinary("ffffffff"), HexBinary32(0xFFFFFFFF))
}
