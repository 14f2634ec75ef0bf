package sep2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidLFDI(t *testing.T) {
	assert.True(t, IsValidLFDI("3e4f45ab31edfe5b67e343e5e4562e31984e23e5"))
	assert.True(t, IsValidLFDI("3E4F45AB31EDFE5B67E343E5E4562E31984E23E5"))
	assert.False(t, IsValidLFDI("3e4f45ab31edfe5b67e343e5e4562e31984e23e"))   // too short
	assert.False(t, IsValidLFDI("3e4f45ab31edfe5b67e343e5e4562e31984e23e5a")) // too long
	assert.False(t, IsValidLFDI("ze4f45ab31edfe5b67e343e5e4562e31984e23e5"))  // not hex
	assert.False(t, IsValidLFDI(""))
}

func TestSFDIFromLFDI(t *testing.T) {
	// Worked example from the standard: first 36 bits 0x3E4F45AB3 =
	// 16726121139, digit sum 39, checksum (10 - 39 mod 10) mod 10 = 1.
	sfdi, err := SFDIFromLFDI("3e4f45ab31edfe5b67e343e5e4562e31984e23e5")
	require.NoError(t, err)
	assert.Equal(t, int64(167261211391), sfdi)

	_, err = SFDIFromLFDI("3e4f")
	assert.Error(t, err)
	_, err = SFDIFromLFDI("zzzz45ab31edfe5b67e343e5e4562e31984e23e5")
	assert.Error(t, err)
}

func TestSFDIChecksumIsZeroSum(t *testing.T) {
	sfdi, err := SFDIFromLFDI("0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sfdi)
}

func TestLFDIFromFingerprint(t *testing.T) {
	fingerprint := "0F1C2D3E4F5A6B7C8D9E0F1C2D3E4F5A6B7C8D9E0F1C2D3E4F5A6B7C8D9E0F1C"
	lfdi, err := LFDIFromFingerprint(fingerprint)
	require.NoError(t, err)
	assert.Equal(t, "0f1c2d3e4f5a6b7c8d9e0f1c2d3e4f5a6b7c8d9e", lfdi)

	_, err = LFDIFromFingerprint("not-hex")
	assert.Error(t, err)
}

func TestNewMRIDShape(t *testing.T) {
	mrid := NewMRID()
	assert.True(t, IsValidMRID(mrid))
	assert.NotEqual(t, mrid, NewMRID())
}
