package sep2

import (
	"fmt"
	"strconv"
	"strings"
)

// Served resources need stable mRIDs that survive restarts, so they are
// derived from the row id with a type tag rather than stored. The layout is
// 12 zero hex chars, a 4 hex char tag, then the id as 16 hex chars. Clients
// treat the whole as opaque; the server decodes Response subjects with it.
const (
	MRIDTagControlGroup uint16 = 0x5C60
	MRIDTagDOE          uint16 = 0x0D0E
	MRIDTagTariff       uint16 = 0x7A1F
	MRIDTagFSA          uint16 = 0x0F5A
	// Rate tags encode the pricing reading type in the low bits.
	MRIDTagRateBase uint16 = 0x4A70
	// Rate component tags do too; the id is the day number since the epoch.
	MRIDTagRateComponentBase uint16 = 0x4C00
)

// EncodeMRID derives the mRID for a tagged row id.
func EncodeMRID(tag uint16, id int64) HexBinary {
	return HexBinary(fmt.Sprintf("%012x%04x%016x", 0, tag, uint64(id)))
}

// RateMRID derives the mRID for one price component of a generated rate.
func RateMRID(priceType PricingReadingType, rateID int64) HexBinary {
	return EncodeMRID(MRIDTagRateBase|uint16(priceType), rateID)
}

// DecodeMRID splits a derived mRID back into its tag and id. Returns false
// for anything that is not one of ours.
func DecodeMRID(mrid string) (uint16, int64, bool) {
	mrid = strings.ToLower(mrid)
	if len(mrid) != 32 || mrid[:12] != "000000000000" {
		return 0, 0, false
	}
	tag, err := strconv.ParseUint(mrid[12:16], 16, 16)
	if err != nil {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(mrid[16:], 16, 63)
	if err != nil {
		return 0, 0, false
	}
	return uint16(tag), int64(id), true
}
