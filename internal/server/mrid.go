package server

import "gridserve/internal/sep2"

// Local aliases for the derived mRID scheme.
const (
	mridTagControlGroup      = sep2.MRIDTagControlGroup
	mridTagDOE               = sep2.MRIDTagDOE
	mridTagTariff            = sep2.MRIDTagTariff
	mridTagFSA               = sep2.MRIDTagFSA
	mridTagRateBase          = sep2.MRIDTagRateBase
	mridTagRateComponentBase = sep2.MRIDTagRateComponentBase
)

func encodeMRID(tag uint16, id int64) sep2.HexBinary {
	return sep2.EncodeMRID(tag, id)
}

func rateMRID(priceType sep2.PricingReadingType, rateID int64) sep2.HexBinary {
	return sep2.RateMRID(priceType, rateID)
}

func decodeMRID(mrid string) (uint16, int64, bool) {
	return sep2.DecodeMRID(mrid)
}
