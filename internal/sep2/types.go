// Package sep2 holds the IEEE 2030.5 / CSIP-AUS wire resources and identifier
// derivation rules. Resources marshal to application/sep+xml via encoding/xml.
package sep2

import "fmt"

// ContentTypeXML is the media type for every sep2 resource body.
const ContentTypeXML = "application/sep+xml"

// Namespaces for generated documents.
const (
	NamespaceSep2    = "urn:ieee:std:2030.5:ns"
	NamespaceCSIPAus = "https://csipaus.org/ns"
	NamespaceXSI     = "http://www.w3.org/2001/XMLSchema-instance"
)

// TimeType is seconds since the unix epoch, as used throughout 2030.5.
type TimeType int64

// HexBinary is a hex-encoded bit field (DeviceCategory, RoleFlags, ...).
type HexBinary string

// HexBinary32 formats v as the 8 char hex field sep2 uses for 32 bit flags.
func HexBinary32(v uint32) HexBinary {
	return HexBinary(fmt.Sprintf("%08x", v))
}

// Link is a sep2 Link element - an href pointing at a single resource.
type Link struct {
	Href string `xml:"href,attr"`
}

// ListLink points at a list resource and advertises how many entries it has.
type ListLink struct {
	Href string `xml:"href,attr"`
	All  *int   `xml:"all,attr,omitempty"`
}

// list carries the standard sep2 list attributes.
type list struct {
	Href    string `xml:"href,attr,omitempty"`
	All     int    `xml:"all,attr"`
	Results int    `xml:"results,attr"`
}

// ActivePower is watts = Value * 10^Multiplier.
type ActivePower struct {
	Multiplier int32 `xml:"multiplier"`
	Value      int64 `xml:"value"`
}

// ReactivePower is var = Value * 10^Multiplier.
type ReactivePower struct {
	Multiplier int32 `xml:"multiplier"`
	Value      int64 `xml:"value"`
}

// ValueMultiplier is the generic {value, multiplier} pair used by the DER
// rating/settings elements (voltage, VA, Ah, ...).
type ValueMultiplier struct {
	Multiplier int32 `xml:"multiplier"`
	Value      int64 `xml:"value"`
}

// PerCent is hundredths of a percent (0 - 10000).
type PerCent uint16

// Error is the sep2 Error resource returned for failed requests.
type Error struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns Error"`
	// ReasonCode 0 = invalid request format, per Table 27.
	ReasonCode int    `xml:"reasonCode"`
	Message    string `xml:"message,omitempty"`
}

// PricingReadingType enumerates the four price components every
// TariffGeneratedRate is exposed as.
type PricingReadingType int16

const (
	PriceImportActive   PricingReadingType = 1
	PriceExportActive   PricingReadingType = 2
	PriceImportReactive PricingReadingType = 3
	PriceExportReactive PricingReadingType = 4
)

// AllPricingReadingTypes in display order.
var AllPricingReadingTypes = []PricingReadingType{
	PriceImportActive, PriceExportActive, PriceImportReactive, PriceExportReactive,
}
