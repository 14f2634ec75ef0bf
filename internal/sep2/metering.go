package sep2

// UsagePointRoleFlags values commonly posted by CSIP-AUS clients.
const (
	RoleFlagsIsMirror = 1 << 1
	RoleFlagsIsDER    = 1 << 6
)

// ReadingType describes the shared attributes of a MirrorMeterReading stream.
type ReadingType struct {
	AccumulationBehaviour int   `xml:"accumulationBehaviour"`
	Commodity             int   `xml:"commodity,omitempty"`
	DataQualifier         int   `xml:"dataQualifier"`
	FlowDirection         int   `xml:"flowDirection"`
	IntervalLength        int   `xml:"intervalLength,omitempty"`
	Kind                  int   `xml:"kind"`
	Phase                 int   `xml:"phase"`
	PowerOfTenMultiplier  int32 `xml:"powerOfTenMultiplier"`
	Uom                   int   `xml:"uom"`
}

// Reading is a single value in a reading set.
type Reading struct {
	LocalID      HexBinary         `xml:"localID,omitempty"`
	QualityFlags HexBinary         `xml:"qualityFlags,omitempty"`
	TimePeriod   *DateTimeInterval `xml:"timePeriod,omitempty"`
	Value        int64             `xml:"value"`
}

// MirrorReadingSet batches readings over an interval.
type MirrorReadingSet struct {
	MRID        HexBinary        `xml:"mRID"`
	Description string           `xml:"description,omitempty"`
	Version     *int             `xml:"version,omitempty"`
	TimePeriod  DateTimeInterval `xml:"timePeriod"`
	Readings    []Reading        `xml:"Reading"`
}

// MirrorMeterReading carries either a single Reading or reading sets for one
// reading type beneath a MirrorUsagePoint.
type MirrorMeterReading struct {
	XMLName struct{} `xml:"MirrorMeterReading"`

	MRID              HexBinary          `xml:"mRID"`
	Description       string             `xml:"description,omitempty"`
	LastUpdateTime    *TimeType          `xml:"lastUpdateTime,omitempty"`
	Reading           *Reading           `xml:"Reading,omitempty"`
	MirrorReadingSets []MirrorReadingSet `xml:"MirrorReadingSet"`
	ReadingType       *ReadingType       `xml:"ReadingType,omitempty"`
}

// MirrorUsagePoint is the mirroring endpoint a client creates to post
// readings (/mup/{mup}).
type MirrorUsagePoint struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns MirrorUsagePoint"`
	Href    string   `xml:"href,attr,omitempty"`

	MRID                HexBinary `xml:"mRID"`
	Description         string    `xml:"description,omitempty"`
	DeviceLFDI          HexBinary `xml:"deviceLFDI"`
	PostRate            *int      `xml:"postRate,omitempty"`
	RoleFlags           HexBinary `xml:"roleFlags"`
	ServiceCategoryKind int       `xml:"serviceCategoryKind"`
	Status              int       `xml:"status"`

	MirrorMeterReadings []MirrorMeterReading `xml:"MirrorMeterReading"`
}

// MirrorUsagePointRequest is the POST /mup (and POST /mup/{mup}) body.
type MirrorUsagePointRequest struct {
	XMLName struct{} `xml:"MirrorUsagePoint"`

	MRID                HexBinary `xml:"mRID"`
	Description         string    `xml:"description,omitempty"`
	DeviceLFDI          HexBinary `xml:"deviceLFDI"`
	PostRate            *int      `xml:"postRate,omitempty"`
	RoleFlags           HexBinary `xml:"roleFlags"`
	ServiceCategoryKind int       `xml:"serviceCategoryKind"`
	Status              int       `xml:"status"`

	MirrorMeterReadings []MirrorMeterReading `xml:"MirrorMeterReading"`
}

// MirrorUsagePointList is /mup.
type MirrorUsagePointList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns MirrorUsagePointList"`
	list
	PostRate          *int               `xml:"postRate,attr,omitempty"`
	MirrorUsagePoints []MirrorUsagePoint `xml:"MirrorUsagePoint"`
}
