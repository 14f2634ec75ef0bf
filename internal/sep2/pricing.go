package sep2

// TariffProfile is a top level tariff (/tp/{tariff}).
type TariffProfile struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns TariffProfile"`
	Href    string   `xml:"href,attr"`

	MRID                      HexBinary `xml:"mRID"`
	Description               string    `xml:"description,omitempty"`
	Currency                  int       `xml:"currency"`
	PricePowerOfTenMultiplier int32     `xml:"pricePowerOfTenMultiplier"`
	RateCode                  string    `xml:"rateCode,omitempty"`
	// ServiceCategoryKind 0 = electricity.
	ServiceCategoryKind int `xml:"serviceCategoryKind"`

	RateComponentListLink *ListLink `xml:"RateComponentListLink,omitempty"`
}

// TariffProfileList is /tp (or the site scoped variant).
type TariffProfileList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns TariffProfileList"`
	list
	PollRate       *int            `xml:"pollRate,attr,omitempty"`
	TariffProfiles []TariffProfile `xml:"TariffProfile"`
}

// RateComponent groups the time tariff intervals for one day / price type
// (/tp/{tariff}/{site}/rc/{day}/{type}).
type RateComponent struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns RateComponent"`
	Href    string   `xml:"href,attr"`

	MRID        HexBinary `xml:"mRID"`
	Description string    `xml:"description,omitempty"`

	ReadingTypeLink            *Link     `xml:"ReadingTypeLink,omitempty"`
	TimeTariffIntervalListLink *ListLink `xml:"TimeTariffIntervalListLink,omitempty"`
}

// RateComponentList is /tp/{tariff}/{site}/rc.
type RateComponentList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns RateComponentList"`
	list
	RateComponents []RateComponent `xml:"RateComponent"`
}

// TimeTariffInterval is one priced interval.
type TimeTariffInterval struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns TimeTariffInterval"`
	Href    string   `xml:"href,attr,omitempty"`

	MRID        HexBinary        `xml:"mRID"`
	EventStatus EventStatus      `xml:"EventStatus"`
	Interval    DateTimeInterval `xml:"interval"`
	// TouTier 0: not using time-of-use tiers.
	TouTier int `xml:"touTier"`

	ConsumptionTariffIntervalListLink *ListLink `xml:"ConsumptionTariffIntervalListLink,omitempty"`
	ReplyToHref                       string    `xml:"replyTo,attr,omitempty"`
	ResponseRequired                  HexBinary `xml:"responseRequired,attr,omitempty"`
}

// TimeTariffIntervalList is .../tti.
type TimeTariffIntervalList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns TimeTariffIntervalList"`
	list
	TimeTariffIntervals []TimeTariffInterval `xml:"TimeTariffInterval"`
}

// ConsumptionTariffInterval is the price leaf: price is in hundredths of the
// currency unit per the sep2 price encoding, already scaled by the tariff's
// pricePowerOfTenMultiplier.
type ConsumptionTariffInterval struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns ConsumptionTariffInterval"`
	Href    string   `xml:"href,attr,omitempty"`

	ConsumptionBlock int   `xml:"consumptionBlock"`
	Price            int64 `xml:"price"`
	StartValue       int64 `xml:"startValue"`
}

// ConsumptionTariffIntervalList wraps the single price entry.
type ConsumptionTariffIntervalList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns ConsumptionTariffIntervalList"`
	list
	ConsumptionTariffIntervals []ConsumptionTariffInterval `xml:"ConsumptionTariffInterval"`
}

// ReadingTypeResource describes what a pricing reading type measures
// (/pricing/rt/{type}).
type ReadingTypeResource struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns ReadingType"`
	Href    string   `xml:"href,attr"`

	Commodity            int   `xml:"commodity"`
	FlowDirection        int   `xml:"flowDirection"`
	PowerOfTenMultiplier int32 `xml:"powerOfTenMultiplier"`
	Uom                  int   `xml:"uom"`
}
