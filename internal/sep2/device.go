package sep2

// DeviceCapability is the root discovery resource (/dcap).
type DeviceCapability struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DeviceCapability"`
	Href    string   `xml:"href,attr"`

	PollRate *int `xml:"pollRate,attr,omitempty"`

	TimeLink              *Link     `xml:"TimeLink,omitempty"`
	EndDeviceListLink     *ListLink `xml:"EndDeviceListLink,omitempty"`
	MirrorUsagePointsLink *ListLink `xml:"MirrorUsagePointListLink,omitempty"`
}

// Time is the server clock resource (/tm).
type Time struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns Time"`
	Href    string   `xml:"href,attr"`

	CurrentTime  TimeType `xml:"currentTime"`
	DstEndTime   TimeType `xml:"dstEndTime"`
	DstOffset    int32    `xml:"dstOffset"`
	DstStartTime TimeType `xml:"dstStartTime"`
	LocalTime    TimeType `xml:"localTime,omitempty"`
	// Quality 4: time obtained from external authoritative source.
	Quality  int8  `xml:"quality"`
	TzOffset int32 `xml:"tzOffset"`
}

// EndDevice is a registered site / device (/edev/{id}).
type EndDevice struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns EndDevice"`
	Href    string   `xml:"href,attr,omitempty"`

	LFDI           HexBinary `xml:"lFDI,omitempty"`
	SFDI           int64     `xml:"sFDI"`
	ChangedTime    TimeType  `xml:"changedTime"`
	DeviceCategory HexBinary `xml:"deviceCategory,omitempty"`
	Enabled        *bool     `xml:"enabled,omitempty"`
	PostRate       *int      `xml:"postRate,omitempty"`

	ConnectionPointLink            *Link     `xml:"ConnectionPointLink,omitempty"`
	DERListLink                    *ListLink `xml:"DERListLink,omitempty"`
	FunctionSetAssignmentsListLink *ListLink `xml:"FunctionSetAssignmentsListLink,omitempty"`
	RegistrationLink               *Link     `xml:"RegistrationLink,omitempty"`
	SubscriptionListLink           *ListLink `xml:"SubscriptionListLink,omitempty"`
	ResponseSetListLink            *ListLink `xml:"ResponseSetListLink,omitempty"`
}

// EndDeviceList is /edev.
type EndDeviceList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns EndDeviceList"`
	list
	PollRate *int `xml:"pollRate,attr,omitempty"`

	EndDevices []EndDevice `xml:"EndDevice"`
}

// EndDeviceRequest is the body of POST /edev.
type EndDeviceRequest struct {
	XMLName struct{} `xml:"EndDevice"`

	LFDI           HexBinary `xml:"lFDI"`
	SFDI           int64     `xml:"sFDI"`
	DeviceCategory HexBinary `xml:"deviceCategory"`
	PostRate       *int      `xml:"postRate"`
}

// Registration carries the out-of-band confirmation PIN (/edev/{id}/rg).
type Registration struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns Registration"`
	Href    string   `xml:"href,attr"`

	PollRate           *int     `xml:"pollRate,attr,omitempty"`
	DateTimeRegistered TimeType `xml:"dateTimeRegistered"`
	// The 5 digit registration PIN plus a sum-of-digits check digit, as the
	// standard encodes pIN.
	PIN int64 `xml:"pIN"`
}

// ConnectionPoint is the CSIP-AUS extension carrying the NMI (/edev/{id}/cp).
type ConnectionPoint struct {
	XMLName struct{} `xml:"https://csipaus.org/ns ConnectionPoint"`
	Href    string   `xml:"href,attr,omitempty"`

	ConnectionPointID string `xml:"connectionPointId"`
}

// ConnectionPointRequest is the body of PUT /edev/{id}/cp.
type ConnectionPointRequest struct {
	XMLName struct{} `xml:"ConnectionPoint"`

	ConnectionPointID string `xml:"connectionPointId"`
}

// FunctionSetAssignments links an EndDevice to the function sets that apply
// to it (/edev/{id}/fsa/{fsa}).
type FunctionSetAssignments struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns FunctionSetAssignments"`
	Href    string   `xml:"href,attr"`

	MRID        HexBinary `xml:"mRID"`
	Description string    `xml:"description,omitempty"`

	DERProgramListLink    *ListLink `xml:"DERProgramListLink,omitempty"`
	TariffProfileListLink *ListLink `xml:"TariffProfileListLink,omitempty"`
	TimeLink              *Link     `xml:"TimeLink,omitempty"`
}

// FunctionSetAssignmentsList is /edev/{id}/fsa.
type FunctionSetAssignmentsList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns FunctionSetAssignmentsList"`
	list
	PollRate *int `xml:"pollRate,attr,omitempty"`

	FunctionSetAssignments []FunctionSetAssignments `xml:"FunctionSetAssignments"`
}
