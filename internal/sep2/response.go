package sep2

// Response types per Table 27 of the standard.
const (
	ResponseEventReceived   = 1
	ResponseEventStarted    = 2
	ResponseEventCompleted  = 3
	ResponseEventSuperseded = 5
)

// Response is a client acknowledgement of an event resource
// (/edev/{site}/rsps/{set}/rsp/{id}).
type Response struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns Response"`
	Href    string   `xml:"href,attr,omitempty"`

	CreatedDateTime TimeType  `xml:"createdDateTime"`
	EndDeviceLFDI   HexBinary `xml:"endDeviceLFDI"`
	Status          *int      `xml:"status,omitempty"`
	Subject         HexBinary `xml:"subject"`
}

// ResponseRequest is the POST body for a response list.
type ResponseRequest struct {
	XMLName struct{} `xml:"Response"`

	CreatedDateTime *TimeType `xml:"createdDateTime"`
	EndDeviceLFDI   HexBinary `xml:"endDeviceLFDI"`
	Status          *int      `xml:"status"`
	Subject         HexBinary `xml:"subject"`
}

// ResponseList is /edev/{site}/rsps/{set}/rsp.
type ResponseList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns ResponseList"`
	list
	Responses []Response `xml:"Response"`
}

// ResponseSet groups responses by the event type they acknowledge.
type ResponseSet struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns ResponseSet"`
	Href    string   `xml:"href,attr"`

	MRID        HexBinary `xml:"mRID"`
	Description string    `xml:"description,omitempty"`

	ResponseListLink *ListLink `xml:"ResponseListLink,omitempty"`
}

// ResponseSetList is /edev/{site}/rsps.
type ResponseSetList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns ResponseSetList"`
	list
	ResponseSets []ResponseSet `xml:"ResponseSet"`
}
