package sep2

// DER is the placeholder resource beneath an EndDevice that anchors the four
// PUT/GET-able DER data elements (/edev/{id}/der/1).
type DER struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DER"`
	Href    string   `xml:"href,attr"`

	DERAvailabilityLink *Link `xml:"DERAvailabilityLink,omitempty"`
	DERCapabilityLink   *Link `xml:"DERCapabilityLink,omitempty"`
	DERSettingsLink     *Link `xml:"DERSettingsLink,omitempty"`
	DERStatusLink       *Link `xml:"DERStatusLink,omitempty"`
}

// DERList is /edev/{id}/der.
type DERList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DERList"`
	list
	PollRate *int  `xml:"pollRate,attr,omitempty"`
	DERs     []DER `xml:"DER"`
}

// DERCapability are the nameplate ratings of the DER (/edev/{id}/der/1/dercap).
type DERCapability struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DERCapability"`
	Href    string   `xml:"href,attr,omitempty"`

	ModesSupported       HexBinary        `xml:"modesSupported,omitempty"`
	DoeModesSupported    HexBinary        `xml:"doeModesSupported,omitempty"`
	RtgMaxW              ActivePower      `xml:"rtgMaxW"`
	RtgMaxVA             *ValueMultiplier `xml:"rtgMaxVA,omitempty"`
	RtgMaxVar            *ValueMultiplier `xml:"rtgMaxVar,omitempty"`
	RtgMaxChargeRateW    *ActivePower     `xml:"rtgMaxChargeRateW,omitempty"`
	RtgMaxDischargeRateW *ActivePower     `xml:"rtgMaxDischargeRateW,omitempty"`
	RtgMaxWh             *ValueMultiplier `xml:"rtgMaxWh,omitempty"`
	RtgVNom              *ValueMultiplier `xml:"rtgVNom,omitempty"`
	Type                 int              `xml:"type"`
}

// DERSettings are the present operator-adjusted settings (/edev/{id}/der/1/derg).
type DERSettings struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DERSettings"`
	Href    string   `xml:"href,attr,omitempty"`

	ModesEnabled         HexBinary        `xml:"modesEnabled,omitempty"`
	SetGradW             int32            `xml:"setGradW"`
	SetMaxW              ActivePower      `xml:"setMaxW"`
	SetMaxVA             *ValueMultiplier `xml:"setMaxVA,omitempty"`
	SetMaxVar            *ValueMultiplier `xml:"setMaxVar,omitempty"`
	SetMaxChargeRateW    *ActivePower     `xml:"setMaxChargeRateW,omitempty"`
	SetMaxDischargeRateW *ActivePower     `xml:"setMaxDischargeRateW,omitempty"`
	SetESDelay           *int32           `xml:"setESDelay,omitempty"`
	SetESHighFreq        *int32           `xml:"setESHighFreq,omitempty"`
	SetESHighVolt        *int32           `xml:"setESHighVolt,omitempty"`
	SetESLowFreq         *int32           `xml:"setESLowFreq,omitempty"`
	SetESLowVolt         *int32           `xml:"setESLowVolt,omitempty"`
	UpdatedTime          TimeType         `xml:"updatedTime"`
}

// DERAvailability is the availability estimate (/edev/{id}/der/1/dera).
type DERAvailability struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DERAvailability"`
	Href    string   `xml:"href,attr,omitempty"`

	AvailabilityDuration *int32           `xml:"availabilityDuration,omitempty"`
	MaxChargeDuration    *int32           `xml:"maxChargeDuration,omitempty"`
	ReadingTime          TimeType         `xml:"readingTime"`
	ReservePercent       *PerCent         `xml:"reservePercent,omitempty"`
	ReserveChargePercent *PerCent         `xml:"reserveChargePercent,omitempty"`
	StatVarAvail         *ValueMultiplier `xml:"statVarAvail,omitempty"`
	StatWAvail           *ValueMultiplier `xml:"statWAvail,omitempty"`
}

// ConnectStatusValue is a status value with the time it was recorded.
type ConnectStatusValue struct {
	DateTime TimeType  `xml:"dateTime"`
	Value    HexBinary `xml:"value"`
}

// StatusValue is a plain enumerated status with the time it was recorded.
type StatusValue struct {
	DateTime TimeType `xml:"dateTime"`
	Value    int      `xml:"value"`
}

// DERStatus is the current DER status (/edev/{id}/der/1/ders).
type DERStatus struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DERStatus"`
	Href    string   `xml:"href,attr,omitempty"`

	AlarmStatus            HexBinary                `xml:"alarmStatus,omitempty"`
	GenConnectStatus       *ConnectStatusValue      `xml:"genConnectStatus,omitempty"`
	InverterStatus         *StatusValue             `xml:"inverterStatus,omitempty"`
	LocalControlModeStatus *StatusValue             `xml:"localControlModeStatus,omitempty"`
	ManufacturerStatus     *ManufacturerStatusValue `xml:"manufacturerStatus,omitempty"`
	OperationalModeStatus  *StatusValue             `xml:"operationalModeStatus,omitempty"`
	ReadingTime            TimeType                 `xml:"readingTime"`
	StateOfChargeStatus    *StateOfChargeValue      `xml:"stateOfChargeStatus,omitempty"`
	StorageModeStatus      *StatusValue             `xml:"storageModeStatus,omitempty"`
}

// ManufacturerStatusValue is a short free-form status with timestamp.
type ManufacturerStatusValue struct {
	DateTime TimeType `xml:"dateTime"`
	Value    string   `xml:"value"`
}

// StateOfChargeValue is charge percent (hundredths) with timestamp.
type StateOfChargeValue struct {
	DateTime TimeType `xml:"dateTime"`
	Value    PerCent  `xml:"value"`
}

// DERProgram exposes one site control group (/edev/{id}/derp/{group}).
type DERProgram struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DERProgram"`
	Href    string   `xml:"href,attr"`

	MRID        HexBinary `xml:"mRID"`
	Description string    `xml:"description,omitempty"`
	Primacy     int       `xml:"primacy"`

	ActiveDERControlListLink *ListLink `xml:"ActiveDERControlListLink,omitempty"`
	DefaultDERControlLink    *Link     `xml:"DefaultDERControlLink,omitempty"`
	DERControlListLink       *ListLink `xml:"DERControlListLink,omitempty"`
}

// DERProgramList is /edev/{id}/derp.
type DERProgramList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DERProgramList"`
	list
	PollRate    *int         `xml:"pollRate,attr,omitempty"`
	DERPrograms []DERProgram `xml:"DERProgram"`
}

// EventStatus carries the scheduling state of an event resource.
type EventStatus struct {
	// CurrentStatus 0 = scheduled, 1 = active.
	CurrentStatus         int      `xml:"currentStatus"`
	DateTime              TimeType `xml:"dateTime"`
	PotentiallySuperseded bool     `xml:"potentiallySuperseded"`
}

// DateTimeInterval is a start + duration window.
type DateTimeInterval struct {
	Duration int64    `xml:"duration"`
	Start    TimeType `xml:"start"`
}

// DERControlBase holds the CSIP-AUS control values of a DERControl.
type DERControlBase struct {
	// csipaus extension limits.
	OpModImpLimW  *ActivePower `xml:"https://csipaus.org/ns opModImpLimW,omitempty"`
	OpModExpLimW  *ActivePower `xml:"https://csipaus.org/ns opModExpLimW,omitempty"`
	OpModGenLimW  *ActivePower `xml:"https://csipaus.org/ns opModGenLimW,omitempty"`
	OpModLoadLimW *ActivePower `xml:"https://csipaus.org/ns opModLoadLimW,omitempty"`

	OpModEnergize *bool `xml:"opModEnergize,omitempty"`
	OpModConnect  *bool `xml:"opModConnect,omitempty"`
}

// DERControl is a single dynamic operating envelope
// (/edev/{id}/derp/{group}/derc entries).
type DERControl struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DERControl"`
	Href    string   `xml:"href,attr,omitempty"`

	MRID             HexBinary        `xml:"mRID"`
	CreationTime     TimeType         `xml:"creationTime"`
	EventStatus      EventStatus      `xml:"EventStatus"`
	Interval         DateTimeInterval `xml:"interval"`
	RandomizeStart   *int16           `xml:"randomizeStart,omitempty"`
	ControlBase      DERControlBase   `xml:"DERControlBase"`
	ReplyToHref      string           `xml:"replyTo,attr,omitempty"`
	ResponseRequired HexBinary        `xml:"responseRequired,attr,omitempty"`
}

// DERControlList is /edev/{id}/derp/{group}/derc (and actderc).
type DERControlList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DERControlList"`
	list
	DERControls []DERControl `xml:"DERControl"`
}

// DefaultDERControl is the fallback control when no envelope is active
// (/edev/{id}/derp/{group}/dderc).
type DefaultDERControl struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns DefaultDERControl"`
	Href    string   `xml:"href,attr,omitempty"`

	MRID        HexBinary      `xml:"mRID"`
	SetGradW    *int32         `xml:"setGradW,omitempty"`
	ControlBase DERControlBase `xml:"DERControlBase"`
}
