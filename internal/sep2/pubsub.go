package sep2

// Condition restricts a subscription to readings whose value falls outside
// [lowerThreshold, upperThreshold].
type Condition struct {
	// AttributeIdentifier 0 = Reading value.
	AttributeIdentifier int   `xml:"attributeIdentifier"`
	LowerThreshold      int64 `xml:"lowerThreshold"`
	UpperThreshold      int64 `xml:"upperThreshold"`
}

// Subscription is a client's request for webhook notifications
// (/edev/{site}/sub/{sub}).
type Subscription struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns Subscription"`
	Href    string   `xml:"href,attr,omitempty"`

	// Encoding 0 = application/sep+xml.
	Encoding           int        `xml:"encoding"`
	Level              string     `xml:"level"`
	Limit              int        `xml:"limit"`
	NotificationURI    string     `xml:"notificationURI"`
	SubscribedResource string     `xml:"subscribedResource"`
	Condition          *Condition `xml:"Condition,omitempty"`
}

// SubscriptionRequest is the POST /edev/{site}/sub body.
type SubscriptionRequest struct {
	XMLName struct{} `xml:"Subscription"`

	Encoding           int        `xml:"encoding"`
	Level              string     `xml:"level"`
	Limit              int        `xml:"limit"`
	NotificationURI    string     `xml:"notificationURI"`
	SubscribedResource string     `xml:"subscribedResource"`
	Condition          *Condition `xml:"Condition,omitempty"`
}

// SubscriptionList is /edev/{site}/sub.
type SubscriptionList struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns SubscriptionList"`
	list
	Subscriptions []Subscription `xml:"Subscription"`
}

// Notification statuses per the standard.
const (
	NotificationStatusDefault = 0
	NotificationStatusDeleted = 4
)

// NotificationResource wraps the mutated resource inside a Notification. The
// payload is pre-rendered XML; XSIType names the concrete sep2 type.
type NotificationResource struct {
	XSIType string `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	All     *int   `xml:"all,attr,omitempty"`
	Results *int   `xml:"results,attr,omitempty"`
	Raw     []byte `xml:",innerxml"`
}

// Notification is the document POSTed to a subscriber's notificationURI.
type Notification struct {
	XMLName struct{} `xml:"urn:ieee:std:2030.5:ns Notification"`

	SubscribedResource string                `xml:"subscribedResource"`
	NewResourceURI     string                `xml:"newResourceURI,omitempty"`
	Status             int                   `xml:"status"`
	SubscriptionURI    string                `xml:"subscriptionURI"`
	Resource           *NotificationResource `xml:"Resource,omitempty"`
}
