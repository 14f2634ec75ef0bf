// Package notify implements the subscription notification pipeline: change
// detection tasks fanned out over AMQP, sep2 Notification rendering, and
// delivery with scheduled retries.
package notify

import "time"

// Resource names the entity class a check task covers.
type Resource string

// Checked resource classes. Each maps to the subscription resource types
// whose subscribers may need notifying.
const (
	ResourceSites               Resource = "sites"
	ResourceDOEs                Resource = "does"
	ResourceRates               Resource = "rates"
	ResourceReadings            Resource = "readings"
	ResourceDERAvailabilities   Resource = "der_availabilities"
	ResourceDERRatings          Resource = "der_ratings"
	ResourceDERSettings         Resource = "der_settings"
	ResourceDERStatuses         Resource = "der_statuses"
	ResourceDefaultSiteControls Resource = "default_site_controls"
	ResourceSiteControlGroups   Resource = "site_control_groups"
)

// CheckTask asks the worker to scan for entities of one class stamped with
// exactly this changed_time (or archive rows deleted at it) and notify the
// matching subscriptions.
type CheckTask struct {
	Resource  Resource  `json:"resource"`
	Timestamp time.Time `json:"timestamp"`
}

// TransmitTask is one rendered notification awaiting delivery.
type TransmitTask struct {
	SubscriptionID   int64  `json:"subscription_id"`
	NotificationID   string `json:"notification_id"`
	SubscriptionHref string `json:"subscription_href"`
	NotificationURI  string `json:"notification_uri"`
	Content          []byte `json:"content"`
	Attempt          int    `json:"attempt"`
}
