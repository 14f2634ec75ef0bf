// Package models holds the database row types shared by the repositories.
package models

import "time"

// NullAggregatorID groups registrations made directly with a device
// certificate rather than through an aggregator.
const NullAggregatorID int64 = 0

// Aggregator is an entity managing a fleet of end devices.
type Aggregator struct {
	AggregatorID int64
	Name         string
	CreatedTime  time.Time
	ChangedTime  time.Time
}

// AggregatorDomain is a whitelisted FQDN controlled by an aggregator.
// Subscription notification URIs must land inside one of these.
type AggregatorDomain struct {
	AggregatorDomainID int64
	AggregatorID       int64
	CreatedTime        time.Time
	ChangedTime        time.Time
	Domain             string
}

// Certificate is a reference store entry for an issued client TLS certificate.
type Certificate struct {
	CertificateID int64
	Created       time.Time
	LFDI          string
	Expiry        time.Time
}

// Site is the 2030.5 EndDevice registration.
type Site struct {
	SiteID          int64
	NMI             *string
	AggregatorID    int64
	TimezoneID      string
	CreatedTime     time.Time
	ChangedTime     time.Time
	LFDI            string
	SFDI            int64
	DeviceCategory  uint32
	RegistrationPIN int32
}

// SiteGroup logically groups sites independent of their aggregator.
type SiteGroup struct {
	SiteGroupID int64
	Name        string
	CreatedTime time.Time
	ChangedTime time.Time
}

// SiteDER anchors the four DER data records beneath a site.
type SiteDER struct {
	SiteDERID   int64
	SiteID      int64
	CreatedTime time.Time
	ChangedTime time.Time
}

// SiteDERRating is the DER nameplate (sep2 DERCapability).
type SiteDERRating struct {
	SiteDERRatingID int64
	SiteDERID       int64
	CreatedTime     time.Time
	ChangedTime     time.Time

	ModesSupported    *uint32
	DERType           int
	DoeModesSupported *uint32

	MaxWValue      int64
	MaxWMultiplier int32

	MaxVAValue       *int64
	MaxVAMultiplier  *int32
	MaxVarValue      *int64
	MaxVarMultiplier *int32

	MaxChargeRateWValue         *int64
	MaxChargeRateWMultiplier    *int32
	MaxDischargeRateWValue      *int64
	MaxDischargeRateWMultiplier *int32

	MaxWhValue      *int64
	MaxWhMultiplier *int32
	VNomValue       *int64
	VNomMultiplier  *int32
}

// SiteDERSetting is the present operating settings (sep2 DERSettings).
type SiteDERSetting struct {
	SiteDERSettingID int64
	SiteDERID        int64
	CreatedTime      time.Time
	ChangedTime      time.Time

	ModesEnabled *uint32
	GradW        int32

	MaxWValue      int64
	MaxWMultiplier int32

	MaxVAValue       *int64
	MaxVAMultiplier  *int32
	MaxVarValue      *int64
	MaxVarMultiplier *int32

	MaxChargeRateWValue         *int64
	MaxChargeRateWMultiplier    *int32
	MaxDischargeRateWValue      *int64
	MaxDischargeRateWMultiplier *int32

	ESDelay    *int32
	ESHighFreq *int32
	ESHighVolt *int32
	ESLowFreq  *int32
	ESLowVolt  *int32
}

// SiteDERAvailability is the availability estimate (sep2 DERAvailability).
type SiteDERAvailability struct {
	SiteDERAvailabilityID int64
	SiteDERID             int64
	CreatedTime           time.Time
	ChangedTime           time.Time

	AvailabilityDurationSec *int32
	MaxChargeDurationSec    *int32
	ReservedChargePercent   *float64
	ReservedDeliverPercent  *float64

	EstimatedVarAvailValue      *int64
	EstimatedVarAvailMultiplier *int32
	EstimatedWAvailValue        *int64
	EstimatedWAvailMultiplier   *int32
}

// SiteDERStatus is the current status report (sep2 DERStatus).
type SiteDERStatus struct {
	SiteDERStatusID int64
	SiteDERID       int64
	CreatedTime     time.Time
	ChangedTime     time.Time

	AlarmStatus *uint32

	GeneratorConnectStatus     *int
	GeneratorConnectStatusTime *time.Time
	InverterStatus             *int
	InverterStatusTime         *time.Time
	LocalControlModeStatus     *int
	LocalControlModeStatusTime *time.Time
	ManufacturerStatus         *string
	ManufacturerStatusTime     *time.Time
	OperationalModeStatus      *int
	OperationalModeStatusTime  *time.Time
	StateOfChargeStatus        *float64
	StateOfChargeStatusTime    *time.Time
	StorageModeStatus          *int
	StorageModeStatusTime      *time.Time
}

// SiteControlGroup is a top level grouping of operating envelopes. Lower
// primacy takes priority over higher.
type SiteControlGroup struct {
	SiteControlGroupID int64
	Description        string
	Primacy            int
	FsaID              int64
	CreatedTime        time.Time
	ChangedTime        time.Time
}

// DynamicOperatingEnvelope is a time bounded set of power limits for a site.
type DynamicOperatingEnvelope struct {
	DynamicOperatingEnvelopeID int64
	SiteControlGroupID         int64
	SiteID                     int64
	CalculationLogID           *int64
	CreatedTime                time.Time
	ChangedTime                time.Time
	StartTime                  time.Time
	DurationSeconds            int32
	RandomizeStartSeconds      *int16

	ImportLimitActiveWatts     *float64
	ExportLimitActiveWatts     *float64
	GenerationLimitActiveWatts *float64
	LoadLimitActiveWatts       *float64
	SetEnergized               *bool
	SetConnected               *bool

	// Maintained as StartTime + DurationSeconds on every write.
	EndTime time.Time
}

// DefaultSiteControl is the fallback control for a site when no envelope is
// active.
type DefaultSiteControl struct {
	DefaultSiteControlID int64
	SiteID               int64
	CreatedTime          time.Time
	ChangedTime          time.Time

	ImportLimitActiveWatts     *float64
	ExportLimitActiveWatts     *float64
	GenerationLimitActiveWatts *float64
	LoadLimitActiveWatts       *float64
	RampRatePercentPerSecond   *int32
}

// Tariff is a top level tariff definition.
type Tariff struct {
	TariffID     int64
	Name         string
	DnspCode     string
	CurrencyCode int
	CreatedTime  time.Time
	ChangedTime  time.Time
}

// TariffGeneratedRate is a calculated site scoped price for one interval.
type TariffGeneratedRate struct {
	TariffGeneratedRateID int64
	TariffID              int64
	SiteID                int64
	CalculationLogID      *int64
	CreatedTime           time.Time
	ChangedTime           time.Time
	StartTime             time.Time
	DurationSeconds       int32

	ImportActivePrice   float64
	ExportActivePrice   float64
	ImportReactivePrice float64
	ExportReactivePrice float64
}

// SiteReadingType is the shared identity of a reading stream (sep2
// MirrorUsagePoint/MirrorMeterReading/ReadingType).
type SiteReadingType struct {
	SiteReadingTypeID int64
	AggregatorID      int64
	SiteID            int64
	MRID              string
	GroupID           int64
	GroupMRID         string

	Uom                    int
	DataQualifier          int
	FlowDirection          int
	AccumulationBehaviour  int
	Kind                   int
	Phase                  int
	PowerOfTenMultiplier   int32
	DefaultIntervalSeconds int32
	RoleFlags              int

	Description      *string
	GroupDescription *string

	CreatedTime time.Time
	ChangedTime time.Time
}

// SiteReading is a single thin reading row.
type SiteReading struct {
	SiteReadingID     int64
	SiteReadingTypeID int64
	CreatedTime       time.Time
	ChangedTime       time.Time

	LocalID           *int64
	QualityFlags      int
	TimePeriodStart   time.Time
	TimePeriodSeconds int32
	Value             int64
}

// SubscriptionResource enumerates what a subscription watches.
type SubscriptionResource int

const (
	ResourceSite SubscriptionResource = iota + 1
	ResourceDynamicOperatingEnvelope
	ResourceTariffGeneratedRate
	ResourceReading
	ResourceSiteDERAvailability
	ResourceSiteDERRating
	ResourceSiteDERSetting
	ResourceSiteDERStatus
	ResourceDefaultSiteControl
	ResourceFunctionSetAssignments
	ResourceSiteControlGroup
)

// Subscription is a remote client's request for change notifications.
type Subscription struct {
	SubscriptionID int64
	AggregatorID   int64
	CreatedTime    time.Time
	ChangedTime    time.Time

	ResourceType SubscriptionResource
	ResourceID   *int64
	ScopedSiteID *int64

	NotificationURI string
	EntityLimit     int

	Conditions []SubscriptionCondition
}

// SubscriptionCondition gates a reading subscription on the reading value
// falling outside [LowerThreshold, UpperThreshold].
type SubscriptionCondition struct {
	SubscriptionConditionID int64
	SubscriptionID          int64
	Attribute               int
	LowerThreshold          int64
	UpperThreshold          int64
}

// TransmitNotificationLog is one attempt at delivering a notification.
type TransmitNotificationLog struct {
	TransmitNotificationLogID int64
	SubscriptionIDSnapshot    int64
	TransmitTime              time.Time
	TransmitDurationMs        int32
	NotificationSizeBytes     int32
	Attempt                   int32
	HTTPStatusCode            int32
}

// DOEResponse is a client acknowledgement of a dynamic operating envelope.
type DOEResponse struct {
	DOEResponseID int64
	DOEIDSnapshot int64
	SiteID        int64
	CreatedTime   time.Time
	ResponseType  *int
}

// RateResponse is a client acknowledgement of a tariff generated rate price.
type RateResponse struct {
	RateResponseID     int64
	RateIDSnapshot     int64
	SiteID             int64
	CreatedTime        time.Time
	ResponseType       *int
	PricingReadingType int16
}

// RuntimeServerConfig is the single-row operator tunable config.
type RuntimeServerConfig struct {
	CreatedTime time.Time
	ChangedTime time.Time

	DcapPollrateSeconds      *int32
	EdevlPollrateSeconds     *int32
	FsalPollrateSeconds      *int32
	DerplPollrateSeconds     *int32
	DerlPollrateSeconds      *int32
	MupPostrateSeconds       *int32
	SiteControlPow10Encoding *int32
	DisableEdevRegistration  *bool
}

// CalculationLog is the audit record for one calculation run.
type CalculationLog struct {
	CalculationLogID                   int64
	CreatedTime                        time.Time
	CalculationIntervalStart           time.Time
	CalculationIntervalDurationSeconds int32

	TopologyID  *string
	ExternalID  *string
	Description *string

	PowerForecastCreationTime   *time.Time
	WeatherForecastCreationTime *time.Time
	WeatherForecastLocationID   *string

	PowerForecastLogs []PowerForecastLog
	PowerTargetLogs   []PowerTargetLog
	PowerFlowLogs     []PowerFlowLog
}

// PowerForecastLog is a forecast power interval within a calculation run.
type PowerForecastLog struct {
	PowerForecastLogID      int64
	CalculationLogID        int64
	IntervalStart           time.Time
	IntervalDurationSeconds int32
	ExternalDeviceID        *string
	SiteID                  *int64
	ActivePowerWatts        *int64
	ReactivePowerVar        *int64
}

// PowerTargetLog is a proposed power target within a calculation run.
type PowerTargetLog struct {
	PowerTargetLogID        int64
	CalculationLogID        int64
	IntervalStart           time.Time
	IntervalDurationSeconds int32
	ExternalDeviceID        *string
	SiteID                  *int64
	TargetActivePowerWatts  *int64
	TargetReactivePowerVar  *int64
}

// PowerFlowLog is a powerflow solve result within a calculation run.
type PowerFlowLog struct {
	PowerFlowLogID          int64
	CalculationLogID        int64
	IntervalStart           time.Time
	IntervalDurationSeconds int32
	ExternalDeviceID        *string
	SiteID                  *int64
	SolveName               *string
	PuVoltageMin            *float64
	PuVoltageMax            *float64
	PuVoltage               *float64
	ThermalMaxPercent       *float64
}
