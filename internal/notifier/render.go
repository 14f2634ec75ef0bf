// Package notifier implements the subscription notification worker: it
// consumes check tasks produced by the APIs, matches changed rows against
// standing subscriptions, renders sep2 Notifications and transmits them to
// subscriber webhooks with retry.
package notifier

import (
	"bytes"
	"encoding/xml"
	"math"
	"strconv"
	"time"

	"gridserve/internal/models"
	"gridserve/internal/sep2"
	"gridserve/internal/server"
)

// renderer turns entity rows into the pre-rendered payload carried inside a
// Notification's Resource element.
type renderer struct {
	hrefs server.Hrefs
	pow10 int32
}

// payload is one rendered Resource: the xsi type, list attributes and inner
// XML.
type payload struct {
	xsiType string
	list    bool
	count   int
	raw     []byte
}

func (p *payload) resource() *sep2.NotificationResource {
	res := &sep2.NotificationResource{XSIType: p.xsiType, Raw: p.raw}
	if p.list {
		res.All = &p.count
		res.Results = &p.count
	}
	return res
}

// marshalAll concatenates the XML of every value.
func marshalAll[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	for i := range items {
		b, err := xml.Marshal(&items[i])
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// innerXML strips the root element from a marshalled document, leaving only
// its children. Single (non list) resources embed their fields directly
// inside the Resource element.
func innerXML(b []byte) []byte {
	open := bytes.IndexByte(b, '>')
	close := bytes.LastIndex(b, []byte("</"))
	if open < 0 || close < 0 || close < open {
		return nil
	}
	return b[open+1 : close]
}

func marshalSingle(v any) ([]byte, error) {
	b, err := xml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return innerXML(b), nil
}

func (r *renderer) power(watts *float64) *sep2.ActivePower {
	if watts == nil {
		return nil
	}
	return &sep2.ActivePower{
		Value:      int64(math.Round(*watts * math.Pow10(int(-r.pow10)))),
		Multiplier: r.pow10,
	}
}

func (r *renderer) sites(sites []models.Site) (*payload, error) {
	entities := make([]sep2.EndDevice, 0, len(sites))
	for i := range sites {
		s := &sites[i]
		entities = append(entities, sep2.EndDevice{
			Href:           r.hrefs.EndDevice(s.SiteID),
			LFDI:           sep2.HexBinary(s.LFDI),
			SFDI:           s.SFDI,
			ChangedTime:    sep2.TimeType(s.ChangedTime.Unix()),
			DeviceCategory: sep2.HexBinary32(s.DeviceCategory),
		})
	}
	raw, err := marshalAll(entities)
	if err != nil {
		return nil, err
	}
	return &payload{xsiType: "EndDeviceList", list: true, count: len(entities), raw: raw}, nil
}

func (r *renderer) controls(siteID, groupID int64, does []models.DynamicOperatingEnvelope, now time.Time) (*payload, error) {
	entities := make([]sep2.DERControl, 0, len(does))
	for i := range does {
		d := &does[i]
		status := 0
		if !d.StartTime.After(now) && d.EndTime.After(now) {
			status = 1
		}
		entities = append(entities, sep2.DERControl{
			Href:         r.hrefs.DERControl(siteID, groupID, d.DynamicOperatingEnvelopeID),
			MRID:         sep2.EncodeMRID(sep2.MRIDTagDOE, d.DynamicOperatingEnvelopeID),
			CreationTime: sep2.TimeType(d.ChangedTime.Unix()),
			EventStatus: sep2.EventStatus{
				CurrentStatus: status,
				DateTime:      sep2.TimeType(d.ChangedTime.Unix()),
			},
			Interval: sep2.DateTimeInterval{
				Duration: int64(d.DurationSeconds),
				Start:    sep2.TimeType(d.StartTime.Unix()),
			},
			RandomizeStart:   d.RandomizeStartSeconds,
			ReplyToHref:      r.hrefs.ResponseList(siteID, "doe"),
			ResponseRequired: sep2.HexBinary("03"),
			ControlBase: sep2.DERControlBase{
				OpModImpLimW:  r.power(d.ImportLimitActiveWatts),
				OpModExpLimW:  r.power(d.ExportLimitActiveWatts),
				OpModGenLimW:  r.power(d.GenerationLimitActiveWatts),
				OpModLoadLimW: r.power(d.LoadLimitActiveWatts),
				OpModEnergize: d.SetEnergized,
				OpModConnect:  d.SetConnected,
			},
		})
	}
	raw, err := marshalAll(entities)
	if err != nil {
		return nil, err
	}
	return &payload{xsiType: "DERControlList", list: true, count: len(entities), raw: raw}, nil
}

func (r *renderer) rates(siteID int64, timezone string, priceType sep2.PricingReadingType,
	rates []models.TariffGeneratedRate, now time.Time) (*payload, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	entities := make([]sep2.TimeTariffInterval, 0, len(rates))
	for i := range rates {
		rate := &rates[i]
		day := rate.StartTime.In(loc).Format("2006-01-02")
		end := rate.StartTime.Add(time.Duration(rate.DurationSeconds) * time.Second)
		status := 0
		if !rate.StartTime.After(now) && end.After(now) {
			status = 1
		}
		entities = append(entities, sep2.TimeTariffInterval{
			Href: r.hrefs.TimeTariffInterval(siteID, rate.TariffID, day, int(priceType), rate.TariffGeneratedRateID),
			MRID: sep2.RateMRID(priceType, rate.TariffGeneratedRateID),
			EventStatus: sep2.EventStatus{
				CurrentStatus: status,
				DateTime:      sep2.TimeType(rate.ChangedTime.Unix()),
			},
			Interval: sep2.DateTimeInterval{
				Duration: int64(rate.DurationSeconds),
				Start:    sep2.TimeType(rate.StartTime.Unix()),
			},
			ConsumptionTariffIntervalListLink: &sep2.ListLink{
				Href: r.hrefs.ConsumptionTariffIntervalList(siteID, rate.TariffID, day, int(priceType), rate.TariffGeneratedRateID),
			},
			ReplyToHref:      r.hrefs.ResponseList(siteID, "price"),
			ResponseRequired: sep2.HexBinary("03"),
		})
	}
	raw, err := marshalAll(entities)
	if err != nil {
		return nil, err
	}
	return &payload{xsiType: "TimeTariffIntervalList", list: true, count: len(entities), raw: raw}, nil
}

func (r *renderer) readings(rows []models.SiteReading) (*payload, error) {
	entities := make([]struct {
		XMLName struct{} `xml:"Reading"`
		sep2.Reading
	}, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		e := sep2.Reading{
			Value: row.Value,
			TimePeriod: &sep2.DateTimeInterval{
				Duration: int64(row.TimePeriodSeconds),
				Start:    sep2.TimeType(row.TimePeriodStart.Unix()),
			},
		}
		if row.QualityFlags != 0 {
			e.QualityFlags = sep2.HexBinary(strconv.FormatInt(int64(row.QualityFlags), 16))
		}
		if row.LocalID != nil {
			e.LocalID = sep2.HexBinary(strconv.FormatInt(*row.LocalID, 16))
		}
		entities = append(entities, struct {
			XMLName struct{} `xml:"Reading"`
			sep2.Reading
		}{Reading: e})
	}
	raw, err := marshalAll(entities)
	if err != nil {
		return nil, err
	}
	return &payload{xsiType: "ReadingList", list: true, count: len(entities), raw: raw}, nil
}

func (r *renderer) derAvailability(siteID int64, a *models.SiteDERAvailability) (*payload, error) {
	out := sep2.DERAvailability{
		Href:                 r.hrefs.DERAvailability(siteID),
		AvailabilityDuration: a.AvailabilityDurationSec,
		MaxChargeDuration:    a.MaxChargeDurationSec,
		ReadingTime:          sep2.TimeType(a.ChangedTime.Unix()),
	}
	raw, err := marshalSingle(&out)
	if err != nil {
		return nil, err
	}
	return &payload{xsiType: "DERAvailability", raw: raw}, nil
}

func (r *renderer) derRating(siteID int64, m *models.SiteDERRating) (*payload, error) {
	out := sep2.DERCapability{
		Href:    r.hrefs.DERCapability(siteID),
		RtgMaxW: sep2.ActivePower{Value: m.MaxWValue, Multiplier: m.MaxWMultiplier},
		Type:    m.DERType,
	}
	if m.ModesSupported != nil {
		out.ModesSupported = sep2.HexBinary32(*m.ModesSupported)
	}
	raw, err := marshalSingle(&out)
	if err != nil {
		return nil, err
	}
	return &payload{xsiType: "DERCapability", raw: raw}, nil
}

func (r *renderer) derSetting(siteID int64, m *models.SiteDERSetting) (*payload, error) {
	out := sep2.DERSettings{
		Href:        r.hrefs.DERSettings(siteID),
		SetGradW:    m.GradW,
		SetMaxW:     sep2.ActivePower{Value: m.MaxWValue, Multiplier: m.MaxWMultiplier},
		UpdatedTime: sep2.TimeType(m.ChangedTime.Unix()),
	}
	if m.ModesEnabled != nil {
		out.ModesEnabled = sep2.HexBinary32(*m.ModesEnabled)
	}
	raw, err := marshalSingle(&out)
	if err != nil {
		return nil, err
	}
	return &payload{xsiType: "DERSettings", raw: raw}, nil
}

func (r *renderer) derStatus(siteID int64, m *models.SiteDERStatus) (*payload, error) {
	out := sep2.DERStatus{
		Href:        r.hrefs.DERStatus(siteID),
		ReadingTime: sep2.TimeType(m.ChangedTime.Unix()),
	}
	if m.AlarmStatus != nil {
		out.AlarmStatus = sep2.HexBinary32(*m.AlarmStatus)
	}
	if m.OperationalModeStatus != nil && m.OperationalModeStatusTime != nil {
		out.OperationalModeStatus = &sep2.StatusValue{
			DateTime: sep2.TimeType(m.OperationalModeStatusTime.Unix()),
			Value:    *m.OperationalModeStatus,
		}
	}
	raw, err := marshalSingle(&out)
	if err != nil {
		return nil, err
	}
	return &payload{xsiType: "DERStatus", raw: raw}, nil
}

func (r *renderer) defaultControl(siteID, groupID int64, d *models.DefaultSiteControl) (*payload, error) {
	out := sep2.DefaultDERControl{
		Href:     r.hrefs.DefaultDERControl(siteID, groupID),
		MRID:     sep2.EncodeMRID(sep2.MRIDTagControlGroup, groupID),
		SetGradW: d.RampRatePercentPerSecond,
		ControlBase: sep2.DERControlBase{
			OpModImpLimW:  r.power(d.ImportLimitActiveWatts),
			OpModExpLimW:  r.power(d.ExportLimitActiveWatts),
			OpModGenLimW:  r.power(d.GenerationLimitActiveWatts),
			OpModLoadLimW: r.power(d.LoadLimitActiveWatts),
		},
	}
	raw, err := marshalSingle(&out)
	if err != nil {
		return nil, err
	}
	return &payload{xsiType: "DefaultDERControl", raw: raw}, nil
}

func (r *renderer) programs(siteID int64, groups []models.SiteControlGroup) (*payload, error) {
	entities := make([]sep2.DERProgram, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		entities = append(entities, sep2.DERProgram{
			Href:        r.hrefs.DERProgram(siteID, g.SiteControlGroupID),
			MRID:        sep2.EncodeMRID(sep2.MRIDTagControlGroup, g.SiteControlGroupID),
			Description: g.Description,
			Primacy:     g.Primacy,
		})
	}
	raw, err := marshalAll(entities)
	if err != nil {
		return nil, err
	}
	return &payload{xsiType: "DERProgramList", list: true, count: len(entities), raw: raw}, nil
}
