package server

import (
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/repository"
	"gridserve/internal/sep2"
)

// Prices are stored in currency units to four decimal places and transmitted
// as integers scaled by 10^4.
const priceDecimalPlaces = 4

const rateDayFormat = "2006-01-02"

// PricingHandlers serves the pricing function set. Rates are exploded into
// the sep2 hierarchy on the fly: each (day, price type) pair becomes a
// RateComponent, each rate a TimeTariffInterval, and the price itself sits in
// a single ConsumptionTariffInterval leaf.
type PricingHandlers struct {
	sites   *repository.SiteRepository
	tariffs *repository.TariffRepository
	hrefs   Hrefs
	logger  *zap.Logger
}

func NewPricingHandlers(sites *repository.SiteRepository, tariffs *repository.TariffRepository,
	hrefs Hrefs, logger *zap.Logger) *PricingHandlers {
	return &PricingHandlers{sites: sites, tariffs: tariffs, hrefs: hrefs, logger: logger}
}

func sep2Price(rate *models.TariffGeneratedRate, priceType sep2.PricingReadingType) int64 {
	var price float64
	switch priceType {
	case sep2.PriceImportActive:
		price = rate.ImportActivePrice
	case sep2.PriceExportActive:
		price = rate.ExportActivePrice
	case sep2.PriceImportReactive:
		price = rate.ImportReactivePrice
	case sep2.PriceExportReactive:
		price = rate.ExportReactivePrice
	}
	return int64(math.Round(price * math.Pow10(priceDecimalPlaces)))
}

func (h *PricingHandlers) tariffProfile(siteID int64, t *models.Tariff) sep2.TariffProfile {
	return sep2.TariffProfile{
		Href:                      h.hrefs.TariffProfile(siteID, t.TariffID),
		MRID:                      encodeMRID(mridTagTariff, t.TariffID),
		Description:               t.Name,
		Currency:                  t.CurrencyCode,
		PricePowerOfTenMultiplier: priceDecimalPlaces,
		RateCode:                  t.DnspCode,
		ServiceCategoryKind:       0,

		RateComponentListLink: &sep2.ListLink{Href: h.hrefs.RateComponentList(siteID, t.TariffID)},
	}
}

// TariffProfileList handles GET /edev/{site}/tp.
func (h *PricingHandlers) TariffProfileList(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	p := parsePaging(r)

	tariffs, count, err := h.tariffs.List(r.Context(), p.Start, p.Limit, p.After)
	if err != nil {
		h.logger.Error("tariff list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.TariffProfileList{}
	out.Href = h.hrefs.TariffProfileList(site.SiteID)
	out.All = count
	out.Results = len(tariffs)
	for i := range tariffs {
		out.TariffProfiles = append(out.TariffProfiles, h.tariffProfile(site.SiteID, &tariffs[i]))
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// resolveTariff loads the {tariff} path parameter.
func (h *PricingHandlers) resolveTariff(w http.ResponseWriter, r *http.Request) (*models.Tariff, bool) {
	tariffID, ok := pathID(r, "tariff")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return nil, false
	}
	t, err := h.tariffs.Get(r.Context(), tariffID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return nil, false
	}
	if err != nil {
		h.logger.Error("tariff lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return t, true
}

// TariffProfile handles GET /edev/{site}/tp/{tariff}.
func (h *PricingHandlers) TariffProfile(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	t, ok := h.resolveTariff(w, r)
	if !ok {
		return
	}
	tp := h.tariffProfile(site.SiteID, t)
	writeXML(w, r, http.StatusOK, &tp, h.logger)
}

func (h *PricingHandlers) rateComponent(siteID, tariffID int64, day time.Time,
	priceType sep2.PricingReadingType, ttiCount *int) sep2.RateComponent {
	dayStr := day.Format(rateDayFormat)
	rc := sep2.RateComponent{
		Href:        h.hrefs.RateComponent(siteID, tariffID, dayStr, int(priceType)),
		MRID:        encodeMRID(mridTagRateComponentBase|uint16(priceType), day.Unix()/86400),
		Description: dayStr,

		ReadingTypeLink: &sep2.Link{Href: h.hrefs.PricingReadingType(int(priceType))},
		TimeTariffIntervalListLink: &sep2.ListLink{
			Href: h.hrefs.TimeTariffIntervalList(siteID, tariffID, dayStr, int(priceType)),
			All:  ttiCount,
		},
	}
	return rc
}

// RateComponentList handles GET /edev/{site}/tp/{tariff}/rc. Each day with
// rates yields one component per pricing reading type, so the page maths
// work on the day list scaled by four.
func (h *PricingHandlers) RateComponentList(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	t, ok := h.resolveTariff(w, r)
	if !ok {
		return
	}
	p := parsePaging(r)

	types := len(sep2.AllPricingReadingTypes)
	dayStart := p.Start / types
	skip := p.Start % types
	dayLimit := (skip + p.Limit + types - 1) / types

	days, dayCount, err := h.tariffs.RateDays(r.Context(), t.TariffID, site.SiteID,
		site.TimezoneID, dayStart, dayLimit, p.After)
	if err != nil {
		h.logger.Error("rate day list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.RateComponentList{}
	out.Href = h.hrefs.RateComponentList(site.SiteID, t.TariffID)
	out.All = dayCount * types
	for _, day := range days {
		for _, priceType := range sep2.AllPricingReadingTypes {
			if skip > 0 {
				skip--
				continue
			}
			if len(out.RateComponents) >= p.Limit {
				break
			}
			out.RateComponents = append(out.RateComponents,
				h.rateComponent(site.SiteID, t.TariffID, day, priceType, nil))
		}
	}
	out.Results = len(out.RateComponents)
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// dayWindow resolves the {day} and {price} path parameters into the site
// local day window and pricing reading type.
func (h *PricingHandlers) dayWindow(w http.ResponseWriter, r *http.Request, site *models.Site) (time.Time, time.Time, sep2.PricingReadingType, bool) {
	loc, err := time.LoadLocation(site.TimezoneID)
	if err != nil {
		h.logger.Error("bad site timezone", zap.String("timezone", site.TimezoneID), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return time.Time{}, time.Time{}, 0, false
	}
	day, err := time.ParseInLocation(rateDayFormat, r.PathValue("day"), loc)
	if err != nil {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return time.Time{}, time.Time{}, 0, false
	}
	priceID, ok := pathID(r, "price")
	if !ok || priceID < 1 || priceID > int64(len(sep2.AllPricingReadingTypes)) {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return time.Time{}, time.Time{}, 0, false
	}
	return day, day.AddDate(0, 0, 1), sep2.PricingReadingType(priceID), true
}

// RateComponent handles GET /edev/{site}/tp/{tariff}/rc/{day}/{price}.
func (h *PricingHandlers) RateComponent(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	t, ok := h.resolveTariff(w, r)
	if !ok {
		return
	}
	dayStart, dayEnd, priceType, ok := h.dayWindow(w, r, site)
	if !ok {
		return
	}

	_, count, err := h.tariffs.RatesForDay(r.Context(), t.TariffID, site.SiteID,
		dayStart, dayEnd, 0, 0, time.Unix(0, 0))
	if err != nil {
		h.logger.Error("rate list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	rc := h.rateComponent(site.SiteID, t.TariffID, dayStart, priceType, &count)
	writeXML(w, r, http.StatusOK, &rc, h.logger)
}

func (h *PricingHandlers) timeTariffInterval(siteID, tariffID int64, day string,
	priceType sep2.PricingReadingType, rate *models.TariffGeneratedRate, now time.Time) sep2.TimeTariffInterval {
	end := rate.StartTime.Add(time.Duration(rate.DurationSeconds) * time.Second)
	status := 0
	if !rate.StartTime.After(now) && end.After(now) {
		status = 1
	}
	return sep2.TimeTariffInterval{
		Href: h.hrefs.TimeTariffInterval(siteID, tariffID, day, int(priceType), rate.TariffGeneratedRateID),
		MRID: rateMRID(priceType, rate.TariffGeneratedRateID),
		EventStatus: sep2.EventStatus{
			CurrentStatus: status,
			DateTime:      sep2.TimeType(rate.ChangedTime.Unix()),
		},
		Interval: sep2.DateTimeInterval{
			Duration: int64(rate.DurationSeconds),
			Start:    sep2.TimeType(rate.StartTime.Unix()),
		},
		ReplyToHref:      h.hrefs.ResponseList(siteID, "price"),
		ResponseRequired: controlResponseRequired,
		ConsumptionTariffIntervalListLink: &sep2.ListLink{
			Href: h.hrefs.ConsumptionTariffIntervalList(siteID, tariffID, day, int(priceType), rate.TariffGeneratedRateID),
		},
	}
}

// TimeTariffIntervalList handles GET .../rc/{day}/{price}/tti.
func (h *PricingHandlers) TimeTariffIntervalList(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	t, ok := h.resolveTariff(w, r)
	if !ok {
		return
	}
	dayStart, dayEnd, priceType, ok := h.dayWindow(w, r, site)
	if !ok {
		return
	}
	p := parsePaging(r)

	rates, count, err := h.tariffs.RatesForDay(r.Context(), t.TariffID, site.SiteID,
		dayStart, dayEnd, p.Start, p.Limit, p.After)
	if err != nil {
		h.logger.Error("rate list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	day := dayStart.Format(rateDayFormat)
	now := time.Now().UTC()
	out := sep2.TimeTariffIntervalList{}
	out.Href = h.hrefs.TimeTariffIntervalList(site.SiteID, t.TariffID, day, int(priceType))
	out.All = count
	out.Results = len(rates)
	for i := range rates {
		out.TimeTariffIntervals = append(out.TimeTariffIntervals,
			h.timeTariffInterval(site.SiteID, t.TariffID, day, priceType, &rates[i], now))
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// resolveRate loads the {rate} path parameter scoped to the site.
func (h *PricingHandlers) resolveRate(w http.ResponseWriter, r *http.Request, siteID int64) (*models.TariffGeneratedRate, bool) {
	rateID, ok := pathID(r, "rate")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return nil, false
	}
	rate, err := h.tariffs.GetRate(r.Context(), siteID, rateID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return nil, false
	}
	if err != nil {
		h.logger.Error("rate lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return rate, true
}

// TimeTariffInterval handles GET .../tti/{rate}.
func (h *PricingHandlers) TimeTariffInterval(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	t, ok := h.resolveTariff(w, r)
	if !ok {
		return
	}
	dayStart, _, priceType, ok := h.dayWindow(w, r, site)
	if !ok {
		return
	}
	rate, ok := h.resolveRate(w, r, site.SiteID)
	if !ok {
		return
	}

	tti := h.timeTariffInterval(site.SiteID, t.TariffID, dayStart.Format(rateDayFormat),
		priceType, rate, time.Now().UTC())
	writeXML(w, r, http.StatusOK, &tti, h.logger)
}

// ConsumptionTariffIntervalList handles GET .../tti/{rate}/cti. The single
// entry carries the price for this rate and reading type.
func (h *PricingHandlers) ConsumptionTariffIntervalList(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	t, ok := h.resolveTariff(w, r)
	if !ok {
		return
	}
	dayStart, _, priceType, ok := h.dayWindow(w, r, site)
	if !ok {
		return
	}
	rate, ok := h.resolveRate(w, r, site.SiteID)
	if !ok {
		return
	}

	day := dayStart.Format(rateDayFormat)
	out := sep2.ConsumptionTariffIntervalList{}
	out.Href = h.hrefs.ConsumptionTariffIntervalList(site.SiteID, t.TariffID, day, int(priceType), rate.TariffGeneratedRateID)
	out.All = 1
	out.Results = 1
	out.ConsumptionTariffIntervals = []sep2.ConsumptionTariffInterval{{
		ConsumptionBlock: 0,
		Price:            sep2Price(rate, priceType),
		StartValue:       0,
	}}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// Pricing reading type descriptors, fixed per the four price components.
var pricingReadingTypes = map[sep2.PricingReadingType]sep2.ReadingTypeResource{
	sep2.PriceImportActive:   {Commodity: 2, FlowDirection: 1, PowerOfTenMultiplier: 3, Uom: 72},
	sep2.PriceExportActive:   {Commodity: 2, FlowDirection: 19, PowerOfTenMultiplier: 3, Uom: 72},
	sep2.PriceImportReactive: {Commodity: 1, FlowDirection: 1, PowerOfTenMultiplier: 3, Uom: 73},
	sep2.PriceExportReactive: {Commodity: 1, FlowDirection: 19, PowerOfTenMultiplier: 3, Uom: 73},
}

// PricingReadingType handles GET /pricing/rt/{price}.
func (h *PricingHandlers) PricingReadingType(w http.ResponseWriter, r *http.Request) {
	priceID, ok := pathID(r, "price")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	rt, found := pricingReadingTypes[sep2.PricingReadingType(priceID)]
	if !found {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	rt.Href = h.hrefs.PricingReadingType(int(priceID))
	writeXML(w, r, http.StatusOK, &rt, h.logger)
}
