package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/notify"
	"gridserve/internal/repository"
	"gridserve/internal/sep2"
)

// SubscriptionHandlers serves the subscription function set. Subscriptions
// are aggregator scoped; the notification URI must sit on one of the
// aggregator's whitelisted domains.
type SubscriptionHandlers struct {
	sites       *repository.SiteRepository
	subs        *repository.SubscriptionRepository
	aggregators *repository.AggregatorRepository
	publisher   *notify.TaskPublisher
	hrefs       Hrefs
	logger      *zap.Logger
	now         func() time.Time
}

func NewSubscriptionHandlers(sites *repository.SiteRepository, subs *repository.SubscriptionRepository,
	aggregators *repository.AggregatorRepository, publisher *notify.TaskPublisher,
	hrefs Hrefs, logger *zap.Logger) *SubscriptionHandlers {
	return &SubscriptionHandlers{
		sites:       sites,
		subs:        subs,
		aggregators: aggregators,
		publisher:   publisher,
		hrefs:       hrefs,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// parseSubscribedResource decomposes a subscribedResource href into the
// resource class it watches, plus the optional scoping ids. The site id in
// the href must already be validated by the caller.
func parseSubscribedResource(href, prefix string) (models.SubscriptionResource, *int64, *int64, error) {
	href = strings.TrimSuffix(strings.TrimPrefix(href, prefix), "/")
	parts := strings.Split(strings.TrimPrefix(href, "/"), "/")

	fail := func() (models.SubscriptionResource, *int64, *int64, error) {
		return 0, nil, nil, fmt.Errorf("unsupported subscribedResource %q", href)
	}
	num := func(s string) (int64, bool) {
		v, err := strconv.ParseInt(s, 10, 64)
		return v, err == nil && v >= 0
	}

	if len(parts) == 2 && parts[0] == "mup" {
		group, ok := num(parts[1])
		if !ok {
			return fail()
		}
		return models.ResourceReading, nil, &group, nil
	}
	if parts[0] != "edev" {
		return fail()
	}
	if len(parts) == 1 {
		return models.ResourceSite, nil, nil, nil
	}
	siteID, ok := num(parts[1])
	if !ok {
		return fail()
	}
	if len(parts) == 2 {
		return models.ResourceSite, &siteID, nil, nil
	}

	switch parts[2] {
	case "fsa":
		if len(parts) == 3 {
			return models.ResourceFunctionSetAssignments, &siteID, nil, nil
		}
	case "derp":
		if len(parts) == 3 {
			return models.ResourceSiteControlGroup, &siteID, nil, nil
		}
		group, ok := num(parts[3])
		if !ok {
			return fail()
		}
		if len(parts) == 5 && parts[4] == "derc" {
			return models.ResourceDynamicOperatingEnvelope, &siteID, &group, nil
		}
		if len(parts) == 5 && parts[4] == "dderc" {
			return models.ResourceDefaultSiteControl, &siteID, &group, nil
		}
	case "tp":
		if len(parts) == 5 && parts[4] == "rc" {
			tariff, ok := num(parts[3])
			if !ok {
				return fail()
			}
			return models.ResourceTariffGeneratedRate, &siteID, &tariff, nil
		}
	case "der":
		if len(parts) == 5 {
			derID, ok := num(parts[3])
			if !ok {
				return fail()
			}
			switch parts[4] {
			case "dera":
				return models.ResourceSiteDERAvailability, &siteID, &derID, nil
			case "dercap":
				return models.ResourceSiteDERRating, &siteID, &derID, nil
			case "derg":
				return models.ResourceSiteDERSetting, &siteID, &derID, nil
			case "ders":
				return models.ResourceSiteDERStatus, &siteID, &derID, nil
			}
		}
	}
	return fail()
}

// SubscribedResourceHref rebuilds the watched href from a stored
// subscription. The notifier uses the same mapping when it fills in a
// Notification's subscribedResource.
func SubscribedResourceHref(h Hrefs, sub *models.Subscription, siteID int64) string {
	rid := int64(0)
	if sub.ResourceID != nil {
		rid = *sub.ResourceID
	}
	switch sub.ResourceType {
	case models.ResourceSite:
		if sub.ScopedSiteID == nil {
			return h.EndDeviceList()
		}
		return h.EndDevice(siteID)
	case models.ResourceDynamicOperatingEnvelope:
		return h.DERControlList(siteID, rid)
	case models.ResourceTariffGeneratedRate:
		return h.RateComponentList(siteID, rid)
	case models.ResourceReading:
		return h.MirrorUsagePoint(rid)
	case models.ResourceSiteDERAvailability:
		return h.DERAvailability(siteID)
	case models.ResourceSiteDERRating:
		return h.DERCapability(siteID)
	case models.ResourceSiteDERSetting:
		return h.DERSettings(siteID)
	case models.ResourceSiteDERStatus:
		return h.DERStatus(siteID)
	case models.ResourceDefaultSiteControl:
		return h.DefaultDERControl(siteID, rid)
	case models.ResourceFunctionSetAssignments:
		return h.FSAList(siteID)
	case models.ResourceSiteControlGroup:
		return h.DERProgramList(siteID)
	}
	return ""
}

func (h *SubscriptionHandlers) subscription(sub *models.Subscription, siteID int64) sep2.Subscription {
	out := sep2.Subscription{
		Href:               h.hrefs.Subscription(siteID, sub.SubscriptionID),
		Encoding:           0,
		Level:              "+S1",
		Limit:              sub.EntityLimit,
		NotificationURI:    sub.NotificationURI,
		SubscribedResource: SubscribedResourceHref(h.hrefs, sub, siteID),
	}
	if len(sub.Conditions) > 0 {
		c := sub.Conditions[0]
		out.Condition = &sep2.Condition{
			AttributeIdentifier: c.Attribute,
			LowerThreshold:      c.LowerThreshold,
			UpperThreshold:      c.UpperThreshold,
		}
	}
	return out
}

// List handles GET /edev/{site}/sub.
func (h *SubscriptionHandlers) List(w http.ResponseWriter, r *http.Request) {
	site, scope, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	p := parsePaging(r)

	subs, count, err := h.subs.ListForSite(r.Context(), scope.AggregatorID, site.SiteID, p.Start, p.Limit, p.After)
	if err != nil {
		h.logger.Error("subscription list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.SubscriptionList{}
	out.Href = h.hrefs.SubscriptionList(site.SiteID)
	out.All = count
	out.Results = len(subs)
	for i := range subs {
		out.Subscriptions = append(out.Subscriptions, h.subscription(&subs[i], site.SiteID))
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// Get handles GET /edev/{site}/sub/{sub}.
func (h *SubscriptionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	site, scope, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	subID, ok := pathID(r, "sub")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	sub, err := h.subs.Get(r.Context(), scope.AggregatorID, site.SiteID, subID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("subscription lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	out := h.subscription(sub, site.SiteID)
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// Create handles POST /edev/{site}/sub.
func (h *SubscriptionHandlers) Create(w http.ResponseWriter, r *http.Request) {
	site, scope, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}

	var req sep2.SubscriptionRequest
	if !readXML(w, r, &req, h.logger) {
		return
	}
	if req.Encoding != 0 {
		writeSepError(w, r, http.StatusBadRequest, "only sep+xml encoding supported", h.logger)
		return
	}

	uri, err := url.Parse(req.NotificationURI)
	if err != nil || uri.Scheme != "https" || uri.Hostname() == "" {
		writeSepError(w, r, http.StatusBadRequest, "notificationURI must be a https URL", h.logger)
		return
	}
	matches, err := h.aggregators.DomainMatches(r.Context(), scope.AggregatorID, uri.Hostname())
	if err != nil {
		h.logger.Error("domain whitelist check failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !matches {
		writeSepError(w, r, http.StatusBadRequest, "notificationURI domain not whitelisted", h.logger)
		return
	}

	resourceType, scopedSiteID, resourceID, err := parseSubscribedResource(req.SubscribedResource, h.hrefs.Prefix)
	if err != nil {
		writeSepError(w, r, http.StatusBadRequest, err.Error(), h.logger)
		return
	}
	// A subscription posted beneath a site may only watch that site.
	if scopedSiteID != nil && *scopedSiteID != site.SiteID {
		writeSepError(w, r, http.StatusBadRequest, "subscribedResource names a different site", h.logger)
		return
	}

	limit := req.Limit
	if limit < 1 {
		limit = 1
	}
	// Registered under this site regardless of whether the watched href
	// names one, so the subscription stays reachable beneath it.
	registeredSite := site.SiteID
	sub := models.Subscription{
		AggregatorID:    scope.AggregatorID,
		ResourceType:    resourceType,
		ResourceID:      resourceID,
		ScopedSiteID:    &registeredSite,
		NotificationURI: req.NotificationURI,
		EntityLimit:     limit,
	}
	if req.Condition != nil {
		sub.Conditions = []models.SubscriptionCondition{{
			Attribute:      req.Condition.AttributeIdentifier,
			LowerThreshold: req.Condition.LowerThreshold,
			UpperThreshold: req.Condition.UpperThreshold,
		}}
	}

	changed := h.now().Truncate(time.Microsecond)
	subID, err := h.subs.Create(r.Context(), &sub, changed)
	if err != nil {
		h.logger.Error("subscription create failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", h.hrefs.Subscription(site.SiteID, subID))
	w.WriteHeader(http.StatusCreated)
}

// Delete handles DELETE /edev/{site}/sub/{sub}.
func (h *SubscriptionHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	site, scope, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	subID, ok := pathID(r, "sub")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	deleted := h.now().Truncate(time.Microsecond)
	err := h.subs.Delete(r.Context(), scope.AggregatorID, site.SiteID, subID, deleted)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("subscription delete failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
