package notifier

import (
	"context"
	"encoding/xml"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/notify"
	"gridserve/internal/repository"
	"gridserve/internal/sep2"
	"gridserve/internal/server"
)

// maxNotificationPage caps how many entities a single Notification carries,
// regardless of the subscription's entity limit.
const maxNotificationPage = 100

const (
	statusDefault = 0
	statusDeleted = 4
)

// Checker consumes check tasks, matches the stamped rows against standing
// subscriptions and enqueues rendered notifications for transmission.
type Checker struct {
	sites     *repository.SiteRepository
	groups    *repository.ControlGroupRepository
	does      *repository.DOERepository
	defaults  *repository.DefaultControlRepository
	tariffs   *repository.TariffRepository
	ders      *repository.DERRepository
	readings  *repository.ReadingRepository
	subs      *repository.SubscriptionRepository
	publisher *notify.TaskPublisher
	render    renderer
	hrefs     server.Hrefs
	logger    *zap.Logger
	now       func() time.Time
}

// NewChecker wires a Checker over the shared repositories.
func NewChecker(sites *repository.SiteRepository, groups *repository.ControlGroupRepository,
	does *repository.DOERepository, defaults *repository.DefaultControlRepository,
	tariffs *repository.TariffRepository, ders *repository.DERRepository,
	readings *repository.ReadingRepository, subs *repository.SubscriptionRepository,
	publisher *notify.TaskPublisher, hrefs server.Hrefs, pow10 int32, logger *zap.Logger) *Checker {
	return &Checker{
		sites:     sites,
		groups:    groups,
		does:      does,
		defaults:  defaults,
		tariffs:   tariffs,
		ders:      ders,
		readings:  readings,
		subs:      subs,
		publisher: publisher,
		render:    renderer{hrefs: hrefs, pow10: pow10},
		hrefs:     hrefs,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle runs one check task to completion. Errors are returned so the
// consumer can nack and redeliver.
func (c *Checker) Handle(ctx context.Context, task notify.CheckTask) error {
	switch task.Resource {
	case notify.ResourceSites:
		return c.checkSites(ctx, task.Timestamp)
	case notify.ResourceDOEs:
		return c.checkDOEs(ctx, task.Timestamp)
	case notify.ResourceRates:
		return c.checkRates(ctx, task.Timestamp)
	case notify.ResourceReadings:
		return c.checkReadings(ctx, task.Timestamp)
	case notify.ResourceDERAvailabilities, notify.ResourceDERRatings,
		notify.ResourceDERSettings, notify.ResourceDERStatuses:
		return c.checkDER(ctx, task.Resource, task.Timestamp)
	case notify.ResourceDefaultSiteControls:
		return c.checkDefaultControls(ctx, task.Timestamp)
	case notify.ResourceSiteControlGroups:
		return c.checkControlGroups(ctx, task.Timestamp)
	default:
		c.logger.Warn("unknown check resource", zap.String("resource", string(task.Resource)))
		return nil
	}
}

// pageSize is how many entities one notification to this subscription holds.
func pageSize(sub *models.Subscription) int {
	size := sub.EntityLimit
	if size < 1 {
		size = 1
	}
	if size > maxNotificationPage {
		size = maxNotificationPage
	}
	return size
}

// enqueue renders the Notification envelope and hands it to the transmit
// queue.
func (c *Checker) enqueue(ctx context.Context, sub *models.Subscription, status int, p *payload) error {
	siteID := int64(0)
	if sub.ScopedSiteID != nil {
		siteID = *sub.ScopedSiteID
	}
	subscriptionHref := c.hrefs.Subscription(siteID, sub.SubscriptionID)
	n := sep2.Notification{
		SubscribedResource: server.SubscribedResourceHref(c.hrefs, sub, siteID),
		Status:             status,
		SubscriptionURI:    subscriptionHref,
		Resource:           p.resource(),
	}
	content, err := xml.Marshal(&n)
	if err != nil {
		return err
	}
	return c.publisher.EnqueueTransmit(ctx, notify.TransmitTask{
		SubscriptionID:   sub.SubscriptionID,
		NotificationID:   uuid.NewString(),
		SubscriptionHref: subscriptionHref,
		NotificationURI:  sub.NotificationURI,
		Content:          append([]byte(xml.Header), content...),
		Attempt:          1,
	})
}

// siteCache memoises site lookups across one check run.
type siteCache map[int64]*models.Site

func (c *Checker) site(ctx context.Context, cache siteCache, siteID int64) (*models.Site, error) {
	if s, ok := cache[siteID]; ok {
		return s, nil
	}
	s, err := c.sites.GetByID(ctx, siteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			cache[siteID] = nil
			return nil, nil
		}
		return nil, err
	}
	cache[siteID] = s
	return s, nil
}

func (c *Checker) checkSites(ctx context.Context, ts time.Time) error {
	changed, err := c.sites.ByChangedAt(ctx, ts)
	if err != nil {
		return err
	}
	deleted, err := c.sites.DeletedAt(ctx, ts)
	if err != nil {
		return err
	}
	if len(changed) == 0 && len(deleted) == 0 {
		return nil
	}
	subs, err := c.subs.ForResource(ctx, models.ResourceSite)
	if err != nil {
		return err
	}
	for i := range subs {
		sub := &subs[i]
		match := func(s *models.Site) bool {
			if s.AggregatorID != sub.AggregatorID {
				return false
			}
			// A single-device subscription names the site it watches.
			return sub.ResourceID == nil || *sub.ResourceID == s.SiteID
		}
		if err := notifyPages(filterSites(changed, match), pageSize(sub), func(page []models.Site) error {
			p, err := c.render.sites(page)
			if err != nil {
				return err
			}
			return c.enqueue(ctx, sub, statusDefault, p)
		}); err != nil {
			return err
		}
		if err := notifyPages(filterSites(deleted, match), pageSize(sub), func(page []models.Site) error {
			p, err := c.render.sites(page)
			if err != nil {
				return err
			}
			return c.enqueue(ctx, sub, statusDeleted, p)
		}); err != nil {
			return err
		}
	}
	return nil
}

func filterSites(sites []models.Site, keep func(*models.Site) bool) []models.Site {
	var out []models.Site
	for i := range sites {
		if keep(&sites[i]) {
			out = append(out, sites[i])
		}
	}
	return out
}

// notifyPages slices entities into notification sized pages.
func notifyPages[T any](entities []T, size int, send func([]T) error) error {
	for start := 0; start < len(entities); start += size {
		end := start + size
		if end > len(entities) {
			end = len(entities)
		}
		if err := send(entities[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkDOEs(ctx context.Context, ts time.Time) error {
	changed, err := c.does.ByChangedAt(ctx, ts)
	if err != nil {
		return err
	}
	deleted, err := c.does.DeletedAt(ctx, ts)
	if err != nil {
		return err
	}
	if len(changed) == 0 && len(deleted) == 0 {
		return nil
	}
	subs, err := c.subs.ForResource(ctx, models.ResourceDynamicOperatingEnvelope)
	if err != nil {
		return err
	}
	cache := siteCache{}
	now := c.now()
	for i := range subs {
		sub := &subs[i]
		if sub.ScopedSiteID == nil || sub.ResourceID == nil {
			continue
		}
		siteID, groupID := *sub.ScopedSiteID, *sub.ResourceID
		site, err := c.site(ctx, cache, siteID)
		if err != nil {
			return err
		}
		if site == nil || site.AggregatorID != sub.AggregatorID {
			continue
		}
		match := func(d *models.DynamicOperatingEnvelope) bool {
			return d.SiteID == siteID && d.SiteControlGroupID == groupID
		}
		send := func(status int) func([]models.DynamicOperatingEnvelope) error {
			return func(page []models.DynamicOperatingEnvelope) error {
				p, err := c.render.controls(siteID, groupID, page, now)
				if err != nil {
					return err
				}
				return c.enqueue(ctx, sub, status, p)
			}
		}
		if err := notifyPages(filterDOEs(changed, match), pageSize(sub), send(statusDefault)); err != nil {
			return err
		}
		if err := notifyPages(filterDOEs(deleted, match), pageSize(sub), send(statusDeleted)); err != nil {
			return err
		}
	}
	return nil
}

func filterDOEs(does []models.DynamicOperatingEnvelope, keep func(*models.DynamicOperatingEnvelope) bool) []models.DynamicOperatingEnvelope {
	var out []models.DynamicOperatingEnvelope
	for i := range does {
		if keep(&does[i]) {
			out = append(out, does[i])
		}
	}
	return out
}

func (c *Checker) checkRates(ctx context.Context, ts time.Time) error {
	changed, err := c.tariffs.RatesByChangedAt(ctx, ts)
	if err != nil {
		return err
	}
	deleted, err := c.tariffs.RatesDeletedAt(ctx, ts)
	if err != nil {
		return err
	}
	if len(changed) == 0 && len(deleted) == 0 {
		return nil
	}
	subs, err := c.subs.ForResource(ctx, models.ResourceTariffGeneratedRate)
	if err != nil {
		return err
	}
	cache := siteCache{}
	now := c.now()
	for i := range subs {
		sub := &subs[i]
		if sub.ScopedSiteID == nil || sub.ResourceID == nil {
			continue
		}
		siteID, tariffID := *sub.ScopedSiteID, *sub.ResourceID
		site, err := c.site(ctx, cache, siteID)
		if err != nil {
			return err
		}
		if site == nil || site.AggregatorID != sub.AggregatorID {
			continue
		}
		match := func(r *models.TariffGeneratedRate) bool {
			return r.SiteID == siteID && r.TariffID == tariffID
		}
		// Each stored rate carries all four prices, so every price stream
		// gets its own notification fan-out.
		send := func(priceType sep2.PricingReadingType, status int) func([]models.TariffGeneratedRate) error {
			return func(page []models.TariffGeneratedRate) error {
				p, err := c.render.rates(siteID, site.TimezoneID, priceType, page, now)
				if err != nil {
					return err
				}
				return c.enqueue(ctx, sub, status, p)
			}
		}
		for _, priceType := range sep2.AllPricingReadingTypes {
			if err := notifyPages(filterRates(changed, match), pageSize(sub), send(priceType, statusDefault)); err != nil {
				return err
			}
			if err := notifyPages(filterRates(deleted, match), pageSize(sub), send(priceType, statusDeleted)); err != nil {
				return err
			}
		}
	}
	return nil
}

func filterRates(rates []models.TariffGeneratedRate, keep func(*models.TariffGeneratedRate) bool) []models.TariffGeneratedRate {
	var out []models.TariffGeneratedRate
	for i := range rates {
		if keep(&rates[i]) {
			out = append(out, rates[i])
		}
	}
	return out
}

// conditionMatch applies a subscription's reading-value gate: with both
// thresholds set a reading notifies only when its value falls outside
// (lower, upper).
func conditionMatch(sub *models.Subscription, value int64) bool {
	if len(sub.Conditions) == 0 {
		return true
	}
	cond := sub.Conditions[0]
	return value < cond.LowerThreshold || value > cond.UpperThreshold
}

func (c *Checker) checkReadings(ctx context.Context, ts time.Time) error {
	changed, types, err := c.readings.ReadingsByChangedAt(ctx, ts)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	subs, err := c.subs.ForResource(ctx, models.ResourceReading)
	if err != nil {
		return err
	}
	for i := range subs {
		sub := &subs[i]
		if sub.ResourceID == nil {
			continue
		}
		groupID := *sub.ResourceID
		var matched []models.SiteReading
		for _, reading := range changed {
			rt, ok := types[reading.SiteReadingTypeID]
			if !ok || rt.GroupID != groupID || rt.AggregatorID != sub.AggregatorID {
				continue
			}
			if !conditionMatch(sub, reading.Value) {
				continue
			}
			matched = append(matched, reading)
		}
		if err := notifyPages(matched, pageSize(sub), func(page []models.SiteReading) error {
			p, err := c.render.readings(page)
			if err != nil {
				return err
			}
			return c.enqueue(ctx, sub, statusDefault, p)
		}); err != nil {
			return err
		}
	}
	return nil
}

// checkDER handles the four single-entity DER resources. They are not lists,
// so each changed row becomes its own notification.
func (c *Checker) checkDER(ctx context.Context, resource notify.Resource, ts time.Time) error {
	type entity struct {
		siteID int64
		render func(siteID int64) (*payload, error)
	}
	var (
		subResource models.SubscriptionResource
		entities    []entity
	)
	switch resource {
	case notify.ResourceDERAvailabilities:
		subResource = models.ResourceSiteDERAvailability
		rows, sites, err := c.ders.AvailabilitiesByChangedAt(ctx, ts)
		if err != nil {
			return err
		}
		for i := range rows {
			row := rows[i]
			entities = append(entities, entity{
				siteID: sites[row.SiteDERID],
				render: func(siteID int64) (*payload, error) { return c.render.derAvailability(siteID, &row) },
			})
		}
	case notify.ResourceDERRatings:
		subResource = models.ResourceSiteDERRating
		rows, sites, err := c.ders.RatingsByChangedAt(ctx, ts)
		if err != nil {
			return err
		}
		for i := range rows {
			row := rows[i]
			entities = append(entities, entity{
				siteID: sites[row.SiteDERID],
				render: func(siteID int64) (*payload, error) { return c.render.derRating(siteID, &row) },
			})
		}
	case notify.ResourceDERSettings:
		subResource = models.ResourceSiteDERSetting
		rows, sites, err := c.ders.SettingsByChangedAt(ctx, ts)
		if err != nil {
			return err
		}
		for i := range rows {
			row := rows[i]
			entities = append(entities, entity{
				siteID: sites[row.SiteDERID],
				render: func(siteID int64) (*payload, error) { return c.render.derSetting(siteID, &row) },
			})
		}
	case notify.ResourceDERStatuses:
		subResource = models.ResourceSiteDERStatus
		rows, sites, err := c.ders.StatusesByChangedAt(ctx, ts)
		if err != nil {
			return err
		}
		for i := range rows {
			row := rows[i]
			entities = append(entities, entity{
				siteID: sites[row.SiteDERID],
				render: func(siteID int64) (*payload, error) { return c.render.derStatus(siteID, &row) },
			})
		}
	}
	if len(entities) == 0 {
		return nil
	}
	subs, err := c.subs.ForResource(ctx, subResource)
	if err != nil {
		return err
	}
	cache := siteCache{}
	for i := range subs {
		sub := &subs[i]
		if sub.ScopedSiteID == nil {
			continue
		}
		site, err := c.site(ctx, cache, *sub.ScopedSiteID)
		if err != nil {
			return err
		}
		if site == nil || site.AggregatorID != sub.AggregatorID {
			continue
		}
		for _, e := range entities {
			if e.siteID != *sub.ScopedSiteID {
				continue
			}
			p, err := e.render(e.siteID)
			if err != nil {
				return err
			}
			if err := c.enqueue(ctx, sub, statusDefault, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Checker) checkDefaultControls(ctx context.Context, ts time.Time) error {
	changed, err := c.defaults.ByChangedAt(ctx, ts)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	subs, err := c.subs.ForResource(ctx, models.ResourceDefaultSiteControl)
	if err != nil {
		return err
	}
	cache := siteCache{}
	for i := range subs {
		sub := &subs[i]
		if sub.ScopedSiteID == nil || sub.ResourceID == nil {
			continue
		}
		site, err := c.site(ctx, cache, *sub.ScopedSiteID)
		if err != nil {
			return err
		}
		if site == nil || site.AggregatorID != sub.AggregatorID {
			continue
		}
		for i := range changed {
			d := &changed[i]
			if d.SiteID != *sub.ScopedSiteID {
				continue
			}
			p, err := c.render.defaultControl(d.SiteID, *sub.ResourceID, d)
			if err != nil {
				return err
			}
			if err := c.enqueue(ctx, sub, statusDefault, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Checker) checkControlGroups(ctx context.Context, ts time.Time) error {
	changed, err := c.groups.ByChangedAt(ctx, ts)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	subs, err := c.subs.ForResource(ctx, models.ResourceSiteControlGroup)
	if err != nil {
		return err
	}
	cache := siteCache{}
	for i := range subs {
		sub := &subs[i]
		if sub.ScopedSiteID == nil {
			continue
		}
		site, err := c.site(ctx, cache, *sub.ScopedSiteID)
		if err != nil {
			return err
		}
		if site == nil || site.AggregatorID != sub.AggregatorID {
			continue
		}
		// Control groups are global, so every subscriber sees the change
		// rendered against its own site's program hrefs.
		if err := notifyPages(changed, pageSize(sub), func(page []models.SiteControlGroup) error {
			p, err := c.render.programs(*sub.ScopedSiteID, page)
			if err != nil {
				return err
			}
			return c.enqueue(ctx, sub, statusDefault, p)
		}); err != nil {
			return err
		}
	}
	return nil
}
