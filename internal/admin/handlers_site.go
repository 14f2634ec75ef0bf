package admin

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/notify"
	"gridserve/internal/repository"
)

// SiteHandlers exposes registered sites, logical site groups and stored
// telemetry to operators.
type SiteHandlers struct {
	sites     *repository.SiteRepository
	readings  *repository.ReadingRepository
	publisher *notify.TaskPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewSiteHandlers wires the site, site group and reading endpoints.
func NewSiteHandlers(sites *repository.SiteRepository, readings *repository.ReadingRepository,
	publisher *notify.TaskPublisher, logger *zap.Logger) *SiteHandlers {
	return &SiteHandlers{sites: sites, readings: readings, publisher: publisher, logger: logger, now: time.Now}
}

type siteJSON struct {
	SiteID          int64     `json:"site_id"`
	NMI             *string   `json:"nmi"`
	AggregatorID    int64     `json:"aggregator_id"`
	TimezoneID      string    `json:"timezone_id"`
	LFDI            string    `json:"lfdi"`
	SFDI            int64     `json:"sfdi"`
	DeviceCategory  uint32    `json:"device_category"`
	RegistrationPIN int32     `json:"registration_pin"`
	CreatedTime     time.Time `json:"created_time"`
	ChangedTime     time.Time `json:"changed_time"`
}

func siteToJSON(s *models.Site) siteJSON {
	return siteJSON{
		SiteID:          s.SiteID,
		NMI:             s.NMI,
		AggregatorID:    s.AggregatorID,
		TimezoneID:      s.TimezoneID,
		LFDI:            s.LFDI,
		SFDI:            s.SFDI,
		DeviceCategory:  s.DeviceCategory,
		RegistrationPIN: s.RegistrationPIN,
		CreatedTime:     s.CreatedTime,
		ChangedTime:     s.ChangedTime,
	}
}

// List is GET /site.
func (h *SiteHandlers) List(w http.ResponseWriter, r *http.Request) {
	start, limit := pageParams(r)
	sites, total, err := h.sites.ListAll(r.Context(), start, limit, afterParam(r))
	if err != nil {
		h.logger.Error("listing sites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	out := make([]siteJSON, 0, len(sites))
	for i := range sites {
		out = append(out, siteToJSON(&sites[i]))
	}
	writePage(w, total, start, limit, "sites", out)
}

// Get is GET /site/{site}.
func (h *SiteHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "site")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	site, err := h.sites.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	if err != nil {
		h.logger.Error("loading site failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load site")
		return
	}
	writeJSON(w, http.StatusOK, siteToJSON(site))
}

// Delete is DELETE /site/{site}. The site row is archived, not destroyed.
func (h *SiteHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "site")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deletedTime := h.now().UTC().Truncate(time.Microsecond)
	err = h.sites.Delete(r.Context(), id, deletedTime)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	if err != nil {
		h.logger.Error("deleting site failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete site")
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceSites, deletedTime)
	w.WriteHeader(http.StatusNoContent)
}

type siteGroupJSON struct {
	SiteGroupID int64     `json:"site_group_id"`
	Name        string    `json:"name"`
	SiteCount   int       `json:"site_count"`
	CreatedTime time.Time `json:"created_time"`
	ChangedTime time.Time `json:"changed_time"`
}

// Groups is GET /site_group.
func (h *SiteHandlers) Groups(w http.ResponseWriter, r *http.Request) {
	start, limit := pageParams(r)
	groups, counts, total, err := h.sites.Groups(r.Context(), start, limit)
	if err != nil {
		h.logger.Error("listing site groups failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list site groups")
		return
	}
	out := make([]siteGroupJSON, 0, len(groups))
	for i := range groups {
		out = append(out, siteGroupJSON{
			SiteGroupID: groups[i].SiteGroupID,
			Name:        groups[i].Name,
			SiteCount:   counts[i],
			CreatedTime: groups[i].CreatedTime,
			ChangedTime: groups[i].ChangedTime,
		})
	}
	writePage(w, total, start, limit, "site_groups", out)
}

// Group is GET /site_group/{name}.
func (h *SiteHandlers) Group(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	group, count, err := h.sites.GroupByName(r.Context(), name)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "site group not found")
		return
	}
	if err != nil {
		h.logger.Error("loading site group failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load site group")
		return
	}
	writeJSON(w, http.StatusOK, siteGroupJSON{
		SiteGroupID: group.SiteGroupID,
		Name:        group.Name,
		SiteCount:   count,
		CreatedTime: group.CreatedTime,
		ChangedTime: group.ChangedTime,
	})
}

type readingJSON struct {
	SiteReadingID     int64     `json:"site_reading_id"`
	SiteReadingTypeID int64     `json:"site_reading_type_id"`
	TimePeriodStart   time.Time `json:"time_period_start"`
	TimePeriodSeconds int32     `json:"time_period_seconds"`
	Value             int64     `json:"value"`
	QualityFlags      int       `json:"quality_flags"`
	LocalID           *int64    `json:"local_id"`
	ChangedTime       time.Time `json:"changed_time"`
}

// Readings is GET /site_reading/csip_aus/{site}/{period_start}/{period_end}.
func (h *SiteHandlers) Readings(w http.ResponseWriter, r *http.Request) {
	siteID, err := pathID(r, "site")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	periodStart, err := pathTime(r, "period_start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	periodEnd, err := pathTime(r, "period_end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !periodEnd.After(periodStart) {
		writeError(w, http.StatusBadRequest, "period_end must be after period_start")
		return
	}
	start, limit := pageParams(r)
	readings, total, err := h.readings.ListReadingsForSite(r.Context(), siteID, periodStart, periodEnd, start, limit)
	if err != nil {
		h.logger.Error("listing readings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list readings")
		return
	}
	out := make([]readingJSON, 0, len(readings))
	for i := range readings {
		rd := &readings[i]
		out = append(out, readingJSON{
			SiteReadingID:     rd.SiteReadingID,
			SiteReadingTypeID: rd.SiteReadingTypeID,
			TimePeriodStart:   rd.TimePeriodStart,
			TimePeriodSeconds: rd.TimePeriodSeconds,
			Value:             rd.Value,
			QualityFlags:      rd.QualityFlags,
			LocalID:           rd.LocalID,
			ChangedTime:       rd.ChangedTime,
		})
	}
	writePage(w, total, start, limit, "readings", out)
}
