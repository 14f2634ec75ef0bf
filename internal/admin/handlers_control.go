package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/notify"
	"gridserve/internal/repository"
)

// ControlHandlers ingests site control groups, operating envelope batches and
// per-site fallback controls.
type ControlHandlers struct {
	groups    *repository.ControlGroupRepository
	does      *repository.DOERepository
	defaults  *repository.DefaultControlRepository
	publisher *notify.TaskPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewControlHandlers wires the control ingestion endpoints.
func NewControlHandlers(groups *repository.ControlGroupRepository, does *repository.DOERepository,
	defaults *repository.DefaultControlRepository, publisher *notify.TaskPublisher,
	logger *zap.Logger) *ControlHandlers {
	return &ControlHandlers{groups: groups, does: does, defaults: defaults,
		publisher: publisher, logger: logger, now: time.Now}
}

type controlGroupJSON struct {
	SiteControlGroupID int64     `json:"site_control_group_id"`
	Description        string    `json:"description"`
	Primacy            int       `json:"primacy"`
	FsaID              int64     `json:"fsa_id"`
	CreatedTime        time.Time `json:"created_time"`
	ChangedTime        time.Time `json:"changed_time"`
}

func groupToJSON(g *models.SiteControlGroup) controlGroupJSON {
	return controlGroupJSON{
		SiteControlGroupID: g.SiteControlGroupID,
		Description:        g.Description,
		Primacy:            g.Primacy,
		FsaID:              g.FsaID,
		CreatedTime:        g.CreatedTime,
		ChangedTime:        g.ChangedTime,
	}
}

// ListGroups is GET /site_control_group.
func (h *ControlHandlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	start, limit := pageParams(r)
	groups, total, err := h.groups.List(r.Context(), start, limit, afterParam(r))
	if err != nil {
		h.logger.Error("listing control groups failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list control groups")
		return
	}
	out := make([]controlGroupJSON, 0, len(groups))
	for i := range groups {
		out = append(out, groupToJSON(&groups[i]))
	}
	writePage(w, total, start, limit, "site_control_groups", out)
}

// CreateGroup is POST /site_control_group.
func (h *ControlHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string `json:"description"`
		Primacy     int    `json:"primacy"`
		FsaID       int64  `json:"fsa_id"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	if body.FsaID <= 0 {
		body.FsaID = 1
	}
	changedTime := h.now().UTC().Truncate(time.Microsecond)
	id, err := h.groups.Create(r.Context(), &models.SiteControlGroup{
		Description: body.Description,
		Primacy:     body.Primacy,
		FsaID:       body.FsaID,
	}, changedTime)
	if err != nil {
		h.logger.Error("creating control group failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create control group")
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceSiteControlGroups, changedTime)
	writeJSON(w, http.StatusCreated, map[string]int64{"site_control_group_id": id})
}

// GetGroup is GET /site_control_group/{group}.
func (h *ControlHandlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "group")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	group, err := h.groups.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "control group not found")
		return
	}
	if err != nil {
		h.logger.Error("loading control group failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load control group")
		return
	}
	writeJSON(w, http.StatusOK, groupToJSON(group))
}

type siteControlBody struct {
	SiteID                int64     `json:"site_id"`
	CalculationLogID      *int64    `json:"calculation_log_id"`
	StartTime             time.Time `json:"start_time"`
	DurationSeconds       int32     `json:"duration_seconds"`
	RandomizeStartSeconds *int16    `json:"randomize_start_seconds"`

	ImportLimitWatts     *float64 `json:"import_limit_watts"`
	ExportLimitWatts     *float64 `json:"export_limit_watts"`
	GenerationLimitWatts *float64 `json:"generation_limit_watts"`
	LoadLimitWatts       *float64 `json:"load_limit_watts"`
	SetEnergized         *bool    `json:"set_energized"`
	SetConnected         *bool    `json:"set_connected"`
}

// UpsertControls is POST /site_control_group/{group}/site_control. Rows are
// keyed by (group, site, start); an existing row is archived before being
// replaced.
func (h *ControlHandlers) UpsertControls(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "group")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.groups.Get(r.Context(), groupID); errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "control group not found")
		return
	} else if err != nil {
		h.logger.Error("loading control group failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store controls")
		return
	}
	var body struct {
		SiteControls []siteControlBody `json:"site_controls"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	if len(body.SiteControls) == 0 {
		writeError(w, http.StatusBadRequest, "site_controls is empty")
		return
	}
	does := make([]models.DynamicOperatingEnvelope, 0, len(body.SiteControls))
	for i := range body.SiteControls {
		c := &body.SiteControls[i]
		if c.SiteID <= 0 || c.StartTime.IsZero() || c.DurationSeconds <= 0 {
			writeError(w, http.StatusBadRequest, "each control requires site_id, start_time and duration_seconds")
			return
		}
		does = append(does, models.DynamicOperatingEnvelope{
			SiteControlGroupID:         groupID,
			SiteID:                     c.SiteID,
			CalculationLogID:           c.CalculationLogID,
			StartTime:                  c.StartTime.UTC(),
			DurationSeconds:            c.DurationSeconds,
			RandomizeStartSeconds:      c.RandomizeStartSeconds,
			ImportLimitActiveWatts:     c.ImportLimitWatts,
			ExportLimitActiveWatts:     c.ExportLimitWatts,
			GenerationLimitActiveWatts: c.GenerationLimitWatts,
			LoadLimitActiveWatts:       c.LoadLimitWatts,
			SetEnergized:               c.SetEnergized,
			SetConnected:               c.SetConnected,
		})
	}
	changedTime := h.now().UTC().Truncate(time.Microsecond)
	if err := h.does.UpsertMany(r.Context(), does, changedTime); err != nil {
		h.logger.Error("storing controls failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store controls")
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceDOEs, changedTime)
	writeJSON(w, http.StatusCreated, map[string]int{"stored": len(does)})
}

type siteControlJSON struct {
	SiteControlID         int64     `json:"site_control_id"`
	SiteControlGroupID    int64     `json:"site_control_group_id"`
	SiteID                int64     `json:"site_id"`
	CalculationLogID      *int64    `json:"calculation_log_id"`
	StartTime             time.Time `json:"start_time"`
	DurationSeconds       int32     `json:"duration_seconds"`
	RandomizeStartSeconds *int16    `json:"randomize_start_seconds"`
	ImportLimitWatts      *float64  `json:"import_limit_watts"`
	ExportLimitWatts      *float64  `json:"export_limit_watts"`
	GenerationLimitWatts  *float64  `json:"generation_limit_watts"`
	LoadLimitWatts        *float64  `json:"load_limit_watts"`
	SetEnergized          *bool     `json:"set_energized"`
	SetConnected          *bool     `json:"set_connected"`
	ChangedTime           time.Time `json:"changed_time"`
}

func doeToJSON(d *models.DynamicOperatingEnvelope) siteControlJSON {
	return siteControlJSON{
		SiteControlID:         d.DynamicOperatingEnvelopeID,
		SiteControlGroupID:    d.SiteControlGroupID,
		SiteID:                d.SiteID,
		CalculationLogID:      d.CalculationLogID,
		StartTime:             d.StartTime,
		DurationSeconds:       d.DurationSeconds,
		RandomizeStartSeconds: d.RandomizeStartSeconds,
		ImportLimitWatts:      d.ImportLimitActiveWatts,
		ExportLimitWatts:      d.ExportLimitActiveWatts,
		GenerationLimitWatts:  d.GenerationLimitActiveWatts,
		LoadLimitWatts:        d.LoadLimitActiveWatts,
		SetEnergized:          d.SetEnergized,
		SetConnected:          d.SetConnected,
		ChangedTime:           d.ChangedTime,
	}
}

// ListControls is GET /site_control_group/{group}/site_control?site_id=N.
func (h *ControlHandlers) ListControls(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "group")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	siteID, err := strconv.ParseInt(r.URL.Query().Get("site_id"), 10, 64)
	if err != nil || siteID <= 0 {
		writeError(w, http.StatusBadRequest, "site_id query parameter is required")
		return
	}
	start, limit := pageParams(r)
	does, total, err := h.does.ListForSite(r.Context(), groupID, siteID, time.Time{}, start, limit, afterParam(r))
	if err != nil {
		h.logger.Error("listing controls failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list controls")
		return
	}
	out := make([]siteControlJSON, 0, len(does))
	for i := range does {
		out = append(out, doeToJSON(&does[i]))
	}
	writePage(w, total, start, limit, "site_controls", out)
}

// DeleteControlRange is
// DELETE /site_control_group/{group}/site_control/range/{period_start}/{period_end}.
// The optional site_id query narrows the purge to one site.
func (h *ControlHandlers) DeleteControlRange(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "group")
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
	var siteID int64
	if raw := r.URL.Query().Get("site_id"); raw != "" {
		siteID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || siteID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid site_id")
			return
		}
	}
	deletedTime := h.now().UTC().Truncate(time.Microsecond)
	removed, err := h.does.DeleteRange(r.Context(), groupID, siteID, periodStart, periodEnd, deletedTime)
	if err != nil {
		h.logger.Error("deleting control range failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete controls")
		return
	}
	if removed > 0 {
		h.publisher.EnqueueCheck(r.Context(), notify.ResourceDOEs, deletedTime)
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": removed})
}

type defaultControlJSON struct {
	SiteID                   int64     `json:"site_id"`
	ImportLimitWatts         *float64  `json:"import_limit_watts"`
	ExportLimitWatts         *float64  `json:"export_limit_watts"`
	GenerationLimitWatts     *float64  `json:"generation_limit_watts"`
	LoadLimitWatts           *float64  `json:"load_limit_watts"`
	RampRatePercentPerSecond *int32    `json:"ramp_rate_percent_per_second"`
	ChangedTime              time.Time `json:"changed_time"`
}

// GetDefault is GET /site_control_default/{site}.
func (h *ControlHandlers) GetDefault(w http.ResponseWriter, r *http.Request) {
	siteID, err := pathID(r, "site")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := h.defaults.Get(r.Context(), siteID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "default control not found")
		return
	}
	if err != nil {
		h.logger.Error("loading default control failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load default control")
		return
	}
	writeJSON(w, http.StatusOK, defaultControlJSON{
		SiteID:                   d.SiteID,
		ImportLimitWatts:         d.ImportLimitActiveWatts,
		ExportLimitWatts:         d.ExportLimitActiveWatts,
		GenerationLimitWatts:     d.GenerationLimitActiveWatts,
		LoadLimitWatts:           d.LoadLimitActiveWatts,
		RampRatePercentPerSecond: d.RampRatePercentPerSecond,
		ChangedTime:              d.ChangedTime,
	})
}

// SetDefault is POST /site_control_default/{site}.
func (h *ControlHandlers) SetDefault(w http.ResponseWriter, r *http.Request) {
	siteID, err := pathID(r, "site")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		ImportLimitWatts         *float64 `json:"import_limit_watts"`
		ExportLimitWatts         *float64 `json:"export_limit_watts"`
		GenerationLimitWatts     *float64 `json:"generation_limit_watts"`
		LoadLimitWatts           *float64 `json:"load_limit_watts"`
		RampRatePercentPerSecond *int32   `json:"ramp_rate_percent_per_second"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	changedTime := h.now().UTC().Truncate(time.Microsecond)
	err = h.defaults.Upsert(r.Context(), &models.DefaultSiteControl{
		SiteID:                     siteID,
		ImportLimitActiveWatts:     body.ImportLimitWatts,
		ExportLimitActiveWatts:     body.ExportLimitWatts,
		GenerationLimitActiveWatts: body.GenerationLimitWatts,
		LoadLimitActiveWatts:       body.LoadLimitWatts,
		RampRatePercentPerSecond:   body.RampRatePercentPerSecond,
	}, changedTime)
	if err != nil {
		h.logger.Error("storing default control failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store default control")
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceDefaultSiteControls, changedTime)
	writeJSON(w, http.StatusCreated, nil)
}
