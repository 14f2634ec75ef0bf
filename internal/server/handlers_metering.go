package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/auth"
	"gridserve/internal/models"
	"gridserve/internal/notify"
	"gridserve/internal/repository"
	"gridserve/internal/sep2"
)

// MeteringHandlers serves the MirrorUsagePoint function set. A posted
// MirrorUsagePoint becomes a reading type group for the site named by its
// deviceLFDI; subsequent posts of MirrorMeterReadings to the group bulk
// insert readings.
type MeteringHandlers struct {
	sites     *repository.SiteRepository
	readings  *repository.ReadingRepository
	runtime   *repository.RuntimeConfigRepository
	publisher *notify.TaskPublisher
	hrefs     Hrefs
	logger    *zap.Logger
	now       func() time.Time
}

func NewMeteringHandlers(sites *repository.SiteRepository, readings *repository.ReadingRepository,
	runtime *repository.RuntimeConfigRepository, publisher *notify.TaskPublisher,
	hrefs Hrefs, logger *zap.Logger) *MeteringHandlers {
	return &MeteringHandlers{
		sites:     sites,
		readings:  readings,
		runtime:   runtime,
		publisher: publisher,
		hrefs:     hrefs,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *MeteringHandlers) usagePoint(types []models.SiteReadingType, lfdi string) sep2.MirrorUsagePoint {
	first := types[0]
	mup := sep2.MirrorUsagePoint{
		Href:                h.hrefs.MirrorUsagePoint(first.GroupID),
		MRID:                sep2.HexBinary(first.GroupMRID),
		DeviceLFDI:          sep2.HexBinary(lfdi),
		RoleFlags:           sep2.HexBinary(strconv.FormatInt(int64(first.RoleFlags), 16)),
		ServiceCategoryKind: 0,
		Status:              0,
	}
	if first.GroupDescription != nil {
		mup.Description = *first.GroupDescription
	}
	for i := range types {
		t := &types[i]
		mmr := sep2.MirrorMeterReading{
			MRID: sep2.HexBinary(t.MRID),
			ReadingType: &sep2.ReadingType{
				AccumulationBehaviour: t.AccumulationBehaviour,
				DataQualifier:         t.DataQualifier,
				FlowDirection:         t.FlowDirection,
				IntervalLength:        int(t.DefaultIntervalSeconds),
				Kind:                  t.Kind,
				Phase:                 t.Phase,
				PowerOfTenMultiplier:  t.PowerOfTenMultiplier,
				Uom:                   t.Uom,
			},
		}
		if t.Description != nil {
			mmr.Description = *t.Description
		}
		mup.MirrorMeterReadings = append(mup.MirrorMeterReadings, mmr)
	}
	return mup
}

// List handles GET /mup.
func (h *MeteringHandlers) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	p := parsePaging(r)

	var (
		heads []models.SiteReadingType
		count int
		err   error
	)
	if scope.DeviceCert {
		// A device cert only sees the usage points of its own site.
		heads, count, err = h.readings.ListGroupsForSite(r.Context(), scope.AggregatorID, scope.SiteID, p.Start, p.Limit, p.After)
	} else {
		heads, count, err = h.readings.ListGroups(r.Context(), scope.AggregatorID, p.Start, p.Limit, p.After)
	}
	if err != nil {
		h.logger.Error("mup list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	cfg, err := h.runtime.Get(r.Context())
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.MirrorUsagePointList{}
	out.Href = h.hrefs.MirrorUsagePointList()
	out.All = count
	out.Results = len(heads)
	if cfg.MupPostrateSeconds != nil {
		out.PostRate = intPtr(*cfg.MupPostrateSeconds)
	}
	for i := range heads {
		head := heads[i]
		types, err := h.readings.TypesForGroup(r.Context(), scope.AggregatorID, head.GroupID)
		if err != nil {
			h.logger.Error("mup group load failed", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		site, err := h.sites.GetByID(r.Context(), head.SiteID)
		if err != nil {
			h.logger.Error("mup site load failed", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		out.MirrorUsagePoints = append(out.MirrorUsagePoints, h.usagePoint(types, site.LFDI))
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// upsertTypes stores the MirrorMeterReadings that declare a ReadingType as
// site_reading_type rows in the group.
func (h *MeteringHandlers) upsertTypes(r *http.Request, scope *auth.Scope, siteID, groupID int64,
	groupMRID, groupDescription string, roleFlags int, mmrs []sep2.MirrorMeterReading, changed time.Time) error {
	for i := range mmrs {
		mmr := &mmrs[i]
		if mmr.ReadingType == nil {
			continue
		}
		rt := mmr.ReadingType
		t := models.SiteReadingType{
			AggregatorID:           scope.AggregatorID,
			SiteID:                 siteID,
			MRID:                   strings.ToLower(string(mmr.MRID)),
			GroupID:                groupID,
			GroupMRID:              groupMRID,
			Uom:                    rt.Uom,
			DataQualifier:          rt.DataQualifier,
			FlowDirection:          rt.FlowDirection,
			AccumulationBehaviour:  rt.AccumulationBehaviour,
			Kind:                   rt.Kind,
			Phase:                  rt.Phase,
			PowerOfTenMultiplier:   rt.PowerOfTenMultiplier,
			DefaultIntervalSeconds: int32(rt.IntervalLength),
			RoleFlags:              roleFlags,
		}
		if mmr.Description != "" {
			d := mmr.Description
			t.Description = &d
		}
		if groupDescription != "" {
			d := groupDescription
			t.GroupDescription = &d
		}
		if _, err := h.readings.UpsertType(r.Context(), &t, changed); err != nil {
			return err
		}
	}
	return nil
}

// Create handles POST /mup.
func (h *MeteringHandlers) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var req sep2.MirrorUsagePointRequest
	if !readXML(w, r, &req, h.logger) {
		return
	}
	lfdi := strings.ToLower(string(req.DeviceLFDI))
	if !sep2.IsValidLFDI(lfdi) {
		writeSepError(w, r, http.StatusBadRequest, "invalid deviceLFDI", h.logger)
		return
	}
	if req.MRID == "" {
		writeSepError(w, r, http.StatusBadRequest, "mRID required", h.logger)
		return
	}
	var roleFlags int
	if req.RoleFlags != "" {
		v, err := strconv.ParseInt(string(req.RoleFlags), 16, 32)
		if err != nil {
			writeSepError(w, r, http.StatusBadRequest, "invalid roleFlags", h.logger)
			return
		}
		roleFlags = int(v)
	}

	site, err := h.sites.GetByLFDI(r.Context(), scope.AggregatorID, lfdi)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusBadRequest, "deviceLFDI does not match a registered site", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("site lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !scope.VisibleSite(site.AggregatorID, site.SiteID) {
		writeSepError(w, r, http.StatusForbidden, "deviceLFDI outside certificate scope", h.logger)
		return
	}

	groupMRID := strings.ToLower(string(req.MRID))
	groupID, _, err := h.readings.GroupForMRID(r.Context(), scope.AggregatorID, groupMRID)
	created := false
	if err == repository.ErrNotFound {
		groupID, err = h.readings.NextGroupID(r.Context())
		created = true
	}
	if err != nil {
		h.logger.Error("mup group resolve failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	changed := h.now().Truncate(time.Microsecond)
	if err := h.upsertTypes(r, scope, site.SiteID, groupID, groupMRID, req.Description,
		roleFlags, req.MirrorMeterReadings, changed); err != nil {
		h.logger.Error("reading type upsert failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", h.hrefs.MirrorUsagePoint(groupID))
	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveGroup loads the {mup} path parameter within the aggregator scope.
func (h *MeteringHandlers) resolveGroup(w http.ResponseWriter, r *http.Request, scope *auth.Scope) ([]models.SiteReadingType, bool) {
	groupID, ok := pathID(r, "mup")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return nil, false
	}
	types, err := h.readings.TypesForGroup(r.Context(), scope.AggregatorID, groupID)
	if err != nil {
		h.logger.Error("mup group load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}
	if len(types) == 0 {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return nil, false
	}
	if scope.DeviceCert && types[0].SiteID != scope.SiteID {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return nil, false
	}
	return types, true
}

// Get handles GET /mup/{mup}.
func (h *MeteringHandlers) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	types, ok := h.resolveGroup(w, r, scope)
	if !ok {
		return
	}
	site, err := h.sites.GetByID(r.Context(), types[0].SiteID)
	if err != nil {
		h.logger.Error("mup site load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	mup := h.usagePoint(types, site.LFDI)
	writeXML(w, r, http.StatusOK, &mup, h.logger)
}

// Delete handles DELETE /mup/{mup}.
func (h *MeteringHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	types, ok := h.resolveGroup(w, r, scope)
	if !ok {
		return
	}
	deleted := h.now().Truncate(time.Microsecond)
	if err := h.readings.DeleteGroup(r.Context(), scope.AggregatorID, types[0].GroupID, deleted); err != nil {
		h.logger.Error("mup delete failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceReadings, deleted)
	w.WriteHeader(http.StatusNoContent)
}

func readingRow(typeID int64, rd *sep2.Reading, fallbackStart time.Time, fallbackSeconds int32) (models.SiteReading, bool) {
	row := models.SiteReading{
		SiteReadingTypeID: typeID,
		Value:             rd.Value,
		TimePeriodStart:   fallbackStart,
		TimePeriodSeconds: fallbackSeconds,
	}
	if rd.TimePeriod != nil {
		row.TimePeriodStart = time.Unix(int64(rd.TimePeriod.Start), 0).UTC()
		row.TimePeriodSeconds = int32(rd.TimePeriod.Duration)
	}
	if row.TimePeriodStart.IsZero() {
		return models.SiteReading{}, false
	}
	if rd.QualityFlags != "" {
		v, err := strconv.ParseInt(string(rd.QualityFlags), 16, 32)
		if err != nil {
			return models.SiteReading{}, false
		}
		row.QualityFlags = int(v)
	}
	if rd.LocalID != "" {
		v, err := strconv.ParseInt(string(rd.LocalID), 16, 64)
		if err != nil {
			return models.SiteReading{}, false
		}
		row.LocalID = &v
	}
	return row, true
}

// PostReadings handles POST /mup/{mup}: one or more MirrorMeterReading
// payloads carrying readings for the group's declared types.
func (h *MeteringHandlers) PostReadings(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	types, ok := h.resolveGroup(w, r, scope)
	if !ok {
		return
	}

	// The body is either a bare MirrorMeterReading or a MirrorUsagePoint
	// wrapping several. Try the wrapper first.
	body := struct {
		XMLName             struct{}                  `xml:"MirrorUsagePoint"`
		MirrorMeterReadings []sep2.MirrorMeterReading `xml:"MirrorMeterReading"`
	}{}
	var single sep2.MirrorMeterReading
	var mmrs []sep2.MirrorMeterReading
	if readBody, ok := peekXML(w, r, h.logger); ok {
		if err := unmarshalFirst(readBody, &body, &single); err != nil {
			writeSepError(w, r, http.StatusBadRequest, "malformed XML", h.logger)
			return
		}
		if len(body.MirrorMeterReadings) > 0 {
			mmrs = body.MirrorMeterReadings
		} else if single.MRID != "" {
			mmrs = []sep2.MirrorMeterReading{single}
		}
	} else {
		return
	}
	if len(mmrs) == 0 {
		writeSepError(w, r, http.StatusBadRequest, "no readings supplied", h.logger)
		return
	}

	byMRID := make(map[string]*models.SiteReadingType, len(types))
	for i := range types {
		byMRID[types[i].MRID] = &types[i]
	}

	var rows []models.SiteReading
	for i := range mmrs {
		mmr := &mmrs[i]
		t, found := byMRID[strings.ToLower(string(mmr.MRID))]
		if !found {
			writeSepError(w, r, http.StatusBadRequest, "unknown reading mRID", h.logger)
			return
		}
		if mmr.Reading != nil {
			row, ok := readingRow(t.SiteReadingTypeID, mmr.Reading, time.Time{}, t.DefaultIntervalSeconds)
			if !ok {
				writeSepError(w, r, http.StatusBadRequest, "invalid reading", h.logger)
				return
			}
			rows = append(rows, row)
		}
		for j := range mmr.MirrorReadingSets {
			set := &mmr.MirrorReadingSets[j]
			setStart := time.Unix(int64(set.TimePeriod.Start), 0).UTC()
			for k := range set.Readings {
				row, ok := readingRow(t.SiteReadingTypeID, &set.Readings[k], setStart, t.DefaultIntervalSeconds)
				if !ok {
					writeSepError(w, r, http.StatusBadRequest, "invalid reading", h.logger)
					return
				}
				rows = append(rows, row)
			}
		}
	}
	if len(rows) == 0 {
		writeSepError(w, r, http.StatusBadRequest, "no readings supplied", h.logger)
		return
	}

	changed := h.now().Truncate(time.Microsecond)
	if err := h.readings.UpsertReadings(r.Context(), rows, changed); err != nil {
		h.logger.Error("reading insert failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceReadings, changed)
	w.WriteHeader(http.StatusCreated)
}
