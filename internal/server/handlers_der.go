package server

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/notify"
	"gridserve/internal/repository"
	"gridserve/internal/sep2"
)

// DERHandlers serves the per-site DER function set: the single DER anchor
// under /edev/{site}/der and its capability, settings, availability and
// status elements, each GET and PUT-able by the client.
type DERHandlers struct {
	sites     *repository.SiteRepository
	ders      *repository.DERRepository
	runtime   *repository.RuntimeConfigRepository
	publisher *notify.TaskPublisher
	hrefs     Hrefs
	logger    *zap.Logger
	now       func() time.Time
}

func NewDERHandlers(sites *repository.SiteRepository, ders *repository.DERRepository,
	runtime *repository.RuntimeConfigRepository, publisher *notify.TaskPublisher,
	hrefs Hrefs, logger *zap.Logger) *DERHandlers {
	return &DERHandlers{
		sites:     sites,
		ders:      ders,
		runtime:   runtime,
		publisher: publisher,
		hrefs:     hrefs,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *DERHandlers) derResource(siteID int64) sep2.DER {
	return sep2.DER{
		Href:                h.hrefs.DER(siteID),
		DERAvailabilityLink: &sep2.Link{Href: h.hrefs.DERAvailability(siteID)},
		DERCapabilityLink:   &sep2.Link{Href: h.hrefs.DERCapability(siteID)},
		DERSettingsLink:     &sep2.Link{Href: h.hrefs.DERSettings(siteID)},
		DERStatusLink:       &sep2.Link{Href: h.hrefs.DERStatus(siteID)},
	}
}

// DERList handles GET /edev/{site}/der. Every site has exactly one DER.
func (h *DERHandlers) DERList(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	p := parsePaging(r)

	cfg, err := h.runtime.Get(r.Context())
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.DERList{}
	out.Href = h.hrefs.DERList(site.SiteID)
	out.All = 1
	if cfg.DerlPollrateSeconds != nil {
		out.PollRate = intPtr(*cfg.DerlPollrateSeconds)
	}
	if p.Start == 0 && p.Limit > 0 {
		out.DERs = []sep2.DER{h.derResource(site.SiteID)}
	}
	out.Results = len(out.DERs)
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// DER handles GET /edev/{site}/der/1.
func (h *DERHandlers) DER(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	der := h.derResource(site.SiteID)
	writeXML(w, r, http.StatusOK, &der, h.logger)
}

// siteDER resolves the site's DER anchor, answering 404 when no element has
// ever been stored for it.
func (h *DERHandlers) siteDER(w http.ResponseWriter, r *http.Request) (*models.Site, *models.SiteDER, bool) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return nil, nil, false
	}
	der, err := h.ders.Get(r.Context(), site.SiteID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return nil, nil, false
	}
	if err != nil {
		h.logger.Error("der lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, nil, false
	}
	return site, der, true
}

func parseHexFlags(s sep2.HexBinary) (*uint32, bool) {
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(string(s), 16, 32)
	if err != nil {
		return nil, false
	}
	u := uint32(v)
	return &u, true
}

func hexFlags(v *uint32) sep2.HexBinary {
	if v == nil {
		return ""
	}
	return sep2.HexBinary32(*v)
}

func valueMultiplier(value *int64, multiplier *int32) *sep2.ValueMultiplier {
	if value == nil || multiplier == nil {
		return nil
	}
	return &sep2.ValueMultiplier{Value: *value, Multiplier: *multiplier}
}

func activePowerOpt(value *int64, multiplier *int32) *sep2.ActivePower {
	if value == nil || multiplier == nil {
		return nil
	}
	return &sep2.ActivePower{Value: *value, Multiplier: *multiplier}
}

func splitValueMultiplier(vm *sep2.ValueMultiplier) (*int64, *int32) {
	if vm == nil {
		return nil, nil
	}
	v, m := vm.Value, vm.Multiplier
	return &v, &m
}

func splitActivePower(ap *sep2.ActivePower) (*int64, *int32) {
	if ap == nil {
		return nil, nil
	}
	v, m := ap.Value, ap.Multiplier
	return &v, &m
}

// Capability handles GET /edev/{site}/der/1/dercap.
func (h *DERHandlers) Capability(w http.ResponseWriter, r *http.Request) {
	site, der, ok := h.siteDER(w, r)
	if !ok {
		return
	}
	rating, err := h.ders.GetRating(r.Context(), der.SiteDERID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("der rating lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	cap := sep2.DERCapability{
		Href:                 h.hrefs.DERCapability(site.SiteID),
		ModesSupported:       hexFlags(rating.ModesSupported),
		DoeModesSupported:    hexFlags(rating.DoeModesSupported),
		RtgMaxW:              sep2.ActivePower{Value: rating.MaxWValue, Multiplier: rating.MaxWMultiplier},
		RtgMaxVA:             valueMultiplier(rating.MaxVAValue, rating.MaxVAMultiplier),
		RtgMaxVar:            valueMultiplier(rating.MaxVarValue, rating.MaxVarMultiplier),
		RtgMaxChargeRateW:    activePowerOpt(rating.MaxChargeRateWValue, rating.MaxChargeRateWMultiplier),
		RtgMaxDischargeRateW: activePowerOpt(rating.MaxDischargeRateWValue, rating.MaxDischargeRateWMultiplier),
		RtgMaxWh:             valueMultiplier(rating.MaxWhValue, rating.MaxWhMultiplier),
		RtgVNom:              valueMultiplier(rating.VNomValue, rating.VNomMultiplier),
		Type:                 rating.DERType,
	}
	writeXML(w, r, http.StatusOK, &cap, h.logger)
}

// PutCapability handles PUT /edev/{site}/der/1/dercap.
func (h *DERHandlers) PutCapability(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	var req sep2.DERCapability
	if !readXML(w, r, &req, h.logger) {
		return
	}
	modes, ok := parseHexFlags(req.ModesSupported)
	if !ok {
		writeSepError(w, r, http.StatusBadRequest, "invalid modesSupported", h.logger)
		return
	}
	doeModes, ok := parseHexFlags(req.DoeModesSupported)
	if !ok {
		writeSepError(w, r, http.StatusBadRequest, "invalid doeModesSupported", h.logger)
		return
	}

	changed := h.now().Truncate(time.Microsecond)
	der, err := h.ders.GetOrCreate(r.Context(), site.SiteID, changed)
	if err != nil {
		h.logger.Error("der anchor failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	rating := models.SiteDERRating{
		SiteDERID:         der.SiteDERID,
		ModesSupported:    modes,
		DERType:           req.Type,
		DoeModesSupported: doeModes,
		MaxWValue:         req.RtgMaxW.Value,
		MaxWMultiplier:    req.RtgMaxW.Multiplier,
	}
	rating.MaxVAValue, rating.MaxVAMultiplier = splitValueMultiplier(req.RtgMaxVA)
	rating.MaxVarValue, rating.MaxVarMultiplier = splitValueMultiplier(req.RtgMaxVar)
	rating.MaxChargeRateWValue, rating.MaxChargeRateWMultiplier = splitActivePower(req.RtgMaxChargeRateW)
	rating.MaxDischargeRateWValue, rating.MaxDischargeRateWMultiplier = splitActivePower(req.RtgMaxDischargeRateW)
	rating.MaxWhValue, rating.MaxWhMultiplier = splitValueMultiplier(req.RtgMaxWh)
	rating.VNomValue, rating.VNomMultiplier = splitValueMultiplier(req.RtgVNom)

	if err := h.ders.UpsertRating(r.Context(), &rating, changed); err != nil {
		h.logger.Error("der rating upsert failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceDERRatings, changed)
	w.WriteHeader(http.StatusNoContent)
}

// Settings handles GET /edev/{site}/der/1/derg.
func (h *DERHandlers) Settings(w http.ResponseWriter, r *http.Request) {
	site, der, ok := h.siteDER(w, r)
	if !ok {
		return
	}
	setting, err := h.ders.GetSetting(r.Context(), der.SiteDERID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("der setting lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.DERSettings{
		Href:                 h.hrefs.DERSettings(site.SiteID),
		ModesEnabled:         hexFlags(setting.ModesEnabled),
		SetGradW:             setting.GradW,
		SetMaxW:              sep2.ActivePower{Value: setting.MaxWValue, Multiplier: setting.MaxWMultiplier},
		SetMaxVA:             valueMultiplier(setting.MaxVAValue, setting.MaxVAMultiplier),
		SetMaxVar:            valueMultiplier(setting.MaxVarValue, setting.MaxVarMultiplier),
		SetMaxChargeRateW:    activePowerOpt(setting.MaxChargeRateWValue, setting.MaxChargeRateWMultiplier),
		SetMaxDischargeRateW: activePowerOpt(setting.MaxDischargeRateWValue, setting.MaxDischargeRateWMultiplier),
		SetESDelay:           setting.ESDelay,
		SetESHighFreq:        setting.ESHighFreq,
		SetESHighVolt:        setting.ESHighVolt,
		SetESLowFreq:         setting.ESLowFreq,
		SetESLowVolt:         setting.ESLowVolt,
		UpdatedTime:          sep2.TimeType(setting.ChangedTime.Unix()),
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// PutSettings handles PUT /edev/{site}/der/1/derg.
func (h *DERHandlers) PutSettings(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	var req sep2.DERSettings
	if !readXML(w, r, &req, h.logger) {
		return
	}
	modes, ok := parseHexFlags(req.ModesEnabled)
	if !ok {
		writeSepError(w, r, http.StatusBadRequest, "invalid modesEnabled", h.logger)
		return
	}

	changed := h.now().Truncate(time.Microsecond)
	der, err := h.ders.GetOrCreate(r.Context(), site.SiteID, changed)
	if err != nil {
		h.logger.Error("der anchor failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	setting := models.SiteDERSetting{
		SiteDERID:      der.SiteDERID,
		ModesEnabled:   modes,
		GradW:          req.SetGradW,
		MaxWValue:      req.SetMaxW.Value,
		MaxWMultiplier: req.SetMaxW.Multiplier,
		ESDelay:        req.SetESDelay,
		ESHighFreq:     req.SetESHighFreq,
		ESHighVolt:     req.SetESHighVolt,
		ESLowFreq:      req.SetESLowFreq,
		ESLowVolt:      req.SetESLowVolt,
	}
	setting.MaxVAValue, setting.MaxVAMultiplier = splitValueMultiplier(req.SetMaxVA)
	setting.MaxVarValue, setting.MaxVarMultiplier = splitValueMultiplier(req.SetMaxVar)
	setting.MaxChargeRateWValue, setting.MaxChargeRateWMultiplier = splitActivePower(req.SetMaxChargeRateW)
	setting.MaxDischargeRateWValue, setting.MaxDischargeRateWMultiplier = splitActivePower(req.SetMaxDischargeRateW)

	if err := h.ders.UpsertSetting(r.Context(), &setting, changed); err != nil {
		h.logger.Error("der setting upsert failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceDERSettings, changed)
	w.WriteHeader(http.StatusNoContent)
}

func percentValue(p *float64) *sep2.PerCent {
	if p == nil {
		return nil
	}
	// Stored as percent, transmitted as hundredths of a percent.
	v := sep2.PerCent(*p * 100)
	return &v
}

func percentStore(p *sep2.PerCent) *float64 {
	if p == nil {
		return nil
	}
	v := float64(*p) / 100
	return &v
}

// Availability handles GET /edev/{site}/der/1/dera.
func (h *DERHandlers) Availability(w http.ResponseWriter, r *http.Request) {
	site, der, ok := h.siteDER(w, r)
	if !ok {
		return
	}
	avail, err := h.ders.GetAvailability(r.Context(), der.SiteDERID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("der availability lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.DERAvailability{
		Href:                 h.hrefs.DERAvailability(site.SiteID),
		AvailabilityDuration: avail.AvailabilityDurationSec,
		MaxChargeDuration:    avail.MaxChargeDurationSec,
		ReadingTime:          sep2.TimeType(avail.ChangedTime.Unix()),
		ReservePercent:       percentValue(avail.ReservedDeliverPercent),
		ReserveChargePercent: percentValue(avail.ReservedChargePercent),
		StatVarAvail:         valueMultiplier(avail.EstimatedVarAvailValue, avail.EstimatedVarAvailMultiplier),
		StatWAvail:           valueMultiplier(avail.EstimatedWAvailValue, avail.EstimatedWAvailMultiplier),
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// PutAvailability handles PUT /edev/{site}/der/1/dera.
func (h *DERHandlers) PutAvailability(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	var req sep2.DERAvailability
	if !readXML(w, r, &req, h.logger) {
		return
	}

	changed := h.now().Truncate(time.Microsecond)
	der, err := h.ders.GetOrCreate(r.Context(), site.SiteID, changed)
	if err != nil {
		h.logger.Error("der anchor failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	avail := models.SiteDERAvailability{
		SiteDERID:               der.SiteDERID,
		AvailabilityDurationSec: req.AvailabilityDuration,
		MaxChargeDurationSec:    req.MaxChargeDuration,
		ReservedChargePercent:   percentStore(req.ReserveChargePercent),
		ReservedDeliverPercent:  percentStore(req.ReservePercent),
	}
	avail.EstimatedVarAvailValue, avail.EstimatedVarAvailMultiplier = splitValueMultiplier(req.StatVarAvail)
	avail.EstimatedWAvailValue, avail.EstimatedWAvailMultiplier = splitValueMultiplier(req.StatWAvail)

	if err := h.ders.UpsertAvailability(r.Context(), &avail, changed); err != nil {
		h.logger.Error("der availability upsert failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceDERAvailabilities, changed)
	w.WriteHeader(http.StatusNoContent)
}

func statusValue(v *int, at *time.Time) *sep2.StatusValue {
	if v == nil || at == nil {
		return nil
	}
	return &sep2.StatusValue{DateTime: sep2.TimeType(at.Unix()), Value: *v}
}

func splitStatusValue(sv *sep2.StatusValue) (*int, *time.Time) {
	if sv == nil {
		return nil, nil
	}
	v := sv.Value
	at := time.Unix(int64(sv.DateTime), 0).UTC()
	return &v, &at
}

// Status handles GET /edev/{site}/der/1/ders.
func (h *DERHandlers) Status(w http.ResponseWriter, r *http.Request) {
	site, der, ok := h.siteDER(w, r)
	if !ok {
		return
	}
	status, err := h.ders.GetStatus(r.Context(), der.SiteDERID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("der status lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.DERStatus{
		Href:                   h.hrefs.DERStatus(site.SiteID),
		AlarmStatus:            hexFlags(status.AlarmStatus),
		InverterStatus:         statusValue(status.InverterStatus, status.InverterStatusTime),
		LocalControlModeStatus: statusValue(status.LocalControlModeStatus, status.LocalControlModeStatusTime),
		OperationalModeStatus:  statusValue(status.OperationalModeStatus, status.OperationalModeStatusTime),
		StorageModeStatus:      statusValue(status.StorageModeStatus, status.StorageModeStatusTime),
		ReadingTime:            sep2.TimeType(status.ChangedTime.Unix()),
	}
	if status.GeneratorConnectStatus != nil && status.GeneratorConnectStatusTime != nil {
		out.GenConnectStatus = &sep2.ConnectStatusValue{
			DateTime: sep2.TimeType(status.GeneratorConnectStatusTime.Unix()),
			Value:    sep2.HexBinary(strconv.FormatInt(int64(*status.GeneratorConnectStatus), 16)),
		}
	}
	if status.ManufacturerStatus != nil && status.ManufacturerStatusTime != nil {
		out.ManufacturerStatus = &sep2.ManufacturerStatusValue{
			DateTime: sep2.TimeType(status.ManufacturerStatusTime.Unix()),
			Value:    *status.ManufacturerStatus,
		}
	}
	if status.StateOfChargeStatus != nil && status.StateOfChargeStatusTime != nil {
		out.StateOfChargeStatus = &sep2.StateOfChargeValue{
			DateTime: sep2.TimeType(status.StateOfChargeStatusTime.Unix()),
			Value:    sep2.PerCent(*status.StateOfChargeStatus * 100),
		}
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// PutStatus handles PUT /edev/{site}/der/1/ders.
func (h *DERHandlers) PutStatus(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	var req sep2.DERStatus
	if !readXML(w, r, &req, h.logger) {
		return
	}
	alarm, ok := parseHexFlags(req.AlarmStatus)
	if !ok {
		writeSepError(w, r, http.StatusBadRequest, "invalid alarmStatus", h.logger)
		return
	}

	changed := h.now().Truncate(time.Microsecond)
	der, err := h.ders.GetOrCreate(r.Context(), site.SiteID, changed)
	if err != nil {
		h.logger.Error("der anchor failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	status := models.SiteDERStatus{
		SiteDERID:   der.SiteDERID,
		AlarmStatus: alarm,
	}
	status.InverterStatus, status.InverterStatusTime = splitStatusValue(req.InverterStatus)
	status.LocalControlModeStatus, status.LocalControlModeStatusTime = splitStatusValue(req.LocalControlModeStatus)
	status.OperationalModeStatus, status.OperationalModeStatusTime = splitStatusValue(req.OperationalModeStatus)
	status.StorageModeStatus, status.StorageModeStatusTime = splitStatusValue(req.StorageModeStatus)
	if req.GenConnectStatus != nil {
		v, err := strconv.ParseInt(string(req.GenConnectStatus.Value), 16, 32)
		if err != nil {
			writeSepError(w, r, http.StatusBadRequest, "invalid genConnectStatus", h.logger)
			return
		}
		gv := int(v)
		at := time.Unix(int64(req.GenConnectStatus.DateTime), 0).UTC()
		status.GeneratorConnectStatus, status.GeneratorConnectStatusTime = &gv, &at
	}
	if req.ManufacturerStatus != nil {
		v := req.ManufacturerStatus.Value
		at := time.Unix(int64(req.ManufacturerStatus.DateTime), 0).UTC()
		status.ManufacturerStatus, status.ManufacturerStatusTime = &v, &at
	}
	if req.StateOfChargeStatus != nil {
		v := float64(req.StateOfChargeStatus.Value) / 100
		at := time.Unix(int64(req.StateOfChargeStatus.DateTime), 0).UTC()
		status.StateOfChargeStatus, status.StateOfChargeStatusTime = &v, &at
	}

	if err := h.ders.UpsertStatus(r.Context(), &status, changed); err != nil {
		h.logger.Error("der status upsert failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceDERStatuses, changed)
	w.WriteHeader(http.StatusNoContent)
}
