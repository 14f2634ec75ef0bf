package server

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/auth"
	"gridserve/internal/models"
	"gridserve/internal/nmi"
	"gridserve/internal/notify"
	"gridserve/internal/repository"
	"gridserve/internal/sep2"
)

// DeviceHandlers serves discovery (/dcap, /tm) and the EndDevice function
// set: registration, the PIN resource, the connection point and function set
// assignments.
type DeviceHandlers struct {
	sites     *repository.SiteRepository
	groups    *repository.ControlGroupRepository
	runtime   *repository.RuntimeConfigRepository
	publisher *notify.TaskPublisher
	nmis      *nmi.Validator
	hrefs     Hrefs
	timezone  string
	logger    *zap.Logger
	now       func() time.Time
}

// NewDeviceHandlers returns handler.
func NewDeviceHandlers(sites *repository.SiteRepository, groups *repository.ControlGroupRepository,
	runtime *repository.RuntimeConfigRepository, publisher *notify.TaskPublisher,
	nmis *nmi.Validator, hrefs Hrefs, timezone string, logger *zap.Logger) *DeviceHandlers {
	return &DeviceHandlers{
		sites:     sites,
		groups:    groups,
		runtime:   runtime,
		publisher: publisher,
		nmis:      nmis,
		hrefs:     hrefs,
		timezone:  timezone,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func intPtr(v int32) *int {
	i := int(v)
	return &i
}

// DeviceCapability handles GET /dcap.
func (h *DeviceHandlers) DeviceCapability(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.runtime.Get(r.Context())
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	dcap := sep2.DeviceCapability{
		Href:                  h.hrefs.DeviceCapability(),
		TimeLink:              &sep2.Link{Href: h.hrefs.Time()},
		EndDeviceListLink:     &sep2.ListLink{Href: h.hrefs.EndDeviceList()},
		MirrorUsagePointsLink: &sep2.ListLink{Href: h.hrefs.MirrorUsagePointList()},
	}
	if cfg.DcapPollrateSeconds != nil {
		dcap.PollRate = intPtr(*cfg.DcapPollrateSeconds)
	}
	writeXML(w, r, http.StatusOK, &dcap, h.logger)
}

// Time handles GET /tm. The clock is authoritative (quality 4) and served in
// UTC; localTime and DST fields reflect no offset.
func (h *DeviceHandlers) Time(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	tm := sep2.Time{
		Href:        h.hrefs.Time(),
		CurrentTime: sep2.TimeType(now.Unix()),
		Quality:     4,
	}
	writeXML(w, r, http.StatusOK, &tm, h.logger)
}

func (h *DeviceHandlers) endDeviceResource(site *models.Site, postRate *int32) sep2.EndDevice {
	enabled := true
	ed := sep2.EndDevice{
		Href:           h.hrefs.EndDevice(site.SiteID),
		LFDI:           sep2.HexBinary(site.LFDI),
		SFDI:           site.SFDI,
		ChangedTime:    sep2.TimeType(site.ChangedTime.Unix()),
		DeviceCategory: sep2.HexBinary32(site.DeviceCategory),
		Enabled:        &enabled,

		ConnectionPointLink:            &sep2.Link{Href: h.hrefs.ConnectionPoint(site.SiteID)},
		DERListLink:                    &sep2.ListLink{Href: h.hrefs.DERList(site.SiteID)},
		FunctionSetAssignmentsListLink: &sep2.ListLink{Href: h.hrefs.FSAList(site.SiteID)},
		RegistrationLink:               &sep2.Link{Href: h.hrefs.Registration(site.SiteID)},
		SubscriptionListLink:           &sep2.ListLink{Href: h.hrefs.SubscriptionList(site.SiteID)},
		ResponseSetListLink:            &sep2.ListLink{Href: h.hrefs.ResponseSetList(site.SiteID)},
	}
	if postRate != nil {
		ed.PostRate = intPtr(*postRate)
	}
	return ed
}

// EndDeviceList handles GET /edev.
func (h *DeviceHandlers) EndDeviceList(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	p := parsePaging(r)

	var (
		sites []models.Site
		count int
		err   error
	)
	if scope.DeviceCert {
		// A device cert sees at most its own registration.
		if scope.SiteID != 0 {
			var site *models.Site
			site, err = h.sites.GetByID(r.Context(), scope.SiteID)
			if err == nil && site.ChangedTime.After(p.After) {
				count = 1
				if p.Start == 0 && p.Limit > 0 {
					sites = []models.Site{*site}
				}
			}
			if err == repository.ErrNotFound {
				err = nil
			}
		}
	} else {
		sites, count, err = h.sites.List(r.Context(), scope.AggregatorID, p.Start, p.Limit, p.After)
	}
	if err != nil {
		h.logger.Error("site list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	cfg, err := h.runtime.Get(r.Context())
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.EndDeviceList{}
	out.Href = h.hrefs.EndDeviceList()
	out.All = count
	out.Results = len(sites)
	if cfg.EdevlPollrateSeconds != nil {
		out.PollRate = intPtr(*cfg.EdevlPollrateSeconds)
	}
	for i := range sites {
		out.EndDevices = append(out.EndDevices, h.endDeviceResource(&sites[i], cfg.MupPostrateSeconds))
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// RegisterEndDevice handles POST /edev.
func (h *DeviceHandlers) RegisterEndDevice(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	cfg, err := h.runtime.Get(r.Context())
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if cfg.DisableEdevRegistration != nil && *cfg.DisableEdevRegistration {
		writeSepError(w, r, http.StatusForbidden, "registration disabled", h.logger)
		return
	}

	var req sep2.EndDeviceRequest
	if !readXML(w, r, &req, h.logger) {
		return
	}

	lfdi := strings.ToLower(string(req.LFDI))
	if scope.DeviceCert {
		// Device certs may only register themselves.
		if lfdi == "" {
			lfdi = scope.LFDI
		}
		if lfdi != scope.LFDI {
			writeSepError(w, r, http.StatusForbidden, "lFDI does not match certificate", h.logger)
			return
		}
	}
	if !sep2.IsValidLFDI(lfdi) {
		writeSepError(w, r, http.StatusBadRequest, "invalid lFDI", h.logger)
		return
	}
	sfdi, err := sep2.SFDIFromLFDI(lfdi)
	if err != nil {
		writeSepError(w, r, http.StatusBadRequest, "invalid lFDI", h.logger)
		return
	}
	if req.SFDI != 0 && req.SFDI != sfdi {
		writeSepError(w, r, http.StatusBadRequest, "sFDI does not match lFDI", h.logger)
		return
	}

	var category uint32
	if req.DeviceCategory != "" {
		v, err := strconv.ParseUint(string(req.DeviceCategory), 16, 32)
		if err != nil {
			writeSepError(w, r, http.StatusBadRequest, "invalid deviceCategory", h.logger)
			return
		}
		category = uint32(v)
	}

	changed := h.now().Truncate(time.Microsecond)
	site := &models.Site{
		AggregatorID:    scope.AggregatorID,
		TimezoneID:      h.timezone,
		ChangedTime:     changed,
		LFDI:            lfdi,
		SFDI:            sfdi,
		DeviceCategory:  category,
		RegistrationPIN: int32(rand.Intn(100000)),
	}
	siteID, created, err := h.sites.Upsert(r.Context(), site)
	if err != nil {
		h.logger.Error("site upsert failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.publisher.EnqueueCheck(r.Context(), notify.ResourceSites, changed)

	w.Header().Set("Location", h.hrefs.EndDevice(siteID))
	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// EndDevice handles GET /edev/{site}.
func (h *DeviceHandlers) EndDevice(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	cfg, err := h.runtime.Get(r.Context())
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	ed := h.endDeviceResource(site, cfg.MupPostrateSeconds)
	writeXML(w, r, http.StatusOK, &ed, h.logger)
}

// DeleteEndDevice handles DELETE /edev/{site}.
func (h *DeviceHandlers) DeleteEndDevice(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	deleted := h.now().Truncate(time.Microsecond)
	if err := h.sites.Delete(r.Context(), site.SiteID, deleted); err != nil {
		h.logger.Error("site delete failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceSites, deleted)
	w.WriteHeader(http.StatusNoContent)
}

// registrationPIN encodes the stored 5 digit PIN with its sum-of-digits
// check digit, as the standard transmits pIN.
func registrationPIN(pin int32) int64 {
	var sum int64
	for n := int64(pin); n > 0; n /= 10 {
		sum += n % 10
	}
	return int64(pin)*10 + (10-sum%10)%10
}

// Registration handles GET /edev/{site}/rg.
func (h *DeviceHandlers) Registration(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	rg := sep2.Registration{
		Href:               h.hrefs.Registration(site.SiteID),
		DateTimeRegistered: sep2.TimeType(site.CreatedTime.Unix()),
		PIN:                registrationPIN(site.RegistrationPIN),
	}
	writeXML(w, r, http.StatusOK, &rg, h.logger)
}

// ConnectionPoint handles GET /edev/{site}/cp.
func (h *DeviceHandlers) ConnectionPoint(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	cp := sep2.ConnectionPoint{Href: h.hrefs.ConnectionPoint(site.SiteID)}
	if site.NMI != nil {
		cp.ConnectionPointID = *site.NMI
	}
	writeXML(w, r, http.StatusOK, &cp, h.logger)
}

// PutConnectionPoint handles PUT /edev/{site}/cp.
func (h *DeviceHandlers) PutConnectionPoint(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}

	var req sep2.ConnectionPointRequest
	if !readXML(w, r, &req, h.logger) {
		return
	}
	nmiValue := strings.TrimSpace(req.ConnectionPointID)
	if nmiValue == "" || !h.nmis.Valid(nmiValue) {
		writeSepError(w, r, http.StatusBadRequest, "connectionPointId rejected", h.logger)
		return
	}

	changed := h.now().Truncate(time.Microsecond)
	if err := h.sites.UpdateNMI(r.Context(), site.SiteID, &nmiValue, changed); err != nil {
		h.logger.Error("nmi update failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceSites, changed)
	w.WriteHeader(http.StatusCreated)
}

func (h *DeviceHandlers) fsaResource(siteID, fsaID int64) sep2.FunctionSetAssignments {
	return sep2.FunctionSetAssignments{
		Href: h.hrefs.FSA(siteID, fsaID),
		MRID: encodeMRID(mridTagFSA, fsaID),

		DERProgramListLink:    &sep2.ListLink{Href: h.hrefs.FSADERProgramList(siteID, fsaID)},
		TariffProfileListLink: &sep2.ListLink{Href: h.hrefs.TariffProfileList(siteID)},
		TimeLink:              &sep2.Link{Href: h.hrefs.Time()},
	}
}

// FSAList handles GET /edev/{site}/fsa.
func (h *DeviceHandlers) FSAList(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	p := parsePaging(r)

	ids, count, err := h.groups.FSAIDs(r.Context(), p.Start, p.Limit)
	if err != nil {
		h.logger.Error("fsa list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	cfg, err := h.runtime.Get(r.Context())
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.FunctionSetAssignmentsList{}
	out.Href = h.hrefs.FSAList(site.SiteID)
	out.All = count
	out.Results = len(ids)
	if cfg.FsalPollrateSeconds != nil {
		out.PollRate = intPtr(*cfg.FsalPollrateSeconds)
	}
	for _, id := range ids {
		out.FunctionSetAssignments = append(out.FunctionSetAssignments, h.fsaResource(site.SiteID, id))
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// FSA handles GET /edev/{site}/fsa/{fsa}.
func (h *DeviceHandlers) FSA(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	fsaID, ok := pathID(r, "fsa")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	fsa := h.fsaResource(site.SiteID, fsaID)
	writeXML(w, r, http.StatusOK, &fsa, h.logger)
}
