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

// Controls carry the Response function set marker telling clients to post
// receipt/completion responses for each control.
const controlResponseRequired = sep2.HexBinary("03")

// defaultControlPow10 applies when the operator has not tuned the runtime
// row. -2 sends watts to two decimal places.
const defaultControlPow10 = int32(-2)

// DOEHandlers serves the DERProgram function set: one program per site
// control group, each exposing its schedule of dynamic operating envelopes
// and the site's fallback control.
type DOEHandlers struct {
	sites    *repository.SiteRepository
	groups   *repository.ControlGroupRepository
	does     *repository.DOERepository
	defaults *repository.DefaultControlRepository
	runtime  *repository.RuntimeConfigRepository
	hrefs    Hrefs
	logger   *zap.Logger
	now      func() time.Time
}

func NewDOEHandlers(sites *repository.SiteRepository, groups *repository.ControlGroupRepository,
	does *repository.DOERepository, defaults *repository.DefaultControlRepository,
	runtime *repository.RuntimeConfigRepository, hrefs Hrefs, logger *zap.Logger) *DOEHandlers {
	return &DOEHandlers{
		sites:    sites,
		groups:   groups,
		does:     does,
		defaults: defaults,
		runtime:  runtime,
		hrefs:    hrefs,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *DOEHandlers) pow10(r *http.Request) (int32, error) {
	cfg, err := h.runtime.Get(r.Context())
	if err != nil {
		return 0, err
	}
	if cfg.SiteControlPow10Encoding != nil {
		return *cfg.SiteControlPow10Encoding, nil
	}
	return defaultControlPow10, nil
}

// controlPower scales stored watts into the configured power-of-ten
// encoding: value = watts * 10^-pow10, multiplier = pow10.
func controlPower(watts *float64, pow10 int32) *sep2.ActivePower {
	if watts == nil {
		return nil
	}
	return &sep2.ActivePower{
		Value:      int64(math.Round(*watts * math.Pow10(int(-pow10)))),
		Multiplier: pow10,
	}
}

func (h *DOEHandlers) programResource(siteID int64, g *models.SiteControlGroup) sep2.DERProgram {
	return sep2.DERProgram{
		Href:        h.hrefs.DERProgram(siteID, g.SiteControlGroupID),
		MRID:        encodeMRID(mridTagControlGroup, g.SiteControlGroupID),
		Description: g.Description,
		Primacy:     g.Primacy,

		ActiveDERControlListLink: &sep2.ListLink{Href: h.hrefs.ActiveDERControlList(siteID, g.SiteControlGroupID)},
		DefaultDERControlLink:    &sep2.Link{Href: h.hrefs.DefaultDERControl(siteID, g.SiteControlGroupID)},
		DERControlListLink:       &sep2.ListLink{Href: h.hrefs.DERControlList(siteID, g.SiteControlGroupID)},
	}
}

func (h *DOEHandlers) writeProgramList(w http.ResponseWriter, r *http.Request, href string,
	siteID int64, groups []models.SiteControlGroup, count int) {
	cfg, err := h.runtime.Get(r.Context())
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.DERProgramList{}
	out.Href = href
	out.All = count
	out.Results = len(groups)
	if cfg.DerplPollrateSeconds != nil {
		out.PollRate = intPtr(*cfg.DerplPollrateSeconds)
	}
	for i := range groups {
		out.DERPrograms = append(out.DERPrograms, h.programResource(siteID, &groups[i]))
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// ProgramList handles GET /edev/{site}/derp.
func (h *DOEHandlers) ProgramList(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	p := parsePaging(r)

	groups, count, err := h.groups.List(r.Context(), p.Start, p.Limit, p.After)
	if err != nil {
		h.logger.Error("control group list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeProgramList(w, r, h.hrefs.DERProgramList(site.SiteID), site.SiteID, groups, count)
}

// FSAProgramList handles GET /edev/{site}/fsa/{fsa}/derp.
func (h *DOEHandlers) FSAProgramList(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	fsaID, ok := pathID(r, "fsa")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	p := parsePaging(r)

	groups, count, err := h.groups.ListForFSA(r.Context(), fsaID, p.Start, p.Limit, p.After)
	if err != nil {
		h.logger.Error("control group list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeProgramList(w, r, h.hrefs.FSADERProgramList(site.SiteID, fsaID), site.SiteID, groups, count)
}

// resolveGroup loads the {group} path parameter.
func (h *DOEHandlers) resolveGroup(w http.ResponseWriter, r *http.Request) (*models.SiteControlGroup, bool) {
	groupID, ok := pathID(r, "group")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return nil, false
	}
	g, err := h.groups.Get(r.Context(), groupID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return nil, false
	}
	if err != nil {
		h.logger.Error("control group lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return g, true
}

// Program handles GET /edev/{site}/derp/{group}.
func (h *DOEHandlers) Program(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	g, ok := h.resolveGroup(w, r)
	if !ok {
		return
	}
	program := h.programResource(site.SiteID, g)
	writeXML(w, r, http.StatusOK, &program, h.logger)
}

func (h *DOEHandlers) controlResource(siteID, groupID int64, doe *models.DynamicOperatingEnvelope,
	pow10 int32, now time.Time) sep2.DERControl {
	active := !doe.StartTime.After(now) && doe.EndTime.After(now)
	status := 0
	if active {
		status = 1
	}
	return sep2.DERControl{
		Href:         h.hrefs.DERControl(siteID, groupID, doe.DynamicOperatingEnvelopeID),
		MRID:         encodeMRID(mridTagDOE, doe.DynamicOperatingEnvelopeID),
		CreationTime: sep2.TimeType(doe.ChangedTime.Unix()),
		EventStatus: sep2.EventStatus{
			CurrentStatus: status,
			DateTime:      sep2.TimeType(doe.ChangedTime.Unix()),
		},
		Interval: sep2.DateTimeInterval{
			Duration: int64(doe.DurationSeconds),
			Start:    sep2.TimeType(doe.StartTime.Unix()),
		},
		RandomizeStart:   doe.RandomizeStartSeconds,
		ReplyToHref:      h.hrefs.ResponseList(siteID, "doe"),
		ResponseRequired: controlResponseRequired,
		ControlBase: sep2.DERControlBase{
			OpModImpLimW:  controlPower(doe.ImportLimitActiveWatts, pow10),
			OpModExpLimW:  controlPower(doe.ExportLimitActiveWatts, pow10),
			OpModGenLimW:  controlPower(doe.GenerationLimitActiveWatts, pow10),
			OpModLoadLimW: controlPower(doe.LoadLimitActiveWatts, pow10),
			OpModEnergize: doe.SetEnergized,
			OpModConnect:  doe.SetConnected,
		},
	}
}

func (h *DOEHandlers) controlList(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	g, ok := h.resolveGroup(w, r)
	if !ok {
		return
	}
	p := parsePaging(r)
	pow10, err := h.pow10(r)
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	now := h.now()
	var (
		does  []models.DynamicOperatingEnvelope
		count int
		href  string
	)
	if activeOnly {
		does, count, err = h.does.ActiveForSite(r.Context(), g.SiteControlGroupID, site.SiteID, now, p.Start, p.Limit)
		href = h.hrefs.ActiveDERControlList(site.SiteID, g.SiteControlGroupID)
	} else {
		does, count, err = h.does.ListForSite(r.Context(), g.SiteControlGroupID, site.SiteID, now, p.Start, p.Limit, p.After)
		href = h.hrefs.DERControlList(site.SiteID, g.SiteControlGroupID)
	}
	if err != nil {
		h.logger.Error("doe list failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.DERControlList{}
	out.Href = href
	out.All = count
	out.Results = len(does)
	for i := range does {
		out.DERControls = append(out.DERControls,
			h.controlResource(site.SiteID, g.SiteControlGroupID, &does[i], pow10, now))
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// ControlList handles GET /edev/{site}/derp/{group}/derc.
func (h *DOEHandlers) ControlList(w http.ResponseWriter, r *http.Request) {
	h.controlList(w, r, false)
}

// ActiveControlList handles GET /edev/{site}/derp/{group}/actderc.
func (h *DOEHandlers) ActiveControlList(w http.ResponseWriter, r *http.Request) {
	h.controlList(w, r, true)
}

// Control handles GET /edev/{site}/derp/{group}/derc/{doe}.
func (h *DOEHandlers) Control(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	g, ok := h.resolveGroup(w, r)
	if !ok {
		return
	}
	doeID, ok := pathID(r, "doe")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	pow10, err := h.pow10(r)
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	doe, err := h.does.Get(r.Context(), site.SiteID, doeID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("doe lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ctrl := h.controlResource(site.SiteID, g.SiteControlGroupID, doe, pow10, h.now())
	writeXML(w, r, http.StatusOK, &ctrl, h.logger)
}

// DefaultControl handles GET /edev/{site}/derp/{group}/dderc.
func (h *DOEHandlers) DefaultControl(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	g, ok := h.resolveGroup(w, r)
	if !ok {
		return
	}
	pow10, err := h.pow10(r)
	if err != nil {
		h.logger.Error("runtime config load failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	def, err := h.defaults.Get(r.Context(), site.SiteID)
	if err == repository.ErrNotFound {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("default control lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := sep2.DefaultDERControl{
		Href:     h.hrefs.DefaultDERControl(site.SiteID, g.SiteControlGroupID),
		MRID:     encodeMRID(mridTagControlGroup, g.SiteControlGroupID),
		SetGradW: def.RampRatePercentPerSecond,
		ControlBase: sep2.DERControlBase{
			OpModImpLimW:  controlPower(def.ImportLimitActiveWatts, pow10),
			OpModExpLimW:  controlPower(def.ExportLimitActiveWatts, pow10),
			OpModGenLimW:  controlPower(def.GenerationLimitActiveWatts, pow10),
			OpModLoadLimW: controlPower(def.LoadLimitActiveWatts, pow10),
		},
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}
