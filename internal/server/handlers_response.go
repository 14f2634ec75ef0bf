package server

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/repository"
	"gridserve/internal/sep2"
)

// The two fixed response sets: controls and prices.
const (
	responseSetDOE   = "doe"
	responseSetPrice = "price"
)

// ResponseHandlers serves the Response function set. Clients post receipts
// for controls and rates here; the subject mRID tells us which event the
// response acknowledges.
type ResponseHandlers struct {
	sites     *repository.SiteRepository
	responses *repository.ResponseRepository
	hrefs     Hrefs
	logger    *zap.Logger
	now       func() time.Time
}

func NewResponseHandlers(sites *repository.SiteRepository, responses *repository.ResponseRepository,
	hrefs Hrefs, logger *zap.Logger) *ResponseHandlers {
	return &ResponseHandlers{
		sites:     sites,
		responses: responses,
		hrefs:     hrefs,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *ResponseHandlers) responseSet(siteID int64, set, description string) sep2.ResponseSet {
	return sep2.ResponseSet{
		Href:        h.hrefs.ResponseSet(siteID, set),
		MRID:        sep2.HexBinary(strings.Repeat("0", 24) + hexPad8(set)),
		Description: description,
		ResponseListLink: &sep2.ListLink{
			Href: h.hrefs.ResponseList(siteID, set),
		},
	}
}

// hexPad8 turns the short set name into a stable 8 hex char suffix.
func hexPad8(set string) string {
	var v uint32
	for _, c := range set {
		v = v<<8 | uint32(c)
	}
	return string(sep2.HexBinary32(v))
}

// SetList handles GET /edev/{site}/rsps.
func (h *ResponseHandlers) SetList(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}

	out := sep2.ResponseSetList{}
	out.Href = h.hrefs.ResponseSetList(site.SiteID)
	out.All = 2
	out.Results = 2
	out.ResponseSets = []sep2.ResponseSet{
		h.responseSet(site.SiteID, responseSetDOE, "Site control responses"),
		h.responseSet(site.SiteID, responseSetPrice, "Pricing responses"),
	}
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// Set handles GET /edev/{site}/rsps/{set}.
func (h *ResponseHandlers) Set(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	set := r.PathValue("set")
	switch set {
	case responseSetDOE:
		rs := h.responseSet(site.SiteID, set, "Site control responses")
		writeXML(w, r, http.StatusOK, &rs, h.logger)
	case responseSetPrice:
		rs := h.responseSet(site.SiteID, set, "Pricing responses")
		writeXML(w, r, http.StatusOK, &rs, h.logger)
	default:
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
	}
}

func (h *ResponseHandlers) doeResponse(siteID, derControlID int64, resp *models.DOEResponse, lfdi string) sep2.Response {
	return sep2.Response{
		Href:            h.hrefs.Response(siteID, responseSetDOE, resp.DOEResponseID),
		CreatedDateTime: sep2.TimeType(resp.CreatedTime.Unix()),
		EndDeviceLFDI:   sep2.HexBinary(lfdi),
		Status:          resp.ResponseType,
		Subject:         encodeMRID(mridTagDOE, derControlID),
	}
}

func (h *ResponseHandlers) rateResponse(siteID int64, resp *models.RateResponse, lfdi string) sep2.Response {
	return sep2.Response{
		Href:            h.hrefs.Response(siteID, responseSetPrice, resp.RateResponseID),
		CreatedDateTime: sep2.TimeType(resp.CreatedTime.Unix()),
		EndDeviceLFDI:   sep2.HexBinary(lfdi),
		Status:          resp.ResponseType,
		Subject:         rateMRID(sep2.PricingReadingType(resp.PricingReadingType), resp.RateIDSnapshot),
	}
}

// List handles GET /edev/{site}/rsps/{set}/rsp.
func (h *ResponseHandlers) List(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	p := parsePaging(r)

	out := sep2.ResponseList{}
	set := r.PathValue("set")
	out.Href = h.hrefs.ResponseList(site.SiteID, set)

	switch set {
	case responseSetDOE:
		resps, count, err := h.responses.ListDOEResponses(r.Context(), site.SiteID, p.Start, p.Limit, p.After)
		if err != nil {
			h.logger.Error("response list failed", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		out.All = count
		for i := range resps {
			out.Responses = append(out.Responses,
				h.doeResponse(site.SiteID, resps[i].DOEIDSnapshot, &resps[i], site.LFDI))
		}
	case responseSetPrice:
		resps, count, err := h.responses.ListRateResponses(r.Context(), site.SiteID, p.Start, p.Limit, p.After)
		if err != nil {
			h.logger.Error("response list failed", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		out.All = count
		for i := range resps {
			out.Responses = append(out.Responses, h.rateResponse(site.SiteID, &resps[i], site.LFDI))
		}
	default:
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}
	out.Results = len(out.Responses)
	writeXML(w, r, http.StatusOK, &out, h.logger)
}

// Get handles GET /edev/{site}/rsps/{set}/rsp/{response}.
func (h *ResponseHandlers) Get(w http.ResponseWriter, r *http.Request) {
	site, _, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	respID, ok := pathID(r, "response")
	if !ok {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}

	switch r.PathValue("set") {
	case responseSetDOE:
		resp, err := h.responses.GetDOEResponse(r.Context(), site.SiteID, respID)
		if err == repository.ErrNotFound {
			writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
			return
		}
		if err != nil {
			h.logger.Error("response lookup failed", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		out := h.doeResponse(site.SiteID, resp.DOEIDSnapshot, resp, site.LFDI)
		writeXML(w, r, http.StatusOK, &out, h.logger)
	case responseSetPrice:
		resp, err := h.responses.GetRateResponse(r.Context(), site.SiteID, respID)
		if err == repository.ErrNotFound {
			writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
			return
		}
		if err != nil {
			h.logger.Error("response lookup failed", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		out := h.rateResponse(site.SiteID, resp, site.LFDI)
		writeXML(w, r, http.StatusOK, &out, h.logger)
	default:
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
	}
}

// Create handles POST /edev/{site}/rsps/{set}/rsp. The subject mRID is
// decoded back to the control or rate it acknowledges.
func (h *ResponseHandlers) Create(w http.ResponseWriter, r *http.Request) {
	site, scope, ok := resolveSite(w, r, h.sites, h.logger)
	if !ok {
		return
	}
	set := r.PathValue("set")
	if set != responseSetDOE && set != responseSetPrice {
		writeSepError(w, r, http.StatusNotFound, "no such resource", h.logger)
		return
	}

	var req sep2.ResponseRequest
	if !readXML(w, r, &req, h.logger) {
		return
	}
	if lfdi := strings.ToLower(string(req.EndDeviceLFDI)); lfdi != "" && lfdi != site.LFDI && lfdi != scope.LFDI {
		writeSepError(w, r, http.StatusBadRequest, "endDeviceLFDI does not match the site", h.logger)
		return
	}

	tag, subjectID, ok := decodeMRID(string(req.Subject))
	if !ok {
		writeSepError(w, r, http.StatusBadRequest, "unrecognised subject", h.logger)
		return
	}

	switch set {
	case responseSetDOE:
		if tag != mridTagDOE {
			writeSepError(w, r, http.StatusBadRequest, "subject is not a control", h.logger)
			return
		}
		resp := models.DOEResponse{
			DOEIDSnapshot: subjectID,
			SiteID:        site.SiteID,
			ResponseType:  req.Status,
		}
		respID, err := h.responses.CreateDOEResponse(r.Context(), &resp)
		if err != nil {
			h.logger.Error("response create failed", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Location", h.hrefs.Response(site.SiteID, set, respID))
	case responseSetPrice:
		if tag&^uint16(0x000F) != mridTagRateBase {
			writeSepError(w, r, http.StatusBadRequest, "subject is not a rate", h.logger)
			return
		}
		priceType := int16(tag & 0x000F)
		if priceType < 1 || priceType > int16(len(sep2.AllPricingReadingTypes)) {
			writeSepError(w, r, http.StatusBadRequest, "subject is not a rate", h.logger)
			return
		}
		resp := models.RateResponse{
			RateIDSnapshot:     subjectID,
			SiteID:             site.SiteID,
			ResponseType:       req.Status,
			PricingReadingType: priceType,
		}
		respID, err := h.responses.CreateRateResponse(r.Context(), &resp)
		if err != nil {
			h.logger.Error("response create failed", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Location", h.hrefs.Response(site.SiteID, set, respID))
	}
	w.WriteHeader(http.StatusCreated)
}
