package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/repository"
)

// AggregatorHandlers manages aggregators, their notification domains and the
// client certificate reference store.
type AggregatorHandlers struct {
	aggregators *repository.AggregatorRepository
	certs       *repository.CertificateRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewAggregatorHandlers wires the aggregator and certificate endpoints.
func NewAggregatorHandlers(aggregators *repository.AggregatorRepository,
	certs *repository.CertificateRepository, logger *zap.Logger) *AggregatorHandlers {
	return &AggregatorHandlers{aggregators: aggregators, certs: certs, logger: logger, now: time.Now}
}

type aggregatorJSON struct {
	AggregatorID int64     `json:"aggregator_id"`
	Name         string    `json:"name"`
	Domains      []string  `json:"domains"`
	CreatedTime  time.Time `json:"created_time"`
	ChangedTime  time.Time `json:"changed_time"`
}

type certificateJSON struct {
	CertificateID int64     `json:"certificate_id"`
	LFDI          string    `json:"lfdi"`
	Created       time.Time `json:"created"`
	Expiry        time.Time `json:"expiry"`
}

func certJSON(c *models.Certificate) certificateJSON {
	return certificateJSON{
		CertificateID: c.CertificateID,
		LFDI:          c.LFDI,
		Created:       c.Created,
		Expiry:        c.Expiry,
	}
}

func (h *AggregatorHandlers) aggregatorJSON(r *http.Request, a *models.Aggregator) (aggregatorJSON, error) {
	domains, err := h.aggregators.Domains(r.Context(), a.AggregatorID)
	if err != nil {
		return aggregatorJSON{}, err
	}
	names := make([]string, 0, len(domains))
	for _, d := range domains {
		names = append(names, d.Domain)
	}
	return aggregatorJSON{
		AggregatorID: a.AggregatorID,
		Name:         a.Name,
		Domains:      names,
		CreatedTime:  a.CreatedTime,
		ChangedTime:  a.ChangedTime,
	}, nil
}

// List is GET /aggregator.
func (h *AggregatorHandlers) List(w http.ResponseWriter, r *http.Request) {
	start, limit := pageParams(r)
	aggregators, total, err := h.aggregators.List(r.Context(), start, limit)
	if err != nil {
		h.logger.Error("listing aggregators failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list aggregators")
		return
	}
	out := make([]aggregatorJSON, 0, len(aggregators))
	for i := range aggregators {
		a, err := h.aggregatorJSON(r, &aggregators[i])
		if err != nil {
			h.logger.Error("loading aggregator domains failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list aggregators")
			return
		}
		out = append(out, a)
	}
	writePage(w, total, start, limit, "aggregators", out)
}

// Create is POST /aggregator.
func (h *AggregatorHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string   `json:"name"`
		Domains []string `json:"domains"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	now := h.now().UTC()
	id, err := h.aggregators.Create(r.Context(), body.Name, now)
	if err != nil {
		h.logger.Error("creating aggregator failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create aggregator")
		return
	}
	for _, domain := range body.Domains {
		if err := h.aggregators.AddDomain(r.Context(), id, strings.ToLower(strings.TrimSpace(domain)), now); err != nil {
			h.logger.Error("adding aggregator domain failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create aggregator")
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"aggregator_id": id})
}

// Get is GET /aggregator/{aggregator}.
func (h *AggregatorHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "aggregator")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	aggregator, err := h.aggregators.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "aggregator not found")
		return
	}
	if err != nil {
		h.logger.Error("loading aggregator failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load aggregator")
		return
	}
	out, err := h.aggregatorJSON(r, aggregator)
	if err != nil {
		h.logger.Error("loading aggregator domains failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load aggregator")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// AddDomain is POST /aggregator/{aggregator}/domain.
func (h *AggregatorHandlers) AddDomain(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "aggregator")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		Domain string `json:"domain"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	body.Domain = strings.ToLower(strings.TrimSpace(body.Domain))
	if body.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	if _, err := h.aggregators.Get(r.Context(), id); errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "aggregator not found")
		return
	} else if err != nil {
		h.logger.Error("loading aggregator failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add domain")
		return
	}
	if err := h.aggregators.AddDomain(r.Context(), id, body.Domain, h.now().UTC()); err != nil {
		h.logger.Error("adding aggregator domain failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add domain")
		return
	}
	writeJSON(w, http.StatusCreated, nil)
}

// ListCertificates is GET /certificate.
func (h *AggregatorHandlers) ListCertificates(w http.ResponseWriter, r *http.Request) {
	start, limit := pageParams(r)
	certs, total, err := h.certs.List(r.Context(), start, limit)
	if err != nil {
		h.logger.Error("listing certificates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list certificates")
		return
	}
	out := make([]certificateJSON, 0, len(certs))
	for i := range certs {
		out = append(out, certJSON(&certs[i]))
	}
	writePage(w, total, start, limit, "certificates", out)
}

type certificateBody struct {
	LFDI   string    `json:"lfdi"`
	Expiry time.Time `json:"expiry"`
}

func (b *certificateBody) validate() error {
	b.LFDI = strings.ToLower(strings.TrimSpace(b.LFDI))
	if b.LFDI == "" {
		return errors.New("lfdi is required")
	}
	if b.Expiry.IsZero() {
		return errors.New("expiry is required")
	}
	return nil
}

// CreateCertificate is POST /certificate.
func (h *AggregatorHandlers) CreateCertificate(w http.ResponseWriter, r *http.Request) {
	var body certificateBody
	if !readJSON(w, r, &body) {
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.certs.Create(r.Context(), body.LFDI, body.Expiry.UTC())
	if err != nil {
		h.logger.Error("creating certificate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create certificate")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"certificate_id": id})
}

// GetCertificate is GET /certificate/{certificate}.
func (h *AggregatorHandlers) GetCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "certificate")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cert, err := h.certs.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "certificate not found")
		return
	}
	if err != nil {
		h.logger.Error("loading certificate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load certificate")
		return
	}
	writeJSON(w, http.StatusOK, certJSON(cert))
}

// UpdateCertificate is PUT /certificate/{certificate}.
func (h *AggregatorHandlers) UpdateCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "certificate")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body certificateBody
	if !readJSON(w, r, &body) {
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = h.certs.Update(r.Context(), id, body.LFDI, body.Expiry.UTC())
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "certificate not found")
		return
	}
	if err != nil {
		h.logger.Error("updating certificate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update certificate")
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// DeleteCertificate is DELETE /certificate/{certificate}.
func (h *AggregatorHandlers) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "certificate")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = h.certs.Delete(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "certificate not found")
		return
	}
	if err != nil {
		h.logger.Error("deleting certificate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete certificate")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignedCertificates is GET /aggregator/{aggregator}/certificate.
func (h *AggregatorHandlers) AssignedCertificates(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "aggregator")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	certs, err := h.certs.ListForAggregator(r.Context(), id)
	if err != nil {
		h.logger.Error("listing assigned certificates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list certificates")
		return
	}
	out := make([]certificateJSON, 0, len(certs))
	for i := range certs {
		out = append(out, certJSON(&certs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificates": out})
}

// AssignCertificate is POST /aggregator/{aggregator}/certificate.
func (h *AggregatorHandlers) AssignCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "aggregator")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		CertificateID int64 `json:"certificate_id"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	if _, err := h.certs.Get(r.Context(), body.CertificateID); errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "certificate not found")
		return
	} else if err != nil {
		h.logger.Error("loading certificate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to assign certificate")
		return
	}
	if err := h.certs.Assign(r.Context(), body.CertificateID, id); err != nil {
		h.logger.Error("assigning certificate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to assign certificate")
		return
	}
	writeJSON(w, http.StatusCreated, nil)
}

// UnassignCertificate is DELETE /aggregator/{aggregator}/certificate/{certificate}.
func (h *AggregatorHandlers) UnassignCertificate(w http.ResponseWriter, r *http.Request) {
	aggregatorID, err := pathID(r, "aggregator")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	certificateID, err := pathID(r, "certificate")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = h.certs.Unassign(r.Context(), certificateID, aggregatorID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "assignment not found")
		return
	}
	if err != nil {
		h.logger.Error("unassigning certificate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to unassign certificate")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
