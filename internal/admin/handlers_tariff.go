package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/notify"
	"gridserve/internal/repository"
)

// TariffHandlers maintains tariff definitions and ingests calculated rate
// batches.
type TariffHandlers struct {
	tariffs   *repository.TariffRepository
	publisher *notify.TaskPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewTariffHandlers wires the tariff endpoints.
func NewTariffHandlers(tariffs *repository.TariffRepository, publisher *notify.TaskPublisher,
	logger *zap.Logger) *TariffHandlers {
	return &TariffHandlers{tariffs: tariffs, publisher: publisher, logger: logger, now: time.Now}
}

type tariffJSON struct {
	TariffID     int64     `json:"tariff_id"`
	Name         string    `json:"name"`
	DnspCode     string    `json:"dnsp_code"`
	CurrencyCode int       `json:"currency_code"`
	CreatedTime  time.Time `json:"created_time"`
	ChangedTime  time.Time `json:"changed_time"`
}

func tariffToJSON(t *models.Tariff) tariffJSON {
	return tariffJSON{
		TariffID:     t.TariffID,
		Name:         t.Name,
		DnspCode:     t.DnspCode,
		CurrencyCode: t.CurrencyCode,
		CreatedTime:  t.CreatedTime,
		ChangedTime:  t.ChangedTime,
	}
}

type tariffBody struct {
	Name         string `json:"name"`
	DnspCode     string `json:"dnsp_code"`
	CurrencyCode int    `json:"currency_code"`
}

func (b *tariffBody) validate() error {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return errors.New("name is required")
	}
	if b.CurrencyCode <= 0 {
		return errors.New("currency_code is required")
	}
	return nil
}

// List is GET /tariff.
func (h *TariffHandlers) List(w http.ResponseWriter, r *http.Request) {
	start, limit := pageParams(r)
	tariffs, total, err := h.tariffs.List(r.Context(), start, limit, afterParam(r))
	if err != nil {
		h.logger.Error("listing tariffs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tariffs")
		return
	}
	out := make([]tariffJSON, 0, len(tariffs))
	for i := range tariffs {
		out = append(out, tariffToJSON(&tariffs[i]))
	}
	writePage(w, total, start, limit, "tariffs", out)
}

// Create is POST /tariff.
func (h *TariffHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var body tariffBody
	if !readJSON(w, r, &body) {
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.tariffs.Create(r.Context(), &models.Tariff{
		Name:         body.Name,
		DnspCode:     body.DnspCode,
		CurrencyCode: body.CurrencyCode,
	}, h.now().UTC().Truncate(time.Microsecond))
	if err != nil {
		h.logger.Error("creating tariff failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create tariff")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"tariff_id": id})
}

// Get is GET /tariff/{tariff}.
func (h *TariffHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tariff")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tariff, err := h.tariffs.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tariff not found")
		return
	}
	if err != nil {
		h.logger.Error("loading tariff failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load tariff")
		return
	}
	writeJSON(w, http.StatusOK, tariffToJSON(tariff))
}

// Update is PUT /tariff/{tariff}.
func (h *TariffHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tariff")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body tariffBody
	if !readJSON(w, r, &body) {
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = h.tariffs.Update(r.Context(), &models.Tariff{
		TariffID:     id,
		Name:         body.Name,
		DnspCode:     body.DnspCode,
		CurrencyCode: body.CurrencyCode,
	}, h.now().UTC().Truncate(time.Microsecond))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tariff not found")
		return
	}
	if err != nil {
		h.logger.Error("updating tariff failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update tariff")
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type rateBody struct {
	SiteID           int64     `json:"site_id"`
	CalculationLogID *int64    `json:"calculation_log_id"`
	StartTime        time.Time `json:"start_time"`
	DurationSeconds  int32     `json:"duration_seconds"`

	ImportActivePrice   float64 `json:"import_active_price"`
	ExportActivePrice   float64 `json:"export_active_price"`
	ImportReactivePrice float64 `json:"import_reactive_price"`
	ExportReactivePrice float64 `json:"export_reactive_price"`
}

// UpsertRates is POST /tariff/{tariff}/rate: a batch of calculated prices
// keyed by (tariff, site, start).
func (h *TariffHandlers) UpsertRates(w http.ResponseWriter, r *http.Request) {
	tariffID, err := pathID(r, "tariff")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.tariffs.Get(r.Context(), tariffID); errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tariff not found")
		return
	} else if err != nil {
		h.logger.Error("loading tariff failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store rates")
		return
	}
	var body struct {
		Rates []rateBody `json:"rates"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	if len(body.Rates) == 0 {
		writeError(w, http.StatusBadRequest, "rates is empty")
		return
	}
	rates := make([]models.TariffGeneratedRate, 0, len(body.Rates))
	for i := range body.Rates {
		b := &body.Rates[i]
		if b.SiteID <= 0 || b.StartTime.IsZero() || b.DurationSeconds <= 0 {
			writeError(w, http.StatusBadRequest, "each rate requires site_id, start_time and duration_seconds")
			return
		}
		rates = append(rates, models.TariffGeneratedRate{
			TariffID:            tariffID,
			SiteID:              b.SiteID,
			CalculationLogID:    b.CalculationLogID,
			StartTime:           b.StartTime.UTC(),
			DurationSeconds:     b.DurationSeconds,
			ImportActivePrice:   b.ImportActivePrice,
			ExportActivePrice:   b.ExportActivePrice,
			ImportReactivePrice: b.ImportReactivePrice,
			ExportReactivePrice: b.ExportReactivePrice,
		})
	}
	changedTime := h.now().UTC().Truncate(time.Microsecond)
	if err := h.tariffs.UpsertRates(r.Context(), rates, changedTime); err != nil {
		h.logger.Error("storing rates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store rates")
		return
	}
	h.publisher.EnqueueCheck(r.Context(), notify.ResourceRates, changedTime)
	writeJSON(w, http.StatusCreated, map[string]int{"stored": len(rates)})
}
