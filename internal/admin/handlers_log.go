package admin

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/repository"
)

// LogHandlers exposes calculation audit logs, archive history and
// notification delivery logs.
type LogHandlers struct {
	calcs   *repository.CalculationLogRepository
	archive *repository.ArchiveRepository
	subs    *repository.SubscriptionRepository
	logger  *zap.Logger
}

// NewLogHandlers wires the audit endpoints.
func NewLogHandlers(calcs *repository.CalculationLogRepository, archive *repository.ArchiveRepository,
	subs *repository.SubscriptionRepository, logger *zap.Logger) *LogHandlers {
	return &LogHandlers{calcs: calcs, archive: archive, subs: subs, logger: logger}
}

type powerForecastJSON struct {
	IntervalStart           time.Time `json:"interval_start"`
	IntervalDurationSeconds int32     `json:"interval_duration_seconds"`
	ExternalDeviceID        *string   `json:"external_device_id"`
	SiteID                  *int64    `json:"site_id"`
	ActivePowerWatts        *int64    `json:"active_power_watts"`
	ReactivePowerVar        *int64    `json:"reactive_power_var"`
}

type powerTargetJSON struct {
	IntervalStart           time.Time `json:"interval_start"`
	IntervalDurationSeconds int32     `json:"interval_duration_seconds"`
	ExternalDeviceID        *string   `json:"external_device_id"`
	SiteID                  *int64    `json:"site_id"`
	TargetActivePowerWatts  *int64    `json:"target_active_power_watts"`
	TargetReactivePowerVar  *int64    `json:"target_reactive_power_var"`
}

type powerFlowJSON struct {
	IntervalStart           time.Time `json:"interval_start"`
	IntervalDurationSeconds int32     `json:"interval_duration_seconds"`
	ExternalDeviceID        *string   `json:"external_device_id"`
	SiteID                  *int64    `json:"site_id"`
	SolveName               *string   `json:"solve_name"`
	PuVoltageMin            *float64  `json:"pu_voltage_min"`
	PuVoltageMax            *float64  `json:"pu_voltage_max"`
	PuVoltage               *float64  `json:"pu_voltage"`
	ThermalMaxPercent       *float64  `json:"thermal_max_percent"`
}

type calculationLogJSON struct {
	CalculationLogID                   int64      `json:"calculation_log_id"`
	CreatedTime                        time.Time  `json:"created_time"`
	CalculationIntervalStart           time.Time  `json:"calculation_interval_start"`
	CalculationIntervalDurationSeconds int32      `json:"calculation_interval_duration_seconds"`
	TopologyID                         *string    `json:"topology_id"`
	ExternalID                         *string    `json:"external_id"`
	Description                        *string    `json:"description"`
	PowerForecastCreationTime          *time.Time `json:"power_forecast_creation_time"`
	WeatherForecastCreationTime        *time.Time `json:"weather_forecast_creation_time"`
	WeatherForecastLocationID          *string    `json:"weather_forecast_location_id"`

	PowerForecastLogs []powerForecastJSON `json:"power_forecast_logs,omitempty"`
	PowerTargetLogs   []powerTargetJSON   `json:"power_target_logs,omitempty"`
	PowerFlowLogs     []powerFlowJSON     `json:"power_flow_logs,omitempty"`
}

func calcLogToJSON(l *models.CalculationLog, withChildren bool) calculationLogJSON {
	out := calculationLogJSON{
		CalculationLogID:                   l.CalculationLogID,
		CreatedTime:                        l.CreatedTime,
		CalculationIntervalStart:           l.CalculationIntervalStart,
		CalculationIntervalDurationSeconds: l.CalculationIntervalDurationSeconds,
		TopologyID:                         l.TopologyID,
		ExternalID:                         l.ExternalID,
		Description:                        l.Description,
		PowerForecastCreationTime:          l.PowerForecastCreationTime,
		WeatherForecastCreationTime:        l.WeatherForecastCreationTime,
		WeatherForecastLocationID:          l.WeatherForecastLocationID,
	}
	if !withChildren {
		return out
	}
	for i := range l.PowerForecastLogs {
		f := &l.PowerForecastLogs[i]
		out.PowerForecastLogs = append(out.PowerForecastLogs, powerForecastJSON{
			IntervalStart:           f.IntervalStart,
			IntervalDurationSeconds: f.IntervalDurationSeconds,
			ExternalDeviceID:        f.ExternalDeviceID,
			SiteID:                  f.SiteID,
			ActivePowerWatts:        f.ActivePowerWatts,
			ReactivePowerVar:        f.ReactivePowerVar,
		})
	}
	for i := range l.PowerTargetLogs {
		t := &l.PowerTargetLogs[i]
		out.PowerTargetLogs = append(out.PowerTargetLogs, powerTargetJSON{
			IntervalStart:           t.IntervalStart,
			IntervalDurationSeconds: t.IntervalDurationSeconds,
			ExternalDeviceID:        t.ExternalDeviceID,
			SiteID:                  t.SiteID,
			TargetActivePowerWatts:  t.TargetActivePowerWatts,
			TargetReactivePowerVar:  t.TargetReactivePowerVar,
		})
	}
	for i := range l.PowerFlowLogs {
		p := &l.PowerFlowLogs[i]
		out.PowerFlowLogs = append(out.PowerFlowLogs, powerFlowJSON{
			IntervalStart:           p.IntervalStart,
			IntervalDurationSeconds: p.IntervalDurationSeconds,
			ExternalDeviceID:        p.ExternalDeviceID,
			SiteID:                  p.SiteID,
			SolveName:               p.SolveName,
			PuVoltageMin:            p.PuVoltageMin,
			PuVoltageMax:            p.PuVoltageMax,
			PuVoltage:               p.PuVoltage,
			ThermalMaxPercent:       p.ThermalMaxPercent,
		})
	}
	return out
}

// CreateCalculationLog is POST /calculation_log.
func (h *LogHandlers) CreateCalculationLog(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CalculationIntervalStart           time.Time  `json:"calculation_interval_start"`
		CalculationIntervalDurationSeconds int32      `json:"calculation_interval_duration_seconds"`
		TopologyID                         *string    `json:"topology_id"`
		ExternalID                         *string    `json:"external_id"`
		Description                        *string    `json:"description"`
		PowerForecastCreationTime          *time.Time `json:"power_forecast_creation_time"`
		WeatherForecastCreationTime        *time.Time `json:"weather_forecast_creation_time"`
		WeatherForecastLocationID          *string    `json:"weather_forecast_location_id"`

		PowerForecastLogs []powerForecastJSON `json:"power_forecast_logs"`
		PowerTargetLogs   []powerTargetJSON   `json:"power_target_logs"`
		PowerFlowLogs     []powerFlowJSON     `json:"power_flow_logs"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	if body.CalculationIntervalStart.IsZero() || body.CalculationIntervalDurationSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "calculation_interval_start and calculation_interval_duration_seconds are required")
		return
	}
	log := models.CalculationLog{
		CalculationIntervalStart:           body.CalculationIntervalStart.UTC(),
		CalculationIntervalDurationSeconds: body.CalculationIntervalDurationSeconds,
		TopologyID:                         body.TopologyID,
		ExternalID:                         body.ExternalID,
		Description:                        body.Description,
		PowerForecastCreationTime:          body.PowerForecastCreationTime,
		WeatherForecastCreationTime:        body.WeatherForecastCreationTime,
		WeatherForecastLocationID:          body.WeatherForecastLocationID,
	}
	for i := range body.PowerForecastLogs {
		f := &body.PowerForecastLogs[i]
		log.PowerForecastLogs = append(log.PowerForecastLogs, models.PowerForecastLog{
			IntervalStart:           f.IntervalStart.UTC(),
			IntervalDurationSeconds: f.IntervalDurationSeconds,
			ExternalDeviceID:        f.ExternalDeviceID,
			SiteID:                  f.SiteID,
			ActivePowerWatts:        f.ActivePowerWatts,
			ReactivePowerVar:        f.ReactivePowerVar,
		})
	}
	for i := range body.PowerTargetLogs {
		t := &body.PowerTargetLogs[i]
		log.PowerTargetLogs = append(log.PowerTargetLogs, models.PowerTargetLog{
			IntervalStart:           t.IntervalStart.UTC(),
			IntervalDurationSeconds: t.IntervalDurationSeconds,
			ExternalDeviceID:        t.ExternalDeviceID,
			SiteID:                  t.SiteID,
			TargetActivePowerWatts:  t.TargetActivePowerWatts,
			TargetReactivePowerVar:  t.TargetReactivePowerVar,
		})
	}
	for i := range body.PowerFlowLogs {
		p := &body.PowerFlowLogs[i]
		log.PowerFlowLogs = append(log.PowerFlowLogs, models.PowerFlowLog{
			IntervalStart:           p.IntervalStart.UTC(),
			IntervalDurationSeconds: p.IntervalDurationSeconds,
			ExternalDeviceID:        p.ExternalDeviceID,
			SiteID:                  p.SiteID,
			SolveName:               p.SolveName,
			PuVoltageMin:            p.PuVoltageMin,
			PuVoltageMax:            p.PuVoltageMax,
			PuVoltage:               p.PuVoltage,
			ThermalMaxPercent:       p.ThermalMaxPercent,
		})
	}
	id, err := h.calcs.Create(r.Context(), &log)
	if err != nil {
		h.logger.Error("creating calculation log failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create calculation log")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"calculation_log_id": id})
}

// GetCalculationLog is GET /calculation_log/{log}.
func (h *LogHandlers) GetCalculationLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "log")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log, err := h.calcs.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "calculation log not found")
		return
	}
	if err != nil {
		h.logger.Error("loading calculation log failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load calculation log")
		return
	}
	writeJSON(w, http.StatusOK, calcLogToJSON(log, true))
}

// ListCalculationLogs is GET /calculation_log/period/{period_start}/{period_end}.
// Child power logs are omitted from pages.
func (h *LogHandlers) ListCalculationLogs(w http.ResponseWriter, r *http.Request) {
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
	start, limit := pageParams(r)
	logs, total, err := h.calcs.ListForPeriod(r.Context(), periodStart, periodEnd, start, limit)
	if err != nil {
		h.logger.Error("listing calculation logs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list calculation logs")
		return
	}
	out := make([]calculationLogJSON, 0, len(logs))
	for i := range logs {
		out = append(out, calcLogToJSON(&logs[i], false))
	}
	writePage(w, total, start, limit, "calculation_logs", out)
}

// archivePeriod reads the shared path segments of the archive endpoints.
// The deleted query flag switches between the deleted-in-window and
// changed-in-window views.
func archivePeriod(w http.ResponseWriter, r *http.Request) (periodStart, periodEnd time.Time, deleted, ok bool) {
	periodStart, err := pathTime(r, "period_start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, time.Time{}, false, false
	}
	periodEnd, err = pathTime(r, "period_end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, time.Time{}, false, false
	}
	if !periodEnd.After(periodStart) {
		writeError(w, http.StatusBadRequest, "period_end must be after period_start")
		return time.Time{}, time.Time{}, false, false
	}
	return periodStart, periodEnd, r.URL.Query().Get("deleted") == "true", true
}

// ArchivedSites is GET /archive/{period_start}/{period_end}/sites.
func (h *LogHandlers) ArchivedSites(w http.ResponseWriter, r *http.Request) {
	periodStart, periodEnd, deleted, ok := archivePeriod(w, r)
	if !ok {
		return
	}
	start, limit := pageParams(r)
	sites, total, err := h.archive.SitesForPeriod(r.Context(), periodStart, periodEnd, deleted, start, limit)
	if err != nil {
		h.logger.Error("listing archived sites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list archived sites")
		return
	}
	out := make([]siteJSON, 0, len(sites))
	for i := range sites {
		out = append(out, siteToJSON(&sites[i]))
	}
	writePage(w, total, start, limit, "sites", out)
}

// ArchivedControls is GET /archive/{period_start}/{period_end}/does.
func (h *LogHandlers) ArchivedControls(w http.ResponseWriter, r *http.Request) {
	periodStart, periodEnd, deleted, ok := archivePeriod(w, r)
	if !ok {
		return
	}
	start, limit := pageParams(r)
	does, total, err := h.archive.DOEsForPeriod(r.Context(), periodStart, periodEnd, deleted, start, limit)
	if err != nil {
		h.logger.Error("listing archived controls failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list archived controls")
		return
	}
	out := make([]siteControlJSON, 0, len(does))
	for i := range does {
		out = append(out, doeToJSON(&does[i]))
	}
	writePage(w, total, start, limit, "site_controls", out)
}

type rateJSON struct {
	TariffGeneratedRateID int64     `json:"tariff_generated_rate_id"`
	TariffID              int64     `json:"tariff_id"`
	SiteID                int64     `json:"site_id"`
	CalculationLogID      *int64    `json:"calculation_log_id"`
	StartTime             time.Time `json:"start_time"`
	DurationSeconds       int32     `json:"duration_seconds"`
	ImportActivePrice     float64   `json:"import_active_price"`
	ExportActivePrice     float64   `json:"export_active_price"`
	ImportReactivePrice   float64   `json:"import_reactive_price"`
	ExportReactivePrice   float64   `json:"export_reactive_price"`
	ChangedTime           time.Time `json:"changed_time"`
}

// ArchivedRates is GET /archive/{period_start}/{period_end}/rates.
func (h *LogHandlers) ArchivedRates(w http.ResponseWriter, r *http.Request) {
	periodStart, periodEnd, deleted, ok := archivePeriod(w, r)
	if !ok {
		return
	}
	start, limit := pageParams(r)
	rates, total, err := h.archive.RatesForPeriod(r.Context(), periodStart, periodEnd, deleted, start, limit)
	if err != nil {
		h.logger.Error("listing archived rates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list archived rates")
		return
	}
	out := make([]rateJSON, 0, len(rates))
	for i := range rates {
		rate := &rates[i]
		out = append(out, rateJSON{
			TariffGeneratedRateID: rate.TariffGeneratedRateID,
			TariffID:              rate.TariffID,
			SiteID:                rate.SiteID,
			CalculationLogID:      rate.CalculationLogID,
			StartTime:             rate.StartTime,
			DurationSeconds:       rate.DurationSeconds,
			ImportActivePrice:     rate.ImportActivePrice,
			ExportActivePrice:     rate.ExportActivePrice,
			ImportReactivePrice:   rate.ImportReactivePrice,
			ExportReactivePrice:   rate.ExportReactivePrice,
			ChangedTime:           rate.ChangedTime,
		})
	}
	writePage(w, total, start, limit, "rates", out)
}

type transmitLogJSON struct {
	TransmitNotificationLogID int64     `json:"transmit_notification_log_id"`
	SubscriptionID            int64     `json:"subscription_id"`
	TransmitTime              time.Time `json:"transmit_time"`
	TransmitDurationMs        int32     `json:"transmit_duration_ms"`
	NotificationSizeBytes     int32     `json:"notification_size_bytes"`
	Attempt                   int32     `json:"attempt"`
	HTTPStatusCode            int32     `json:"http_status_code"`
}

// TransmitLogs is GET /subscription/{subscription}/transmit_log.
func (h *LogHandlers) TransmitLogs(w http.ResponseWriter, r *http.Request) {
	subscriptionID, err := pathID(r, "subscription")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, limit := pageParams(r)
	logs, total, err := h.subs.TransmitLogs(r.Context(), subscriptionID, start, limit)
	if err != nil {
		h.logger.Error("listing transmit logs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list transmit logs")
		return
	}
	out := make([]transmitLogJSON, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		out = append(out, transmitLogJSON{
			TransmitNotificationLogID: l.TransmitNotificationLogID,
			SubscriptionID:            l.SubscriptionIDSnapshot,
			TransmitTime:              l.TransmitTime,
			TransmitDurationMs:        l.TransmitDurationMs,
			NotificationSizeBytes:     l.NotificationSizeBytes,
			Attempt:                   l.Attempt,
			HTTPStatusCode:            l.HTTPStatusCode,
		})
	}
	writePage(w, total, start, limit, "transmit_logs", out)
}
