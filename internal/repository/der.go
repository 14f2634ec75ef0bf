package repository

import (
	"context"
	"database/sql"
	"time"

	"gridserve/internal/models"
)

// DERRepository handles the per-site DER anchor and its four data records
// (rating, setting, availability, status). Each site carries at most one DER.
type DERRepository struct {
	db *sql.DB
}

// NewDERRepository returns repository.
func NewDERRepository(db *sql.DB) *DERRepository {
	return &DERRepository{db: db}
}

// GetOrCreate returns the DER anchor for a site, creating it on first touch.
func (r *DERRepository) GetOrCreate(ctx context.Context, siteID int64, changedTime time.Time) (*models.SiteDER, error) {
	var d models.SiteDER
	err := r.db.QueryRowContext(ctx,
		`SELECT site_der_id, site_id, created_time, changed_time
		 FROM site_der WHERE site_id = $1`, siteID).
		Scan(&d.SiteDERID, &d.SiteID, &d.CreatedTime, &d.ChangedTime)
	if err == nil {
		return &d, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO site_der (site_id, changed_time) VALUES ($1, $2)
		 RETURNING site_der_id, site_id, created_time, changed_time`,
		siteID, changedTime).
		Scan(&d.SiteDERID, &d.SiteID, &d.CreatedTime, &d.ChangedTime)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Get returns the DER anchor for a site.
func (r *DERRepository) Get(ctx context.Context, siteID int64) (*models.SiteDER, error) {
	var d models.SiteDER
	err := r.db.QueryRowContext(ctx,
		`SELECT site_der_id, site_id, created_time, changed_time
		 FROM site_der WHERE site_id = $1`, siteID).
		Scan(&d.SiteDERID, &d.SiteID, &d.CreatedTime, &d.ChangedTime)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// touchDER bumps the anchor's changed_time inside tx so DER list paging sees
// the update.
func touchDER(ctx context.Context, tx *sql.Tx, siteDERID int64, changedTime time.Time) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE site_der SET changed_time = $1 WHERE site_der_id = $2", changedTime, siteDERID)
	return err
}

// GetRating returns the stored nameplate for a DER.
func (r *DERRepository) GetRating(ctx context.Context, siteDERID int64) (*models.SiteDERRating, error) {
	var m models.SiteDERRating
	err := r.db.QueryRowContext(ctx,
		`SELECT site_der_rating_id, site_der_id, created_time, changed_time, modes_supported,
			der_type, doe_modes_supported, max_w_value, max_w_multiplier, max_va_value,
			max_va_multiplier, max_var_value, max_var_multiplier, max_charge_rate_w_value,
			max_charge_rate_w_multiplier, max_discharge_rate_w_value, max_discharge_rate_w_multiplier,
			max_wh_value, max_wh_multiplier, v_nom_value, v_nom_multiplier
		 FROM site_der_rating WHERE site_der_id = $1`, siteDERID).
		Scan(&m.SiteDERRatingID, &m.SiteDERID, &m.CreatedTime, &m.ChangedTime, &m.ModesSupported,
			&m.DERType, &m.DoeModesSupported, &m.MaxWValue, &m.MaxWMultiplier, &m.MaxVAValue,
			&m.MaxVAMultiplier, &m.MaxVarValue, &m.MaxVarMultiplier, &m.MaxChargeRateWValue,
			&m.MaxChargeRateWMultiplier, &m.MaxDischargeRateWValue, &m.MaxDischargeRateWMultiplier,
			&m.MaxWhValue, &m.MaxWhMultiplier, &m.VNomValue, &m.VNomMultiplier)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// UpsertRating replaces the nameplate for a DER.
func (r *DERRepository) UpsertRating(ctx context.Context, m *models.SiteDERRating, changedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO site_der_rating (site_der_id, changed_time, modes_supported, der_type,
			doe_modes_supported, max_w_value, max_w_multiplier, max_va_value, max_va_multiplier,
			max_var_value, max_var_multiplier, max_charge_rate_w_value, max_charge_rate_w_multiplier,
			max_discharge_rate_w_value, max_discharge_rate_w_multiplier, max_wh_value,
			max_wh_multiplier, v_nom_value, v_nom_multiplier)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (site_der_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			modes_supported = EXCLUDED.modes_supported,
			der_type = EXCLUDED.der_type,
			doe_modes_supported = EXCLUDED.doe_modes_supported,
			max_w_value = EXCLUDED.max_w_value,
			max_w_multiplier = EXCLUDED.max_w_multiplier,
			max_va_value = EXCLUDED.max_va_value,
			max_va_multiplier = EXCLUDED.max_va_multiplier,
			max_var_value = EXCLUDED.max_var_value,
			max_var_multiplier = EXCLUDED.max_var_multiplier,
			max_charge_rate_w_value = EXCLUDED.max_charge_rate_w_value,
			max_charge_rate_w_multiplier = EXCLUDED.max_charge_rate_w_multiplier,
			max_discharge_rate_w_value = EXCLUDED.max_discharge_rate_w_value,
			max_discharge_rate_w_multiplier = EXCLUDED.max_discharge_rate_w_multiplier,
			max_wh_value = EXCLUDED.max_wh_value,
			max_wh_multiplier = EXCLUDED.max_wh_multiplier,
			v_nom_value = EXCLUDED.v_nom_value,
			v_nom_multiplier = EXCLUDED.v_nom_multiplier`,
		m.SiteDERID, changedTime, m.ModesSupported, m.DERType, m.DoeModesSupported,
		m.MaxWValue, m.MaxWMultiplier, m.MaxVAValue, m.MaxVAMultiplier, m.MaxVarValue,
		m.MaxVarMultiplier, m.MaxChargeRateWValue, m.MaxChargeRateWMultiplier,
		m.MaxDischargeRateWValue, m.MaxDischargeRateWMultiplier, m.MaxWhValue,
		m.MaxWhMultiplier, m.VNomValue, m.VNomMultiplier); err != nil {
		return err
	}
	if err := touchDER(ctx, tx, m.SiteDERID, changedTime); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSetting returns the stored operating settings for a DER.
func (r *DERRepository) GetSetting(ctx context.Context, siteDERID int64) (*models.SiteDERSetting, error) {
	var m models.SiteDERSetting
	err := r.db.QueryRowContext(ctx,
		`SELECT site_der_setting_id, site_der_id, created_time, changed_time, modes_enabled, grad_w,
			max_w_value, max_w_multiplier, max_va_value, max_va_multiplier, max_var_value,
			max_var_multiplier, max_charge_rate_w_value, max_charge_rate_w_multiplier,
			max_discharge_rate_w_value, max_discharge_rate_w_multiplier, set_es_delay,
			set_es_high_freq, set_es_high_volt, set_es_low_freq, set_es_low_volt
		 FROM site_der_setting WHERE site_der_id = $1`, siteDERID).
		Scan(&m.SiteDERSettingID, &m.SiteDERID, &m.CreatedTime, &m.ChangedTime, &m.ModesEnabled,
			&m.GradW, &m.MaxWValue, &m.MaxWMultiplier, &m.MaxVAValue, &m.MaxVAMultiplier,
			&m.MaxVarValue, &m.MaxVarMultiplier, &m.MaxChargeRateWValue, &m.MaxChargeRateWMultiplier,
			&m.MaxDischargeRateWValue, &m.MaxDischargeRateWMultiplier, &m.ESDelay, &m.ESHighFreq,
			&m.ESHighVolt, &m.ESLowFreq, &m.ESLowVolt)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// UpsertSetting replaces the operating settings for a DER.
func (r *DERRepository) UpsertSetting(ctx context.Context, m *models.SiteDERSetting, changedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO site_der_setting (site_der_id, changed_time, modes_enabled, grad_w,
			max_w_value, max_w_multiplier, max_va_value, max_va_multiplier, max_var_value,
			max_var_multiplier, max_charge_rate_w_value, max_charge_rate_w_multiplier,
			max_discharge_rate_w_value, max_discharge_rate_w_multiplier, set_es_delay,
			set_es_high_freq, set_es_high_volt, set_es_low_freq, set_es_low_volt)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (site_der_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			modes_enabled = EXCLUDED.modes_enabled,
			grad_w = EXCLUDED.grad_w,
			max_w_value = EXCLUDED.max_w_value,
			max_w_multiplier = EXCLUDED.max_w_multiplier,
			max_va_value = EXCLUDED.max_va_value,
			max_va_multiplier = EXCLUDED.max_va_multiplier,
			max_var_value = EXCLUDED.max_var_value,
			max_var_multiplier = EXCLUDED.max_var_multiplier,
			max_charge_rate_w_value = EXCLUDED.max_charge_rate_w_value,
			max_charge_rate_w_multiplier = EXCLUDED.max_charge_rate_w_multiplier,
			max_discharge_rate_w_value = EXCLUDED.max_discharge_rate_w_value,
			max_discharge_rate_w_multiplier = EXCLUDED.max_discharge_rate_w_multiplier,
			set_es_delay = EXCLUDED.set_es_delay,
			set_es_high_freq = EXCLUDED.set_es_high_freq,
			set_es_high_volt = EXCLUDED.set_es_high_volt,
			set_es_low_freq = EXCLUDED.set_es_low_freq,
			set_es_low_volt = EXCLUDED.set_es_low_volt`,
		m.SiteDERID, changedTime, m.ModesEnabled, m.GradW, m.MaxWValue, m.MaxWMultiplier,
		m.MaxVAValue, m.MaxVAMultiplier, m.MaxVarValue, m.MaxVarMultiplier,
		m.MaxChargeRateWValue, m.MaxChargeRateWMultiplier, m.MaxDischargeRateWValue,
		m.MaxDischargeRateWMultiplier, m.ESDelay, m.ESHighFreq, m.ESHighVolt,
		m.ESLowFreq, m.ESLowVolt); err != nil {
		return err
	}
	if err := touchDER(ctx, tx, m.SiteDERID, changedTime); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAvailability returns the stored availability estimate for a DER.
func (r *DERRepository) GetAvailability(ctx context.Context, siteDERID int64) (*models.SiteDERAvailability, error) {
	var m models.SiteDERAvailability
	err := r.db.QueryRowContext(ctx,
		`SELECT site_der_availability_id, site_der_id, created_time, changed_time,
			availability_duration_sec, max_charge_duration_sec, reserved_charge_percent,
			reserved_deliver_percent, estimated_var_avail_value, estimated_var_avail_multiplier,
			estimated_w_avail_value, estimated_w_avail_multiplier
		 FROM site_der_availability WHERE site_der_id = $1`, siteDERID).
		Scan(&m.SiteDERAvailabilityID, &m.SiteDERID, &m.CreatedTime, &m.ChangedTime,
			&m.AvailabilityDurationSec, &m.MaxChargeDurationSec, &m.ReservedChargePercent,
			&m.ReservedDeliverPercent, &m.EstimatedVarAvailValue, &m.EstimatedVarAvailMultiplier,
			&m.EstimatedWAvailValue, &m.EstimatedWAvailMultiplier)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// UpsertAvailability replaces the availability estimate for a DER.
func (r *DERRepository) UpsertAvailability(ctx context.Context, m *models.SiteDERAvailability, changedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO site_der_availability (site_der_id, changed_time, availability_duration_sec,
			max_charge_duration_sec, reserved_charge_percent, reserved_deliver_percent,
			estimated_var_avail_value, estimated_var_avail_multiplier, estimated_w_avail_value,
			estimated_w_avail_multiplier)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (site_der_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			availability_duration_sec = EXCLUDED.availability_duration_sec,
			max_charge_duration_sec = EXCLUDED.max_charge_duration_sec,
			reserved_charge_percent = EXCLUDED.reserved_charge_percent,
			reserved_deliver_percent = EXCLUDED.reserved_deliver_percent,
			estimated_var_avail_value = EXCLUDED.estimated_var_avail_value,
			estimated_var_avail_multiplier = EXCLUDED.estimated_var_avail_multiplier,
			estimated_w_avail_value = EXCLUDED.estimated_w_avail_value,
			estimated_w_avail_multiplier = EXCLUDED.estimated_w_avail_multiplier`,
		m.SiteDERID, changedTime, m.AvailabilityDurationSec, m.MaxChargeDurationSec,
		m.ReservedChargePercent, m.ReservedDeliverPercent, m.EstimatedVarAvailValue,
		m.EstimatedVarAvailMultiplier, m.EstimatedWAvailValue, m.EstimatedWAvailMultiplier); err != nil {
		return err
	}
	if err := touchDER(ctx, tx, m.SiteDERID, changedTime); err != nil {
		return err
	}
	return tx.Commit()
}

// GetStatus returns the stored status report for a DER.
func (r *DERRepository) GetStatus(ctx context.Context, siteDERID int64) (*models.SiteDERStatus, error) {
	var m models.SiteDERStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT site_der_status_id, site_der_id, created_time, changed_time, alarm_status,
			generator_connect_status, generator_connect_status_time, inverter_status,
			inverter_status_time, local_control_mode_status, local_control_mode_status_time,
			manufacturer_status, manufacturer_status_time, operational_mode_status,
			operational_mode_status_time, state_of_charge_status, state_of_charge_status_time,
			storage_mode_status, storage_mode_status_time
		 FROM site_der_status WHERE site_der_id = $1`, siteDERID).
		Scan(&m.SiteDERStatusID, &m.SiteDERID, &m.CreatedTime, &m.ChangedTime, &m.AlarmStatus,
			&m.GeneratorConnectStatus, &m.GeneratorConnectStatusTime, &m.InverterStatus,
			&m.InverterStatusTime, &m.LocalControlModeStatus, &m.LocalControlModeStatusTime,
			&m.ManufacturerStatus, &m.ManufacturerStatusTime, &m.OperationalModeStatus,
			&m.OperationalModeStatusTime, &m.StateOfChargeStatus, &m.StateOfChargeStatusTime,
			&m.StorageModeStatus, &m.StorageModeStatusTime)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// UpsertStatus replaces the status report for a DER.
func (r *DERRepository) UpsertStatus(ctx context.Context, m *models.SiteDERStatus, changedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO site_der_status (site_der_id, changed_time, alarm_status,
			generator_connect_status, generator_connect_status_time, inverter_status,
			inverter_status_time, local_control_mode_status, local_control_mode_status_time,
			manufacturer_status, manufacturer_status_time, operational_mode_status,
			operational_mode_status_time, state_of_charge_status, state_of_charge_status_time,
			storage_mode_status, storage_mode_status_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (site_der_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			alarm_status = EXCLUDED.alarm_status,
			generator_connect_status = EXCLUDED.generator_connect_status,
			generator_connect_status_time = EXCLUDED.generator_connect_status_time,
			inverter_status = EXCLUDED.inverter_status,
			inverter_status_time = EXCLUDED.inverter_status_time,
			local_control_mode_status = EXCLUDED.local_control_mode_status,
			local_control_mode_status_time = EXCLUDED.local_control_mode_status_time,
			manufacturer_status = EXCLUDED.manufacturer_status,
			manufacturer_status_time = EXCLUDED.manufacturer_status_time,
			operational_mode_status = EXCLUDED.operational_mode_status,
			operational_mode_status_time = EXCLUDED.operational_mode_status_time,
			state_of_charge_status = EXCLUDED.state_of_charge_status,
			state_of_charge_status_time = EXCLUDED.state_of_charge_status_time,
			storage_mode_status = EXCLUDED.storage_mode_status,
			storage_mode_status_time = EXCLUDED.storage_mode_status_time`,
		m.SiteDERID, changedTime, m.AlarmStatus, m.GeneratorConnectStatus,
		m.GeneratorConnectStatusTime, m.InverterStatus, m.InverterStatusTime,
		m.LocalControlModeStatus, m.LocalControlModeStatusTime, m.ManufacturerStatus,
		m.ManufacturerStatusTime, m.OperationalModeStatus, m.OperationalModeStatusTime,
		m.StateOfChargeStatus, m.StateOfChargeStatusTime, m.StorageModeStatus,
		m.StorageModeStatusTime); err != nil {
		return err
	}
	if err := touchDER(ctx, tx, m.SiteDERID, changedTime); err != nil {
		return err
	}
	return tx.Commit()
}

// RatingsByChangedAt returns ratings whose changed_time exactly matches the
// notification watermark, keyed for subscription scoping by their site.
func (r *DERRepository) RatingsByChangedAt(ctx context.Context, changedAt time.Time) ([]models.SiteDERRating, map[int64]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.site_der_rating_id, r.site_der_id, r.created_time, r.changed_time, r.modes_supported,
			r.der_type, r.doe_modes_supported, r.max_w_value, r.max_w_multiplier, r.max_va_value,
			r.max_va_multiplier, r.max_var_value, r.max_var_multiplier, r.max_charge_rate_w_value,
			r.max_charge_rate_w_multiplier, r.max_discharge_rate_w_value, r.max_discharge_rate_w_multiplier,
			r.max_wh_value, r.max_wh_multiplier, r.v_nom_value, r.v_nom_multiplier, d.site_id
		 FROM site_der_rating r JOIN site_der d ON d.site_der_id = r.site_der_id
		 WHERE r.changed_time = $1 ORDER BY r.site_der_rating_id`, changedAt)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []models.SiteDERRating
	sites := make(map[int64]int64)
	for rows.Next() {
		var m models.SiteDERRating
		var siteID int64
		if err := rows.Scan(&m.SiteDERRatingID, &m.SiteDERID, &m.CreatedTime, &m.ChangedTime,
			&m.ModesSupported, &m.DERType, &m.DoeModesSupported, &m.MaxWValue, &m.MaxWMultiplier,
			&m.MaxVAValue, &m.MaxVAMultiplier, &m.MaxVarValue, &m.MaxVarMultiplier,
			&m.MaxChargeRateWValue, &m.MaxChargeRateWMultiplier, &m.MaxDischargeRateWValue,
			&m.MaxDischargeRateWMultiplier, &m.MaxWhValue, &m.MaxWhMultiplier, &m.VNomValue,
			&m.VNomMultiplier, &siteID); err != nil {
			return nil, nil, err
		}
		out = append(out, m)
		sites[m.SiteDERID] = siteID
	}
	return out, sites, rows.Err()
}

// SiteForDER resolves the owning site of a DER anchor.
func (r *DERRepository) SiteForDER(ctx context.Context, siteDERID int64) (int64, error) {
	var siteID int64
	err := r.db.QueryRowContext(ctx,
		"SELECT site_id FROM site_der WHERE site_der_id = $1", siteDERID).Scan(&siteID)
	if err != nil {
		return 0, notFound(err)
	}
	return siteID, nil
}

// SettingsByChangedAt returns settings whose changed_time exactly matches the
// notification watermark, keyed for subscription scoping by their site.
func (r *DERRepository) SettingsByChangedAt(ctx context.Context, changedAt time.Time) ([]models.SiteDERSetting, map[int64]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.site_der_setting_id, s.site_der_id, s.created_time, s.changed_time, s.modes_enabled,
			s.grad_w, s.max_w_value, s.max_w_multiplier, s.max_va_value, s.max_va_multiplier,
			s.max_var_value, s.max_var_multiplier, s.max_charge_rate_w_value,
			s.max_charge_rate_w_multiplier, s.max_discharge_rate_w_value,
			s.max_discharge_rate_w_multiplier, s.set_es_delay, s.set_es_high_freq,
			s.set_es_high_volt, s.set_es_low_freq, s.set_es_low_volt, d.site_id
		 FROM site_der_setting s JOIN site_der d ON d.site_der_id = s.site_der_id
		 WHERE s.changed_time = $1 ORDER BY s.site_der_setting_id`, changedAt)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []models.SiteDERSetting
	sites := make(map[int64]int64)
	for rows.Next() {
		var m models.SiteDERSetting
		var siteID int64
		if err := rows.Scan(&m.SiteDERSettingID, &m.SiteDERID, &m.CreatedTime, &m.ChangedTime,
			&m.ModesEnabled, &m.GradW, &m.MaxWValue, &m.MaxWMultiplier, &m.MaxVAValue,
			&m.MaxVAMultiplier, &m.MaxVarValue, &m.MaxVarMultiplier, &m.MaxChargeRateWValue,
			&m.MaxChargeRateWMultiplier, &m.MaxDischargeRateWValue, &m.MaxDischargeRateWMultiplier,
			&m.ESDelay, &m.ESHighFreq, &m.ESHighVolt, &m.ESLowFreq, &m.ESLowVolt,
			&siteID); err != nil {
			return nil, nil, err
		}
		out = append(out, m)
		sites[m.SiteDERID] = siteID
	}
	return out, sites, rows.Err()
}

// AvailabilitiesByChangedAt returns availability estimates whose changed_time
// exactly matches the notification watermark, keyed for subscription scoping
// by their site.
func (r *DERRepository) AvailabilitiesByChangedAt(ctx context.Context, changedAt time.Time) ([]models.SiteDERAvailability, map[int64]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.site_der_availability_id, a.site_der_id, a.created_time, a.changed_time,
			a.availability_duration_sec, a.max_charge_duration_sec, a.reserved_charge_percent,
			a.reserved_deliver_percent, a.estimated_var_avail_value, a.estimated_var_avail_multiplier,
			a.estimated_w_avail_value, a.estimated_w_avail_multiplier, d.site_id
		 FROM site_der_availability a JOIN site_der d ON d.site_der_id = a.site_der_id
		 WHERE a.changed_time = $1 ORDER BY a.site_der_availability_id`, changedAt)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []models.SiteDERAvailability
	sites := make(map[int64]int64)
	for rows.Next() {
		var m models.SiteDERAvailability
		var siteID int64
		if err := rows.Scan(&m.SiteDERAvailabilityID, &m.SiteDERID, &m.CreatedTime, &m.ChangedTime,
			&m.AvailabilityDurationSec, &m.MaxChargeDurationSec, &m.ReservedChargePercent,
			&m.ReservedDeliverPercent, &m.EstimatedVarAvailValue, &m.EstimatedVarAvailMultiplier,
			&m.EstimatedWAvailValue, &m.EstimatedWAvailMultiplier, &siteID); err != nil {
			return nil, nil, err
		}
		out = append(out, m)
		sites[m.SiteDERID] = siteID
	}
	return out, sites, rows.Err()
}

// StatusesByChangedAt returns status reports whose changed_time exactly
// matches the notification watermark, keyed for subscription scoping by
// their site.
func (r *DERRepository) StatusesByChangedAt(ctx context.Context, changedAt time.Time) ([]models.SiteDERStatus, map[int64]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.site_der_status_id, s.site_der_id, s.created_time, s.changed_time, s.alarm_status,
			s.generator_connect_status, s.generator_connect_status_time, s.inverter_status,
			s.inverter_status_time, s.local_control_mode_status, s.local_control_mode_status_time,
			s.manufacturer_status, s.manufacturer_status_time, s.operational_mode_status,
			s.operational_mode_status_time, s.state_of_charge_status, s.state_of_charge_status_time,
			s.storage_mode_status, s.storage_mode_status_time, d.site_id
		 FROM site_der_status s JOIN site_der d ON d.site_der_id = s.site_der_id
		 WHERE s.changed_time = $1 ORDER BY s.site_der_status_id`, changedAt)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []models.SiteDERStatus
	sites := make(map[int64]int64)
	for rows.Next() {
		var m models.SiteDERStatus
		var siteID int64
		if err := rows.Scan(&m.SiteDERStatusID, &m.SiteDERID, &m.CreatedTime, &m.ChangedTime,
			&m.AlarmStatus, &m.GeneratorConnectStatus, &m.GeneratorConnectStatusTime,
			&m.InverterStatus, &m.InverterStatusTime, &m.LocalControlModeStatus,
			&m.LocalControlModeStatusTime, &m.ManufacturerStatus, &m.ManufacturerStatusTime,
			&m.OperationalModeStatus, &m.OperationalModeStatusTime, &m.StateOfChargeStatus,
			&m.StateOfChargeStatusTime, &m.StorageModeStatus, &m.StorageModeStatusTime,
			&siteID); err != nil {
			return nil, nil, err
		}
		out = append(out, m)
		sites[m.SiteDERID] = siteID
	}
	return out, sites, rows.Err()
}
