package repository

import (
	"context"
	"database/sql"
	"time"

	"gridserve/internal/models"
)

// CalculationLogRepository stores the audit trail of calculation runs and
// their per-interval power logs.
type CalculationLogRepository struct {
	db *sql.DB
}

// NewCalculationLogRepository returns repository.
func NewCalculationLogRepository(db *sql.DB) *CalculationLogRepository {
	return &CalculationLogRepository{db: db}
}

// Create inserts a calculation log and all of its child power logs in one
// transaction, returning the new id.
func (r *CalculationLogRepository) Create(ctx context.Context, l *models.CalculationLog) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO calculation_log (calculation_interval_start, calculation_interval_duration_seconds,
			topology_id, external_id, description, power_forecast_creation_time,
			weather_forecast_creation_time, weather_forecast_location_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING calculation_log_id`,
		l.CalculationIntervalStart, l.CalculationIntervalDurationSeconds, l.TopologyID,
		l.ExternalID, l.Description, l.PowerForecastCreationTime,
		l.WeatherForecastCreationTime, l.WeatherForecastLocationID).Scan(&id); err != nil {
		return 0, err
	}

	for _, f := range l.PowerForecastLogs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO power_forecast_log (calculation_log_id, interval_start,
				interval_duration_seconds, external_device_id, site_id, active_power_watts,
				reactive_power_var)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, f.IntervalStart, f.IntervalDurationSeconds, f.ExternalDeviceID, f.SiteID,
			f.ActivePowerWatts, f.ReactivePowerVar); err != nil {
			return 0, err
		}
	}
	for _, t := range l.PowerTargetLogs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO power_target_log (calculation_log_id, interval_start,
				interval_duration_seconds, external_device_id, site_id,
				target_active_power_watts, target_reactive_power_var)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, t.IntervalStart, t.IntervalDurationSeconds, t.ExternalDeviceID, t.SiteID,
			t.TargetActivePowerWatts, t.TargetReactivePowerVar); err != nil {
			return 0, err
		}
	}
	for _, p := range l.PowerFlowLogs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO power_flow_log (calculation_log_id, interval_start,
				interval_duration_seconds, external_device_id, site_id, solve_name,
				pu_voltage_min, pu_voltage_max, pu_voltage, thermal_max_percent)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			id, p.IntervalStart, p.IntervalDurationSeconds, p.ExternalDeviceID, p.SiteID,
			p.SolveName, p.PuVoltageMin, p.PuVoltageMax, p.PuVoltage,
			p.ThermalMaxPercent); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

func scanCalculationLog(row interface{ Scan(...any) error }) (*models.CalculationLog, error) {
	var l models.CalculationLog
	if err := row.Scan(&l.CalculationLogID, &l.CreatedTime, &l.CalculationIntervalStart,
		&l.CalculationIntervalDurationSeconds, &l.TopologyID, &l.ExternalID, &l.Description,
		&l.PowerForecastCreationTime, &l.WeatherForecastCreationTime,
		&l.WeatherForecastLocationID); err != nil {
		return nil, err
	}
	return &l, nil
}

const calculationLogColumns = `calculation_log_id, created_time, calculation_interval_start,
	calculation_interval_duration_seconds, topology_id, external_id, description,
	power_forecast_creation_time, weather_forecast_creation_time, weather_forecast_location_id`

// Get returns a calculation log with its child power logs.
func (r *CalculationLogRepository) Get(ctx context.Context, id int64) (*models.CalculationLog, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+calculationLogColumns+" FROM calculation_log WHERE calculation_log_id = $1", id)
	l, err := scanCalculationLog(row)
	if err != nil {
		return nil, notFound(err)
	}

	fRows, err := r.db.QueryContext(ctx,
		`SELECT power_forecast_log_id, calculation_log_id, interval_start,
			interval_duration_seconds, external_device_id, site_id, active_power_watts,
			reactive_power_var
		 FROM power_forecast_log WHERE calculation_log_id = $1 ORDER BY power_forecast_log_id`, id)
	if err != nil {
		return nil, err
	}
	for fRows.Next() {
		var f models.PowerForecastLog
		if err := fRows.Scan(&f.PowerForecastLogID, &f.CalculationLogID, &f.IntervalStart,
			&f.IntervalDurationSeconds, &f.ExternalDeviceID, &f.SiteID, &f.ActivePowerWatts,
			&f.ReactivePowerVar); err != nil {
			fRows.Close()
			return nil, err
		}
		l.PowerForecastLogs = append(l.PowerForecastLogs, f)
	}
	if err := fRows.Err(); err != nil {
		fRows.Close()
		return nil, err
	}
	fRows.Close()

	tRows, err := r.db.QueryContext(ctx,
		`SELECT power_target_log_id, calculation_log_id, interval_start,
			interval_duration_seconds, external_device_id, site_id, target_active_power_watts,
			target_reactive_power_var
		 FROM power_target_log WHERE calculation_log_id = $1 ORDER BY power_target_log_id`, id)
	if err != nil {
		return nil, err
	}
	for tRows.Next() {
		var t models.PowerTargetLog
		if err := tRows.Scan(&t.PowerTargetLogID, &t.CalculationLogID, &t.IntervalStart,
			&t.IntervalDurationSeconds, &t.ExternalDeviceID, &t.SiteID,
			&t.TargetActivePowerWatts, &t.TargetReactivePowerVar); err != nil {
			tRows.Close()
			return nil, err
		}
		l.PowerTargetLogs = append(l.PowerTargetLogs, t)
	}
	if err := tRows.Err(); err != nil {
		tRows.Close()
		return nil, err
	}
	tRows.Close()

	pRows, err := r.db.QueryContext(ctx,
		`SELECT power_flow_log_id, calculation_log_id, interval_start,
			interval_duration_seconds, external_device_id, site_id, solve_name, pu_voltage_min,
			pu_voltage_max, pu_voltage, thermal_max_percent
		 FROM power_flow_log WHERE calculation_log_id = $1 ORDER BY power_flow_log_id`, id)
	if err != nil {
		return nil, err
	}
	defer pRows.Close()
	for pRows.Next() {
		var p models.PowerFlowLog
		if err := pRows.Scan(&p.PowerFlowLogID, &p.CalculationLogID, &p.IntervalStart,
			&p.IntervalDurationSeconds, &p.ExternalDeviceID, &p.SiteID, &p.SolveName,
			&p.PuVoltageMin, &p.PuVoltageMax, &p.PuVoltage, &p.ThermalMaxPercent); err != nil {
			return nil, err
		}
		l.PowerFlowLogs = append(l.PowerFlowLogs, p)
	}
	return l, pRows.Err()
}

// ListForPeriod returns a page of calculation logs (headers only, no child
// power logs) whose interval starts within the window, plus the total count.
func (r *CalculationLogRepository) ListForPeriod(ctx context.Context, periodStart, periodEnd time.Time, start, limit int) ([]models.CalculationLog, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM calculation_log
		 WHERE calculation_interval_start >= $1 AND calculation_interval_start < $2`,
		periodStart, periodEnd).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+calculationLogColumns+` FROM calculation_log
		 WHERE calculation_interval_start >= $1 AND calculation_interval_start < $2
		 ORDER BY calculation_log_id OFFSET $3 LIMIT $4`,
		periodStart, periodEnd, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.CalculationLog
	for rows.Next() {
		l, err := scanCalculationLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	return out, count, rows.Err()
}
