package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gridserve/internal/models"
)

// Archive snapshots are taken inside the same transaction as the mutation
// they record. A nil deletedTime marks an update snapshot; a non-nil one
// marks the row's deletion and aligns with the notification watermark.

func archiveDeletedExpr(deletedTime *time.Time, nextArg int) string {
	if deletedTime == nil {
		return "NULL"
	}
	return fmt.Sprintf("$%d", nextArg)
}

func appendDeleted(args []any, deletedTime *time.Time) []any {
	if deletedTime == nil {
		return args
	}
	return append(args, *deletedTime)
}

func archiveDOEs(ctx context.Context, tx *sql.Tx, deletedTime *time.Time, where string, args ...any) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO archive_dynamic_operating_envelope (deleted_time, dynamic_operating_envelope_id,
			site_control_group_id, site_id, calculation_log_id, created_time, changed_time, start_time,
			duration_seconds, randomize_start_seconds, import_limit_active_watts, export_limit_active_watts,
			generation_limit_active_watts, load_limit_active_watts, set_energized, set_connected, end_time)
		 SELECT `+archiveDeletedExpr(deletedTime, len(args)+1)+`, dynamic_operating_envelope_id,
			site_control_group_id, site_id, calculation_log_id, created_time, changed_time, start_time,
			duration_seconds, randomize_start_seconds, import_limit_active_watts, export_limit_active_watts,
			generation_limit_active_watts, load_limit_active_watts, set_energized, set_connected, end_time
		 FROM dynamic_operating_envelope WHERE `+where,
		appendDeleted(args, deletedTime)...)
	return err
}

func archiveSiteControlGroups(ctx context.Context, tx *sql.Tx, deletedTime *time.Time, where string, args ...any) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO archive_site_control_group (deleted_time, site_control_group_id, description,
			primacy, fsa_id, created_time, changed_time)
		 SELECT `+archiveDeletedExpr(deletedTime, len(args)+1)+`, site_control_group_id, description,
			primacy, fsa_id, created_time, changed_time
		 FROM site_control_group WHERE `+where,
		appendDeleted(args, deletedTime)...)
	return err
}

func archiveDefaultSiteControls(ctx context.Context, tx *sql.Tx, deletedTime *time.Time, where string, args ...any) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO archive_default_site_control (deleted_time, default_site_control_id, site_id,
			created_time, changed_time, import_limit_active_watts, export_limit_active_watts,
			generation_limit_active_watts, load_limit_active_watts, ramp_rate_percent_per_second)
		 SELECT `+archiveDeletedExpr(deletedTime, len(args)+1)+`, default_site_control_id, site_id,
			created_time, changed_time, import_limit_active_watts, export_limit_active_watts,
			generation_limit_active_watts, load_limit_active_watts, ramp_rate_percent_per_second
		 FROM default_site_control WHERE `+where,
		appendDeleted(args, deletedTime)...)
	return err
}

func archiveTariffs(ctx context.Context, tx *sql.Tx, deletedTime *time.Time, where string, args ...any) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO archive_tariff (deleted_time, tariff_id, name, dnsp_code, currency_code,
			created_time, changed_time)
		 SELECT `+archiveDeletedExpr(deletedTime, len(args)+1)+`, tariff_id, name, dnsp_code, currency_code,
			created_time, changed_time
		 FROM tariff WHERE `+where,
		appendDeleted(args, deletedTime)...)
	return err
}

func archiveRates(ctx context.Context, tx *sql.Tx, deletedTime *time.Time, where string, args ...any) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO archive_tariff_generated_rate (deleted_time, tariff_generated_rate_id, tariff_id,
			site_id, calculation_log_id, created_time, changed_time, start_time, duration_seconds,
			import_active_price, export_active_price, import_reactive_price, export_reactive_price)
		 SELECT `+archiveDeletedExpr(deletedTime, len(args)+1)+`, tariff_generated_rate_id, tariff_id,
			site_id, calculation_log_id, created_time, changed_time, start_time, duration_seconds,
			import_active_price, export_active_price, import_reactive_price, export_reactive_price
		 FROM tariff_generated_rate WHERE `+where,
		appendDeleted(args, deletedTime)...)
	return err
}

func archiveSubscriptions(ctx context.Context, tx *sql.Tx, deletedTime *time.Time, where string, args ...any) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO archive_subscription (deleted_time, subscription_id, aggregator_id, created_time,
			changed_time, resource_type, resource_id, scoped_site_id, notification_uri, entity_limit)
		 SELECT `+archiveDeletedExpr(deletedTime, len(args)+1)+`, subscription_id, aggregator_id, created_time,
			changed_time, resource_type, resource_id, scoped_site_id, notification_uri, entity_limit
		 FROM subscription WHERE `+where,
		appendDeleted(args, deletedTime)...)
	return err
}

func archiveSiteReadingTypes(ctx context.Context, tx *sql.Tx, deletedTime *time.Time, where string, args ...any) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO archive_site_reading_type (deleted_time, site_reading_type_id, aggregator_id, site_id,
			mrid, group_id, group_mrid, uom, data_qualifier, flow_direction, accumulation_behaviour,
			kind, phase, power_of_ten_multiplier, default_interval_seconds, role_flags, description,
			group_description, created_time, changed_time)
		 SELECT `+archiveDeletedExpr(deletedTime, len(args)+1)+`, site_reading_type_id, aggregator_id, site_id,
			mrid, group_id, group_mrid, uom, data_qualifier, flow_direction, accumulation_behaviour,
			kind, phase, power_of_ten_multiplier, default_interval_seconds, role_flags, description,
			group_description, created_time, changed_time
		 FROM site_reading_type WHERE `+where,
		appendDeleted(args, deletedTime)...)
	return err
}

// ArchiveRepository serves the admin "what changed in this period" queries
// over the archive tables.
type ArchiveRepository struct {
	db *sql.DB
}

// NewArchiveRepository returns repository.
func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// archivePeriodClause selects either rows whose source changed in the window
// or rows deleted in the window.
func archivePeriodClause(deleted bool) string {
	if deleted {
		return "deleted_time >= $1 AND deleted_time < $2"
	}
	return "deleted_time IS NULL AND changed_time >= $1 AND changed_time < $2"
}

// SitesForPeriod pages archived site snapshots for the window.
func (r *ArchiveRepository) SitesForPeriod(ctx context.Context, periodStart, periodEnd time.Time, deleted bool, start, limit int) ([]models.Site, int, error) {
	clause := archivePeriodClause(deleted)

	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM archive_site WHERE "+clause, periodStart, periodEnd).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT site_id, nmi, aggregator_id, timezone_id, created_time, changed_time,
			lfdi, sfdi, device_category, registration_pin
		 FROM archive_site WHERE `+clause+`
		 ORDER BY archive_id OFFSET $3 LIMIT $4`, periodStart, periodEnd, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, count, rows.Err()
}

// DOEsForPeriod pages archived envelope snapshots for the window.
func (r *ArchiveRepository) DOEsForPeriod(ctx context.Context, periodStart, periodEnd time.Time, deleted bool, start, limit int) ([]models.DynamicOperatingEnvelope, int, error) {
	clause := archivePeriodClause(deleted)

	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM archive_dynamic_operating_envelope WHERE "+clause,
		periodStart, periodEnd).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT dynamic_operating_envelope_id, site_control_group_id, site_id, calculation_log_id,
			created_time, changed_time, start_time, duration_seconds, randomize_start_seconds,
			import_limit_active_watts, export_limit_active_watts, generation_limit_active_watts,
			load_limit_active_watts, set_energized, set_connected, end_time
		 FROM archive_dynamic_operating_envelope WHERE `+clause+`
		 ORDER BY archive_id OFFSET $3 LIMIT $4`, periodStart, periodEnd, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.DynamicOperatingEnvelope
	for rows.Next() {
		d, err := scanDOE(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, count, rows.Err()
}

// RatesForPeriod pages archived rate snapshots for the window.
func (r *ArchiveRepository) RatesForPeriod(ctx context.Context, periodStart, periodEnd time.Time, deleted bool, start, limit int) ([]models.TariffGeneratedRate, int, error) {
	clause := archivePeriodClause(deleted)

	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM archive_tariff_generated_rate WHERE "+clause,
		periodStart, periodEnd).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT tariff_generated_rate_id, tariff_id, site_id, calculation_log_id, created_time,
			changed_time, start_time, duration_seconds, import_active_price, export_active_price,
			import_reactive_price, export_reactive_price
		 FROM archive_tariff_generated_rate WHERE `+clause+`
		 ORDER BY archive_id OFFSET $3 LIMIT $4`, periodStart, periodEnd, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.TariffGeneratedRate
	for rows.Next() {
		t, err := scanRate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, count, rows.Err()
}
