package repository

import (
	"context"
	"database/sql"
	"time"

	"gridserve/internal/models"
)

// DefaultControlRepository handles the per-site fallback controls served as
// the sep2 DefaultDERControl.
type DefaultControlRepository struct {
	db *sql.DB
}

// NewDefaultControlRepository returns repository.
func NewDefaultControlRepository(db *sql.DB) *DefaultControlRepository {
	return &DefaultControlRepository{db: db}
}

const defaultControlColumns = `default_site_control_id, site_id, created_time, changed_time,
	import_limit_active_watts, export_limit_active_watts, generation_limit_active_watts,
	load_limit_active_watts, ramp_rate_percent_per_second`

func scanDefaultControl(row interface{ Scan(...any) error }) (*models.DefaultSiteControl, error) {
	var d models.DefaultSiteControl
	if err := row.Scan(&d.DefaultSiteControlID, &d.SiteID, &d.CreatedTime, &d.ChangedTime,
		&d.ImportLimitActiveWatts, &d.ExportLimitActiveWatts, &d.GenerationLimitActiveWatts,
		&d.LoadLimitActiveWatts, &d.RampRatePercentPerSecond); err != nil {
		return nil, err
	}
	return &d, nil
}

// Get returns the fallback control for a site.
func (r *DefaultControlRepository) Get(ctx context.Context, siteID int64) (*models.DefaultSiteControl, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+defaultControlColumns+" FROM default_site_control WHERE site_id = $1", siteID)
	d, err := scanDefaultControl(row)
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

// Upsert writes the fallback control for a site, archiving any standing row
// first.
func (r *DefaultControlRepository) Upsert(ctx context.Context, d *models.DefaultSiteControl, changedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := archiveDefaultSiteControls(ctx, tx, nil, "site_id = $1", d.SiteID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO default_site_control (site_id, changed_time, import_limit_active_watts,
			export_limit_active_watts, generation_limit_active_watts, load_limit_active_watts,
			ramp_rate_percent_per_second)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (site_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			import_limit_active_watts = EXCLUDED.import_limit_active_watts,
			export_limit_active_watts = EXCLUDED.export_limit_active_watts,
			generation_limit_active_watts = EXCLUDED.generation_limit_active_watts,
			load_limit_active_watts = EXCLUDED.load_limit_active_watts,
			ramp_rate_percent_per_second = EXCLUDED.ramp_rate_percent_per_second`,
		d.SiteID, changedTime, d.ImportLimitActiveWatts, d.ExportLimitActiveWatts,
		d.GenerationLimitActiveWatts, d.LoadLimitActiveWatts, d.RampRatePercentPerSecond); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete archives the fallback control with the deletion watermark then
// removes it.
func (r *DefaultControlRepository) Delete(ctx context.Context, siteID int64, deletedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := archiveDefaultSiteControls(ctx, tx, &deletedTime, "site_id = $1", siteID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM default_site_control WHERE site_id = $1", siteID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ByChangedAt returns the fallback controls whose changed_time exactly
// matches the notification watermark.
func (r *DefaultControlRepository) ByChangedAt(ctx context.Context, changedAt time.Time) ([]models.DefaultSiteControl, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+defaultControlColumns+" FROM default_site_control WHERE changed_time = $1 ORDER BY default_site_control_id",
		changedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DefaultSiteControl
	for rows.Next() {
		d, err := scanDefaultControl(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
