package repository

import (
	"context"
	"database/sql"
	"time"

	"gridserve/internal/models"
)

// ControlGroupRepository handles the site control groups that operating
// envelopes hang off. Groups map 1:1 to sep2 DERPrograms.
type ControlGroupRepository struct {
	db *sql.DB
}

// NewControlGroupRepository returns repository.
func NewControlGroupRepository(db *sql.DB) *ControlGroupRepository {
	return &ControlGroupRepository{db: db}
}

const controlGroupColumns = `site_control_group_id, description, primacy, fsa_id,
	created_time, changed_time`

func scanControlGroup(row interface{ Scan(...any) error }) (*models.SiteControlGroup, error) {
	var g models.SiteControlGroup
	if err := row.Scan(&g.SiteControlGroupID, &g.Description, &g.Primacy, &g.FsaID,
		&g.CreatedTime, &g.ChangedTime); err != nil {
		return nil, err
	}
	return &g, nil
}

// Get returns a control group by id.
func (r *ControlGroupRepository) Get(ctx context.Context, groupID int64) (*models.SiteControlGroup, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+controlGroupColumns+" FROM site_control_group WHERE site_control_group_id = $1",
		groupID)
	g, err := scanControlGroup(row)
	if err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

// List returns a page of control groups changed after the watermark, ordered
// by primacy then id, plus the total matching count.
func (r *ControlGroupRepository) List(ctx context.Context, start, limit int, after time.Time) ([]models.SiteControlGroup, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM site_control_group WHERE changed_time > $1", after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+controlGroupColumns+` FROM site_control_group
		 WHERE changed_time > $1
		 ORDER BY primacy, site_control_group_id OFFSET $2 LIMIT $3`,
		after, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.SiteControlGroup
	for rows.Next() {
		g, err := scanControlGroup(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *g)
	}
	return out, count, rows.Err()
}

// ListForFSA returns a page of control groups under a function set assignment.
func (r *ControlGroupRepository) ListForFSA(ctx context.Context, fsaID int64, start, limit int, after time.Time) ([]models.SiteControlGroup, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM site_control_group WHERE fsa_id = $1 AND changed_time > $2",
		fsaID, after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+controlGroupColumns+` FROM site_control_group
		 WHERE fsa_id = $1 AND changed_time > $2
		 ORDER BY primacy, site_control_group_id OFFSET $3 LIMIT $4`,
		fsaID, after, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.SiteControlGroup
	for rows.Next() {
		g, err := scanControlGroup(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *g)
	}
	return out, count, rows.Err()
}

// FSAIDs returns the distinct fsa ids in use, ordered, with a total count.
func (r *ControlGroupRepository) FSAIDs(ctx context.Context, start, limit int) ([]int64, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(DISTINCT fsa_id) FROM site_control_group").Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT fsa_id FROM site_control_group
		 ORDER BY fsa_id OFFSET $1 LIMIT $2`, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, 0, err
		}
		out = append(out, id)
	}
	return out, count, rows.Err()
}

// Create inserts a control group and returns its id.
func (r *ControlGroupRepository) Create(ctx context.Context, g *models.SiteControlGroup, changedTime time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO site_control_group (description, primacy, fsa_id, changed_time)
		 VALUES ($1, $2, $3, $4) RETURNING site_control_group_id`,
		g.Description, g.Primacy, g.FsaID, changedTime).Scan(&id)
	return id, err
}

// Update archives the current row then applies the new description and
// primacy.
func (r *ControlGroupRepository) Update(ctx context.Context, groupID int64, description string, primacy int, changedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := archiveSiteControlGroups(ctx, tx, nil, "site_control_group_id = $1", groupID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE site_control_group SET description = $1, primacy = $2, changed_time = $3
		 WHERE site_control_group_id = $4`,
		description, primacy, changedTime, groupID)
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

// Delete archives the group and its envelopes with the deletion watermark
// then removes them.
func (r *ControlGroupRepository) Delete(ctx context.Context, groupID int64, deletedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := archiveDOEs(ctx, tx, &deletedTime, "site_control_group_id = $1", groupID); err != nil {
		return err
	}
	if err := archiveSiteControlGroups(ctx, tx, &deletedTime, "site_control_group_id = $1", groupID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM site_control_group WHERE site_control_group_id = $1", groupID)
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

// DOERepository handles dynamic operating envelopes.
type DOERepository struct {
	db *sql.DB
}

// NewDOERepository returns repository.
func NewDOERepository(db *sql.DB) *DOERepository {
	return &DOERepository{db: db}
}

const doeColumns = `dynamic_operating_envelope_id, site_control_group_id, site_id,
	calculation_log_id, created_time, changed_time, start_time, duration_seconds,
	randomize_start_seconds, import_limit_active_watts, export_limit_active_watts,
	generation_limit_active_watts, load_limit_active_watts, set_energized, set_connected, end_time`

func scanDOE(row interface{ Scan(...any) error }) (*models.DynamicOperatingEnvelope, error) {
	var d models.DynamicOperatingEnvelope
	if err := row.Scan(&d.DynamicOperatingEnvelopeID, &d.SiteControlGroupID, &d.SiteID,
		&d.CalculationLogID, &d.CreatedTime, &d.ChangedTime, &d.StartTime, &d.DurationSeconds,
		&d.RandomizeStartSeconds, &d.ImportLimitActiveWatts, &d.ExportLimitActiveWatts,
		&d.GenerationLimitActiveWatts, &d.LoadLimitActiveWatts, &d.SetEnergized,
		&d.SetConnected, &d.EndTime); err != nil {
		return nil, err
	}
	return &d, nil
}

// Get returns an envelope by id scoped to a site.
func (r *DOERepository) Get(ctx context.Context, siteID, doeID int64) (*models.DynamicOperatingEnvelope, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+doeColumns+` FROM dynamic_operating_envelope
		 WHERE site_id = $1 AND dynamic_operating_envelope_id = $2`,
		siteID, doeID)
	d, err := scanDOE(row)
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

// ListForSite returns a page of envelopes for a site within a control group
// that have not yet ended, ordered by start time then id, plus the total
// matching count. Device clients only ever see active or upcoming controls.
func (r *DOERepository) ListForSite(ctx context.Context, groupID, siteID int64, now time.Time, start, limit int, after time.Time) ([]models.DynamicOperatingEnvelope, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM dynamic_operating_envelope
		 WHERE site_control_group_id = $1 AND site_id = $2 AND end_time > $3 AND changed_time > $4`,
		groupID, siteID, now, after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+doeColumns+` FROM dynamic_operating_envelope
		 WHERE site_control_group_id = $1 AND site_id = $2 AND end_time > $3 AND changed_time > $4
		 ORDER BY start_time, dynamic_operating_envelope_id OFFSET $5 LIMIT $6`,
		groupID, siteID, now, after, start, limit)
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

// ActiveForSite returns a page of the group's envelopes in effect at now.
func (r *DOERepository) ActiveForSite(ctx context.Context, groupID, siteID int64, now time.Time, start, limit int) ([]models.DynamicOperatingEnvelope, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM dynamic_operating_envelope
		 WHERE site_control_group_id = $1 AND site_id = $2 AND start_time <= $3 AND end_time > $3`,
		groupID, siteID, now).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+doeColumns+` FROM dynamic_operating_envelope
		 WHERE site_control_group_id = $1 AND site_id = $2 AND start_time <= $3 AND end_time > $3
		 ORDER BY start_time, dynamic_operating_envelope_id OFFSET $4 LIMIT $5`,
		groupID, siteID, now, start, limit)
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

// ListForSitePeriod returns a page of envelopes for a site overlapping the
// window regardless of group (admin usage).
func (r *DOERepository) ListForSitePeriod(ctx context.Context, siteID int64, periodStart, periodEnd time.Time, start, limit int) ([]models.DynamicOperatingEnvelope, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM dynamic_operating_envelope
		 WHERE site_id = $1 AND start_time < $3 AND end_time > $2`,
		siteID, periodStart, periodEnd).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+doeColumns+` FROM dynamic_operating_envelope
		 WHERE site_id = $1 AND start_time < $3 AND end_time > $2
		 ORDER BY start_time, dynamic_operating_envelope_id OFFSET $4 LIMIT $5`,
		siteID, periodStart, periodEnd, start, limit)
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

// UpsertMany inserts a batch of envelopes in one transaction. A conflict on
// (group, start, site) archives the standing row before overwriting it so the
// superseded control is preserved. end_time is recomputed on every write.
func (r *DOERepository) UpsertMany(ctx context.Context, does []models.DynamicOperatingEnvelope, changedTime time.Time) error {
	if len(does) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range does {
		d := &does[i]
		endTime := d.StartTime.Add(time.Duration(d.DurationSeconds) * time.Second)

		if err := archiveDOEs(ctx, tx, nil,
			"site_control_group_id = $1 AND start_time = $2 AND site_id = $3",
			d.SiteControlGroupID, d.StartTime, d.SiteID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dynamic_operating_envelope (site_control_group_id, site_id, calculation_log_id,
				changed_time, start_time, duration_seconds, randomize_start_seconds,
				import_limit_active_watts, export_limit_active_watts, generation_limit_active_watts,
				load_limit_active_watts, set_energized, set_connected, end_time)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 ON CONFLICT (site_control_group_id, start_time, site_id) DO UPDATE SET
				calculation_log_id = EXCLUDED.calculation_log_id,
				changed_time = EXCLUDED.changed_time,
				duration_seconds = EXCLUDED.duration_seconds,
				randomize_start_seconds = EXCLUDED.randomize_start_seconds,
				import_limit_active_watts = EXCLUDED.import_limit_active_watts,
				export_limit_active_watts = EXCLUDED.export_limit_active_watts,
				generation_limit_active_watts = EXCLUDED.generation_limit_active_watts,
				load_limit_active_watts = EXCLUDED.load_limit_active_watts,
				set_energized = EXCLUDED.set_energized,
				set_connected = EXCLUDED.set_connected,
				end_time = EXCLUDED.end_time`,
			d.SiteControlGroupID, d.SiteID, d.CalculationLogID, changedTime, d.StartTime,
			d.DurationSeconds, d.RandomizeStartSeconds, d.ImportLimitActiveWatts,
			d.ExportLimitActiveWatts, d.GenerationLimitActiveWatts, d.LoadLimitActiveWatts,
			d.SetEnergized, d.SetConnected, endTime); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteRange archives then removes every envelope in the group starting
// within the window. A zero siteID matches all sites.
func (r *DOERepository) DeleteRange(ctx context.Context, groupID, siteID int64, periodStart, periodEnd, deletedTime time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	where := "site_control_group_id = $1 AND start_time >= $2 AND start_time < $3"
	args := []any{groupID, periodStart, periodEnd}
	if siteID != 0 {
		where += " AND site_id = $4"
		args = append(args, siteID)
	}

	if err := archiveDOEs(ctx, tx, &deletedTime, where, args...); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM dynamic_operating_envelope WHERE "+where, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// ByChangedAt returns the envelopes whose changed_time exactly matches the
// notification watermark.
func (r *DOERepository) ByChangedAt(ctx context.Context, changedAt time.Time) ([]models.DynamicOperatingEnvelope, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+doeColumns+" FROM dynamic_operating_envelope WHERE changed_time = $1 ORDER BY dynamic_operating_envelope_id",
		changedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DynamicOperatingEnvelope
	for rows.Next() {
		d, err := scanDOE(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DeletedAt returns archived envelopes whose deleted_time matches the
// notification watermark.
func (r *DOERepository) DeletedAt(ctx context.Context, deletedAt time.Time) ([]models.DynamicOperatingEnvelope, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+doeColumns+" FROM archive_dynamic_operating_envelope WHERE deleted_time = $1 ORDER BY archive_id",
		deletedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DynamicOperatingEnvelope
	for rows.Next() {
		d, err := scanDOE(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ByChangedAt returns the control groups whose changed_time exactly matches
// the notification watermark.
func (r *ControlGroupRepository) ByChangedAt(ctx context.Context, changedAt time.Time) ([]models.SiteControlGroup, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+controlGroupColumns+" FROM site_control_group WHERE changed_time = $1 ORDER BY site_control_group_id",
		changedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SiteControlGroup
	for rows.Next() {
		g, err := scanControlGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}
