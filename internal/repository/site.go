package repository

import (
	"context"
	"database/sql"
	"time"

	"gridserve/internal/models"
)

// SiteRepository handles EndDevice registrations and site groups. All reads
// are aggregator scoped; device cert clients are scoped to their single site.
type SiteRepository struct {
	db *sql.DB
}

// NewSiteRepository returns repository.
func NewSiteRepository(db *sql.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

const siteColumns = `site_id, nmi, aggregator_id, timezone_id, created_time, changed_time,
	lfdi, sfdi, device_category, registration_pin`

func scanSite(row interface{ Scan(...any) error }) (*models.Site, error) {
	var s models.Site
	if err := row.Scan(&s.SiteID, &s.NMI, &s.AggregatorID, &s.TimezoneID, &s.CreatedTime,
		&s.ChangedTime, &s.LFDI, &s.SFDI, &s.DeviceCategory, &s.RegistrationPIN); err != nil {
		return nil, err
	}
	return &s, nil
}

// archiveSites snapshots the matching site rows into archive_site inside tx.
func archiveSites(ctx context.Context, tx *sql.Tx, deletedTime *time.Time, where string, args ...any) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO archive_site (deleted_time, site_id, nmi, aggregator_id, timezone_id,
			created_time, changed_time, lfdi, sfdi, device_category, registration_pin)
		 SELECT `+archiveDeletedExpr(deletedTime, len(args)+1)+`, site_id, nmi, aggregator_id, timezone_id,
			created_time, changed_time, lfdi, sfdi, device_category, registration_pin
		 FROM site WHERE `+where,
		appendDeleted(args, deletedTime)...)
	return err
}

// Get returns a site by id within the aggregator scope.
func (r *SiteRepository) Get(ctx context.Context, aggregatorID, siteID int64) (*models.Site, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+siteColumns+" FROM site WHERE aggregator_id = $1 AND site_id = $2",
		aggregatorID, siteID)
	s, err := scanSite(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// GetByID returns a site by id alone (admin usage).
func (r *SiteRepository) GetByID(ctx context.Context, siteID int64) (*models.Site, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+siteColumns+" FROM site WHERE site_id = $1", siteID)
	s, err := scanSite(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// GetBySFDI returns a site by its SFDI within the aggregator scope.
func (r *SiteRepository) GetBySFDI(ctx context.Context, aggregatorID, sfdi int64) (*models.Site, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+siteColumns+" FROM site WHERE aggregator_id = $1 AND sfdi = $2",
		aggregatorID, sfdi)
	s, err := scanSite(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// List returns a page of sites for the aggregator changed after the
// watermark, ordered by sfdi, and the total matching count.
func (r *SiteRepository) List(ctx context.Context, aggregatorID int64, start, limit int, after time.Time) ([]models.Site, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM site WHERE aggregator_id = $1 AND changed_time > $2",
		aggregatorID, after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+siteColumns+` FROM site
		 WHERE aggregator_id = $1 AND changed_time > $2
		 ORDER BY sfdi OFFSET $3 LIMIT $4`,
		aggregatorID, after, start, limit)
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

// ListAll returns a page of sites across all aggregators (admin usage).
func (r *SiteRepository) ListAll(ctx context.Context, start, limit int, after time.Time) ([]models.Site, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM site WHERE changed_time > $1", after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+siteColumns+` FROM site
		 WHERE changed_time > $1
		 ORDER BY site_id OFFSET $2 LIMIT $3`, after, start, limit)
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

// Upsert inserts the site or, when (aggregator_id, sfdi) already exists,
// archives the old row and updates it in place. The registration PIN is only
// written on insert. Returns the site id and whether a new row was created.
func (r *SiteRepository) Upsert(ctx context.Context, site *models.Site) (int64, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRowContext(ctx,
		"SELECT site_id FROM site WHERE aggregator_id = $1 AND sfdi = $2 FOR UPDATE",
		site.AggregatorID, site.SFDI).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		var id int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO site (nmi, aggregator_id, timezone_id, changed_time, lfdi, sfdi,
				device_category, registration_pin)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING site_id`,
			site.NMI, site.AggregatorID, site.TimezoneID, site.ChangedTime, site.LFDI,
			site.SFDI, site.DeviceCategory, site.RegistrationPIN).Scan(&id)
		if err != nil {
			return 0, false, err
		}
		return id, true, tx.Commit()
	case err != nil:
		return 0, false, err
	}

	if err := archiveSites(ctx, tx, nil, "site_id = $1", existingID); err != nil {
		return 0, false, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE site SET lfdi = $2, device_category = $3, changed_time = $4
		 WHERE site_id = $1`,
		existingID, site.LFDI, site.DeviceCategory, site.ChangedTime)
	if err != nil {
		return 0, false, err
	}
	return existingID, false, tx.Commit()
}

// UpdateNMI archives and updates the site's connection point id.
func (r *SiteRepository) UpdateNMI(ctx context.Context, siteID int64, nmi *string, changedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := archiveSites(ctx, tx, nil, "site_id = $1", siteID); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx,
		"UPDATE site SET nmi = $2, changed_time = $3 WHERE site_id = $1",
		siteID, nmi, changedTime)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Delete archives the site with a deleted_time and removes it; dependent
// rows cascade.
func (r *SiteRepository) Delete(ctx context.Context, siteID int64, deletedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := archiveSites(ctx, tx, &deletedTime, "site_id = $1", siteID); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM site WHERE site_id = $1", siteID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Groups returns a page of site groups with per-group site counts.
func (r *SiteRepository) Groups(ctx context.Context, start, limit int) ([]models.SiteGroup, []int, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM site_group").Scan(&count); err != nil {
		return nil, nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT g.site_group_id, g.name, g.created_time, g.changed_time,
			(SELECT count(*) FROM site_group_assignment a WHERE a.site_group_id = g.site_group_id)
		 FROM site_group g
		 ORDER BY g.site_group_id OFFSET $1 LIMIT $2`, start, limit)
	if err != nil {
		return nil, nil, 0, err
	}
	defer rows.Close()

	var groups []models.SiteGroup
	var totals []int
	for rows.Next() {
		var g models.SiteGroup
		var n int
		if err := rows.Scan(&g.SiteGroupID, &g.Name, &g.CreatedTime, &g.ChangedTime, &n); err != nil {
			return nil, nil, 0, err
		}
		groups = append(groups, g)
		totals = append(totals, n)
	}
	return groups, totals, count, rows.Err()
}

// GroupByName returns a single site group and its site count.
func (r *SiteRepository) GroupByName(ctx context.Context, name string) (*models.SiteGroup, int, error) {
	var g models.SiteGroup
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT g.site_group_id, g.name, g.created_time, g.changed_time,
			(SELECT count(*) FROM site_group_assignment a WHERE a.site_group_id = g.site_group_id)
		 FROM site_group g WHERE g.name = $1`, name).
		Scan(&g.SiteGroupID, &g.Name, &g.CreatedTime, &g.ChangedTime, &n)
	if err != nil {
		return nil, 0, notFound(err)
	}
	return &g, n, nil
}

// ByChangedAt returns the sites whose changed_time exactly matches the
// notification watermark.
func (r *SiteRepository) ByChangedAt(ctx context.Context, changedAt time.Time) ([]models.Site, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+siteColumns+" FROM site WHERE changed_time = $1 ORDER BY site_id", changedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// DeletedAt returns archived sites whose deleted_time matches the
// notification watermark.
func (r *SiteRepository) DeletedAt(ctx context.Context, deletedAt time.Time) ([]models.Site, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+siteColumns+" FROM archive_site WHERE deleted_time = $1 ORDER BY archive_id", deletedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// GetByLFDI returns a site by its LFDI within the aggregator scope.
func (r *SiteRepository) GetByLFDI(ctx context.Context, aggregatorID int64, lfdi string) (*models.Site, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+siteColumns+" FROM site WHERE aggregator_id = $1 AND lfdi = $2",
		aggregatorID, lfdi)
	s, err := scanSite(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}
