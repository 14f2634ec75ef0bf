package repository

import (
	"context"
	"database/sql"
	"time"

	"gridserve/internal/models"
)

// ReadingRepository handles mirror metering: the reading type identity rows
// and the thin reading values beneath them.
type ReadingRepository struct {
	db *sql.DB
}

// NewReadingRepository returns repository.
func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

const readingTypeColumns = `site_reading_type_id, aggregator_id, site_id, mrid, group_id,
	group_mrid, uom, data_qualifier, flow_direction, accumulation_behaviour, kind, phase,
	power_of_ten_multiplier, default_interval_seconds, role_flags, description,
	group_description, created_time, changed_time`

func scanReadingType(row interface{ Scan(...any) error }) (*models.SiteReadingType, error) {
	var t models.SiteReadingType
	if err := row.Scan(&t.SiteReadingTypeID, &t.AggregatorID, &t.SiteID, &t.MRID, &t.GroupID,
		&t.GroupMRID, &t.Uom, &t.DataQualifier, &t.FlowDirection, &t.AccumulationBehaviour,
		&t.Kind, &t.Phase, &t.PowerOfTenMultiplier, &t.DefaultIntervalSeconds, &t.RoleFlags,
		&t.Description, &t.GroupDescription, &t.CreatedTime, &t.ChangedTime); err != nil {
		return nil, err
	}
	return &t, nil
}

// NextGroupID allocates a fresh MirrorUsagePoint group id.
func (r *ReadingRepository) NextGroupID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		"SELECT nextval('site_reading_type_group_id_seq')").Scan(&id)
	return id, err
}

// GroupForMRID returns the existing group id and owning site for an
// aggregator's MirrorUsagePoint mrid, if any.
func (r *ReadingRepository) GroupForMRID(ctx context.Context, aggregatorID int64, groupMRID string) (int64, int64, error) {
	var groupID, siteID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT group_id, site_id FROM site_reading_type
		 WHERE aggregator_id = $1 AND group_mrid = $2
		 ORDER BY site_reading_type_id LIMIT 1`,
		aggregatorID, groupMRID).Scan(&groupID, &siteID)
	if err != nil {
		return 0, 0, notFound(err)
	}
	return groupID, siteID, nil
}

// UpsertType writes one reading type, archiving any standing row on the
// (aggregator, site, mrid) identity before it changes. Returns the stored id.
func (r *ReadingRepository) UpsertType(ctx context.Context, t *models.SiteReadingType, changedTime time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := archiveSiteReadingTypes(ctx, tx, nil,
		"aggregator_id = $1 AND site_id = $2 AND mrid = $3",
		t.AggregatorID, t.SiteID, t.MRID); err != nil {
		return 0, err
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO site_reading_type (aggregator_id, site_id, mrid, group_id, group_mrid, uom,
			data_qualifier, flow_direction, accumulation_behaviour, kind, phase,
			power_of_ten_multiplier, default_interval_seconds, role_flags, description,
			group_description, changed_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (aggregator_id, site_id, mrid) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			group_mrid = EXCLUDED.group_mrid,
			uom = EXCLUDED.uom,
			data_qualifier = EXCLUDED.data_qualifier,
			flow_direction = EXCLUDED.flow_direction,
			accumulation_behaviour = EXCLUDED.accumulation_behaviour,
			kind = EXCLUDED.kind,
			phase = EXCLUDED.phase,
			power_of_ten_multiplier = EXCLUDED.power_of_ten_multiplier,
			default_interval_seconds = EXCLUDED.default_interval_seconds,
			role_flags = EXCLUDED.role_flags,
			description = EXCLUDED.description,
			group_description = EXCLUDED.group_description,
			changed_time = EXCLUDED.changed_time
		 RETURNING site_reading_type_id`,
		t.AggregatorID, t.SiteID, t.MRID, t.GroupID, t.GroupMRID, t.Uom, t.DataQualifier,
		t.FlowDirection, t.AccumulationBehaviour, t.Kind, t.Phase, t.PowerOfTenMultiplier,
		t.DefaultIntervalSeconds, t.RoleFlags, t.Description, t.GroupDescription,
		changedTime).Scan(&id); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// TypesForGroup returns the reading types composing one MirrorUsagePoint
// group, scoped to the aggregator.
func (r *ReadingRepository) TypesForGroup(ctx context.Context, aggregatorID, groupID int64) ([]models.SiteReadingType, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+readingTypeColumns+` FROM site_reading_type
		 WHERE aggregator_id = $1 AND group_id = $2
		 ORDER BY site_reading_type_id`,
		aggregatorID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SiteReadingType
	for rows.Next() {
		t, err := scanReadingType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetType returns a single reading type scoped to the aggregator.
func (r *ReadingRepository) GetType(ctx context.Context, aggregatorID, typeID int64) (*models.SiteReadingType, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+readingTypeColumns+` FROM site_reading_type
		 WHERE aggregator_id = $1 AND site_reading_type_id = $2`,
		aggregatorID, typeID)
	t, err := scanReadingType(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// ListGroups returns a page of distinct MirrorUsagePoint groups for the
// aggregator, each represented by its lowest-id member type, plus the total
// group count.
func (r *ReadingRepository) ListGroups(ctx context.Context, aggregatorID int64, start, limit int, after time.Time) ([]models.SiteReadingType, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(DISTINCT group_id) FROM site_reading_type
		 WHERE aggregator_id = $1 AND changed_time > $2`,
		aggregatorID, after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+readingTypeColumns+` FROM site_reading_type
		 WHERE site_reading_type_id IN (
			SELECT min(site_reading_type_id) FROM site_reading_type
			WHERE aggregator_id = $1 AND changed_time > $2
			GROUP BY group_id)
		 ORDER BY group_id OFFSET $3 LIMIT $4`,
		aggregatorID, after, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.SiteReadingType
	for rows.Next() {
		t, err := scanReadingType(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, count, rows.Err()
}

// ListGroupsForSite is ListGroups restricted to one site, for clients whose
// certificate only authorizes their own registration.
func (r *ReadingRepository) ListGroupsForSite(ctx context.Context, aggregatorID, siteID int64, start, limit int, after time.Time) ([]models.SiteReadingType, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(DISTINCT group_id) FROM site_reading_type
		 WHERE aggregator_id = $1 AND site_id = $2 AND changed_time > $3`,
		aggregatorID, siteID, after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+readingTypeColumns+` FROM site_reading_type
		 WHERE site_reading_type_id IN (
			SELECT min(site_reading_type_id) FROM site_reading_type
			WHERE aggregator_id = $1 AND site_id = $2 AND changed_time > $3
			GROUP BY group_id)
		 ORDER BY group_id OFFSET $4 LIMIT $5`,
		aggregatorID, siteID, after, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.SiteReadingType
	for rows.Next() {
		t, err := scanReadingType(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, count, rows.Err()
}

// DeleteGroup archives and removes every reading type (and cascaded reading)
// in a MirrorUsagePoint group.
func (r *ReadingRepository) DeleteGroup(ctx context.Context, aggregatorID, groupID int64, deletedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := archiveSiteReadingTypes(ctx, tx, &deletedTime,
		"aggregator_id = $1 AND group_id = $2", aggregatorID, groupID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM site_reading_type WHERE aggregator_id = $1 AND group_id = $2",
		aggregatorID, groupID)
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

// UpsertReadings writes a batch of readings in one transaction. A conflict on
// (type, period start) overwrites the stored value.
func (r *ReadingRepository) UpsertReadings(ctx context.Context, readings []models.SiteReading, changedTime time.Time) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range readings {
		rd := &readings[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO site_reading (site_reading_type_id, changed_time, local_id, quality_flags,
				time_period_start, time_period_seconds, value)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (site_reading_type_id, time_period_start) DO UPDATE SET
				changed_time = EXCLUDED.changed_time,
				local_id = EXCLUDED.local_id,
				quality_flags = EXCLUDED.quality_flags,
				time_period_seconds = EXCLUDED.time_period_seconds,
				value = EXCLUDED.value`,
			rd.SiteReadingTypeID, changedTime, rd.LocalID, rd.QualityFlags,
			rd.TimePeriodStart, rd.TimePeriodSeconds, rd.Value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListReadings returns a page of readings for a type within the window,
// ordered by period start, plus the total matching count (admin usage).
func (r *ReadingRepository) ListReadings(ctx context.Context, typeID int64, periodStart, periodEnd time.Time, start, limit int) ([]models.SiteReading, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM site_reading
		 WHERE site_reading_type_id = $1 AND time_period_start >= $2 AND time_period_start < $3`,
		typeID, periodStart, periodEnd).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT site_reading_id, site_reading_type_id, created_time, changed_time, local_id,
			quality_flags, time_period_start, time_period_seconds, value
		 FROM site_reading
		 WHERE site_reading_type_id = $1 AND time_period_start >= $2 AND time_period_start < $3
		 ORDER BY time_period_start OFFSET $4 LIMIT $5`,
		typeID, periodStart, periodEnd, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.SiteReading
	for rows.Next() {
		var rd models.SiteReading
		if err := rows.Scan(&rd.SiteReadingID, &rd.SiteReadingTypeID, &rd.CreatedTime,
			&rd.ChangedTime, &rd.LocalID, &rd.QualityFlags, &rd.TimePeriodStart,
			&rd.TimePeriodSeconds, &rd.Value); err != nil {
			return nil, 0, err
		}
		out = append(out, rd)
	}
	return out, count, rows.Err()
}

// ListReadingsForSite pages every reading recorded against a site's streams
// within a period, newest streams interleaved by interval start.
func (r *ReadingRepository) ListReadingsForSite(ctx context.Context, siteID int64, periodStart, periodEnd time.Time, start, limit int) ([]models.SiteReading, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM site_reading sr
		 JOIN site_reading_type srt ON srt.site_reading_type_id = sr.site_reading_type_id
		 WHERE srt.site_id = $1 AND sr.time_period_start >= $2 AND sr.time_period_start < $3`,
		siteID, periodStart, periodEnd).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT sr.site_reading_id, sr.site_reading_type_id, sr.created_time, sr.changed_time,
			sr.local_id, sr.quality_flags, sr.time_period_start, sr.time_period_seconds, sr.value
		 FROM site_reading sr
		 JOIN site_reading_type srt ON srt.site_reading_type_id = sr.site_reading_type_id
		 WHERE srt.site_id = $1 AND sr.time_period_start >= $2 AND sr.time_period_start < $3
		 ORDER BY sr.time_period_start, sr.site_reading_id OFFSET $4 LIMIT $5`,
		siteID, periodStart, periodEnd, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.SiteReading
	for rows.Next() {
		var rd models.SiteReading
		if err := rows.Scan(&rd.SiteReadingID, &rd.SiteReadingTypeID, &rd.CreatedTime,
			&rd.ChangedTime, &rd.LocalID, &rd.QualityFlags, &rd.TimePeriodStart,
			&rd.TimePeriodSeconds, &rd.Value); err != nil {
			return nil, 0, err
		}
		out = append(out, rd)
	}
	return out, count, rows.Err()
}

// ReadingsByChangedAt returns the readings whose changed_time exactly matches
// the notification watermark, alongside their reading types keyed by id.
func (r *ReadingRepository) ReadingsByChangedAt(ctx context.Context, changedAt time.Time) ([]models.SiteReading, map[int64]models.SiteReadingType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT site_reading_id, site_reading_type_id, created_time, changed_time, local_id,
			quality_flags, time_period_start, time_period_seconds, value
		 FROM site_reading WHERE changed_time = $1 ORDER BY site_reading_id`, changedAt)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []models.SiteReading
	typeIDs := make(map[int64]struct{})
	for rows.Next() {
		var rd models.SiteReading
		if err := rows.Scan(&rd.SiteReadingID, &rd.SiteReadingTypeID, &rd.CreatedTime,
			&rd.ChangedTime, &rd.LocalID, &rd.QualityFlags, &rd.TimePeriodStart,
			&rd.TimePeriodSeconds, &rd.Value); err != nil {
			return nil, nil, err
		}
		out = append(out, rd)
		typeIDs[rd.SiteReadingTypeID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	types := make(map[int64]models.SiteReadingType, len(typeIDs))
	for id := range typeIDs {
		row := r.db.QueryRowContext(ctx,
			"SELECT "+readingTypeColumns+" FROM site_reading_type WHERE site_reading_type_id = $1", id)
		t, err := scanReadingType(row)
		if err != nil {
			return nil, nil, err
		}
		types[id] = *t
	}
	return out, types, nil
}
