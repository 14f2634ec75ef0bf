package repository

import (
	"context"
	"database/sql"
	"time"

	"gridserve/internal/models"
)

// TariffRepository handles tariff definitions and the calculated site scoped
// rates beneath them.
type TariffRepository struct {
	db *sql.DB
}

// NewTariffRepository returns repository.
func NewTariffRepository(db *sql.DB) *TariffRepository {
	return &TariffRepository{db: db}
}

const tariffColumns = `tariff_id, name, dnsp_code, currency_code, created_time, changed_time`

const rateColumns = `tariff_generated_rate_id, tariff_id, site_id, calculation_log_id,
	created_time, changed_time, start_time, duration_seconds, import_active_price,
	export_active_price, import_reactive_price, export_reactive_price`

func scanTariff(row interface{ Scan(...any) error }) (*models.Tariff, error) {
	var t models.Tariff
	if err := row.Scan(&t.TariffID, &t.Name, &t.DnspCode, &t.CurrencyCode,
		&t.CreatedTime, &t.ChangedTime); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanRate(row interface{ Scan(...any) error }) (*models.TariffGeneratedRate, error) {
	var t models.TariffGeneratedRate
	if err := row.Scan(&t.TariffGeneratedRateID, &t.TariffID, &t.SiteID, &t.CalculationLogID,
		&t.CreatedTime, &t.ChangedTime, &t.StartTime, &t.DurationSeconds, &t.ImportActivePrice,
		&t.ExportActivePrice, &t.ImportReactivePrice, &t.ExportReactivePrice); err != nil {
		return nil, err
	}
	return &t, nil
}

// Get returns a tariff by id.
func (r *TariffRepository) Get(ctx context.Context, tariffID int64) (*models.Tariff, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+tariffColumns+" FROM tariff WHERE tariff_id = $1", tariffID)
	t, err := scanTariff(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// List returns a page of tariffs changed after the watermark, newest change
// first, plus the total matching count.
func (r *TariffRepository) List(ctx context.Context, start, limit int, after time.Time) ([]models.Tariff, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM tariff WHERE changed_time > $1", after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+tariffColumns+` FROM tariff
		 WHERE changed_time > $1
		 ORDER BY changed_time DESC, tariff_id DESC OFFSET $2 LIMIT $3`,
		after, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Tariff
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, count, rows.Err()
}

// Create inserts a tariff and returns its id.
func (r *TariffRepository) Create(ctx context.Context, t *models.Tariff, changedTime time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tariff (name, dnsp_code, currency_code, changed_time)
		 VALUES ($1, $2, $3, $4) RETURNING tariff_id`,
		t.Name, t.DnspCode, t.CurrencyCode, changedTime).Scan(&id)
	return id, err
}

// Update archives the current tariff row then applies the new values.
func (r *TariffRepository) Update(ctx context.Context, t *models.Tariff, changedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := archiveTariffs(ctx, tx, nil, "tariff_id = $1", t.TariffID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tariff SET name = $1, dnsp_code = $2, currency_code = $3, changed_time = $4
		 WHERE tariff_id = $5`,
		t.Name, t.DnspCode, t.CurrencyCode, changedTime, t.TariffID)
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

// GetRate returns one generated rate scoped to a site.
func (r *TariffRepository) GetRate(ctx context.Context, siteID, rateID int64) (*models.TariffGeneratedRate, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+rateColumns+` FROM tariff_generated_rate
		 WHERE site_id = $1 AND tariff_generated_rate_id = $2`,
		siteID, rateID)
	t, err := scanRate(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// RateDays returns the distinct days (in the site's timezone) that have
// generated rates for the tariff and site, ordered, with a total count.
// Days back the sep2 RateComponent list.
func (r *TariffRepository) RateDays(ctx context.Context, tariffID, siteID int64, timezone string, start, limit int, after time.Time) ([]time.Time, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(DISTINCT date_trunc('day', start_time AT TIME ZONE $3))
		 FROM tariff_generated_rate
		 WHERE tariff_id = $1 AND site_id = $2 AND changed_time > $4`,
		tariffID, siteID, timezone, after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT date_trunc('day', start_time AT TIME ZONE $3) AS day
		 FROM tariff_generated_rate
		 WHERE tariff_id = $1 AND site_id = $2 AND changed_time > $4
		 ORDER BY day OFFSET $5 LIMIT $6`,
		tariffID, siteID, timezone, after, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, 0, err
		}
		out = append(out, day)
	}
	return out, count, rows.Err()
}

// RatesForDay returns a page of generated rates for a tariff, site and local
// day, ordered by start time, plus the total matching count.
func (r *TariffRepository) RatesForDay(ctx context.Context, tariffID, siteID int64, dayStart, dayEnd time.Time, start, limit int, after time.Time) ([]models.TariffGeneratedRate, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM tariff_generated_rate
		 WHERE tariff_id = $1 AND site_id = $2 AND start_time >= $3 AND start_time < $4 AND changed_time > $5`,
		tariffID, siteID, dayStart, dayEnd, after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+rateColumns+` FROM tariff_generated_rate
		 WHERE tariff_id = $1 AND site_id = $2 AND start_time >= $3 AND start_time < $4 AND changed_time > $5
		 ORDER BY start_time OFFSET $6 LIMIT $7`,
		tariffID, siteID, dayStart, dayEnd, after, start, limit)
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

// UpsertRates inserts a batch of generated rates in one transaction. A
// conflict on (tariff, site, start) archives the standing row before
// overwriting it.
func (r *TariffRepository) UpsertRates(ctx context.Context, rates []models.TariffGeneratedRate, changedTime time.Time) error {
	if len(rates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range rates {
		rate := &rates[i]

		if err := archiveRates(ctx, tx, nil,
			"tariff_id = $1 AND site_id = $2 AND start_time = $3",
			rate.TariffID, rate.SiteID, rate.StartTime); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tariff_generated_rate (tariff_id, site_id, calculation_log_id, changed_time,
				start_time, duration_seconds, import_active_price, export_active_price,
				import_reactive_price, export_reactive_price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (tariff_id, site_id, start_time) DO UPDATE SET
				calculation_log_id = EXCLUDED.calculation_log_id,
				changed_time = EXCLUDED.changed_time,
				duration_seconds = EXCLUDED.duration_seconds,
				import_active_price = EXCLUDED.import_active_price,
				export_active_price = EXCLUDED.export_active_price,
				import_reactive_price = EXCLUDED.import_reactive_price,
				export_reactive_price = EXCLUDED.export_reactive_price`,
			rate.TariffID, rate.SiteID, rate.CalculationLogID, changedTime, rate.StartTime,
			rate.DurationSeconds, rate.ImportActivePrice, rate.ExportActivePrice,
			rate.ImportReactivePrice, rate.ExportReactivePrice); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RatesByChangedAt returns the generated rates whose changed_time exactly
// matches the notification watermark.
func (r *TariffRepository) RatesByChangedAt(ctx context.Context, changedAt time.Time) ([]models.TariffGeneratedRate, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+rateColumns+" FROM tariff_generated_rate WHERE changed_time = $1 ORDER BY tariff_generated_rate_id",
		changedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TariffGeneratedRate
	for rows.Next() {
		t, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// RatesDeletedAt returns archived generated rates whose deleted_time matches
// the notification watermark.
func (r *TariffRepository) RatesDeletedAt(ctx context.Context, deletedAt time.Time) ([]models.TariffGeneratedRate, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+rateColumns+" FROM archive_tariff_generated_rate WHERE deleted_time = $1 ORDER BY archive_id",
		deletedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TariffGeneratedRate
	for rows.Next() {
		t, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
