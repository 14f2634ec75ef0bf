package repository

import (
	"context"
	"database/sql"
	"time"

	"gridserve/internal/models"
)

// ResponseRepository handles client acknowledgements posted against controls
// and prices (sep2 Response function set).
type ResponseRepository struct {
	db *sql.DB
}

// NewResponseRepository returns repository.
func NewResponseRepository(db *sql.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// CreateDOEResponse records an acknowledgement against an envelope.
func (r *ResponseRepository) CreateDOEResponse(ctx context.Context, resp *models.DOEResponse) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO dynamic_operating_envelope_response (dynamic_operating_envelope_id_snapshot,
			site_id, response_type)
		 VALUES ($1, $2, $3) RETURNING dynamic_operating_envelope_response_id`,
		resp.DOEIDSnapshot, resp.SiteID, resp.ResponseType).Scan(&id)
	return id, err
}

// GetDOEResponse returns one envelope acknowledgement scoped to a site.
func (r *ResponseRepository) GetDOEResponse(ctx context.Context, siteID, responseID int64) (*models.DOEResponse, error) {
	var resp models.DOEResponse
	err := r.db.QueryRowContext(ctx,
		`SELECT dynamic_operating_envelope_response_id, dynamic_operating_envelope_id_snapshot,
			site_id, created_time, response_type
		 FROM dynamic_operating_envelope_response
		 WHERE site_id = $1 AND dynamic_operating_envelope_response_id = $2`,
		siteID, responseID).
		Scan(&resp.DOEResponseID, &resp.DOEIDSnapshot, &resp.SiteID, &resp.CreatedTime,
			&resp.ResponseType)
	if err != nil {
		return nil, notFound(err)
	}
	return &resp, nil
}

// ListDOEResponses returns a page of envelope acknowledgements for a site,
// newest first, plus the total matching count.
func (r *ResponseRepository) ListDOEResponses(ctx context.Context, siteID int64, start, limit int, after time.Time) ([]models.DOEResponse, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM dynamic_operating_envelope_response
		 WHERE site_id = $1 AND created_time > $2`,
		siteID, after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT dynamic_operating_envelope_response_id, dynamic_operating_envelope_id_snapshot,
			site_id, created_time, response_type
		 FROM dynamic_operating_envelope_response
		 WHERE site_id = $1 AND created_time > $2
		 ORDER BY created_time DESC, dynamic_operating_envelope_response_id DESC
		 OFFSET $3 LIMIT $4`,
		siteID, after, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.DOEResponse
	for rows.Next() {
		var resp models.DOEResponse
		if err := rows.Scan(&resp.DOEResponseID, &resp.DOEIDSnapshot, &resp.SiteID,
			&resp.CreatedTime, &resp.ResponseType); err != nil {
			return nil, 0, err
		}
		out = append(out, resp)
	}
	return out, count, rows.Err()
}

// CreateRateResponse records an acknowledgement against a generated rate
// price.
func (r *ResponseRepository) CreateRateResponse(ctx context.Context, resp *models.RateResponse) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tariff_generated_rate_response (tariff_generated_rate_id_snapshot, site_id,
			response_type, pricing_reading_type)
		 VALUES ($1, $2, $3, $4) RETURNING tariff_generated_rate_response_id`,
		resp.RateIDSnapshot, resp.SiteID, resp.ResponseType, resp.PricingReadingType).Scan(&id)
	return id, err
}

// GetRateResponse returns one rate acknowledgement scoped to a site.
func (r *ResponseRepository) GetRateResponse(ctx context.Context, siteID, responseID int64) (*models.RateResponse, error) {
	var resp models.RateResponse
	err := r.db.QueryRowContext(ctx,
		`SELECT tariff_generated_rate_response_id, tariff_generated_rate_id_snapshot, site_id,
			created_time, response_type, pricing_reading_type
		 FROM tariff_generated_rate_response
		 WHERE site_id = $1 AND tariff_generated_rate_response_id = $2`,
		siteID, responseID).
		Scan(&resp.RateResponseID, &resp.RateIDSnapshot, &resp.SiteID, &resp.CreatedTime,
			&resp.ResponseType, &resp.PricingReadingType)
	if err != nil {
		return nil, notFound(err)
	}
	return &resp, nil
}

// ListRateResponses returns a page of rate acknowledgements for a site,
// newest first, plus the total matching count.
func (r *ResponseRepository) ListRateResponses(ctx context.Context, siteID int64, start, limit int, after time.Time) ([]models.RateResponse, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM tariff_generated_rate_response
		 WHERE site_id = $1 AND created_time > $2`,
		siteID, after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT tariff_generated_rate_response_id, tariff_generated_rate_id_snapshot, site_id,
			created_time, response_type, pricing_reading_type
		 FROM tariff_generated_rate_response
		 WHERE site_id = $1 AND created_time > $2
		 ORDER BY created_time DESC, tariff_generated_rate_response_id DESC
		 OFFSET $3 LIMIT $4`,
		siteID, after, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.RateResponse
	for rows.Next() {
		var resp models.RateResponse
		if err := rows.Scan(&resp.RateResponseID, &resp.RateIDSnapshot, &resp.SiteID,
			&resp.CreatedTime, &resp.ResponseType, &resp.PricingReadingType); err != nil {
			return nil, 0, err
		}
		out = append(out, resp)
	}
	return out, count, rows.Err()
}
