package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"gridserve/internal/models"
)

// ClientIDDetails maps a certificate LFDI to the aggregator the cert is
// assigned to; used to resolve incoming client certificates.
type ClientIDDetails struct {
	LFDI         string
	AggregatorID int64
	Expiry       time.Time
}

// CertificateRepository handles the certificate reference store and its
// assignments to aggregators.
type CertificateRepository struct {
	db *sql.DB
}

// NewCertificateRepository returns repository.
func NewCertificateRepository(db *sql.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const certificateColumns = "certificate_id, created, lfdi, expiry"

func scanCertificate(row interface{ Scan(...any) error }) (*models.Certificate, error) {
	var c models.Certificate
	if err := row.Scan(&c.CertificateID, &c.Created, &c.LFDI, &c.Expiry); err != nil {
		return nil, err
	}
	return &c, nil
}

// Get returns a single certificate by id.
func (r *CertificateRepository) Get(ctx context.Context, certificateID int64) (*models.Certificate, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+certificateColumns+" FROM certificate WHERE certificate_id = $1", certificateID)
	c, err := scanCertificate(row)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// List returns a page of certificates ordered by id with the total count.
func (r *CertificateRepository) List(ctx context.Context, start, limit int) ([]models.Certificate, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM certificate").Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+certificateColumns+" FROM certificate ORDER BY certificate_id OFFSET $1 LIMIT $2",
		start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, count, rows.Err()
}

// Create inserts a certificate and returns its id. The LFDI is stored lower
// case so lookups are case insensitive.
func (r *CertificateRepository) Create(ctx context.Context, lfdi string, expiry time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO certificate (lfdi, expiry) VALUES ($1, $2) RETURNING certificate_id",
		strings.ToLower(lfdi), expiry).Scan(&id)
	return id, err
}

// Update replaces the mutable fields of a certificate.
func (r *CertificateRepository) Update(ctx context.Context, certificateID int64, lfdi string, expiry time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE certificate SET lfdi = $2, expiry = $3 WHERE certificate_id = $1",
		certificateID, strings.ToLower(lfdi), expiry)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a certificate and its aggregator assignments.
func (r *CertificateRepository) Delete(ctx context.Context, certificateID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM aggregator_certificate_assignment WHERE certificate_id = $1", certificateID); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx,
		"DELETE FROM certificate WHERE certificate_id = $1", certificateID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Assign links a certificate to an aggregator.
func (r *CertificateRepository) Assign(ctx context.Context, certificateID, aggregatorID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO aggregator_certificate_assignment (certificate_id, aggregator_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`, certificateID, aggregatorID)
	return err
}

// Unassign removes a certificate's link to an aggregator.
func (r *CertificateRepository) Unassign(ctx context.Context, certificateID, aggregatorID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM aggregator_certificate_assignment
		 WHERE certificate_id = $1 AND aggregator_id = $2`, certificateID, aggregatorID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForAggregator returns the certificates assigned to an aggregator.
func (r *CertificateRepository) ListForAggregator(ctx context.Context, aggregatorID int64) ([]models.Certificate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.certificate_id, c.created, c.lfdi, c.expiry
		 FROM certificate c
		 JOIN aggregator_certificate_assignment a ON a.certificate_id = c.certificate_id
		 WHERE a.aggregator_id = $1
		 ORDER BY c.certificate_id`, aggregatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// AllClientIDDetails returns every certificate assignment (including expired
// certs - expiry is enforced by the caller) keyed for the auth registry.
func (r *CertificateRepository) AllClientIDDetails(ctx context.Context) ([]ClientIDDetails, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.lfdi, a.aggregator_id, c.expiry
		 FROM certificate c
		 JOIN aggregator_certificate_assignment a ON a.certificate_id = c.certificate_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClientIDDetails
	for rows.Next() {
		var d ClientIDDetails
		if err := rows.Scan(&d.LFDI, &d.AggregatorID, &d.Expiry); err != nil {
			return nil, err
		}
		d.LFDI = strings.ToLower(d.LFDI)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClientIDDetailsForLFDI resolves a single certificate assignment by LFDI.
func (r *CertificateRepository) ClientIDDetailsForLFDI(ctx context.Context, lfdi string) (*ClientIDDetails, error) {
	var d ClientIDDetails
	err := r.db.QueryRowContext(ctx,
		`SELECT c.lfdi, a.aggregator_id, c.expiry
		 FROM certificate c
		 JOIN aggregator_certificate_assignment a ON a.certificate_id = c.certificate_id
		 WHERE c.lfdi = $1`, strings.ToLower(lfdi)).
		Scan(&d.LFDI, &d.AggregatorID, &d.Expiry)
	if err != nil {
		return nil, notFound(err)
	}
	d.LFDI = strings.ToLower(d.LFDI)
	return &d, nil
}
