package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"gridserve/internal/models"
)

// AggregatorRepository handles aggregator and aggregator domain lookups.
type AggregatorRepository struct {
	db *sql.DB
}

// NewAggregatorRepository returns repository.
func NewAggregatorRepository(db *sql.DB) *AggregatorRepository {
	return &AggregatorRepository{db: db}
}

const aggregatorColumns = "aggregator_id, name, created_time, changed_time"

func scanAggregator(row interface{ Scan(...any) error }) (*models.Aggregator, error) {
	var a models.Aggregator
	if err := row.Scan(&a.AggregatorID, &a.Name, &a.CreatedTime, &a.ChangedTime); err != nil {
		return nil, err
	}
	return &a, nil
}

// Get returns a single aggregator by id.
func (r *AggregatorRepository) Get(ctx context.Context, aggregatorID int64) (*models.Aggregator, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+aggregatorColumns+" FROM aggregator WHERE aggregator_id = $1", aggregatorID)
	a, err := scanAggregator(row)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// List returns a page of aggregators ordered by id, excluding the NULL
// aggregator, along with the total count.
func (r *AggregatorRepository) List(ctx context.Context, start, limit int) ([]models.Aggregator, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM aggregator WHERE aggregator_id <> $1", models.NullAggregatorID,
	).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+aggregatorColumns+` FROM aggregator
		 WHERE aggregator_id <> $1
		 ORDER BY aggregator_id
		 OFFSET $2 LIMIT $3`, models.NullAggregatorID, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Aggregator
	for rows.Next() {
		a, err := scanAggregator(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, count, rows.Err()
}

// Create inserts an aggregator and returns its id.
func (r *AggregatorRepository) Create(ctx context.Context, name string, changedTime time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO aggregator (name, changed_time) VALUES ($1, $2) RETURNING aggregator_id",
		name, changedTime).Scan(&id)
	return id, err
}

// Domains returns the whitelisted domains for an aggregator.
func (r *AggregatorRepository) Domains(ctx context.Context, aggregatorID int64) ([]models.AggregatorDomain, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT aggregator_domain_id, aggregator_id, created_time, changed_time, domain
		 FROM aggregator_domain WHERE aggregator_id = $1 ORDER BY domain`, aggregatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AggregatorDomain
	for rows.Next() {
		var d models.AggregatorDomain
		if err := rows.Scan(&d.AggregatorDomainID, &d.AggregatorID, &d.CreatedTime, &d.ChangedTime, &d.Domain); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddDomain whitelists a domain for an aggregator.
func (r *AggregatorRepository) AddDomain(ctx context.Context, aggregatorID int64, domain string, changedTime time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO aggregator_domain (aggregator_id, changed_time, domain) VALUES ($1, $2, $3)",
		aggregatorID, changedTime, strings.ToLower(domain))
	return err
}

// DomainMatches reports whether host exactly matches one of the aggregator's
// whitelisted domains. An aggregator without any domains matches nothing.
func (r *AggregatorRepository) DomainMatches(ctx context.Context, aggregatorID int64, host string) (bool, error) {
	var matched bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM aggregator_domain WHERE aggregator_id = $1 AND domain = $2)",
		aggregatorID, strings.ToLower(host)).Scan(&matched)
	return matched, err
}
