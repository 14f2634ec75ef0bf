package repository

import (
	"context"
	"database/sql"
	"time"

	"gridserve/internal/models"
)

// SubscriptionRepository handles notification subscriptions, their reading
// value conditions and the delivery attempt log.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository returns repository.
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `subscription_id, aggregator_id, created_time, changed_time,
	resource_type, resource_id, scoped_site_id, notification_uri, entity_limit`

func scanSubscription(row interface{ Scan(...any) error }) (*models.Subscription, error) {
	var s models.Subscription
	if err := row.Scan(&s.SubscriptionID, &s.AggregatorID, &s.CreatedTime, &s.ChangedTime,
		&s.ResourceType, &s.ResourceID, &s.ScopedSiteID, &s.NotificationURI,
		&s.EntityLimit); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) loadConditions(ctx context.Context, subs []models.Subscription) error {
	for i := range subs {
		rows, err := r.db.QueryContext(ctx,
			`SELECT subscription_condition_id, subscription_id, attribute, lower_threshold, upper_threshold
			 FROM subscription_condition WHERE subscription_id = $1 ORDER BY subscription_condition_id`,
			subs[i].SubscriptionID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var c models.SubscriptionCondition
			if err := rows.Scan(&c.SubscriptionConditionID, &c.SubscriptionID, &c.Attribute,
				&c.LowerThreshold, &c.UpperThreshold); err != nil {
				rows.Close()
				return err
			}
			subs[i].Conditions = append(subs[i].Conditions, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

// Get returns a subscription (with conditions) scoped to the aggregator and
// site it was registered under.
func (r *SubscriptionRepository) Get(ctx context.Context, aggregatorID, siteID, subscriptionID int64) (*models.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+subscriptionColumns+` FROM subscription
		 WHERE aggregator_id = $1 AND scoped_site_id = $2 AND subscription_id = $3`,
		aggregatorID, siteID, subscriptionID)
	s, err := scanSubscription(row)
	if err != nil {
		return nil, notFound(err)
	}
	subs := []models.Subscription{*s}
	if err := r.loadConditions(ctx, subs); err != nil {
		return nil, err
	}
	return &subs[0], nil
}

// ListForSite returns a page of subscriptions registered under a site, plus
// the total matching count.
func (r *SubscriptionRepository) ListForSite(ctx context.Context, aggregatorID, siteID int64, start, limit int, after time.Time) ([]models.Subscription, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM subscription
		 WHERE aggregator_id = $1 AND scoped_site_id = $2 AND changed_time > $3`,
		aggregatorID, siteID, after).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+subscriptionColumns+` FROM subscription
		 WHERE aggregator_id = $1 AND scoped_site_id = $2 AND changed_time > $3
		 ORDER BY subscription_id OFFSET $4 LIMIT $5`,
		aggregatorID, siteID, after, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadConditions(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, count, nil
}

// Create inserts a subscription and its conditions, returning the new id.
func (r *SubscriptionRepository) Create(ctx context.Context, s *models.Subscription, changedTime time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO subscription (aggregator_id, changed_time, resource_type, resource_id,
			scoped_site_id, notification_uri, entity_limit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING subscription_id`,
		s.AggregatorID, changedTime, s.ResourceType, s.ResourceID, s.ScopedSiteID,
		s.NotificationURI, s.EntityLimit).Scan(&id); err != nil {
		return 0, err
	}

	for _, c := range s.Conditions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subscription_condition (subscription_id, attribute, lower_threshold, upper_threshold)
			 VALUES ($1, $2, $3, $4)`,
			id, c.Attribute, c.LowerThreshold, c.UpperThreshold); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

// Delete archives the subscription with the deletion watermark then removes
// it (conditions cascade).
func (r *SubscriptionRepository) Delete(ctx context.Context, aggregatorID, siteID, subscriptionID int64, deletedTime time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	where := "aggregator_id = $1 AND scoped_site_id = $2 AND subscription_id = $3"
	if err := archiveSubscriptions(ctx, tx, &deletedTime, where, aggregatorID, siteID, subscriptionID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM subscription WHERE "+where,
		aggregatorID, siteID, subscriptionID)
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

// ForResource returns every subscription (with conditions) watching a
// resource type, for the notifier's matching pass.
func (r *SubscriptionRepository) ForResource(ctx context.Context, resource models.SubscriptionResource) ([]models.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+subscriptionColumns+` FROM subscription
		 WHERE resource_type = $1 ORDER BY subscription_id`, resource)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadConditions(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SiteForAggregator reports whether the site belongs to the subscription's
// aggregator, for scoping notifications.
func (r *SubscriptionRepository) SiteForAggregator(ctx context.Context, aggregatorID, siteID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM site WHERE site_id = $1 AND aggregator_id = $2)",
		siteID, aggregatorID).Scan(&ok)
	return ok, err
}

// LogTransmit records one delivery attempt.
func (r *SubscriptionRepository) LogTransmit(ctx context.Context, l *models.TransmitNotificationLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transmit_notification_log (subscription_id_snapshot, transmit_time,
			transmit_duration_ms, notification_size_bytes, attempt, http_status_code)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		l.SubscriptionIDSnapshot, l.TransmitTime, l.TransmitDurationMs,
		l.NotificationSizeBytes, l.Attempt, l.HTTPStatusCode)
	return err
}

// TransmitLogs returns a page of delivery attempts for a subscription,
// newest first, plus the total count (admin usage).
func (r *SubscriptionRepository) TransmitLogs(ctx context.Context, subscriptionID int64, start, limit int) ([]models.TransmitNotificationLog, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM transmit_notification_log WHERE subscription_id_snapshot = $1",
		subscriptionID).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT transmit_notification_log_id, subscription_id_snapshot, transmit_time,
			transmit_duration_ms, notification_size_bytes, attempt, http_status_code
		 FROM transmit_notification_log WHERE subscription_id_snapshot = $1
		 ORDER BY transmit_time DESC OFFSET $2 LIMIT $3`,
		subscriptionID, start, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.TransmitNotificationLog
	for rows.Next() {
		var l models.TransmitNotificationLog
		if err := rows.Scan(&l.TransmitNotificationLogID, &l.SubscriptionIDSnapshot,
			&l.TransmitTime, &l.TransmitDurationMs, &l.NotificationSizeBytes, &l.Attempt,
			&l.HTTPStatusCode); err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, count, rows.Err()
}
