package repository

import (
	"context"
	"database/sql"
	"time"

	"gridserve/internal/models"
)

// RuntimeConfigRepository stores the single row of operator tunable server
// config (poll rates and the device registration switch).
type RuntimeConfigRepository struct {
	db *sql.DB
}

// NewRuntimeConfigRepository returns repository.
func NewRuntimeConfigRepository(db *sql.DB) *RuntimeConfigRepository {
	return &RuntimeConfigRepository{db: db}
}

// Get returns the stored config. A missing row yields the zero value so
// callers always see defaults.
func (r *RuntimeConfigRepository) Get(ctx context.Context) (*models.RuntimeServerConfig, error) {
	var c models.RuntimeServerConfig
	err := r.db.QueryRowContext(ctx,
		`SELECT created_time, changed_time, dcap_pollrate_seconds, edevl_pollrate_seconds,
			fsal_pollrate_seconds, derpl_pollrate_seconds, derl_pollrate_seconds,
			mup_postrate_seconds, site_control_pow10_encoding, disable_edev_registration
		 FROM runtime_server_config WHERE runtime_server_config_id = 1`).
		Scan(&c.CreatedTime, &c.ChangedTime, &c.DcapPollrateSeconds, &c.EdevlPollrateSeconds,
			&c.FsalPollrateSeconds, &c.DerplPollrateSeconds, &c.DerlPollrateSeconds,
			&c.MupPostrateSeconds, &c.SiteControlPow10Encoding, &c.DisableEdevRegistration)
	if err == sql.ErrNoRows {
		return &models.RuntimeServerConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Update merges the non-nil fields into the stored row, creating it on first
// write.
func (r *RuntimeConfigRepository) Update(ctx context.Context, c *models.RuntimeServerConfig, changedTime time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runtime_server_config (runtime_server_config_id, changed_time,
			dcap_pollrate_seconds, edevl_pollrate_seconds, fsal_pollrate_seconds,
			derpl_pollrate_seconds, derl_pollrate_seconds, mup_postrate_seconds,
			site_control_pow10_encoding, disable_edev_registration)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (runtime_server_config_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			dcap_pollrate_seconds = COALESCE(EXCLUDED.dcap_pollrate_seconds, runtime_server_config.dcap_pollrate_seconds),
			edevl_pollrate_seconds = COALESCE(EXCLUDED.edevl_pollrate_seconds, runtime_server_config.edevl_pollrate_seconds),
			fsal_pollrate_seconds = COALESCE(EXCLUDED.fsal_pollrate_seconds, runtime_server_config.fsal_pollrate_seconds),
			derpl_pollrate_seconds = COALESCE(EXCLUDED.derpl_pollrate_seconds, runtime_server_config.derpl_pollrate_seconds),
			derl_pollrate_seconds = COALESCE(EXCLUDED.derl_pollrate_seconds, runtime_server_config.derl_pollrate_seconds),
			mup_postrate_seconds = COALESCE(EXCLUDED.mup_postrate_seconds, runtime_server_config.mup_postrate_seconds),
			site_control_pow10_encoding = COALESCE(EXCLUDED.site_control_pow10_encoding, runtime_server_config.site_control_pow10_encoding),
			disable_edev_registration = COALESCE(EXCLUDED.disable_edev_registration, runtime_server_config.disable_edev_registration)`,
		changedTime, c.DcapPollrateSeconds, c.EdevlPollrateSeconds, c.FsalPollrateSeconds,
		c.DerplPollrateSeconds, c.DerlPollrateSeconds, c.MupPostrateSeconds,
		c.SiteControlPow10Encoding, c.DisableEdevRegistration)
	return err
}
