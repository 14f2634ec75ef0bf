package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridserve/internal/models"
)

var doeColumnNames = []string{"dynamic_operating_envelope_id", "site_control_group_id",
	"site_id", "calculation_log_id", "created_time", "changed_time", "start_time",
	"duration_seconds", "randomize_start_seconds", "import_limit_active_watts",
	"export_limit_active_watts", "generation_limit_active_watts", "load_limit_active_watts",
	"set_energized", "set_connected", "end_time"}

func TestDOEListForSiteExcludesEnded(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	after := time.Unix(0, 0).UTC()
	mock.ExpectQuery(`SELECT count\(\*\) FROM dynamic_operating_envelope`).
		WithArgs(int64(2), int64(7), now, after).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM dynamic_operating_envelope\s+WHERE site_control_group_id = \$1 AND site_id = \$2 AND end_time > \$3`).
		WithArgs(int64(2), int64(7), now, after, 0, 10).
		WillReturnRows(sqlmock.NewRows(doeColumnNames).
			AddRow(int64(9), int64(2), int64(7), nil, now, now, now.Add(time.Minute),
				int64(300), nil, 1500.0, nil, nil, nil, nil, nil, now.Add(6*time.Minute)))

	repo := NewDOERepository(db)
	does, total, err := repo.ListForSite(context.Background(), 2, 7, now, 0, 10, after)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, does, 1)
	assert.Equal(t, int64(9), does[0].DynamicOperatingEnvelopeID)
	require.NotNil(t, does[0].ImportLimitActiveWatts)
	assert.Equal(t, 1500.0, *does[0].ImportLimitActiveWatts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDOEDeleteRangeScopesToSiteWhenGiven(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	periodStart := time.Unix(1700000000, 0).UTC()
	periodEnd := periodStart.Add(time.Hour)
	deleted := periodEnd.Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO archive_dynamic_operating_envelope`).
		WithArgs(int64(2), periodStart, periodEnd, int64(7), deleted).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM dynamic_operating_envelope WHERE site_control_group_id = \$1 AND start_time >= \$2 AND start_time < \$3 AND site_id = \$4`).
		WithArgs(int64(2), periodStart, periodEnd, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	repo := NewDOERepository(db)
	n, err := repo.DeleteRange(context.Background(), 2, 7, periodStart, periodEnd, deleted)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDOEDeleteRangeZeroSiteMatchesAllSites(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	periodStart := time.Unix(1700000000, 0).UTC()
	periodEnd := periodStart.Add(time.Hour)
	deleted := periodEnd.Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO archive_dynamic_operating_envelope`).
		WithArgs(int64(2), periodStart, periodEnd, deleted).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(`DELETE FROM dynamic_operating_envelope WHERE site_control_group_id = \$1 AND start_time >= \$2 AND start_time < \$3$`).
		WithArgs(int64(2), periodStart, periodEnd).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	repo := NewDOERepository(db)
	n, err := repo.DeleteRange(context.Background(), 2, 0, periodStart, periodEnd, deleted)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDOEUpsertManyArchivesReplacedRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	changed := time.Unix(1700000000, 0).UTC()
	start := changed.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO archive_dynamic_operating_envelope`).
		WithArgs(int64(2), start, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO dynamic_operating_envelope`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewDOERepository(db)
	imp := 4000.0
	err = repo.UpsertMany(context.Background(), []models.DynamicOperatingEnvelope{{
		SiteControlGroupID:     2,
		SiteID:                 7,
		StartTime:              start,
		DurationSeconds:        300,
		ImportLimitActiveWatts: &imp,
	}}, changed)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDOEUpsertManyEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDOERepository(db)
	require.NoError(t, repo.UpsertMany(context.Background(), nil, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
