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

var siteColumnNames = []string{"site_id", "nmi", "aggregator_id", "timezone_id",
	"created_time", "changed_time", "lfdi", "sfdi", "device_category", "registration_pin"}

func TestSiteGetScopesToAggregator(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`SELECT .+ FROM site WHERE aggregator_id = \$1 AND site_id = \$2`).
		WithArgs(int64(3), int64(7)).
		WillReturnRows(sqlmock.NewRows(siteColumnNames).
			AddRow(int64(7), nil, int64(3), "Australia/Brisbane", now, now,
				"3e4f45ab31edfe5b67e343e5e4562e31984e23e5", int64(167261211391), int64(15), int64(11111)))

	repo := NewSiteRepository(db)
	site, err := repo.Get(context.Background(), 3, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), site.SiteID)
	assert.Equal(t, int64(3), site.AggregatorID)
	assert.Equal(t, "Australia/Brisbane", site.TimezoneID)
	assert.Equal(t, int64(167261211391), site.SFDI)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM site WHERE aggregator_id = \$1 AND site_id = \$2`).
		WithArgs(int64(3), int64(404)).
		WillReturnRows(sqlmock.NewRows(siteColumnNames))

	repo := NewSiteRepository(db)
	_, err = repo.Get(context.Background(), 3, 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteListReturnsCountAndPage(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	after := time.Unix(0, 0).UTC()
	mock.ExpectQuery(`SELECT count\(\*\) FROM site WHERE aggregator_id = \$1`).
		WithArgs(int64(3), after).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`SELECT .+ FROM site\s+WHERE aggregator_id = \$1 AND changed_time > \$2\s+ORDER BY sfdi`).
		WithArgs(int64(3), after, 0, 2).
		WillReturnRows(sqlmock.NewRows(siteColumnNames).
			AddRow(int64(7), nil, int64(3), "Australia/Brisbane", now, now,
				"3e4f45ab31edfe5b67e343e5e4562e31984e23e5", int64(167261211391), int64(15), int64(11111)).
			AddRow(int64(8), "6112345678", int64(3), "Australia/Sydney", now, now,
				"4e4f45ab31edfe5b67e343e5e4562e31984e23e5", int64(334384262307), int64(15), int64(22222)))

	repo := NewSiteRepository(db)
	sites, total, err := repo.List(context.Background(), 3, 0, 2, after)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, sites, 2)
	assert.Equal(t, int64(7), sites[0].SiteID)
	require.NotNil(t, sites[1].NMI)
	assert.Equal(t, "6112345678", *sites[1].NMI)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteDeleteArchivesBeforeRemoving(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	deleted := time.Unix(1700000000, 0).UTC()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO archive_site`).
		WithArgs(int64(7), deleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM site WHERE site_id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewSiteRepository(db)
	require.NoError(t, repo.Delete(context.Background(), 7, deleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteDeleteMissingRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	deleted := time.Unix(1700000000, 0).UTC()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO archive_site`).
		WithArgs(int64(404), deleted).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM site WHERE site_id = \$1`).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewSiteRepository(db)
	assert.ErrorIs(t, repo.Delete(context.Background(), 404, deleted), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteUpsertInsertsNewRegistration(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT site_id FROM site WHERE aggregator_id = \$1 AND sfdi = \$2 FOR UPDATE`).
		WithArgs(int64(3), int64(167261211391)).
		WillReturnRows(sqlmock.NewRows([]string{"site_id"}))
	mock.ExpectQuery(`INSERT INTO site`).
		WillReturnRows(sqlmock.NewRows([]string{"site_id"}).AddRow(int64(9)))
	mock.ExpectCommit()

	repo := NewSiteRepository(db)
	site := models.Site{
		AggregatorID:    3,
		TimezoneID:      "Australia/Brisbane",
		ChangedTime:     now,
		LFDI:            "3e4f45ab31edfe5b67e343e5e4562e31984e23e5",
		SFDI:            167261211391,
		DeviceCategory:  15,
		RegistrationPIN: 11111,
	}
	id, created, err := repo.Upsert(context.Background(), &site)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(9), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}
