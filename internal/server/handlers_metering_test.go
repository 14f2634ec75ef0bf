package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gridserve/internal/auth"
	"gridserve/internal/notify"
	"gridserve/internal/repository"
)

var readingTypeColumns = []string{"site_reading_type_id", "aggregator_id", "site_id", "mrid",
	"group_id", "group_mrid", "uom", "data_qualifier", "flow_direction",
	"accumulation_behaviour", "kind", "phase", "power_of_ten_multiplier",
	"default_interval_seconds", "role_flags", "description", "group_description",
	"created_time", "changed_time"}

func readingTypeRow(now time.Time, siteID, groupID int64) *sqlmock.Rows {
	return sqlmock.NewRows(readingTypeColumns).
		AddRow(int64(31), int64(0), siteID, "10f65a2b391c4f2a9d0a1b2c3d4e5f60", groupID,
			"22f65a2b391c4f2a9d0a1b2c3d4e5f60", int64(38), int64(0), int64(1), int64(3),
			int64(37), int64(0), int64(0), int64(300), int64(0), nil, nil, now, now)
}

// checkRecorder captures notification check tasks published by a handler.
type checkRecorder struct {
	queues []string
	tasks  []notify.CheckTask
}

func (c *checkRecorder) Publish(_ context.Context, queue string, payload any) error {
	c.queues = append(c.queues, queue)
	if task, ok := payload.(notify.CheckTask); ok {
		c.tasks = append(c.tasks, task)
	}
	return nil
}

func TestMirrorUsagePointListScopedToDeviceSite(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	after := time.Unix(0, 0).UTC()

	// A device cert browses only its own site's usage points.
	mock.ExpectQuery(`SELECT count\(DISTINCT group_id\) FROM site_reading_type`).
		WithArgs(int64(0), int64(7), after).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`site_reading_type_id IN`).
		WithArgs(int64(0), int64(7), after, 0, 5).
		WillReturnRows(readingTypeRow(now, 7, 2))
	mock.ExpectQuery(`FROM runtime_server_config`).
		WillReturnRows(emptyRuntimeConfigRow(now))
	mock.ExpectQuery(`WHERE aggregator_id = \$1 AND group_id = \$2`).
		WithArgs(int64(0), int64(2)).
		WillReturnRows(readingTypeRow(now, 7, 2))
	mock.ExpectQuery(`FROM site WHERE site_id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"site_id", "nmi", "aggregator_id",
			"timezone_id", "created_time", "changed_time", "lfdi", "sfdi",
			"device_category", "registration_pin"}).
			AddRow(int64(7), nil, int64(0), "Australia/Brisbane", now, now,
				"3e4f45ab31edfe5b67e343e5e4562e31984e23e5", int64(167261211391), int64(0), int64(11111)))

	h := &MeteringHandlers{
		sites:    repository.NewSiteRepository(db),
		readings: repository.NewReadingRepository(db),
		runtime:  repository.NewRuntimeConfigRepository(db),
		hrefs:    Hrefs{},
		logger:   zap.NewNop(),
		now:      func() time.Time { return now },
	}

	r := httptest.NewRequest("GET", "/mup?l=5", nil)
	r = r.WithContext(auth.WithScope(r.Context(), &auth.Scope{DeviceCert: true, SiteID: 7}))
	w := httptest.NewRecorder()
	h.List(w, r)

	assert.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `all="1"`)
	assert.Contains(t, body, "<deviceLFDI>3e4f45ab31edfe5b67e343e5e4562e31984e23e5</deviceLFDI>")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorUsagePointDeleteNotifiesReadingSubscribers(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`WHERE aggregator_id = \$1 AND group_id = \$2`).
		WithArgs(int64(3), int64(2)).
		WillReturnRows(readingTypeRow(now, 7, 2))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO archive_site_reading_type`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM site_reading_type WHERE aggregator_id = \$1 AND group_id = \$2`).
		WithArgs(int64(3), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := &checkRecorder{}
	h := &MeteringHandlers{
		readings:  repository.NewReadingRepository(db),
		publisher: notify.NewTaskPublisher(rec, "notify.check", "notify.transmit", zap.NewNop()),
		logger:    zap.NewNop(),
		now:       func() time.Time { return now },
	}

	r := httptest.NewRequest("DELETE", "/mup/2", nil)
	r.SetPathValue("mup", "2")
	r = r.WithContext(auth.WithScope(r.Context(), &auth.Scope{AggregatorID: 3}))
	w := httptest.NewRecorder()
	h.Delete(w, r)

	assert.Equal(t, 204, w.Code)
	require.Len(t, rec.tasks, 1)
	assert.Equal(t, notify.ResourceReadings, rec.tasks[0].Resource)
	assert.Equal(t, now.Truncate(time.Microsecond), rec.tasks[0].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorUsagePointCreateOutsideScopeForbidden(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	otherLFDI := "aaaa45ab31edfe5b67e343e5e4562e31984e23e5"
	mock.ExpectQuery(`FROM site WHERE aggregator_id = \$1 AND lfdi = \$2`).
		WithArgs(int64(0), otherLFDI).
		WillReturnRows(sqlmock.NewRows([]string{"site_id", "nmi", "aggregator_id",
			"timezone_id", "created_time", "changed_time", "lfdi", "sfdi",
			"device_category", "registration_pin"}).
			AddRow(int64(9), nil, int64(0), "Australia/Brisbane", now, now,
				otherLFDI, int64(99), int64(0), int64(22222)))

	h := &MeteringHandlers{
		sites:  repository.NewSiteRepository(db),
		logger: zap.NewNop(),
		now:    func() time.Time { return now },
	}

	body := `<MirrorUsagePoint xmlns="urn:ieee:std:2030.5:ns">` +
		`<mRID>10f65a2b391c4f2a9d0a1b2c3d4e5f60</mRID>` +
		`<deviceLFDI>` + otherLFDI + `</deviceLFDI>` +
		`<roleFlags>03</roleFlags><serviceCategoryKind>0</serviceCategoryKind><status>0</status>` +
		`</MirrorUsagePoint>`
	r := httptest.NewRequest("POST", "/mup", strings.NewReader(body))
	r = r.WithContext(auth.WithScope(r.Context(), &auth.Scope{DeviceCert: true, SiteID: 7}))
	w := httptest.NewRecorder()
	h.Create(w, r)

	// Naming another device's LFDI is a scope violation, not a bad request.
	assert.Equal(t, 403, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
