package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gridserve/internal/auth"
	"gridserve/internal/repository"
)

var runtimeConfigColumns = []string{"created_time", "changed_time", "dcap_pollrate_seconds",
	"edevl_pollrate_seconds", "fsal_pollrate_seconds", "derpl_pollrate_seconds",
	"derl_pollrate_seconds", "mup_postrate_seconds", "site_control_pow10_encoding",
	"disable_edev_registration"}

func emptyRuntimeConfigRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(runtimeConfigColumns).
		AddRow(now, now, nil, nil, nil, nil, nil, nil, nil, nil)
}

func TestTimeResource(t *testing.T) {
	h := &DeviceHandlers{
		hrefs:  Hrefs{},
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Unix(1700000000, 0).UTC() },
	}

	r := httptest.NewRequest("GET", "/tm", nil)
	w := httptest.NewRecorder()
	h.Time(w, r)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "application/sep+xml", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, `href="/tm"`)
	assert.Contains(t, body, "<currentTime>1700000000</currentTime>")
	assert.Contains(t, body, "<quality>4</quality>")
}

func TestEndDeviceListForAggregator(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	after := time.Unix(0, 0).UTC()
	mock.ExpectQuery(`SELECT count\(\*\) FROM site WHERE aggregator_id = \$1`).
		WithArgs(int64(3), after).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM site\s+WHERE aggregator_id = \$1`).
		WithArgs(int64(3), after, 0, 5).
		WillReturnRows(sqlmock.NewRows([]string{"site_id", "nmi", "aggregator_id",
			"timezone_id", "created_time", "changed_time", "lfdi", "sfdi",
			"device_category", "registration_pin"}).
			AddRow(int64(7), nil, int64(3), "Australia/Brisbane", now, now,
				"3e4f45ab31edfe5b67e343e5e4562e31984e23e5", int64(167261211391), int64(15), int64(11111)))
	mock.ExpectQuery(`FROM runtime_server_config`).
		WillReturnRows(emptyRuntimeConfigRow(now))

	h := &DeviceHandlers{
		sites:   repository.NewSiteRepository(db),
		runtime: repository.NewRuntimeConfigRepository(db),
		hrefs:   Hrefs{},
		logger:  zap.NewNop(),
		now:     func() time.Time { return now },
	}

	r := httptest.NewRequest("GET", "/edev?l=5", nil)
	r = r.WithContext(auth.WithScope(r.Context(), &auth.Scope{AggregatorID: 3}))
	w := httptest.NewRecorder()
	h.EndDeviceList(w, r)

	assert.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `all="1"`)
	assert.Contains(t, body, `results="1"`)
	assert.Contains(t, body, "<sFDI>167261211391</sFDI>")
	assert.Contains(t, body, `href="/edev/7"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndDeviceListWithoutScopeFails(t *testing.T) {
	h := &DeviceHandlers{logger: zap.NewNop()}
	r := httptest.NewRequest("GET", "/edev", nil)
	w := httptest.NewRecorder()
	h.EndDeviceList(w, r)
	assert.Equal(t, 500, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "internal server error"))
}
