package auth

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/repository"
)

func TestIdentifyRawLFDI(t *testing.T) {
	m := &CertMiddleware{}
	lfdi, expiry, ok := m.identify("  3E4F45AB31EDFE5B67E343E5E4562E31984E23E5  ")
	require.True(t, ok)
	assert.Equal(t, "3e4f45ab31edfe5b67e343e5e4562e31984e23e5", lfdi)
	assert.Nil(t, expiry)
}

func TestIdentifyFingerprint(t *testing.T) {
	m := &CertMiddleware{}
	fingerprint := "3e4f45ab31edfe5b67e343e5e4562e31984e23e5" + strings.Repeat("ab", 12)
	lfdi, expiry, ok := m.identify(fingerprint)
	require.True(t, ok)
	assert.Equal(t, "3e4f45ab31edfe5b67e343e5e4562e31984e23e5", lfdi)
	assert.Nil(t, expiry)
}

func TestResolveScopeUnknownCertMatchesSiteBySFDI(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	lfdi := "3e4f45ab31edfe5b67e343e5e4562e31984e23e5"
	sfdi := int64(167261211391)
	now := time.Now().UTC().Truncate(time.Microsecond)

	// No aggregator holds this certificate.
	mock.ExpectQuery(`FROM certificate c`).
		WithArgs(lfdi).
		WillReturnError(sql.ErrNoRows)
	// Device registration falls back to the site registered with this SFDI.
	mock.ExpectQuery(`FROM site WHERE aggregator_id = \$1 AND sfdi = \$2`).
		WithArgs(models.NullAggregatorID, sfdi).
		WillReturnRows(sqlmock.NewRows([]string{"site_id", "nmi", "aggregator_id",
			"timezone_id", "created_time", "changed_time", "lfdi", "sfdi",
			"device_category", "registration_pin"}).
			AddRow(int64(42), nil, models.NullAggregatorID, "Australia/Brisbane",
				now, now, lfdi, sfdi, int64(0), int64(11111)))

	m := &CertMiddleware{
		Registry: NewRegistry(repository.NewCertificateRepository(db),
			redis.NewClient(&redis.Options{
				Addr:        "127.0.0.1:1",
				DialTimeout: 100 * time.Millisecond,
				MaxRetries:  -1,
			}), time.Minute, zap.NewNop()),
		Sites:                   repository.NewSiteRepository(db),
		AllowDeviceRegistration: true,
		Logger:                  zap.NewNop(),
	}

	r := httptest.NewRequest(http.MethodGet, "/edev", nil)
	scope, status := m.resolveScope(r, lfdi, sfdi)
	require.NotNil(t, scope)
	assert.Equal(t, 0, status)
	assert.True(t, scope.DeviceCert)
	assert.Equal(t, int64(42), scope.SiteID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentifyRejectsGarbage(t *testing.T) {
	m := &CertMiddleware{}
	for _, raw := range []string{
		"",
		"not-a-cert",
		"3e4f45ab",
		"-----BEGIN CERTIFICATE-----\nnot base64!\n-----END CERTIFICATE-----",
	} {
		_, _, ok := m.identify(raw)
		assert.False(t, ok, "raw %q", raw)
	}
}
