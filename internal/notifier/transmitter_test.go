package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gridserve/internal/notify"
	"gridserve/internal/repository"
)

func TestPostSetsNotificationHeaders(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(r.Context())
		body = make([]byte, r.ContentLength)
		r.Body.Read(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tr := &Transmitter{client: srv.Client(), logger: zap.NewNop(), now: time.Now}
	status := tr.post(context.Background(), notify.TransmitTask{
		SubscriptionID:   5,
		NotificationID:   "b6e5a1ac-9d53-4f09-9f22-91c6fcb1f7d1",
		SubscriptionHref: "/edev/7/sub/5",
		NotificationURI:  srv.URL + "/hook",
		Content:          []byte("<Notification/>"),
		Attempt:          1,
	})

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "application/sep+xml", got.Header.Get("Content-Type"))
	assert.Equal(t, "b6e5a1ac-9d53-4f09-9f22-91c6fcb1f7d1", got.Header.Get("x-notification-id"))
	assert.Equal(t, "/edev/7/sub/5", got.Header.Get("x-subscription-href"))
	assert.Equal(t, "<Notification/>", string(body))
}

func TestPostReportsTransportErrors(t *testing.T) {
	tr := &Transmitter{
		client: &http.Client{Timeout: 100 * time.Millisecond},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	status := tr.post(context.Background(), notify.TransmitTask{
		NotificationURI: "http://127.0.0.1:1/hook",
		Content:         []byte("<Notification/>"),
	})
	assert.Equal(t, -1, status)
}

// deadRetryQueue returns a RetryQueue whose redis is unreachable, so any
// Schedule call surfaces a dial error.
func deadRetryQueue() *RetryQueue {
	return NewRetryQueue(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
}

func TestHandleDropsRejectedDeliveries(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	mock.ExpectExec(`INSERT INTO transmit_notification_log`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tr := &Transmitter{
		client: srv.Client(),
		subs:   repository.NewSubscriptionRepository(db),
		retry:  deadRetryQueue(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	err = tr.Handle(context.Background(), notify.TransmitTask{
		SubscriptionID:  9,
		NotificationURI: srv.URL + "/hook",
		Content:         []byte("<Notification/>"),
		Attempt:         1,
	})

	// A 4xx answer is a rejection: logged, never parked for retry.
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleReschedulesServerErrors(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	mock.ExpectExec(`INSERT INTO transmit_notification_log`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tr := &Transmitter{
		client: srv.Client(),
		subs:   repository.NewSubscriptionRepository(db),
		retry:  deadRetryQueue(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	err = tr.Handle(context.Background(), notify.TransmitTask{
		SubscriptionID:  9,
		NotificationURI: srv.URL + "/hook",
		Content:         []byte("<Notification/>"),
		Attempt:         1,
	})

	// 5xx goes to the retry queue; the dead redis proves Schedule was hit.
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryDelaysEscalate(t *testing.T) {
	assert.Equal(t, []time.Duration{
		10 * time.Second, 100 * time.Second, 300 * time.Second, 30 * time.Minute,
	}, retryDelays)
}
