package notifier

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gridserve/internal/models"
	"gridserve/internal/notify"
	"gridserve/internal/repository"
)

// Transmitter delivers rendered notifications to subscriber webhooks and
// records every attempt.
type Transmitter struct {
	client *http.Client
	subs   *repository.SubscriptionRepository
	retry  *RetryQueue
	logger *zap.Logger
	now    func() time.Time
}

// NewTransmitter builds a Transmitter with the given per-request timeout.
func NewTransmitter(subs *repository.SubscriptionRepository, retry *RetryQueue,
	timeout time.Duration, logger *zap.Logger) *Transmitter {
	return &Transmitter{
		client: &http.Client{Timeout: timeout},
		subs:   subs,
		retry:  retry,
		logger: logger,
		now:    time.Now,
	}
}

// Handle posts one notification. Delivery failures are rescheduled through
// the retry queue, so the task itself always completes.
func (t *Transmitter) Handle(ctx context.Context, task notify.TransmitTask) error {
	start := t.now()
	status := t.post(ctx, task)
	duration := t.now().Sub(start)

	log := models.TransmitNotificationLog{
		SubscriptionIDSnapshot: task.SubscriptionID,
		TransmitTime:           start,
		TransmitDurationMs:     int32(duration.Milliseconds()),
		NotificationSizeBytes:  int32(len(task.Content)),
		Attempt:                int32(task.Attempt),
		HTTPStatusCode:         int32(status),
	}
	if err := t.subs.LogTransmit(ctx, &log); err != nil {
		t.logger.Error("recording transmit attempt failed", zap.Error(err))
	}

	if status >= 200 && status < 300 {
		return nil
	}
	if status >= 300 && status < 500 {
		// Redirected or rejected outright; retrying will not change the answer.
		t.logger.Warn("notification rejected by subscriber, not retrying",
			zap.Int64("subscription_id", task.SubscriptionID),
			zap.Int("attempt", task.Attempt),
			zap.Int("status", status))
		return nil
	}
	if task.Attempt > len(retryDelays) {
		t.logger.Warn("notification dropped after final attempt",
			zap.Int64("subscription_id", task.SubscriptionID),
			zap.Int("attempt", task.Attempt),
			zap.Int("status", status))
		return nil
	}
	delay := retryDelays[task.Attempt-1]
	task.Attempt++
	if err := t.retry.Schedule(ctx, task, t.now().Add(delay)); err != nil {
		return err
	}
	t.logger.Info("notification delivery rescheduled",
		zap.Int64("subscription_id", task.SubscriptionID),
		zap.Int("attempt", task.Attempt),
		zap.Duration("delay", delay))
	return nil
}

// post performs the webhook call. Transport errors are reported as status -1.
func (t *Transmitter) post(ctx context.Context, task notify.TransmitTask) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		task.NotificationURI, bytes.NewReader(task.Content))
	if err != nil {
		t.logger.Warn("building notification request failed",
			zap.Int64("subscription_id", task.SubscriptionID), zap.Error(err))
		return -1
	}
	req.Header.Set("Content-Type", "application/sep+xml")
	if task.NotificationID != "" {
		req.Header.Set("x-notification-id", task.NotificationID)
	}
	if task.SubscriptionHref != "" {
		req.Header.Set("x-subscription-href", task.SubscriptionHref)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("notification delivery failed",
			zap.Int64("subscription_id", task.SubscriptionID), zap.Error(err))
		return -1
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode
}
