package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"gridserve/internal/notify"
)

func TestRequeueDueParksFailedPublishes(t *testing.T) {
	tasks := []notify.TransmitTask{
		{SubscriptionID: 1},
		{SubscriptionID: 2},
		{SubscriptionID: 3},
	}
	var published, parked []int64
	publish := func(_ context.Context, task notify.TransmitTask) error {
		if task.SubscriptionID == 2 {
			return errors.New("channel closed")
		}
		published = append(published, task.SubscriptionID)
		return nil
	}
	park := func(_ context.Context, task notify.TransmitTask) error {
		parked = append(parked, task.SubscriptionID)
		return nil
	}

	requeueDue(context.Background(), tasks, publish, park, zap.NewNop())

	assert.Equal(t, []int64{1, 3}, published)
	assert.Equal(t, []int64{2}, parked)
}
