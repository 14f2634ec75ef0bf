package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// QueuePublisher is the broker surface the task publisher needs.
type QueuePublisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

// TaskPublisher enqueues notification tasks from the API processes. A nil
// publisher drops everything, which keeps tests and broker-less deployments
// simple.
type TaskPublisher struct {
	broker        QueuePublisher
	checkQueue    string
	transmitQueue string
	logger        *zap.Logger
}

// NewTaskPublisher returns a publisher over the given broker and queues.
func NewTaskPublisher(broker QueuePublisher, checkQueue, transmitQueue string, logger *zap.Logger) *TaskPublisher {
	return &TaskPublisher{broker: broker, checkQueue: checkQueue, transmitQueue: transmitQueue, logger: logger}
}

// EnqueueCheck publishes a change check for one resource class at the given
// changed_time watermark. Failures are logged, not returned: a mutation must
// not roll back because the broker is down.
func (p *TaskPublisher) EnqueueCheck(ctx context.Context, resource Resource, timestamp time.Time) {
	if p == nil || p.broker == nil {
		return
	}
	task := CheckTask{Resource: resource, Timestamp: timestamp}
	if err := p.broker.Publish(ctx, p.checkQueue, task); err != nil {
		p.logger.Error("check task publish failed",
			zap.String("resource", string(resource)),
			zap.Time("timestamp", timestamp),
			zap.Error(err))
	}
}

// EnqueueTransmit publishes a rendered notification for delivery.
func (p *TaskPublisher) EnqueueTransmit(ctx context.Context, task TransmitTask) error {
	return p.broker.Publish(ctx, p.transmitQueue, task)
}
