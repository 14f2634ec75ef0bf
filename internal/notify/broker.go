package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Broker is a thin AMQP wrapper for the notification task queues.
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
}

// NewBroker dials the AMQP server and declares the given queues.
func NewBroker(url string, queues []string, logger *zap.Logger) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("broker: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker: channel: %w", err)
	}
	for _, queue := range queues {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("broker: declare %s: %w", queue, err)
		}
	}
	return &Broker{conn: conn, channel: ch, logger: logger}, nil
}

// Publish marshals the payload to JSON and enqueues it.
func (b *Broker) Publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broker: marshal: %w", err)
	}
	return b.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume returns the delivery stream for a queue. Deliveries must be acked
// or nacked by the caller.
func (b *Broker) Consume(queue string) (<-chan amqp.Delivery, error) {
	if err := b.channel.Qos(8, 0, false); err != nil {
		return nil, fmt.Errorf("broker: qos: %w", err)
	}
	deliveries, err := b.channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("broker: consume %s: %w", queue, err)
	}
	return deliveries, nil
}

// Close tears down the channel and connection.
func (b *Broker) Close() {
	if err := b.channel.Close(); err != nil {
		b.logger.Warn("broker channel close failed", zap.Error(err))
	}
	if err := b.conn.Close(); err != nil {
		b.logger.Warn("broker connection close failed", zap.Error(err))
	}
}
