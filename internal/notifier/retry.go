package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gridserve/internal/notify"
)

const retryKey = "notify:retry"

// retryDelays spaces delivery attempts out. A notification is dropped after
// the last delay is exhausted.
var retryDelays = []time.Duration{10 * time.Second, 100 * time.Second, 300 * time.Second, 30 * time.Minute}

// RetryQueue parks failed transmit tasks in a redis sorted set scored by
// their due time.
type RetryQueue struct {
	client *redis.Client
}

// NewRetryQueue wraps the shared redis client.
func NewRetryQueue(client *redis.Client) *RetryQueue {
	return &RetryQueue{client: client}
}

// Schedule parks the task until dueAt.
func (q *RetryQueue) Schedule(ctx context.Context, task notify.TransmitTask, dueAt time.Time) error {
	member, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("retry: marshal: %w", err)
	}
	return q.client.ZAdd(ctx, retryKey, redis.Z{
		Score:  float64(dueAt.Unix()),
		Member: string(member),
	}).Err()
}

// Due pops every task whose due time has passed.
func (q *RetryQueue) Due(ctx context.Context, now time.Time) ([]notify.TransmitTask, error) {
	members, err := q.client.ZRangeByScore(ctx, retryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	var tasks []notify.TransmitTask
	for _, member := range members {
		if err := q.client.ZRem(ctx, retryKey, member).Err(); err != nil {
			return nil, err
		}
		var task notify.TransmitTask
		if err := json.Unmarshal([]byte(member), &task); err != nil {
			// Unreadable members are dropped rather than wedging the queue.
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
