package notifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gridserve/internal/cache"
	"gridserve/internal/config"
	"gridserve/internal/notify"
	"gridserve/internal/postgres"
	"gridserve/internal/repository"
	"gridserve/internal/server"
)

// App is the notification worker: one consumer per task queue plus the
// retry poller, all running until the context is cancelled.
type App struct {
	cfg         *config.Notifier
	db          *sql.DB
	redisClient *redis.Client
	broker      *notify.Broker
	checker     *Checker
	transmitter *Transmitter
	retryQueue  *RetryQueue
	publisher   *notify.TaskPublisher
	logger      *zap.Logger
}

// New connects the worker's backing services and wires the pipeline.
func New(cfg *config.Notifier, logger *zap.Logger) (*App, error) {
	cfg.Defaulted()

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		db.Close()
		return nil, err
	}
	broker, err := notify.NewBroker(cfg.Broker.URL, []string{cfg.Broker.CheckQueue, cfg.Broker.TransmitQueue}, logger)
	if err != nil {
		redisClient.Close()
		db.Close()
		return nil, err
	}

	publisher := notify.NewTaskPublisher(broker, cfg.Broker.CheckQueue, cfg.Broker.TransmitQueue, logger)
	runtime := repository.NewRuntimeConfigRepository(db)

	pow10 := int32(-2)
	if rc, err := runtime.Get(context.Background()); err == nil {
		if rc.SiteControlPow10Encoding != nil {
			pow10 = *rc.SiteControlPow10Encoding
		}
	} else {
		logger.Warn("runtime config unavailable, using default power encoding", zap.Error(err))
	}

	hrefs := server.Hrefs{Prefix: cfg.HrefPrefix}
	checker := NewChecker(
		repository.NewSiteRepository(db),
		repository.NewControlGroupRepository(db),
		repository.NewDOERepository(db),
		repository.NewDefaultControlRepository(db),
		repository.NewTariffRepository(db),
		repository.NewDERRepository(db),
		repository.NewReadingRepository(db),
		repository.NewSubscriptionRepository(db),
		publisher, hrefs, pow10, logger,
	)
	retryQueue := NewRetryQueue(redisClient)
	transmitter := NewTransmitter(repository.NewSubscriptionRepository(db), retryQueue,
		cfg.TransmitTimeout, logger)

	return &App{
		cfg:         cfg,
		db:          db,
		redisClient: redisClient,
		broker:      broker,
		checker:     checker,
		transmitter: transmitter,
		retryQueue:  retryQueue,
		publisher:   publisher,
		logger:      logger,
	}, nil
}

// Run consumes both queues and polls the retry set until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	checks, err := a.broker.Consume(a.cfg.Broker.CheckQueue)
	if err != nil {
		return err
	}
	transmits, err := a.broker.Consume(a.cfg.Broker.TransmitQueue)
	if err != nil {
		return err
	}

	a.logger.Info("notification worker started",
		zap.String("check_queue", a.cfg.Broker.CheckQueue),
		zap.String("transmit_queue", a.cfg.Broker.TransmitQueue))

	ticker := time.NewTicker(a.cfg.RetryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-checks:
			if !ok {
				return context.Canceled
			}
			a.handleCheck(ctx, delivery)
		case delivery, ok := <-transmits:
			if !ok {
				return context.Canceled
			}
			a.handleTransmit(ctx, delivery)
		case now := <-ticker.C:
			a.pollRetries(ctx, now)
		}
	}
}

func (a *App) handleCheck(ctx context.Context, delivery amqp.Delivery) {
	var task notify.CheckTask
	if err := json.Unmarshal(delivery.Body, &task); err != nil {
		a.logger.Warn("discarding malformed check task", zap.Error(err))
		delivery.Nack(false, false)
		return
	}
	if err := a.checker.Handle(ctx, task); err != nil {
		a.logger.Error("check task failed",
			zap.String("resource", string(task.Resource)),
			zap.Time("timestamp", task.Timestamp),
			zap.Error(err))
		delivery.Nack(false, true)
		return
	}
	delivery.Ack(false)
}

func (a *App) handleTransmit(ctx context.Context, delivery amqp.Delivery) {
	var task notify.TransmitTask
	if err := json.Unmarshal(delivery.Body, &task); err != nil {
		a.logger.Warn("discarding malformed transmit task", zap.Error(err))
		delivery.Nack(false, false)
		return
	}
	if err := a.transmitter.Handle(ctx, task); err != nil {
		a.logger.Error("transmit task failed",
			zap.Int64("subscription_id", task.SubscriptionID),
			zap.Error(err))
		delivery.Nack(false, true)
		return
	}
	delivery.Ack(false)
}

// pollRetries requeues any parked transmissions that have come due.
func (a *App) pollRetries(ctx context.Context, now time.Time) {
	tasks, err := a.retryQueue.Due(ctx, now)
	if err != nil {
		a.logger.Error("retry poll failed", zap.Error(err))
		return
	}
	requeueDue(ctx, tasks, a.publisher.EnqueueTransmit,
		func(ctx context.Context, task notify.TransmitTask) error {
			return a.retryQueue.Schedule(ctx, task, now.Add(a.cfg.RetryPollInterval))
		}, a.logger)
}

// requeueDue publishes due retries back onto the transmit queue. A task whose
// publish fails is parked again rather than lost.
func requeueDue(ctx context.Context, tasks []notify.TransmitTask,
	publish func(context.Context, notify.TransmitTask) error,
	park func(context.Context, notify.TransmitTask) error, logger *zap.Logger) {
	for _, task := range tasks {
		if err := publish(ctx, task); err != nil {
			logger.Error("requeueing retry failed",
				zap.Int64("subscription_id", task.SubscriptionID), zap.Error(err))
			if err := park(ctx, task); err != nil {
				logger.Error("re-parking retry failed",
					zap.Int64("subscription_id", task.SubscriptionID), zap.Error(err))
			}
		}
	}
}

// Close releases the worker's connections.
func (a *App) Close() {
	a.broker.Close()
	if err := a.redisClient.Close(); err != nil {
		a.logger.Warn("redis close failed", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("database close failed", zap.Error(err))
	}
}
