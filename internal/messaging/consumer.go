package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-notifier/internal/event"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// EventDispatcher передает декодированное событие зарегистрированному триггеру.
type EventDispatcher interface {
	DispatchTo(ctx context.Context, trigger string, env *event.Envelope) error
}

// Consumer reads Firestore document events for one trigger from one queue and
// hands them to a pool of workers.
type Consumer struct {
	conn        *amqp.Connection
	logger      *zap.Logger
	queueName   string
	concurrency int
	processor   *Processor
	stopChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewConsumer(conn *amqp.Connection, logger *zap.Logger, queueName string, concurrency int, processor *Processor) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("RabbitMQ connection is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}
	return &Consumer{
		conn:        conn,
		logger:      logger.Named("consumer").With(zap.String("queue", queueName), zap.String("trigger", processor.trigger)),
		queueName:   queueName,
		concurrency: concurrency,
		processor:   processor,
		stopChannel: make(chan struct{}),
	}, nil
}

// Start blocks until Stop is called or the delivery channel closes.
func (c *Consumer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", c.queueName, err)
	}

	// Не больше concurrency неподтвержденных сообщений на консьюмера.
	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"chat-notifier-"+c.processor.trigger,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started", zap.Int("concurrency", c.concurrency))

	done := make(chan struct{})
	c.wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer c.wg.Done()
			logger := c.logger.With(zap.Int("worker_id", workerID))
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						logger.Info("Delivery channel closed, worker exiting")
						return
					}
					c.processor.ProcessMessage(ctx, d)
				}
			}
		}(i)
	}
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-c.stopChannel:
		c.logger.Info("Stop requested, cancelling workers")
		cancel()
		<-done
	case <-done:
		c.logger.Warn("All workers exited before Stop")
	}

	c.logger.Info("Consumer stopped")
	return nil
}

// Stop is safe to call more than once.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChannel)
	})
}

// Processor decodes one delivery and acks or nacks it.
type Processor struct {
	logger     *zap.Logger
	dispatcher EventDispatcher
	trigger    string
	timeout    time.Duration
}

// NewProcessor builds a processor for one trigger. timeout bounds the handling
// of one message; zero disables it.
func NewProcessor(logger *zap.Logger, dispatcher EventDispatcher, trigger string, timeout time.Duration) *Processor {
	return &Processor{
		logger:     logger.Named("processor").With(zap.String("trigger", trigger)),
		dispatcher: dispatcher,
		trigger:    trigger,
		timeout:    timeout,
	}
}

// ProcessMessage acks on success. Malformed events and handler errors are
// nacked without requeue: handler errors are not retried here.
func (p *Processor) ProcessMessage(ctx context.Context, d amqp.Delivery) {
	log := p.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag))

	env, err := event.Decode(d.Body)
	if err != nil {
		log.Error("Failed to decode event", zap.Error(err), zap.ByteString("body", d.Body))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("Failed to nack message after decode error", zap.Error(nackErr))
		}
		return
	}
	log = log.With(zap.String("event_id", env.Context.EventID))

	processCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		processCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.dispatcher.DispatchTo(processCtx, p.trigger, env); err != nil {
		log.Error("Event handling failed", zap.Error(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("Failed to nack message after handler error", zap.Error(nackErr))
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		log.Error("Failed to ack message", zap.Error(ackErr))
		return
	}
	log.Debug("Event handled and acked")
}
