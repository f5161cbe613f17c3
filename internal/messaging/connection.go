package messaging

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Dial подключается к RabbitMQ, повторяя попытки: брокер в docker-compose
// часто стартует позже сервиса.
func Dial(uri string, maxRetries int, retryDelay time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(uri)
		if err == nil {
			logger.Info("Connected to RabbitMQ")
			go watchClose(conn, logger)
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ, retrying",
			zap.Error(err),
			zap.Int("attempt", i+1),
			zap.Duration("delay", retryDelay),
		)
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

func watchClose(conn *amqp.Connection, logger *zap.Logger) {
	closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if closeErr != nil {
		logger.Error("RabbitMQ connection lost", zap.Error(closeErr))
	}
}
