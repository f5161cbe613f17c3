//go:build integration

package messaging

import (
	"context"
	"testing"
	"time"

	"chat-notifier/internal/event"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"
)

type ConsumerIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcrabbitmq.RabbitMQContainer
	conn      *amqp.Connection
	logger    *zap.Logger
}

func (s *ConsumerIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.logger, err = zap.NewDevelopment()
	require.NoError(s.T(), err)

	s.container, err = tcrabbitmq.Run(s.ctx, "rabbitmq:3.13-management-alpine")
	require.NoError(s.T(), err, "Failed to start rabbitmq container")

	uri, err := s.container.AmqpURL(s.ctx)
	require.NoError(s.T(), err)

	s.conn, err = Dial(uri, 10, time.Second, s.logger)
	require.NoError(s.T(), err)
}

func (s *ConsumerIntegrationSuite) TearDownSuite() {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.container != nil {
		require.NoError(s.T(), testcontainers.TerminateContainer(s.container))
	}
}

func (s *ConsumerIntegrationSuite) TestConsumer_DeliversToTrigger() {
	const queue = "test.user_updates"

	handled := make(chan string, 1)
	dispatcher := &mockDispatcher{}
	dispatcher.On("DispatchTo", mock.Anything, "onUserUpdate", mock.Anything).
		Run(func(args mock.Arguments) {
			handled <- args.Get(2).(*event.Envelope).Context.EventID
		}).Return(nil).Once()

	processor := NewProcessor(s.logger, dispatcher, "onUserUpdate", 10*time.Second)
	consumer, err := NewConsumer(s.conn, s.logger, queue, 2, processor)
	s.Require().NoError(err)

	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Start() }()
	defer func() {
		consumer.Stop()
		s.Require().NoError(<-errCh)
	}()

	ch, err := s.conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()
	_, err = ch.QueueDeclare(queue, true, false, false, false, nil)
	s.Require().NoError(err)

	err = ch.PublishWithContext(s.ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         []byte(userUpdateBody),
	})
	s.Require().NoError(err)

	select {
	case id := <-handled:
		s.Equal("evt-42", id)
	case <-time.After(30 * time.Second):
		s.Fail("event was not delivered to the trigger")
	}
}

func TestConsumerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(ConsumerIntegrationSuite))
}
