package service

import (
	"context"

	"chat-notifier/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// stubSender only logs. Used for local runs against the Firestore emulator.
type stubSender struct {
	logger *zap.Logger
}

func NewStubSender(logger *zap.Logger) Gateway {
	return &stubSender{logger: logger.Named("stub_sender")}
}

func (s *stubSender) Send(ctx context.Context, msg *models.PushMessage) (string, error) {
	id := "stub-" + uuid.NewString()
	s.logger.Info("STUB: push message",
		zap.String("message_id", id),
		zap.String("tokenPrefix", models.TokenPrefix(msg.Token)),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Any("data", msg.Data),
	)
	return id, nil
}

func (s *stubSender) Name() string {
	return "stub"
}
