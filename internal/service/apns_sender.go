package service

import (
	"context"
	"fmt"

	"chat-notifier/internal/config"
	"chat-notifier/internal/models"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.uber.org/zap"
)

// APNSRejectedError - APNs принял запрос, но отказался доставлять уведомление.
type APNSRejectedError struct {
	StatusCode int
	Reason     string
	ApnsID     string
}

func (e *APNSRejectedError) Error() string {
	return fmt.Sprintf("apns rejected notification: %d %s (apns-id %s)", e.StatusCode, e.Reason, e.ApnsID)
}

type apnsClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// apnsSender доставляет сообщения напрямую в APNs, минуя FCM.
// Токены в этом режиме должны быть APNs device token, а не FCM registration token.
type apnsSender struct {
	client apnsClient
	topic  string
	logger *zap.Logger
}

// NewApnsSender creates a token-authenticated APNs client from a .p8 key.
func NewApnsSender(cfg config.APNSConfig, logger *zap.Logger) (Gateway, error) {
	if !cfg.Complete() {
		return nil, fmt.Errorf("incomplete APNS configuration (key_id, team_id, key_path, topic are required)")
	}

	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read APNS key from %s: %w", cfg.KeyPath, err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	logger.Info("APNS sender initialized",
		zap.String("key_id", cfg.KeyID),
		zap.String("team_id", cfg.TeamID),
		zap.String("topic", cfg.Topic),
		zap.Bool("production", cfg.Production),
	)
	return newApnsSender(client, cfg.Topic, logger), nil
}

func newApnsSender(client apnsClient, topic string, logger *zap.Logger) *apnsSender {
	return &apnsSender{
		client: client,
		topic:  topic,
		logger: logger.Named("apns_sender"),
	}
}

func (s *apnsSender) Send(ctx context.Context, msg *models.PushMessage) (string, error) {
	res, err := s.client.PushWithContext(ctx, buildAPNSNotification(msg, s.topic))
	if err != nil {
		return "", fmt.Errorf("apns push: %w", err)
	}
	if !res.Sent() {
		if res.Reason == apns2.ReasonUnregistered || res.Reason == apns2.ReasonBadDeviceToken {
			s.logger.Warn("APNS token is invalid or unregistered",
				zap.String("tokenPrefix", models.TokenPrefix(msg.Token)),
				zap.String("reason", res.Reason),
			)
		}
		return "", &APNSRejectedError{StatusCode: res.StatusCode, Reason: res.Reason, ApnsID: res.ApnsID}
	}
	return res.ApnsID, nil
}

func (s *apnsSender) Name() string {
	return "apns"
}

func buildAPNSNotification(msg *models.PushMessage, topic string) *apns2.Notification {
	p := payload.NewPayload().
		AlertTitle(msg.Title).
		AlertBody(msg.Body).
		Sound(msg.APNS.Sound).
		Badge(msg.APNS.Badge)

	// Данные кладем на верхний уровень payload, не в aps.
	for k, v := range msg.Data {
		p.Custom(k, v)
	}

	return &apns2.Notification{
		DeviceToken: msg.Token,
		Topic:       topic,
		Payload:     p,
		Priority:    apns2.PriorityHigh,
		PushType:    apns2.PushTypeAlert,
	}
}
