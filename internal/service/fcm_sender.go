package service

import (
	"context"
	"fmt"

	"chat-notifier/internal/models"

	fcm "firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// fcmClient - подмножество *messaging.Client, нужное для отправки (для тестов).
type fcmClient interface {
	Send(ctx context.Context, message *fcm.Message) (string, error)
}

type fcmSender struct {
	client fcmClient
	logger *zap.Logger
}

func NewFCMSender(client fcmClient, logger *zap.Logger) Gateway {
	logger.Info("FCM sender initialized")
	return &fcmSender{
		client: client,
		logger: logger.Named("fcm_sender"),
	}
}

// Send delivers one message. The returned ID has the form
// "projects/{project}/messages/{id}".
func (s *fcmSender) Send(ctx context.Context, msg *models.PushMessage) (string, error) {
	id, err := s.client.Send(ctx, toFCMMessage(msg))
	if err != nil {
		if fcm.IsUnregistered(err) || fcm.IsSenderIDMismatch(err) {
			s.logger.Warn("FCM token is invalid or unregistered",
				zap.String("tokenPrefix", models.TokenPrefix(msg.Token)),
				zap.Error(err),
			)
		}
		return "", fmt.Errorf("fcm send: %w", err)
	}
	return id, nil
}

func (s *fcmSender) Name() string {
	return "fcm"
}

func toFCMMessage(msg *models.PushMessage) *fcm.Message {
	badge := msg.APNS.Badge
	return &fcm.Message{
		Token: msg.Token,
		Notification: &fcm.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &fcm.AndroidConfig{
			Priority: msg.Android.Priority,
			Notification: &fcm.AndroidNotification{
				Sound:     msg.Android.Sound,
				ChannelID: msg.Android.ChannelID,
			},
		},
		APNS: &fcm.APNSConfig{
			Payload: &fcm.APNSPayload{
				Aps: &fcm.Aps{
					Sound: msg.APNS.Sound,
					Badge: &badge,
				},
			},
		},
	}
}
