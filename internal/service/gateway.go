package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chat-notifier/internal/config"
	"chat-notifier/internal/models"

	firebase "firebase.google.com/go/v4"
	fcm "firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// Gateway отправляет одно push-сообщение и возвращает идентификатор от шлюза.
type Gateway interface {
	Send(ctx context.Context, msg *models.PushMessage) (string, error)
	Name() string
}

// NewGateway выбирает шлюз по cfg.Gateway. FCM использует уже
// инициализированное Firebase-приложение.
func NewGateway(ctx context.Context, cfg *config.Config, app *firebase.App, logger *zap.Logger) (Gateway, error) {
	switch cfg.Gateway {
	case config.GatewayFCM:
		if app == nil {
			return nil, errors.New("fcm gateway requires an initialized firebase app")
		}
		client, err := app.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get FCM messaging client: %w", err)
		}
		return NewFCMSender(client, logger), nil
	case config.GatewayAPNS:
		return NewApnsSender(cfg.APNS, logger)
	case config.GatewayStub:
		logger.Warn("Push gateway is a stub, notifications will only be logged")
		return NewStubSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown push gateway %q", cfg.Gateway)
	}
}

// FailureReason classifies a gateway error into a short label for metrics and logs.
func FailureReason(err error) string {
	var rejected *APNSRejectedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &rejected):
		return toSnakeCase(rejected.Reason)
	case fcm.IsUnregistered(err):
		return "unregistered"
	case fcm.IsInvalidArgument(err):
		return "invalid_argument"
	case fcm.IsSenderIDMismatch(err):
		return "sender_id_mismatch"
	case fcm.IsQuotaExceeded(err):
		return "quota_exceeded"
	case fcm.IsUnavailable(err):
		return "unavailable"
	case fcm.IsThirdPartyAuthError(err):
		return "third_party_auth"
	case fcm.IsInternal(err):
		return "internal"
	default:
		return "error"
	}
}

// toSnakeCase turns APNs reasons like "BadDeviceToken" into "bad_device_token".
func toSnakeCase(s string) string {
	if s == "" {
		return "rejected"
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
