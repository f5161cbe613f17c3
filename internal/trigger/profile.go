package trigger

import (
	"context"

	"chat-notifier/internal/event"
	"chat-notifier/internal/metrics"
	"chat-notifier/internal/models"

	"go.uber.org/zap"
)

// ProfileObserver only logs device token changes on user documents.
type ProfileObserver struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewProfileObserver(logger *zap.Logger, m *metrics.Metrics) *ProfileObserver {
	return &ProfileObserver{
		logger:  logger.Named("profile_observer"),
		metrics: m,
	}
}

func (o *ProfileObserver) OnUserUpdate(ctx context.Context, change *event.Change) error {
	userID := event.Param(ctx, "userId")

	before := ProfileFromSnapshot(userID, change.Before)
	after := ProfileFromSnapshot(userID, change.After)

	if after.DeviceToken != "" && after.DeviceToken != before.DeviceToken {
		o.logger.Info("FCM token updated for user", zap.String("user_id", userID))
		o.metrics.DeviceTokenChanged()
	}
	return nil
}

// ProfileFromSnapshot reads the fields of a user document that the service cares about.
func ProfileFromSnapshot(id string, snap *event.Snapshot) models.UserProfile {
	token, _ := snap.String(models.FieldDeviceToken)
	return models.UserProfile{ID: id, DeviceToken: token}
}
