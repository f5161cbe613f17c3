package trigger

import (
	"context"
	"fmt"
	"time"

	"chat-notifier/internal/event"
	"chat-notifier/internal/metrics"
	"chat-notifier/internal/models"

	"go.uber.org/zap"
)

// Имена триггеров совпадают с именами функций, под которыми они развернуты.
const (
	NameSendChatNotification = "sendChatNotification"
	NameOnUserUpdate         = "onUserUpdate"
)

// PushGateway отправляет одно сообщение и возвращает идентификатор, выданный шлюзом.
type PushGateway interface {
	Send(ctx context.Context, msg *models.PushMessage) (string, error)
	Name() string
}

// DocumentStore удаляет документ по относительному пути ("collection/id").
type DocumentStore interface {
	Delete(ctx context.Context, docPath string) error
}

// deleteTimeout bounds the request delete, which runs detached from the
// invocation context so a cancelled or timed-out send still cleans up.
const deleteTimeout = 10 * time.Second

// FailureClassifier maps a gateway error to a short metrics label.
type FailureClassifier func(err error) string

// Dispatcher handles creation of notification request documents.
type Dispatcher struct {
	gateway  PushGateway
	store    DocumentStore
	classify FailureClassifier
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(gateway PushGateway, store DocumentStore, classify FailureClassifier, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if classify == nil {
		classify = func(error) string { return "error" }
	}
	return &Dispatcher{
		gateway:  gateway,
		store:    store,
		classify: classify,
		logger:   logger.Named("dispatcher"),
		metrics:  m,
	}
}

// SendChatNotification sends one push message for a newly created request and
// deletes the request document afterwards, whether or not the send succeeded.
// Gateway errors are logged and swallowed. A request without a recipient token
// (absent, null or empty) is left in place; a token of a non-string type is
// counted as a send failure and the request is deleted.
func (d *Dispatcher) SendChatNotification(ctx context.Context, change *event.Change) error {
	requestID := event.Param(ctx, "requestId")
	log := d.logger.With(zap.String("request_id", requestID))

	req, skipped := RequestFromSnapshot(requestID, change.After)
	if len(skipped) > 0 {
		log.Warn("Non-scalar data entries dropped from payload", zap.Strings("keys", skipped))
	}

	if req.RecipientToken == "" {
		if _, isString := change.After.String(models.FieldRecipientToken); isString || !change.After.Has(models.FieldRecipientToken) {
			log.Warn("FCM token is missing, notification cannot be delivered")
			d.metrics.RequestSkipped("missing_token")
			return nil
		}
		// Поле есть, но это не строка: шлюз такой токен все равно отклонит.
		log.Error("FCM token is not a string, notification cannot be delivered")
		d.metrics.SendFailed("invalid_token")
	} else {
		d.send(ctx, log, req)
	}

	// Удаляем даже если ctx уже отменен: иначе запрос останется навсегда.
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()

	docPath := requestDocumentPath(ctx, change)
	if err := d.store.Delete(deleteCtx, docPath); err != nil {
		log.Error("Failed to delete notification request", zap.String("path", docPath), zap.Error(err))
		d.metrics.DeleteFailed()
		return fmt.Errorf("delete notification request %s: %w", docPath, err)
	}
	d.metrics.RequestDeleted()
	log.Debug("Notification request deleted", zap.String("path", docPath))
	return nil
}

func (d *Dispatcher) send(ctx context.Context, log *zap.Logger, req models.NotificationRequest) {
	msg := BuildMessage(req)
	log = log.With(zap.String("tokenPrefix", models.TokenPrefix(req.RecipientToken)), zap.String("gateway", d.gateway.Name()))

	messageID, err := d.gateway.Send(ctx, msg)
	if err != nil {
		reason := d.classify(err)
		log.Error("Failed to send notification", zap.Error(err), zap.String("reason", reason))
		d.metrics.SendFailed(reason)
		return
	}
	log.Info("Notification sent", zap.String("message_id", messageID))
	d.metrics.NotificationSent()
}

// RequestFromSnapshot reads a NotificationRequest from a created document.
// skipped lists data entries that could not be represented as strings.
func RequestFromSnapshot(id string, snap *event.Snapshot) (req models.NotificationRequest, skipped []string) {
	req.ID = id
	req.RecipientToken, _ = snap.String(models.FieldRecipientToken)
	req.Title, _ = snap.String(models.FieldTitle)
	req.Body, _ = snap.String(models.FieldBody)
	req.Data, skipped = snap.StringMap(models.FieldData)
	return req, skipped
}

// BuildMessage applies the title/body defaults, adds the click_action marker
// and the Android/APNs delivery hints.
func BuildMessage(req models.NotificationRequest) *models.PushMessage {
	title := req.Title
	if title == "" {
		title = models.DefaultTitle
	}
	body := req.Body
	if body == "" {
		body = models.DefaultBody
	}

	data := make(map[string]string, len(req.Data)+1)
	for k, v := range req.Data {
		data[k] = v
	}
	data[models.ClickActionKey] = models.ClickActionValue

	return &models.PushMessage{
		Token: req.RecipientToken,
		Title: title,
		Body:  body,
		Data:  data,
		Android: models.AndroidOptions{
			Priority:  models.AndroidPriorityHigh,
			Sound:     models.DefaultSound,
			ChannelID: models.AndroidChannelChat,
		},
		APNS: models.APNSOptions{
			Sound: models.DefaultSound,
			Badge: models.DefaultAPNSBadge,
		},
	}
}

func requestDocumentPath(ctx context.Context, change *event.Change) string {
	if name := change.After.Name(); name != "" {
		return event.DocumentPath(name)
	}
	meta, err := event.MetadataFromContext(ctx)
	if err != nil {
		return ""
	}
	return event.DocumentPath(event.ResourcePath(meta))
}
