package trigger_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"chat-notifier/internal/config"
	"chat-notifier/internal/event"
	"chat-notifier/internal/metrics"
	"chat-notifier/internal/models"
	"chat-notifier/internal/trigger"
	"chat-notifier/internal/trigger/mocks"

	"cloud.google.com/go/functions/metadata"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const resourcePrefix = "projects/demo/databases/(default)/documents/"

// fixture собирает реестр с обоими обработчиками и моками внешних систем.
type fixture struct {
	registry *trigger.Registry
	gateway  *mocks.PushGateway
	store    *mocks.DocumentStore
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, reg)

	gateway := mocks.NewPushGateway(t)
	gateway.On("Name").Return("fcm").Maybe()
	store := mocks.NewDocumentStore(t)

	registry := trigger.NewRegistry(logger, m)
	dispatcher := trigger.NewDispatcher(gateway, store, nil, logger, m)
	observerHandler := trigger.NewProfileObserver(logger, m)
	require.NoError(t, trigger.RegisterHandlers(registry, dispatcher, observerHandler, config.CollectionsConfig{
		NotificationRequests: "notificationRequests",
		Users:                "users",
	}))

	return &fixture{registry: registry, gateway: gateway, store: store, logs: logs}
}

// docJSON кодирует документ в формате Firestore JSON. Поддерживаются string, int, nil и map[string]string.
func docJSON(t *testing.T, name string, fields map[string]any) json.RawMessage {
	t.Helper()
	encoded := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			encoded[k] = map[string]any{"stringValue": val}
		case int:
			encoded[k] = map[string]any{"integerValue": strconv.Itoa(val)}
		case nil:
			encoded[k] = map[string]any{"nullValue": nil}
		case map[string]string:
			inner := make(map[string]any, len(val))
			for ik, iv := range val {
				inner[ik] = map[string]any{"stringValue": iv}
			}
			encoded[k] = map[string]any{"mapValue": map[string]any{"fields": inner}}
		default:
			t.Fatalf("unsupported field type %T", v)
		}
	}
	raw, err := json.Marshal(map[string]any{"name": resourcePrefix + name, "fields": encoded})
	require.NoError(t, err)
	return raw
}

func createEnvelope(t *testing.T, docPath string, fields map[string]any) *event.Envelope {
	return &event.Envelope{
		Context: metadata.Metadata{
			EventID:   "evt-create",
			EventType: event.TypeDocumentCreate,
			Resource:  &metadata.Resource{RawPath: resourcePrefix + docPath},
		},
		Data: event.FirestoreEvent{Value: docJSON(t, docPath, fields)},
	}
}

func updateEnvelope(t *testing.T, docPath string, before, after map[string]any) *event.Envelope {
	return &event.Envelope{
		Context: metadata.Metadata{
			EventID:   "evt-update",
			EventType: event.TypeDocumentUpdate,
			Resource:  &metadata.Resource{RawPath: resourcePrefix + docPath},
		},
		Data: event.FirestoreEvent{
			OldValue: docJSON(t, docPath, before),
			Value:    docJSON(t, docPath, after),
		},
	}
}

func TestSendChatNotification_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var calls []string
	f.gateway.On("Send", mock.Anything, mock.MatchedBy(func(msg *models.PushMessage) bool {
		return msg.Token == "tok123" && msg.Title == "Hi" && msg.Body == "there" &&
			assert.ObjectsAreEqual(map[string]string{"a": "1", "click_action": "FLUTTER_NOTIFICATION_CLICK"}, msg.Data)
	})).Run(func(mock.Arguments) { calls = append(calls, "send") }).Return("projects/demo/messages/1", nil).Once()
	f.store.On("Delete", mock.Anything, "notificationRequests/req-1").
		Run(func(mock.Arguments) { calls = append(calls, "delete") }).Return(nil).Once()

	env := createEnvelope(t, "notificationRequests/req-1", map[string]any{
		"recipientFcmToken": "tok123",
		"title":             "Hi",
		"body":              "there",
		"data":              map[string]string{"a": "1"},
	})
	err := f.registry.Dispatch(ctx, env)

	require.NoError(t, err)
	assert.Equal(t, []string{"send", "delete"}, calls)
	sent := f.logs.FilterMessage("Notification sent").All()
	require.Len(t, sent, 1)
	assert.Equal(t, "projects/demo/messages/1", sent[0].ContextMap()["message_id"])
	assert.Equal(t, "req-1", sent[0].ContextMap()["request_id"])
}

func TestSendChatNotification_MissingToken(t *testing.T) {
	f := newFixture(t)

	env := createEnvelope(t, "notificationRequests/req-2", map[string]any{"title": "Hi"})
	err := f.registry.Dispatch(context.Background(), env)

	require.NoError(t, err)
	f.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.logs.FilterMessage("FCM token is missing, notification cannot be delivered").Len())
}

func TestSendChatNotification_EmptyTokenIsMissing(t *testing.T) {
	f := newFixture(t)

	env := createEnvelope(t, "notificationRequests/req-3", map[string]any{"recipientFcmToken": ""})
	require.NoError(t, f.registry.Dispatch(context.Background(), env))

	f.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestSendChatNotification_GatewayErrorStillDeletes(t *testing.T) {
	f := newFixture(t)
	sendErr := errors.New("registration-token-not-registered")

	f.gateway.On("Send", mock.Anything, mock.Anything).Return("", sendErr).Once()
	f.store.On("Delete", mock.Anything, "notificationRequests/req-4").Return(nil).Once()

	env := createEnvelope(t, "notificationRequests/req-4", map[string]any{"recipientFcmToken": "tok123"})
	err := f.registry.Dispatch(context.Background(), env)

	require.NoError(t, err, "gateway errors are swallowed")
	failed := f.logs.FilterMessage("Failed to send notification").All()
	require.Len(t, failed, 1)
	assert.Equal(t, sendErr.Error(), failed[0].ContextMap()["error"])
}

func TestSendChatNotification_CancelledSendStillDeletes(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.gateway.On("Send", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return("", context.Canceled).Once()
	var deleteCtxErr error
	f.store.On("Delete", mock.Anything, "notificationRequests/req-7").
		Run(func(args mock.Arguments) {
			deleteCtx := args.Get(0).(context.Context)
			deleteCtxErr = deleteCtx.Err()
			_, hasDeadline := deleteCtx.Deadline()
			assert.True(t, hasDeadline, "delete is bounded by its own timeout")
		}).Return(nil).Once()

	env := createEnvelope(t, "notificationRequests/req-7", map[string]any{"recipientFcmToken": "tok123"})
	err := f.registry.Dispatch(ctx, env)

	require.NoError(t, err)
	assert.NoError(t, deleteCtxErr, "delete must not inherit the cancelled invocation context")
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to send notification").Len())
}

func TestSendChatNotification_NonStringTokenDeletesWithoutSend(t *testing.T) {
	f := newFixture(t)
	f.store.On("Delete", mock.Anything, "notificationRequests/req-8").Return(nil).Once()

	env := createEnvelope(t, "notificationRequests/req-8", map[string]any{"recipientFcmToken": 12345})
	require.NoError(t, f.registry.Dispatch(context.Background(), env))

	f.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.logs.FilterMessage("FCM token is not a string, notification cannot be delivered").Len())
	assert.Zero(t, f.logs.FilterMessage("FCM token is missing, notification cannot be delivered").Len())
}

func TestSendChatNotification_NullTokenIsMissing(t *testing.T) {
	f := newFixture(t)

	env := createEnvelope(t, "notificationRequests/req-9", map[string]any{"recipientFcmToken": nil})
	require.NoError(t, f.registry.Dispatch(context.Background(), env))

	f.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.logs.FilterMessage("FCM token is missing, notification cannot be delivered").Len())
}

func TestSendChatNotification_DefaultsApplied(t *testing.T) {
	f := newFixture(t)

	f.gateway.On("Send", mock.Anything, mock.MatchedBy(func(msg *models.PushMessage) bool {
		return msg.Title == models.DefaultTitle && msg.Body == models.DefaultBody &&
			len(msg.Data) == 1 && msg.Data[models.ClickActionKey] == models.ClickActionValue
	})).Return("id-1", nil).Once()
	f.store.On("Delete", mock.Anything, "notificationRequests/req-5").Return(nil).Once()

	env := createEnvelope(t, "notificationRequests/req-5", map[string]any{"recipientFcmToken": "tok"})
	require.NoError(t, f.registry.Dispatch(context.Background(), env))
}

func TestSendChatNotification_DeleteErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	deleteErr := errors.New("unavailable")

	f.gateway.On("Send", mock.Anything, mock.Anything).Return("id-1", nil).Once()
	f.store.On("Delete", mock.Anything, "notificationRequests/req-6").Return(deleteErr).Once()

	env := createEnvelope(t, "notificationRequests/req-6", map[string]any{"recipientFcmToken": "tok"})
	err := f.registry.Dispatch(context.Background(), env)

	require.Error(t, err)
	assert.ErrorIs(t, err, deleteErr)
	f.gateway.AssertNumberOfCalls(t, "Send", 1)
}

func TestOnUserUpdate(t *testing.T) {
	cases := []struct {
		name     string
		before   map[string]any
		after    map[string]any
		wantLogs int
	}{
		{"token changed", map[string]any{"fcmToken": "A"}, map[string]any{"fcmToken": "B"}, 1},
		{"token unchanged", map[string]any{"fcmToken": "A"}, map[string]any{"fcmToken": "A"}, 0},
		{"token added", map[string]any{"name": "kim"}, map[string]any{"name": "kim", "fcmToken": "B"}, 1},
		{"token removed", map[string]any{"fcmToken": "A"}, map[string]any{}, 0},
		{"token cleared", map[string]any{"fcmToken": "A"}, map[string]any{"fcmToken": ""}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			env := updateEnvelope(t, "users/u1", tc.before, tc.after)
			require.NoError(t, f.registry.Dispatch(context.Background(), env))

			entries := f.logs.FilterMessage("FCM token updated for user").All()
			require.Len(t, entries, tc.wantLogs)
			if tc.wantLogs > 0 {
				assert.Equal(t, "u1", entries[0].ContextMap()["user_id"])
			}
			f.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		})
	}
}

func TestBuildMessage(t *testing.T) {
	input := map[string]string{"roomId": "r1", "click_action": "OTHER"}
	msg := trigger.BuildMessage(models.NotificationRequest{
		RecipientToken: "tok",
		Title:          "T",
		Data:           input,
	})

	assert.Equal(t, "tok", msg.Token)
	assert.Equal(t, "T", msg.Title)
	assert.Equal(t, models.DefaultBody, msg.Body)
	assert.Equal(t, map[string]string{"roomId": "r1", "click_action": "FLUTTER_NOTIFICATION_CLICK"}, msg.Data)
	assert.Equal(t, "OTHER", input["click_action"], "input data is not mutated")
	assert.Equal(t, models.AndroidOptions{Priority: "high", Sound: "default", ChannelID: "chat_messages"}, msg.Android)
	assert.Equal(t, models.APNSOptions{Sound: "default", Badge: 1}, msg.APNS)
}
