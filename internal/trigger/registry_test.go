package trigger_test

import (
	"context"
	"encoding/json"
	"testing"

	"chat-notifier/internal/event"
	"chat-notifier/internal/trigger"

	"cloud.google.com/go/functions/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_Register(t *testing.T) {
	r := trigger.NewRegistry(zap.NewNop(), nil)
	noop := func(context.Context, *event.Change) error { return nil }

	require.NoError(t, r.Register(trigger.Trigger{Name: "a", EventType: event.TypeDocumentCreate, Document: "c/{id}"}, noop))

	err := r.Register(trigger.Trigger{Name: "a", EventType: event.TypeDocumentUpdate, Document: "c/{id}"}, noop)
	assert.ErrorIs(t, err, trigger.ErrDuplicateTrigger)

	assert.Error(t, r.Register(trigger.Trigger{Name: "b"}, noop))
	assert.Error(t, r.Register(trigger.Trigger{Name: "c", EventType: event.TypeDocumentCreate, Document: "c/{id}"}, nil))

	assert.Equal(t, []trigger.Trigger{{Name: "a", EventType: event.TypeDocumentCreate, Document: "c/{id}"}}, r.Triggers())
}

func TestRegistry_Dispatch(t *testing.T) {
	r := trigger.NewRegistry(zap.NewNop(), nil)

	var gotID string
	var gotMeta *metadata.Metadata
	require.NoError(t, r.Register(trigger.Trigger{
		Name:      "onRoomMessage",
		EventType: event.TypeDocumentCreate,
		Document:  "rooms/{roomId}/messages/{messageId}",
	}, func(ctx context.Context, change *event.Change) error {
		gotID = event.Param(ctx, "messageId")
		gotMeta, _ = event.MetadataFromContext(ctx)
		return nil
	}))

	env := &event.Envelope{
		Context: metadata.Metadata{
			EventID:   "evt-7",
			EventType: event.TypeDocumentCreate,
			Resource:  &metadata.Resource{Name: resourcePrefix + "rooms/r1/messages/m1"},
		},
	}

	require.NoError(t, r.Dispatch(context.Background(), env))
	assert.Equal(t, "m1", gotID)
	require.NotNil(t, gotMeta)
	assert.Equal(t, "evt-7", gotMeta.EventID)

	env.Context.EventType = event.TypeDocumentDelete
	assert.ErrorIs(t, r.Dispatch(context.Background(), env), trigger.ErrNoTrigger)
}

func TestRegistry_DispatchTo(t *testing.T) {
	r := trigger.NewRegistry(zap.NewNop(), nil)
	calls := 0
	require.NoError(t, r.Register(trigger.Trigger{
		Name:      "onUserUpdate",
		EventType: event.TypeDocumentUpdate,
		Document:  "users/{userId}",
	}, func(context.Context, *event.Change) error {
		calls++
		return nil
	}))

	env := &event.Envelope{Context: metadata.Metadata{
		EventType: event.TypeDocumentUpdate,
		Resource:  &metadata.Resource{RawPath: resourcePrefix + "users/u1"},
	}}

	require.NoError(t, r.DispatchTo(context.Background(), "onUserUpdate", env))
	assert.Equal(t, 1, calls)

	assert.ErrorIs(t, r.DispatchTo(context.Background(), "missing", env), trigger.ErrUnknownTrigger)

	wrongType := *env
	wrongType.Context.EventType = event.TypeDocumentCreate
	assert.ErrorIs(t, r.DispatchTo(context.Background(), "onUserUpdate", &wrongType), trigger.ErrTriggerMismatch)

	wrongPath := *env
	wrongPath.Context.Resource = &metadata.Resource{RawPath: resourcePrefix + "profiles/u1"}
	assert.ErrorIs(t, r.DispatchTo(context.Background(), "onUserUpdate", &wrongPath), trigger.ErrTriggerMismatch)

	malformed := *env
	malformed.Data = event.FirestoreEvent{Value: json.RawMessage(`"not a document"`)}
	assert.ErrorIs(t, r.DispatchTo(context.Background(), "onUserUpdate", &malformed), trigger.ErrMalformedEvent)
	assert.Equal(t, 1, calls)
}
