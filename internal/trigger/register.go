package trigger

import (
	"fmt"

	"chat-notifier/internal/config"
	"chat-notifier/internal/event"
)

// RegisterHandlers wires both handlers into r for the configured collections.
func RegisterHandlers(r *Registry, d *Dispatcher, o *ProfileObserver, collections config.CollectionsConfig) error {
	triggers := []struct {
		trigger Trigger
		handler HandlerFunc
	}{
		{
			trigger: Trigger{
				Name:      NameSendChatNotification,
				EventType: event.TypeDocumentCreate,
				Document:  collections.NotificationRequests + "/{requestId}",
			},
			handler: d.SendChatNotification,
		},
		{
			trigger: Trigger{
				Name:      NameOnUserUpdate,
				EventType: event.TypeDocumentUpdate,
				Document:  collections.Users + "/{userId}",
			},
			handler: o.OnUserUpdate,
		},
	}

	for _, t := range triggers {
		if err := r.Register(t.trigger, t.handler); err != nil {
			return fmt.Errorf("register %s: %w", t.trigger.Name, err)
		}
	}
	return nil
}
