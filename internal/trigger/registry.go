package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chat-notifier/internal/event"
	"chat-notifier/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrNoTrigger        = errors.New("no trigger matches event")
	ErrUnknownTrigger   = errors.New("unknown trigger")
	ErrTriggerMismatch  = errors.New("event does not match trigger")
	ErrMalformedEvent   = errors.New("malformed event")
	ErrDuplicateTrigger = errors.New("trigger already registered")
)

// HandlerFunc обрабатывает одно изменение документа. Контекст содержит
// метаданные события и параметры пути (см. event.Param).
type HandlerFunc func(ctx context.Context, change *event.Change) error

// Trigger binds a handler to an event type and a document pattern such as
// "notificationRequests/{requestId}".
type Trigger struct {
	Name      string
	EventType string
	Document  string
}

type route struct {
	trigger Trigger
	handler HandlerFunc
}

// Registry routes decoded envelopes to registered handlers. Transports (HTTP,
// RabbitMQ) only decode and call Dispatch/DispatchTo.
type Registry struct {
	mu      sync.RWMutex
	routes  []route
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRegistry(logger *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		logger:  logger.Named("trigger_registry"),
		metrics: m,
	}
}

func (r *Registry) Register(t Trigger, h HandlerFunc) error {
	if t.Name == "" || t.EventType == "" || t.Document == "" || h == nil {
		return fmt.Errorf("invalid trigger %+v", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.routes {
		if rt.trigger.Name == t.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateTrigger, t.Name)
		}
	}
	r.routes = append(r.routes, route{trigger: t, handler: h})
	r.logger.Info("Trigger registered",
		zap.String("trigger", t.Name),
		zap.String("event_type", t.EventType),
		zap.String("document", t.Document),
	)
	return nil
}

// Triggers returns the registered triggers in registration order.
func (r *Registry) Triggers() []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Trigger, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt.trigger)
	}
	return out
}

// Dispatch finds the trigger matching the envelope's event type and resource.
func (r *Registry) Dispatch(ctx context.Context, env *event.Envelope) error {
	docPath := event.DocumentPath(event.ResourcePath(&env.Context))

	r.mu.RLock()
	var (
		matched route
		params  map[string]string
		found   bool
	)
	for _, rt := range r.routes {
		if rt.trigger.EventType != env.Context.EventType {
			continue
		}
		if p, ok := event.MatchPattern(rt.trigger.Document, docPath); ok {
			matched, params, found = rt, p, true
			break
		}
	}
	r.mu.RUnlock()

	if !found {
		return fmt.Errorf("%w: %s %s", ErrNoTrigger, env.Context.EventType, docPath)
	}
	return r.invoke(ctx, matched, params, env)
}

// DispatchTo invokes the named trigger, checking that the envelope matches it.
func (r *Registry) DispatchTo(ctx context.Context, name string, env *event.Envelope) error {
	r.mu.RLock()
	var (
		matched route
		found   bool
	)
	for _, rt := range r.routes {
		if rt.trigger.Name == name {
			matched, found = rt, true
			break
		}
	}
	r.mu.RUnlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, name)
	}
	if env.Context.EventType != matched.trigger.EventType {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrTriggerMismatch, name, matched.trigger.EventType, env.Context.EventType)
	}
	docPath := event.DocumentPath(event.ResourcePath(&env.Context))
	params, ok := event.MatchPattern(matched.trigger.Document, docPath)
	if !ok {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrTriggerMismatch, name, matched.trigger.Document, docPath)
	}
	return r.invoke(ctx, matched, params, env)
}

func (r *Registry) invoke(ctx context.Context, rt route, params map[string]string, env *event.Envelope) error {
	change, err := env.Data.Change()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, rt.trigger.Name, err)
	}

	r.metrics.EventReceived(rt.trigger.Name)
	r.logger.Debug("Dispatching event",
		zap.String("trigger", rt.trigger.Name),
		zap.String("event_id", env.Context.EventID),
		zap.Any("params", params),
	)

	meta := env.Context
	return rt.handler(event.NewContext(ctx, &meta, params), change)
}
