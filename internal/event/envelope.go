// Package event decodes Firestore document events delivered in the Cloud
// Functions background-event format:
//
//	{"context": {"eventId": "...", "eventType": "...", "resource": "projects/..."},
//	 "data": {"oldValue": {...}, "value": {...}, "updateMask": {...}}}
//
// Document values use the Firestore REST/protobuf JSON encoding.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/functions/metadata"
)

// Firestore event types as reported in metadata.Metadata.EventType.
const (
	TypeDocumentCreate = "providers/cloud.firestore/eventTypes/document.create"
	TypeDocumentUpdate = "providers/cloud.firestore/eventTypes/document.update"
	TypeDocumentDelete = "providers/cloud.firestore/eventTypes/document.delete"
	TypeDocumentWrite  = "providers/cloud.firestore/eventTypes/document.write"
)

var (
	ErrMissingContext  = errors.New("event context is missing")
	ErrMissingResource = errors.New("event resource is missing")
)

// Envelope is one delivered event: platform metadata plus the document change.
type Envelope struct {
	Context metadata.Metadata `json:"context"`
	Data    FirestoreEvent    `json:"data"`
}

// FirestoreEvent is the payload of a Firestore document trigger.
type FirestoreEvent struct {
	OldValue   json.RawMessage `json:"oldValue,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	UpdateMask *UpdateMask     `json:"updateMask,omitempty"`
}

type UpdateMask struct {
	FieldPaths []string `json:"fieldPaths"`
}

// Before decodes the document state prior to the change. Create events yield
// an empty snapshot.
func (e FirestoreEvent) Before() (*Snapshot, error) {
	snap, err := decodeSnapshot(e.OldValue)
	if err != nil {
		return nil, fmt.Errorf("decode oldValue: %w", err)
	}
	return snap, nil
}

// After decodes the document state following the change. Delete events yield
// an empty snapshot.
func (e FirestoreEvent) After() (*Snapshot, error) {
	snap, err := decodeSnapshot(e.Value)
	if err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return snap, nil
}

// Decode parses a raw envelope and checks the metadata every trigger needs.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks that the envelope names an event type and a resource.
func (e *Envelope) Validate() error {
	if e.Context.EventType == "" {
		return ErrMissingContext
	}
	if ResourcePath(&e.Context) == "" {
		return ErrMissingResource
	}
	return nil
}

// ResourcePath returns the full resource name of the changed document.
func ResourcePath(m *metadata.Metadata) string {
	if m == nil || m.Resource == nil {
		return ""
	}
	if m.Resource.Name != "" {
		return m.Resource.Name
	}
	return m.Resource.RawPath
}

type paramsKey struct{}

// NewContext attaches the event metadata and the path params matched by the
// trigger pattern (e.g. {"requestId": "abc"}) to ctx.
func NewContext(ctx context.Context, m *metadata.Metadata, params map[string]string) context.Context {
	ctx = metadata.NewContext(ctx, m)
	return context.WithValue(ctx, paramsKey{}, params)
}

// Param returns a trigger path param stored by NewContext.
func Param(ctx context.Context, name string) string {
	params, _ := ctx.Value(paramsKey{}).(map[string]string)
	return params[name]
}

// MetadataFromContext returns the event metadata stored by NewContext.
func MetadataFromContext(ctx context.Context) (*metadata.Metadata, error) {
	return metadata.FromContext(ctx)
}

// Change is a decoded document change handed to trigger handlers.
type Change struct {
	Before     *Snapshot
	After      *Snapshot
	UpdateMask []string
}

// Change decodes both document states.
func (e FirestoreEvent) Change() (*Change, error) {
	before, err := e.Before()
	if err != nil {
		return nil, err
	}
	after, err := e.After()
	if err != nil {
		return nil, err
	}
	change := &Change{Before: before, After: after}
	if e.UpdateMask != nil {
		change.UpdateMask = e.UpdateMask.FieldPaths
	}
	return change, nil
}
