package event

import (
	"bytes"
	"strconv"
	"time"

	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/protobuf/encoding/protojson"
)

var unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// Snapshot is a read-only view of a Firestore document carried by an event.
type Snapshot struct {
	doc *firestorepb.Document
}

func decodeSnapshot(raw []byte) (*Snapshot, error) {
	doc := &firestorepb.Document{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Snapshot{doc: doc}, nil
	}
	if err := unmarshalOptions.Unmarshal(trimmed, doc); err != nil {
		return nil, err
	}
	return &Snapshot{doc: doc}, nil
}

// Exists reports whether the event carried this document state.
func (s *Snapshot) Exists() bool {
	return s.doc.GetName() != ""
}

// Name returns the full resource name of the document.
func (s *Snapshot) Name() string {
	return s.doc.GetName()
}

// Has reports whether field is set to a non-null value.
func (s *Snapshot) Has(field string) bool {
	v, ok := s.doc.GetFields()[field]
	if !ok {
		return false
	}
	_, isNull := v.GetValueType().(*firestorepb.Value_NullValue)
	return !isNull
}

// String returns a string field. Missing fields and non-string values report false.
func (s *Snapshot) String(field string) (string, bool) {
	v, ok := s.doc.GetFields()[field]
	if !ok {
		return "", false
	}
	sv, ok := v.GetValueType().(*firestorepb.Value_StringValue)
	if !ok {
		return "", false
	}
	return sv.StringValue, true
}

// StringMap flattens a map field into string values. Scalar values are
// formatted as strings; nested maps, arrays and other composite values are
// returned in skipped.
func (s *Snapshot) StringMap(field string) (values map[string]string, skipped []string) {
	v, ok := s.doc.GetFields()[field]
	if !ok {
		return nil, nil
	}
	mv := v.GetMapValue()
	if mv == nil {
		return nil, []string{field}
	}

	values = make(map[string]string, len(mv.GetFields()))
	for key, entry := range mv.GetFields() {
		str, ok := scalarString(entry)
		if !ok {
			skipped = append(skipped, key)
			continue
		}
		values[key] = str
	}
	return values, skipped
}

func scalarString(v *firestorepb.Value) (string, bool) {
	switch val := v.GetValueType().(type) {
	case *firestorepb.Value_StringValue:
		return val.StringValue, true
	case *firestorepb.Value_IntegerValue:
		return strconv.FormatInt(val.IntegerValue, 10), true
	case *firestorepb.Value_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'f', -1, 64), true
	case *firestorepb.Value_BooleanValue:
		return strconv.FormatBool(val.BooleanValue), true
	case *firestorepb.Value_TimestampValue:
		return val.TimestampValue.AsTime().UTC().Format(time.RFC3339Nano), true
	case *firestorepb.Value_ReferenceValue:
		return val.ReferenceValue, true
	default:
		return "", false
	}
}
