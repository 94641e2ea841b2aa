// Package models defines the data exchanged between flow nodes and the declarative
// items a flow description is made of.
package models

import (
	"encoding/json"
	"maps"
)

// Conventional message fields.
const (
	FieldPayload = "payload"
	FieldTopic   = "topic"
	FieldQoS     = "qos"
	FieldRetain  = "retain"
)

// Responder receives the reply of a link call. It is implemented by the
// link call node that tagged the message.
type Responder interface {
	ID() string
	Respond(msg *Message) error
}

// Message is the unit of data passed between nodes: a mapping from string keys
// to values plus an optional link correlation reference.
//
// A message is owned by the node currently handling it. Clone copies the top
// level fields only; nested maps, slices and byte buffers are shared.
type Message struct {
	fields map[string]any

	// LinkSource identifies the link call node awaiting a reply for this
	// message. It is nil for messages that did not travel through a call.
	LinkSource Responder
}

// NewMessage creates a message holding the given fields. The map is owned by the
// message afterwards.
func NewMessage(fields map[string]any) *Message {
	if fields == nil {
		fields = make(map[string]any)
	}

	return &Message{fields: fields}
}

// NewPayloadMessage creates a message with only a payload field.
func NewPayloadMessage(payload any) *Message {
	return NewMessage(map[string]any{FieldPayload: payload})
}

// Get returns the value stored under key.
func (m *Message) Get(key string) (any, bool) {
	v, ok := m.fields[key]

	return v, ok
}

// Set stores value under key.
func (m *Message) Set(key string, value any) {
	m.fields[key] = value
}

// Delete removes key from the message.
func (m *Message) Delete(key string) {
	delete(m.fields, key)
}

// Payload returns the conventional payload field.
func (m *Message) Payload() any {
	return m.fields[FieldPayload]
}

// Topic returns the topic field when it is a string.
func (m *Message) Topic() string {
	topic, _ := m.fields[FieldTopic].(string)

	return topic
}

// Fields exposes the underlying field map. Callers that mutate it mutate the message.
func (m *Message) Fields() map[string]any {
	return m.fields
}

// Len returns the number of top level fields.
func (m *Message) Len() int {
	return len(m.fields)
}

// Clone returns a shallow copy: a new top level map with the same values and the
// same link source.
func (m *Message) Clone() *Message {
	return &Message{
		fields:     maps.Clone(m.fields),
		LinkSource: m.LinkSource,
	}
}

// WithFields returns a message carrying fields and this message's link source.
func (m *Message) WithFields(fields map[string]any) *Message {
	out := NewMessage(fields)
	out.LinkSource = m.LinkSource

	return out
}

// MarshalJSON encodes the message fields. The link source is not serialized.
func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.fields)
}

// UnmarshalJSON decodes fields from a JSON object.
func (m *Message) UnmarshalJSON(data []byte) error {
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	m.fields = fields

	return nil
}
