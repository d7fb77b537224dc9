// Package message defines the unit of work that flows through the worker's
// transports and the routers the executor dispatches it to.
package message

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is a routed unit of work
type Message struct {
	ID        string            `json:"id"`
	Route     string            `json:"route"`
	ReplyTo   string            `json:"reply_to,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// New creates a message for a route with a JSON-encoded payload
func New(route string, payload interface{}) (*Message, error) {
	msg := &Message{
		ID:        uuid.New().String(),
		Route:     route,
		Timestamp: time.Now(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = data
	}

	return msg, nil
}

// Reply creates a reply addressed to the message's ReplyTo route
func (m *Message) Reply(payload interface{}) (*Message, error) {
	reply, err := New(m.ReplyTo, payload)
	if err != nil {
		return nil, err
	}
	reply.Headers = map[string]string{"in_reply_to": m.ID}
	return reply, nil
}

// Decode unmarshals the payload into v
func (m *Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// Router handles messages for one or more routes.
// A non-nil reply is published when the message carries a ReplyTo route.
type Router interface {
	Handle(ctx context.Context, msg *Message) (*Message, error)
}

// RouterFunc adapts a function to the Router interface
type RouterFunc func(ctx context.Context, msg *Message) (*Message, error)

// Handle calls f(ctx, msg)
func (f RouterFunc) Handle(ctx context.Context, msg *Message) (*Message, error) {
	return f(ctx, msg)
}
