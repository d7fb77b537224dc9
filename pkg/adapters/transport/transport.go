package transport

import (
	"context"
	"errors"

	"github.com/aescanero/patchwork/pkg/message"
	"github.com/aescanero/patchwork/pkg/module"
)

// ErrClosed is returned when publishing on a transport that is not running
var ErrClosed = errors.New("transport closed")

// Publisher sends messages to their route
type Publisher interface {
	module.Module
	Publish(ctx context.Context, msg *message.Message) error
}

// Subscriber receives messages from its configured routes
type Subscriber interface {
	module.Module

	// Deliveries returns the channel messages are delivered on.
	// The channel is stable for the lifetime of the subscriber.
	Deliveries() <-chan *Delivery
}

// Delivery is a received message awaiting acknowledgement
type Delivery struct {
	Message *message.Message

	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery creates a delivery with transport-specific acknowledgement functions
func NewDelivery(msg *message.Message, ack func() error, nack func(requeue bool) error) *Delivery {
	return &Delivery{
		Message: msg,
		ack:     ack,
		nack:    nack,
	}
}

// Ack confirms the message was handled
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack rejects the message, optionally returning it to its route
func (d *Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}
