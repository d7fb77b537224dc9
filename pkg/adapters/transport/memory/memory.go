package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aescanero/patchwork/pkg/adapters/transport"
	"github.com/aescanero/patchwork/pkg/message"
	"github.com/aescanero/patchwork/pkg/module"
)

const defaultQueueSize = 128

// Bus is an in-process message bus with one buffered queue per route.
// This is for testing and single-process setups.
type Bus struct {
	mu     sync.Mutex
	queues map[string]chan *message.Message
	size   int
}

// NewBus creates a new in-memory bus
func NewBus(size int) *Bus {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Bus{
		queues: make(map[string]chan *message.Message),
		size:   size,
	}
}

// queue returns the queue for a route, creating it if needed
func (b *Bus) queue(route string) chan *message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[route]
	if !ok {
		q = make(chan *message.Message, b.size)
		b.queues[route] = q
	}
	return q
}

// Send enqueues a message on its route, blocking while the queue is full
func (b *Bus) Send(ctx context.Context, msg *message.Message) error {
	select {
	case b.queue(msg.Route) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued messages on a route
func (b *Bus) Len(route string) int {
	return len(b.queue(route))
}

// Publisher publishes messages onto a Bus
type Publisher struct {
	name  string
	bus   *Bus
	state *module.State
}

// NewPublisher creates a new in-memory publisher
func NewPublisher(name string, bus *Bus) *Publisher {
	return &Publisher{
		name:  name,
		bus:   bus,
		state: module.NewState(),
	}
}

func (p *Publisher) Name() string         { return p.name }
func (p *Publisher) State() *module.State { return p.state }

// Run marks the publisher running
func (p *Publisher) Run(ctx context.Context) error {
	p.state.Set(module.StatusRunning)
	return nil
}

// Terminate marks the publisher stopped
func (p *Publisher) Terminate(ctx context.Context) error {
	p.state.Set(module.StatusStopped)
	return nil
}

// Publish sends a message to its route
func (p *Publisher) Publish(ctx context.Context, msg *message.Message) error {
	if !p.state.IsRunning() {
		return transport.ErrClosed
	}
	if err := p.bus.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscriber consumes routes from a Bus
type Subscriber struct {
	name       string
	bus        *Bus
	routes     []string
	state      *module.State
	deliveries chan *transport.Delivery

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubscriber creates a new in-memory subscriber for the given routes
func NewSubscriber(name string, bus *Bus, routes []string) *Subscriber {
	return &Subscriber{
		name:       name,
		bus:        bus,
		routes:     routes,
		state:      module.NewState(),
		deliveries: make(chan *transport.Delivery),
	}
}

func (s *Subscriber) Name() string                            { return s.name }
func (s *Subscriber) State() *module.State                    { return s.state }
func (s *Subscriber) Deliveries() <-chan *transport.Delivery { return s.deliveries }

// Run starts one forwarder per route
func (s *Subscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.routes) == 0 {
		return fmt.Errorf("no routes to subscribe to")
	}

	s.state.Set(module.StatusStarting)

	fwdCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, route := range s.routes {
		s.wg.Add(1)
		go s.forward(fwdCtx, s.bus.queue(route))
	}

	s.state.Set(module.StatusRunning)
	return nil
}

// Terminate stops the forwarders. Undelivered messages stay on the bus.
func (s *Subscriber) Terminate(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	s.state.Set(module.StatusStopping)
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.state.Set(module.StatusStopped)
	return nil
}

// forward moves messages from a route queue to the deliveries channel
func (s *Subscriber) forward(ctx context.Context, queue chan *message.Message) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			delivery := transport.NewDelivery(msg, nil, func(requeue bool) error {
				if !requeue {
					return nil
				}
				return s.bus.Send(context.Background(), msg)
			})

			select {
			case s.deliveries <- delivery:
			case <-ctx.Done():
				// put it back so it is not lost on shutdown
				queue <- msg
				return
			}
		}
	}
}
