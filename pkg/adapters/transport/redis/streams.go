package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/patchwork/pkg/adapters/transport"
	"github.com/aescanero/patchwork/pkg/message"
	"github.com/aescanero/patchwork/pkg/module"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamsPublisher implements Publisher using Redis Streams
type StreamsPublisher struct {
	name   string
	client *redis.Client
	maxLen int64
	logger *zap.Logger
	state  *module.State
}

// NewStreamsPublisher creates a new Redis Streams publisher
func NewStreamsPublisher(name string, client *redis.Client, cfg Config, logger *zap.Logger) *StreamsPublisher {
	return &StreamsPublisher{
		name:   name,
		client: client,
		maxLen: cfg.MaxLen,
		logger: logger,
		state:  module.NewState(),
	}
}

func (p *StreamsPublisher) Name() string         { return p.name }
func (p *StreamsPublisher) State() *module.State { return p.state }

// Run checks connectivity and marks the publisher running
func (p *StreamsPublisher) Run(ctx context.Context) error {
	p.state.Set(module.StatusStarting)
	if err := p.client.Ping(ctx).Err(); err != nil {
		p.state.Set(module.StatusFailed)
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	p.state.Set(module.StatusRunning)
	p.logger.Info("connected to Redis", zap.String("addr", p.client.Options().Addr))
	return nil
}

// Recover pings Redis once and marks the publisher running on success
func (p *StreamsPublisher) Recover(ctx context.Context) error {
	return p.Run(ctx)
}

// Terminate closes the client
func (p *StreamsPublisher) Terminate(ctx context.Context) error {
	p.state.Set(module.StatusStopping)
	err := p.client.Close()
	p.state.Set(module.StatusStopped)
	if err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}
	return nil
}

// Publish appends a message to its route's stream
func (p *StreamsPublisher) Publish(ctx context.Context, msg *message.Message) error {
	if p.state.Status() == module.StatusStopped {
		return transport.ErrClosed
	}

	streamKey := getStreamKey(msg.Route)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	p.logger.Debug("message published",
		zap.String("message_id", msg.ID),
		zap.String("route", msg.Route),
		zap.String("stream", streamKey))

	return nil
}

// StreamsSubscriber implements Subscriber using Redis Streams consumer groups
type StreamsSubscriber struct {
	name   string
	client *redis.Client
	cfg    Config
	logger *zap.Logger
	state  *module.State

	deliveries chan *transport.Delivery

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStreamsSubscriber creates a new Redis Streams subscriber
func NewStreamsSubscriber(name string, client *redis.Client, cfg Config, logger *zap.Logger) *StreamsSubscriber {
	return &StreamsSubscriber{
		name:       name,
		client:     client,
		cfg:        cfg,
		logger:     logger,
		state:      module.NewState(),
		deliveries: make(chan *transport.Delivery),
	}
}

func (s *StreamsSubscriber) Name() string                            { return s.name }
func (s *StreamsSubscriber) State() *module.State                    { return s.state }
func (s *StreamsSubscriber) Deliveries() <-chan *transport.Delivery { return s.deliveries }

// Run creates the consumer groups and starts reading
func (s *StreamsSubscriber) Run(ctx context.Context) error {
	if len(s.cfg.Routes) == 0 {
		return fmt.Errorf("no routes to subscribe to")
	}

	s.state.Set(module.StatusStarting)

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.state.Set(module.StatusFailed)
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	streams := make([]string, 0, len(s.cfg.Routes)*2)
	for _, route := range s.cfg.Routes {
		streamKey := getStreamKey(route)

		// Create consumer group if it doesn't exist
		err := s.client.XGroupCreateMkStream(ctx, streamKey, s.cfg.ConsumerGroup, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			s.state.Set(module.StatusFailed)
			return fmt.Errorf("failed to create consumer group: %w", err)
		}
		streams = append(streams, streamKey)
	}
	for range s.cfg.Routes {
		streams = append(streams, ">")
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readStreams(readCtx, streams)

	s.logger.Info("subscribed to streams",
		zap.Strings("routes", s.cfg.Routes),
		zap.String("consumer_group", s.cfg.ConsumerGroup),
		zap.String("consumer", s.cfg.ConsumerName))

	s.state.Set(module.StatusRunning)
	return nil
}

// Recover pings Redis once; the read loop resumes on its own
func (s *StreamsSubscriber) Recover(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach Redis: %w", err)
	}
	s.state.Set(module.StatusRunning)
	return nil
}

// Terminate stops reading and closes the client
func (s *StreamsSubscriber) Terminate(ctx context.Context) error {
	s.state.Set(module.StatusStopping)

	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	err := s.client.Close()
	s.state.Set(module.StatusStopped)
	if err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}
	return nil
}

// readStreams reads messages from the streams until ctx is cancelled
func (s *StreamsSubscriber) readStreams(ctx context.Context, streams []string) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.cfg.ConsumerGroup,
			Consumer: s.cfg.ConsumerName,
			Streams:  streams,
			Count:    s.cfg.BatchSize,
			Block:    s.cfg.Block,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				// No new messages
				s.markRunning()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("failed to read from streams", zap.Error(err))
			s.state.Set(module.StatusFailed)

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		s.markRunning()

		for _, stream := range result {
			for _, msg := range stream.Messages {
				if !s.deliver(ctx, stream.Stream, msg) {
					return
				}
			}
		}
	}
}

// markRunning flips a failed subscriber back to running once reads succeed
func (s *StreamsSubscriber) markRunning() {
	if s.state.Status() == module.StatusFailed {
		s.logger.Info("stream reads resumed")
		s.state.Set(module.StatusRunning)
	}
}

// deliver hands a stream message to the deliveries channel.
// It returns false if ctx was cancelled before the message was taken.
func (s *StreamsSubscriber) deliver(ctx context.Context, streamKey string, raw redis.XMessage) bool {
	data, ok := raw.Values["data"].(string)
	if !ok {
		s.logger.Error("invalid message format",
			zap.String("stream", streamKey),
			zap.String("message_id", raw.ID))
		s.ack(streamKey, raw.ID)
		return true
	}

	var msg message.Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		s.logger.Error("failed to unmarshal message",
			zap.String("stream", streamKey),
			zap.String("message_id", raw.ID),
			zap.Error(err))
		s.ack(streamKey, raw.ID)
		return true
	}

	delivery := transport.NewDelivery(&msg,
		func() error {
			return s.ack(streamKey, raw.ID)
		},
		func(requeue bool) error {
			if requeue {
				return s.requeue(streamKey, raw)
			}
			return s.ack(streamKey, raw.ID)
		},
	)

	select {
	case s.deliveries <- delivery:
		return true
	case <-ctx.Done():
		return false
	}
}

// ack acknowledges a stream entry
func (s *StreamsSubscriber) ack(streamKey, id string) error {
	if err := s.client.XAck(context.Background(), streamKey, s.cfg.ConsumerGroup, id).Err(); err != nil {
		s.logger.Error("failed to acknowledge message",
			zap.String("stream", streamKey),
			zap.String("message_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}
	return nil
}

// requeue appends the entry to its stream again and acknowledges the
// original in one transaction, so the group delivers it as a new entry
func (s *StreamsSubscriber) requeue(streamKey string, raw redis.XMessage) error {
	ctx := context.Background()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey,
			Values: raw.Values,
		})
		pipe.XAck(ctx, streamKey, s.cfg.ConsumerGroup, raw.ID)
		return nil
	})
	if err != nil {
		s.logger.Error("failed to requeue message",
			zap.String("stream", streamKey),
			zap.String("message_id", raw.ID),
			zap.Error(err))
		return fmt.Errorf("failed to requeue message: %w", err)
	}
	return nil
}
