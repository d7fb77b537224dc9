package executor

import (
	"context"
	"encoding/json"

	"github.com/aescanero/patchwork/pkg/message"
	"go.uber.org/zap"
)

// LogRouter logs each message and produces no reply
func LogRouter(logger *zap.Logger) message.Router {
	return message.RouterFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		logger.Info("message received",
			zap.String("message_id", msg.ID),
			zap.String("route", msg.Route),
			zap.Int("payload_bytes", len(msg.Payload)))
		return nil, nil
	})
}

// EchoRouter replies with the message payload
func EchoRouter() message.Router {
	return message.RouterFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		return msg.Reply(json.RawMessage(msg.Payload))
	})
}
