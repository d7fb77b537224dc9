// Package transport provides the publisher and subscriber clients the worker
// uses to move messages.
//
// Implementations:
//   - redis: Redis Streams with consumer groups
//   - amqp: RabbitMQ topic exchange with a durable queue per worker group
//   - memory: in-process bus for tests and single-process setups
//
// Messages are addressed by route: publishers deliver a message to its
// route, subscribers consume a configured set of routes.
package transport
