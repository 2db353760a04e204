// Package transport defines the broker collaborator consumed by the
// envelope layer: publishing outbound payloads and accepting or rejecting
// inbound deliveries.
package transport

import "context"

// Transport publishes serialized envelope payloads under a routing key.
// Implementations must be safe for concurrent use; the envelope layer does
// not serialize publishes.
type Transport interface {
	Publish(ctx context.Context, payload []byte, routingKey string, origin map[string]string) error
}

// Delivery is the acknowledgment handle for one inbound message. Exactly one
// of Accept or Reject is called per delivery, after dispatch reaches its
// terminal state.
type Delivery interface {
	Accept() error
	Reject() error
}

// NoOpTransport is a Transport that discards publishes (for in-process usage
// without a broker).
type NoOpTransport struct{}

// Publish is a no-op.
func (t *NoOpTransport) Publish(_ context.Context, _ []byte, _ string, _ map[string]string) error {
	return nil
}

// CallbackTransport is a Transport that calls a callback function (for testing).
type CallbackTransport struct {
	callback func(ctx context.Context, payload []byte, routingKey string, origin map[string]string) error
}

// NewCallbackTransport creates a new CallbackTransport.
func NewCallbackTransport(cb func(ctx context.Context, payload []byte, routingKey string, origin map[string]string) error) *CallbackTransport {
	return &CallbackTransport{callback: cb}
}

// Publish calls the callback.
func (t *CallbackTransport) Publish(ctx context.Context, payload []byte, routingKey string, origin map[string]string) error {
	return t.callback(ctx, payload, routingKey, origin)
}
