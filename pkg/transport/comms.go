package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const commsLogPrefix = "transport:comms"

// Origin metadata header names carried alongside the payload. The payload
// itself stays free of envelope metadata; type and action travel only in the
// routing key and these headers.
const (
	HeaderType    = "Courier-Type"
	HeaderService = "Courier-Service"
)

// CommsTransport publishes envelope payloads to NATS JetStream, using the
// routing key as the subject.
type CommsTransport struct {
	js nats.JetStreamContext
}

// NewCommsTransport creates a new CommsTransport over the given JetStream context.
func NewCommsTransport(js nats.JetStreamContext) *CommsTransport {
	return &CommsTransport{js: js}
}

// Publish sends the payload under the routing key, attaching origin metadata
// as message headers.
func (t *CommsTransport) Publish(ctx context.Context, payload []byte, routingKey string, origin map[string]string) error {
	msg := nats.NewMsg(routingKey)
	msg.Data = payload
	for k, v := range origin {
		msg.Header.Set(k, v)
	}

	if _, err := t.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsLogPrefix, routingKey, err))
		return fmt.Errorf("%s - publish to %s: %w", commsLogPrefix, routingKey, err)
	}

	slog.Debug(fmt.Sprintf("%s - Published %d bytes to %s", commsLogPrefix, len(payload), routingKey))
	return nil
}

// CommsDelivery adapts a JetStream message to the Delivery interface.
type CommsDelivery struct {
	msg *nats.Msg
}

// NewCommsDelivery wraps a JetStream-backed message.
func NewCommsDelivery(msg *nats.Msg) *CommsDelivery {
	return &CommsDelivery{msg: msg}
}

// Accept acknowledges the delivery; the broker considers it consumed.
func (d *CommsDelivery) Accept() error {
	return d.msg.Ack()
}

// Reject negatively acknowledges the delivery for redelivery or dead-lettering
// per the consumer's broker-side policy.
func (d *CommsDelivery) Reject() error {
	return d.msg.Nak()
}
