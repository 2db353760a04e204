// Package journal records rejected deliveries in Postgres for diagnostics.
package journal

import (
	"context"
	"time"

	"github.com/couriermq/courier/pkg/envelope"
)

// Entry is one journaled dispatch failure.
type Entry struct {
	ID          int64
	MessageType string
	Action      string
	RoutingKey  string
	FailureKind string
	Errors      []string
	Payload     []byte
	Created     time.Time
}

// Journal persists dispatch failures. Recording is best-effort: a journal
// error must not change the delivery's ack decision.
type Journal interface {
	RecordFailure(ctx context.Context, entry Entry) error
}

// NoOpJournal is a Journal that discards entries (journal disabled).
type NoOpJournal struct{}

// RecordFailure is a no-op.
func (j *NoOpJournal) RecordFailure(_ context.Context, _ Entry) error {
	return nil
}

// EntryFromEnvelope builds a journal entry from a rejected envelope.
func EntryFromEnvelope(env *envelope.Envelope, routingKey string) Entry {
	return Entry{
		MessageType: env.TypeName(),
		Action:      env.RoutingAction(),
		RoutingKey:  routingKey,
		FailureKind: env.FailureKind().String(),
		Errors:      env.Errors(),
		Payload:     env.Raw(),
	}
}
