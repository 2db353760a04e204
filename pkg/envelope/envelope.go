// Package envelope implements the message envelope lifecycle: per-type
// registration of field schemas and action handlers, inbound dispatch from a
// routing key to the bound handler, outbound publishing, and the
// success/failure bookkeeping that drives the accept/reject decision.
package envelope

import (
	"context"
	"fmt"

	"github.com/couriermq/courier/pkg/commsutil"
)

// State tracks an envelope's progress through one dispatch pass.
type State int

const (
	// StateConstructing means the routing key and payload are not yet validated.
	StateConstructing State = iota
	// StateValidated means routing and payload checks passed.
	StateValidated
	// StateDispatched means projection succeeded and the handler was invoked.
	StateDispatched
	// StateTerminal means the pass is complete; the envelope is not re-entrant.
	StateTerminal
)

// Envelope is one in-flight message instance: its payload, the projection of
// that payload onto the type's field schema, and the accumulated outcome.
// Envelopes are not shared between units of work and hold no locks.
type Envelope struct {
	mtype     *MessageType
	registry  *Registry
	raw       []byte
	parsed    map[string]any
	items     map[string]any
	ok        bool
	errs      []string
	kind      FailureKind
	state     State
	inbound   bool
	routeType string
	routeAct  string
}

// TypeName returns the concrete message type name, or "unknown" when routing
// never resolved to a registered type.
func (e *Envelope) TypeName() string {
	if e.mtype == nil {
		return "unknown"
	}
	return e.mtype.name
}

// State returns the envelope's dispatch state.
func (e *Envelope) State() State { return e.state }

// Raw returns the payload as last serialized: the inbound bytes for received
// envelopes, or the bytes handed to the transport after a publish.
func (e *Envelope) Raw() []byte { return e.raw }

// Parsed returns the fully-parsed inbound payload before projection. It may
// contain keys the schema does not declare.
func (e *Envelope) Parsed() map[string]any { return e.parsed }

// Items returns the projected field map. Handlers read and write message
// data through this map and the Get/Set accessors only.
func (e *Envelope) Items() map[string]any { return e.items }

// Get returns the projected value for a top-level field name.
func (e *Envelope) Get(name string) any { return e.items[name] }

// Set stores a projected value under a top-level field name.
func (e *Envelope) Set(name string, value any) { e.items[name] = value }

// GetPath walks nested projected objects by chained field names, returning
// nil when any step is missing or not an object.
func (e *Envelope) GetPath(names ...string) any {
	var cur any = e.items
	for _, name := range names {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[name]
	}
	return cur
}

// Inbound reports whether the envelope was constructed from a delivery.
func (e *Envelope) Inbound() bool { return e.inbound }

// RoutingType returns the decoded type name for inbound envelopes.
func (e *Envelope) RoutingType() string { return e.routeType }

// RoutingAction returns the decoded action for inbound envelopes.
func (e *Envelope) RoutingAction() string { return e.routeAct }

// FailureKind returns the classification of the first infrastructure or
// handler failure, or FailNone.
func (e *Envelope) FailureKind() FailureKind { return e.kind }

// MarkSuccess AND-accumulates success: a prior failure remains a failure.
func (e *Envelope) MarkSuccess() {
	e.ok = e.ok && true
}

// MarkFailure appends a type-tagged error message and marks the envelope
// failed regardless of history.
func (e *Envelope) MarkFailure(msg string) {
	e.markKind(FailBusinessLogic, msg)
}

// ForceSuccess unconditionally marks the envelope successful, ignoring prior
// failures. The error list is left untouched and stays inspectable.
func (e *Envelope) ForceSuccess() {
	e.ok = true
}

// ForceFailure appends a type-tagged error message and unconditionally marks
// the envelope failed.
func (e *Envelope) ForceFailure(msg string) {
	e.errs = append(e.errs, fmt.Sprintf("%s: %s", e.TypeName(), msg))
	e.ok = false
}

// IsSuccessful reports whether the envelope is currently successful.
func (e *Envelope) IsSuccessful() bool { return e.ok }

// IsFailed reports whether the envelope is currently failed.
func (e *Envelope) IsFailed() bool { return !e.ok }

// Errors returns the accumulated error messages, oldest first.
func (e *Envelope) Errors() []string { return e.errs }

// markKind appends a type-tagged error message, marks the envelope failed,
// and records the classification of the first failure.
func (e *Envelope) markKind(kind FailureKind, msg string) {
	e.errs = append(e.errs, fmt.Sprintf("%s: %s", e.TypeName(), msg))
	e.ok = false
	if e.kind == FailNone {
		e.kind = kind
	}
}

// failInfra records an infrastructure failure (routing, payload, projection)
// and drives the envelope terminal without reaching the handler.
func (e *Envelope) failInfra(kind FailureKind, msg string) {
	e.markKind(kind, msg)
	e.state = StateTerminal
}

// Publish serializes the projected fields and hands them to the registry's
// transport under the routing key for the given action. Transport errors are
// folded into the envelope's bookkeeping, never propagated. The return value
// is the post-publish success state; the envelope may be reused for a
// subsequent publish of a different action on the same data.
func (e *Envelope) Publish(ctx context.Context, action string) bool {
	if e.mtype == nil || e.registry == nil {
		e.markKind(FailPublishTransport, "publish: envelope has no registered type")
		return e.IsSuccessful()
	}
	if !commsutil.ValidIdentifier(action) || !e.mtype.HasAction(action) {
		e.markKind(FailUnknownAction, fmt.Sprintf("publish: unknown action %q", action))
		return e.IsSuccessful()
	}

	data, err := commsutil.EncodePayload(e.items)
	if err != nil {
		e.markKind(FailPublishTransport, fmt.Sprintf("publish: encode payload: %v", err))
		return e.IsSuccessful()
	}
	e.raw = data

	key := commsutil.EncodeRoutingKey(e.mtype.name, action)
	origin := e.registry.originMetadata(e.mtype.name)
	if err := e.registry.transport.Publish(ctx, data, key, origin); err != nil {
		e.markKind(FailPublishTransport, fmt.Sprintf("publish: transport: %v", err))
		return e.IsSuccessful()
	}

	e.MarkSuccess()
	return e.IsSuccessful()
}
