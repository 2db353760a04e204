package envelope

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/couriermq/courier/pkg/commsutil"
	"github.com/couriermq/courier/pkg/schema"
	"github.com/couriermq/courier/pkg/transport"
)

const registryLogPrefix = "envelope:registry"

// Handler processes one dispatched envelope. A returned non-nil error is
// recorded on the envelope as a failure; handlers may also drive the outcome
// directly through the envelope's bookkeeping methods.
type Handler func(ctx context.Context, env *Envelope) error

// MessageType is one registered message type: its field schema and its
// action dispatch table. Immutable after registration.
type MessageType struct {
	name    string
	version string
	schema  schema.Schema
	actions map[string]Handler
}

// Name returns the registered type name.
func (t *MessageType) Name() string { return t.name }

// Version returns the declared contract version, or "" when unversioned.
func (t *MessageType) Version() string { return t.version }

// Schema returns the declared field schema.
func (t *MessageType) Schema() schema.Schema { return t.schema }

// Actions returns the registered action names, sorted.
func (t *MessageType) Actions() []string {
	names := make([]string, 0, len(t.actions))
	for name := range t.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasAction reports whether the action is registered for this type.
func (t *MessageType) HasAction(action string) bool {
	_, ok := t.actions[action]
	return ok
}

// Registry maps concrete message type names to their schemas and dispatch
// tables. Types are registered at process startup; after that the registry
// is read-only and safe for unsynchronized concurrent dispatch.
type Registry struct {
	types     map[string]*MessageType
	transport transport.Transport
	service   string
}

// New creates a Registry publishing through the given transport. The service
// name is attached to outbound messages as origin metadata.
func New(t transport.Transport, service string) *Registry {
	return &Registry{
		types:     make(map[string]*MessageType),
		transport: t,
		service:   service,
	}
}

// Register declares a message type: its name, contract version, field
// schema, and one bound handler per action. Every declared action must carry
// a handler; names must be valid routing-key identifiers. Register must not
// be called after dispatch has started.
func (r *Registry) Register(name, version string, s schema.Schema, actions map[string]Handler) error {
	if !commsutil.ValidIdentifier(name) {
		return fmt.Errorf("%s - invalid type name %q", registryLogPrefix, name)
	}
	if _, exists := r.types[name]; exists {
		return fmt.Errorf("%s - type %q already registered", registryLogPrefix, name)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%s - type %q schema: %w", registryLogPrefix, name, err)
	}
	if len(actions) == 0 {
		return fmt.Errorf("%s - type %q declares no actions", registryLogPrefix, name)
	}
	bound := make(map[string]Handler, len(actions))
	for action, h := range actions {
		if !commsutil.ValidIdentifier(action) {
			return fmt.Errorf("%s - type %q: invalid action name %q", registryLogPrefix, name, action)
		}
		if h == nil {
			return fmt.Errorf("%s - type %q: action %q has no handler", registryLogPrefix, name, action)
		}
		bound[action] = h
	}

	r.types[name] = &MessageType{name: name, version: version, schema: s, actions: bound}
	slog.Info(fmt.Sprintf("%s - Registered type %s with %d actions", registryLogPrefix, name, len(bound)))
	return nil
}

// Lookup returns the registered type by name.
func (r *Registry) Lookup(name string) (*MessageType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns all registered types sorted by name.
func (r *Registry) Types() []*MessageType {
	out := make([]*MessageType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// NewEnvelope creates an outbound envelope for a registered type. The caller
// populates its projected fields through Set, then calls Publish.
func (r *Registry) NewEnvelope(typeName string) (*Envelope, error) {
	t, ok := r.types[typeName]
	if !ok {
		return nil, fmt.Errorf("%s - unknown type %q", registryLogPrefix, typeName)
	}
	return &Envelope{
		mtype:    t,
		registry: r,
		items:    make(map[string]any),
		ok:       true,
		state:    StateConstructing,
	}, nil
}

// Receive runs one complete inbound dispatch pass: decode the routing key,
// validate it against the registered types and actions, parse and project
// the payload, invoke the bound handler, and leave the envelope terminal.
// Every failure is folded into the returned envelope's state; Receive never
// returns an error and never panics out of a handler.
func (r *Registry) Receive(ctx context.Context, payload []byte, routingKey string) *Envelope {
	env := &Envelope{
		registry: r,
		raw:      payload,
		ok:       true,
		inbound:  true,
		state:    StateConstructing,
	}

	typeName, action, err := commsutil.DecodeRoutingKey(routingKey)
	if err != nil {
		env.failInfra(FailRoutingMismatch, fmt.Sprintf("routing key %q: %v", routingKey, err))
		return env
	}
	env.routeType = typeName
	env.routeAct = action

	t, ok := r.types[typeName]
	if !ok {
		env.failInfra(FailRoutingMismatch, fmt.Sprintf("routing key %q names unregistered type", routingKey))
		return env
	}
	env.mtype = t

	if !t.HasAction(action) {
		env.failInfra(FailUnknownAction, fmt.Sprintf("action %q is not registered", action))
		return env
	}

	parsed, err := commsutil.DecodeObject(payload)
	if err != nil {
		env.failInfra(FailMalformedPayload, fmt.Sprintf("payload: %v", err))
		return env
	}
	env.parsed = parsed
	env.state = StateValidated

	items, err := schema.Project(parsed, t.schema)
	if err != nil {
		env.failInfra(FailProjection, err.Error())
		return env
	}
	env.items = items
	env.state = StateDispatched

	// Assume success; the handler's bookkeeping decides the terminal state.
	env.ForceSuccess()
	r.invoke(ctx, t.actions[action], env)
	env.state = StateTerminal

	slog.Debug(fmt.Sprintf("%s - Dispatched %s.%s: %s", registryLogPrefix, typeName, action, Decide(env)))
	return env
}

// invoke runs the handler, converting a returned error or a panic into a
// recorded failure rather than letting it escape the dispatch pass.
func (r *Registry) invoke(ctx context.Context, h Handler, env *Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			env.markKind(FailBusinessLogic, fmt.Sprintf("handler panic: %v", rec))
			slog.Error(fmt.Sprintf("%s - handler panic on %s: %v", registryLogPrefix, env.TypeName(), rec))
		}
	}()

	if err := h(ctx, env); err != nil {
		env.markKind(FailBusinessLogic, err.Error())
	}
}

// originMetadata builds the headers attached to outbound publishes.
func (r *Registry) originMetadata(typeName string) map[string]string {
	return map[string]string{
		transport.HeaderType:    typeName,
		transport.HeaderService: r.service,
	}
}
