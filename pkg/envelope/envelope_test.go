package envelope

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/couriermq/courier/pkg/schema"
	"github.com/couriermq/courier/pkg/transport"
)

func newTestRegistry(t *testing.T, actions map[string]Handler) *Registry {
	t.Helper()

	if actions == nil {
		actions = map[string]Handler{
			"validate": func(ctx context.Context, env *Envelope) error { return nil },
			"ship":     func(ctx context.Context, env *Envelope) error { return nil },
		}
	}

	reg := New(&transport.NoOpTransport{}, "courier-test")
	s := schema.Schema{
		schema.Scalar("amount"),
		schema.Scalar("currency"),
		schema.Object("customer", schema.Schema{schema.Scalar("id"), schema.Scalar("name")}),
	}
	if err := reg.Register("Order", "1.0.0", s, actions); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return reg
}

func TestBookkeeping_AccumulationLaw(t *testing.T) {
	reg := newTestRegistry(t, nil)
	env, err := reg.NewEnvelope("Order")
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}

	env.MarkSuccess()
	if env.IsFailed() {
		t.Fatal("fresh envelope should be successful")
	}

	env.MarkFailure("bad amount")
	env.MarkSuccess()
	if !env.IsFailed() {
		t.Error("MarkSuccess must not erase an earlier MarkFailure")
	}

	env.MarkFailure("bad currency")
	want := []string{"Order: bad amount", "Order: bad currency"}
	if !reflect.DeepEqual(env.Errors(), want) {
		t.Errorf("Errors() = %v, want %v", env.Errors(), want)
	}
}

func TestBookkeeping_ForceSuccessKeepsErrors(t *testing.T) {
	reg := newTestRegistry(t, nil)
	env, _ := reg.NewEnvelope("Order")

	env.MarkFailure("bad amount")
	env.ForceSuccess()

	if env.IsFailed() {
		t.Error("ForceSuccess must clear the failed state")
	}
	if len(env.Errors()) != 1 {
		t.Errorf("error list must survive ForceSuccess, got %v", env.Errors())
	}
	if Decide(env) != Accept {
		t.Error("forced success must yield Accept")
	}
}

func TestBookkeeping_ForceFailure(t *testing.T) {
	reg := newTestRegistry(t, nil)
	env, _ := reg.NewEnvelope("Order")

	env.ForceSuccess()
	env.ForceFailure("fatal")
	if !env.IsFailed() {
		t.Error("ForceFailure must mark the envelope failed")
	}
	if got := env.Errors(); len(got) != 1 || got[0] != "Order: fatal" {
		t.Errorf("Errors() = %v, want [Order: fatal]", got)
	}
}

func TestReceive_DispatchesRegisteredAction(t *testing.T) {
	var shipped bool
	actions := map[string]Handler{
		"validate": func(ctx context.Context, env *Envelope) error { return nil },
		"ship": func(ctx context.Context, env *Envelope) error {
			shipped = true
			if env.Get("amount") != float64(42) {
				t.Errorf("amount = %v, want 42", env.Get("amount"))
			}
			return nil
		},
	}
	reg := newTestRegistry(t, actions)

	env := reg.Receive(context.Background(), []byte(`{"amount": 42, "extra": true}`), "Order.ship")

	if !shipped {
		t.Fatal("ship handler was not invoked")
	}
	if env.IsFailed() {
		t.Fatalf("dispatch failed: %v", env.Errors())
	}
	if env.State() != StateTerminal {
		t.Errorf("State = %v, want terminal", env.State())
	}
	if env.RoutingType() != "Order" || env.RoutingAction() != "ship" {
		t.Errorf("routing = (%s, %s), want (Order, ship)", env.RoutingType(), env.RoutingAction())
	}
	if !env.Inbound() {
		t.Error("received envelope should be inbound")
	}
	if Decide(env) != Accept {
		t.Error("successful dispatch must yield Accept")
	}
}

func TestReceive_ProjectsPayload(t *testing.T) {
	var handled *Envelope
	actions := map[string]Handler{
		"validate": func(ctx context.Context, env *Envelope) error { handled = env; return nil },
		"ship":     func(ctx context.Context, env *Envelope) error { return nil },
	}
	reg := newTestRegistry(t, actions)

	payload := []byte(`{"amount": 10, "currency": "EUR", "customer": {"id": "c1", "name": "Ada", "vip": true}, "junk": 1}`)
	env := reg.Receive(context.Background(), payload, "Order.validate")
	if env.IsFailed() {
		t.Fatalf("dispatch failed: %v", env.Errors())
	}

	want := map[string]any{
		"amount":   float64(10),
		"currency": "EUR",
		"customer": map[string]any{"id": "c1", "name": "Ada"},
	}
	if !reflect.DeepEqual(handled.Items(), want) {
		t.Errorf("Items = %v, want %v", handled.Items(), want)
	}
	// Parsed form keeps the undeclared keys for diagnostics.
	if _, ok := handled.Parsed()["junk"]; !ok {
		t.Error("Parsed() should retain undeclared keys")
	}
	if handled.GetPath("customer", "name") != "Ada" {
		t.Errorf("GetPath(customer, name) = %v, want Ada", handled.GetPath("customer", "name"))
	}
}

func TestReceive_UnknownActionSkipsHandlers(t *testing.T) {
	invoked := false
	actions := map[string]Handler{
		"validate": func(ctx context.Context, env *Envelope) error { invoked = true; return nil },
		"ship":     func(ctx context.Context, env *Envelope) error { invoked = true; return nil },
	}
	reg := newTestRegistry(t, actions)

	env := reg.Receive(context.Background(), []byte(`{"amount": 1}`), "Order.cancelX")

	if invoked {
		t.Error("no handler may run for an unknown action")
	}
	if env.FailureKind() != FailUnknownAction {
		t.Errorf("FailureKind = %v, want unknown_action", env.FailureKind())
	}
	if Decide(env) != Reject {
		t.Error("unknown action must yield Reject")
	}
}

func TestReceive_InfrastructureFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		key     string
		kind    FailureKind
	}{
		{"no delimiter", []byte(`{}`), "OrderShip", FailRoutingMismatch},
		{"unregistered type", []byte(`{}`), "Invoice.create", FailRoutingMismatch},
		{"empty payload", nil, "Order.ship", FailMalformedPayload},
		{"non-object payload", []byte(`[1,2]`), "Order.ship", FailMalformedPayload},
		{"garbage payload", []byte(`{nope`), "Order.ship", FailMalformedPayload},
		{"shape conflict", []byte(`{"customer": "not-an-object"}`), "Order.ship", FailProjection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoked := false
			actions := map[string]Handler{
				"validate": func(ctx context.Context, env *Envelope) error { invoked = true; return nil },
				"ship":     func(ctx context.Context, env *Envelope) error { invoked = true; return nil },
			}
			reg := newTestRegistry(t, actions)

			env := reg.Receive(context.Background(), tt.payload, tt.key)

			if invoked {
				t.Error("handler must not run on infrastructure failure")
			}
			if env.FailureKind() != tt.kind {
				t.Errorf("FailureKind = %v, want %v", env.FailureKind(), tt.kind)
			}
			if !env.IsFailed() || Decide(env) != Reject {
				t.Error("infrastructure failure must reject")
			}
			if env.State() != StateTerminal {
				t.Errorf("State = %v, want terminal", env.State())
			}
			if len(env.Errors()) == 0 {
				t.Error("failure must leave an error message")
			}
		})
	}
}

func TestReceive_HandlerFailureRejects(t *testing.T) {
	actions := map[string]Handler{
		"validate": func(ctx context.Context, env *Envelope) error { return nil },
		"ship": func(ctx context.Context, env *Envelope) error {
			env.MarkFailure("bad amount")
			return nil
		},
	}
	reg := newTestRegistry(t, actions)

	env := reg.Receive(context.Background(), []byte(`{"amount": -1}`), "Order.ship")

	want := []string{"Order: bad amount"}
	if !reflect.DeepEqual(env.Errors(), want) {
		t.Errorf("Errors() = %v, want %v", env.Errors(), want)
	}
	if env.FailureKind() != FailBusinessLogic {
		t.Errorf("FailureKind = %v, want business_logic_failure", env.FailureKind())
	}
	if Decide(env) != Reject {
		t.Error("handler failure must yield Reject")
	}
}

func TestReceive_HandlerErrorReturnRecorded(t *testing.T) {
	actions := map[string]Handler{
		"validate": func(ctx context.Context, env *Envelope) error { return errors.New("boom") },
		"ship":     func(ctx context.Context, env *Envelope) error { return nil },
	}
	reg := newTestRegistry(t, actions)

	env := reg.Receive(context.Background(), []byte(`{}`), "Order.validate")
	if !env.IsFailed() {
		t.Fatal("returned error must fail the envelope")
	}
	if got := env.Errors(); len(got) != 1 || got[0] != "Order: boom" {
		t.Errorf("Errors() = %v, want [Order: boom]", got)
	}
}

func TestReceive_HandlerPanicRecovered(t *testing.T) {
	actions := map[string]Handler{
		"validate": func(ctx context.Context, env *Envelope) error { panic("kaboom") },
		"ship":     func(ctx context.Context, env *Envelope) error { return nil },
	}
	reg := newTestRegistry(t, actions)

	env := reg.Receive(context.Background(), []byte(`{}`), "Order.validate")
	if !env.IsFailed() {
		t.Fatal("panic must fail the envelope")
	}
	if env.State() != StateTerminal {
		t.Errorf("State = %v, want terminal", env.State())
	}
}

func TestReceive_HandlerForceSuccessOverridesEarlierFailure(t *testing.T) {
	actions := map[string]Handler{
		"validate": func(ctx context.Context, env *Envelope) error { return nil },
		"ship": func(ctx context.Context, env *Envelope) error {
			env.MarkFailure("transient")
			env.ForceSuccess()
			return nil
		},
	}
	reg := newTestRegistry(t, actions)

	env := reg.Receive(context.Background(), []byte(`{}`), "Order.ship")
	if Decide(env) != Accept {
		t.Error("ForceSuccess inside a handler must produce Accept")
	}
	if len(env.Errors()) != 1 {
		t.Errorf("error list must stay inspectable, got %v", env.Errors())
	}
}

func TestRegister_Validation(t *testing.T) {
	noop := func(ctx context.Context, env *Envelope) error { return nil }
	s := schema.Schema{schema.Scalar("a")}

	tests := []struct {
		name     string
		typeName string
		schema   schema.Schema
		actions  map[string]Handler
	}{
		{"delimiter in type name", "Order.v2", s, map[string]Handler{"go": noop}},
		{"empty type name", "", s, map[string]Handler{"go": noop}},
		{"no actions", "Order", s, map[string]Handler{}},
		{"nil handler", "Order", s, map[string]Handler{"go": nil}},
		{"delimiter in action", "Order", s, map[string]Handler{"go.fast": noop}},
		{"bad schema", "Order", schema.Schema{schema.Scalar("a"), schema.Scalar("a")}, map[string]Handler{"go": noop}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(&transport.NoOpTransport{}, "courier-test")
			if err := reg.Register(tt.typeName, "", tt.schema, tt.actions); err == nil {
				t.Error("expected registration error")
			}
		})
	}
}

func TestRegister_DuplicateType(t *testing.T) {
	noop := func(ctx context.Context, env *Envelope) error { return nil }
	reg := New(&transport.NoOpTransport{}, "courier-test")
	s := schema.Schema{schema.Scalar("a")}

	if err := reg.Register("Order", "1.0.0", s, map[string]Handler{"go": noop}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := reg.Register("Order", "1.0.0", s, map[string]Handler{"go": noop}); err == nil {
		t.Error("duplicate registration must fail")
	}
}

func TestMessageType_Introspection(t *testing.T) {
	reg := newTestRegistry(t, nil)
	mt, ok := reg.Lookup("Order")
	if !ok {
		t.Fatal("Lookup(Order) failed")
	}
	if !reflect.DeepEqual(mt.Actions(), []string{"ship", "validate"}) {
		t.Errorf("Actions = %v", mt.Actions())
	}
	// Schema introspection preserves declaration order.
	want := []string{"amount", "currency", "customer"}
	if !reflect.DeepEqual(mt.Schema().Names(), want) {
		t.Errorf("Schema names = %v, want %v", mt.Schema().Names(), want)
	}
	if mt.Version() != "1.0.0" {
		t.Errorf("Version = %q", mt.Version())
	}
}
