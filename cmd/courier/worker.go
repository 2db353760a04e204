package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/couriermq/courier/pkg/envelope"
	"github.com/couriermq/courier/pkg/schema"
	"github.com/couriermq/courier/pkg/transport"
)

// orderSchema declares the fields the reference Order type recognizes.
// Undeclared payload keys are dropped at projection time.
var orderSchema = schema.Schema{
	schema.Scalar("amount"),
	schema.Scalar("currency"),
	schema.Object("customer", schema.Schema{
		schema.Scalar("id"),
		schema.Scalar("name"),
	}),
	schema.Object("items", schema.Schema{
		schema.Scalar("sku"),
		schema.Scalar("qty"),
	}),
}

// registerDemoTypes registers the reference worker's message types. Replace
// this with your own registrations when embedding the worker.
func registerDemoTypes(reg *envelope.Registry) error {
	return reg.Register("Order", "1.0.0", orderSchema, map[string]envelope.Handler{
		"validate": validateOrder,
		"ship":     shipOrder,
	})
}

// demoRegistry builds the reference registrations against a no-op transport,
// for contract validation without a broker.
func demoRegistry() (*envelope.Registry, error) {
	reg := envelope.New(&transport.NoOpTransport{}, "courier")
	if err := registerDemoTypes(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func validateOrder(ctx context.Context, env *envelope.Envelope) error {
	amount, ok := env.Get("amount").(float64)
	if !ok || amount <= 0 {
		env.MarkFailure(fmt.Sprintf("invalid amount %v", env.Get("amount")))
	}
	if env.Get("currency") == nil {
		env.MarkFailure("missing currency")
	}
	if env.IsSuccessful() {
		env.MarkSuccess()
	}
	return nil
}

func shipOrder(ctx context.Context, env *envelope.Envelope) error {
	if env.GetPath("customer", "id") == nil {
		env.MarkFailure("cannot ship without customer id")
		return nil
	}
	env.MarkSuccess()
	return nil
}

// rewriteDatabaseName replaces the database name in a Postgres URL.
func rewriteDatabaseName(databaseURL, dbName string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return databaseURL
	}
	u.Path = "/" + dbName
	return u.String()
}
