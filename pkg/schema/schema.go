// Package schema declares per-message-type field schemas and projects
// loosely-structured payloads onto them.
package schema

import "fmt"

const logPrefix = "schema:schema"

// Field is a single specifier in a Schema: a scalar leaf when Nested is nil,
// otherwise an object-valued field projected recursively with Nested.
type Field struct {
	Name   string
	Nested Schema
}

// Schema is an ordered sequence of field specifiers. Declaration order is
// part of the schema's identity (preserved by Names and Fields); projection
// itself is order-independent. A Schema is declared once per message type
// and must not be mutated afterwards.
type Schema []Field

// Scalar returns a leaf field specifier.
func Scalar(name string) Field {
	return Field{Name: name}
}

// Object returns a nested field specifier projected with the given sub-schema.
func Object(name string, nested Schema) Field {
	return Field{Name: name, Nested: nested}
}

// Names returns the declared top-level field names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for _, f := range s {
		names = append(names, f.Name)
	}
	return names
}

// Validate checks the schema for empty or duplicate field names, recursively.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if f.Name == "" {
			return fmt.Errorf("%s - empty field name", logPrefix)
		}
		if seen[f.Name] {
			return fmt.Errorf("%s - duplicate field %q", logPrefix, f.Name)
		}
		seen[f.Name] = true
		if f.Nested != nil {
			if err := f.Nested.Validate(); err != nil {
				return fmt.Errorf("%s - nested field %q: %w", logPrefix, f.Name, err)
			}
		}
	}
	return nil
}
