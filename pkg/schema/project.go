package schema

import "fmt"

const projectLogPrefix = "schema:project"

// ProjectionError reports a shape conflict between a declared field and the
// value actually found in the input.
type ProjectionError struct {
	Field  string
	Reason string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("%s - field %q: %s", projectLogPrefix, e.Field, e.Reason)
}

// Project extracts the declared subset of input into a new map.
//
// Scalar fields are copied verbatim when present (a nil value is copied; an
// absent key produces no entry). Nested fields are skipped entirely when
// absent or nil, projected recursively when the value is an object, and
// projected element-wise when the value is an array of objects. Any other
// shape under a nested field is a ProjectionError.
//
// Project never mutates input or the schema and is safe for concurrent use.
func Project(input map[string]any, s Schema) (map[string]any, error) {
	out := make(map[string]any, len(s))
	for _, f := range s {
		val, ok := input[f.Name]
		if f.Nested == nil {
			if ok {
				out[f.Name] = val
			}
			continue
		}
		if !ok || val == nil {
			// Optional nested object: no entry, not an error.
			continue
		}
		projected, err := projectNested(f.Name, val, f.Nested)
		if err != nil {
			return nil, err
		}
		out[f.Name] = projected
	}
	return out, nil
}

func projectNested(name string, val any, s Schema) (any, error) {
	switch v := val.(type) {
	case map[string]any:
		return Project(v, s)
	case []any:
		items := make([]any, 0, len(v))
		for i, elem := range v {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, &ProjectionError{
					Field:  name,
					Reason: fmt.Sprintf("element %d is %T, want object", i, elem),
				}
			}
			projected, err := Project(obj, s)
			if err != nil {
				return nil, err
			}
			items = append(items, projected)
		}
		return items, nil
	default:
		return nil, &ProjectionError{
			Field:  name,
			Reason: fmt.Sprintf("value is %T, want object or array of objects", val),
		}
	}
}
