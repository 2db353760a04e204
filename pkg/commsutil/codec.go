package commsutil

import (
	"encoding/json"
	"fmt"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// DecodeObject parses JSON bytes that must form a single object. Empty input
// and non-object documents (arrays, scalars) are errors; inbound payloads
// carry their fields as a top-level object.
func DecodeObject(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s - empty payload", codecLogPrefix)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%s - payload is not a JSON object: %w", codecLogPrefix, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%s - payload is null", codecLogPrefix)
	}
	return obj, nil
}
