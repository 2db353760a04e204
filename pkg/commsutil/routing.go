package commsutil

import (
	"fmt"
	"strings"
)

// Delimiter separates the message type name from the action in a routing key.
const Delimiter = "."

// ErrNoDelimiter is returned by DecodeRoutingKey when the key contains no
// delimiter and therefore cannot carry both a type name and an action.
var ErrNoDelimiter = fmt.Errorf("commsutil:routing - routing key has no %q delimiter", Delimiter)

// EncodeRoutingKey builds the wire routing key "<typeName>.<action>".
// The caller must ensure typeName does not contain the delimiter; keys built
// from such names will not round-trip through DecodeRoutingKey.
func EncodeRoutingKey(typeName, action string) string {
	return typeName + Delimiter + action
}

// DecodeRoutingKey splits a routing key into its type name and action.
// The type name is everything before the first delimiter; the action is the
// whole remainder, so multi-segment actions survive decoding intact.
func DecodeRoutingKey(key string) (typeName, action string, err error) {
	typeName, action, found := strings.Cut(key, Delimiter)
	if !found {
		return "", "", ErrNoDelimiter
	}
	return typeName, action, nil
}

// TypeSubject returns the subscription subject matching every action of a
// message type.
func TypeSubject(typeName string) string {
	return typeName + Delimiter + "*"
}

// ValidIdentifier reports whether a type or action name may appear in a
// routing key: non-empty and free of the delimiter.
func ValidIdentifier(name string) bool {
	return name != "" && !strings.Contains(name, Delimiter)
}
