package envelope

// FailureKind classifies where in the dispatch pipeline a failure occurred.
type FailureKind int

const (
	// FailNone indicates no failure occurred.
	FailNone FailureKind = iota
	// FailMalformedPayload indicates the payload was missing, empty, or not a JSON object.
	FailMalformedPayload
	// FailRoutingMismatch indicates the routing key could not be decoded or
	// named a type this process has not registered.
	FailRoutingMismatch
	// FailUnknownAction indicates the decoded action is not in the type's action registry.
	FailUnknownAction
	// FailProjection indicates a declared field's shape conflicted with the schema.
	FailProjection
	// FailBusinessLogic indicates the handler recorded a failure, returned an
	// error, or panicked.
	FailBusinessLogic
	// FailPublishTransport indicates the transport's publish call failed.
	FailPublishTransport
)

// String returns the failure kind name.
func (k FailureKind) String() string {
	switch k {
	case FailNone:
		return "none"
	case FailMalformedPayload:
		return "malformed_payload"
	case FailRoutingMismatch:
		return "routing_mismatch"
	case FailUnknownAction:
		return "unknown_action"
	case FailProjection:
		return "projection_error"
	case FailBusinessLogic:
		return "business_logic_failure"
	case FailPublishTransport:
		return "publish_transport_error"
	default:
		return "unknown"
	}
}
