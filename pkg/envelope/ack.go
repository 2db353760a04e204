package envelope

// Decision is the terminal accept/reject signal handed to the transport.
type Decision int

const (
	// Reject signals the delivery failed and may be redelivered or dead-lettered.
	Reject Decision = iota
	// Accept signals the delivery was consumed successfully.
	Accept
)

// String returns the decision name.
func (d Decision) String() string {
	if d == Accept {
		return "accept"
	}
	return "reject"
}

// Decide maps an envelope's terminal state to an acknowledgment decision:
// Accept if and only if the envelope is successful when dispatch completes.
// Decide performs no I/O; translating the decision into the broker's
// acknowledge/reject primitive is the transport's job.
func Decide(e *Envelope) Decision {
	if e.IsSuccessful() {
		return Accept
	}
	return Reject
}
