// Package contract loads the message contract file and verifies registered
// message types against it.
package contract

// Message is one message-type entry in the contract: the version the
// producer side was built against, the range of versions a consumer may
// register, and the actions the type must support.
type Message struct {
	Version string   `json:"version"`
	Compat  string   `json:"compat,omitempty"`
	Actions []string `json:"actions"`
}

// Contract is the root contract document shared by producers and consumers.
type Contract struct {
	Name        string             `json:"name"`
	Version     string             `json:"version"`
	Description string             `json:"description,omitempty"`
	Messages    map[string]Message `json:"messages"`
}
