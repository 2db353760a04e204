package contract

import (
	"fmt"
	"log/slog"
	"sort"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/couriermq/courier/pkg/envelope"
)

const verifyLogPrefix = "contract:verify"

// Verify checks the registered message types against the contract: every
// contract message must be registered with at least the declared actions,
// and its registered version must satisfy the declared compatibility range.
// Call after registration at startup, before consuming any delivery.
func Verify(c *Contract, reg *envelope.Registry) error {
	names := make([]string, 0, len(c.Messages))
	for name := range c.Messages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		msg := c.Messages[name]
		mt, ok := reg.Lookup(name)
		if !ok {
			return fmt.Errorf("%s - contract message %q is not registered", verifyLogPrefix, name)
		}
		for _, action := range msg.Actions {
			if !mt.HasAction(action) {
				return fmt.Errorf("%s - type %q: contract action %q has no handler", verifyLogPrefix, name, action)
			}
		}
		if err := checkVersion(name, msg, mt.Version()); err != nil {
			return err
		}
	}

	slog.Info(fmt.Sprintf("%s - Contract %s %s verified: %d message types", verifyLogPrefix, c.Name, c.Version, len(c.Messages)))
	return nil
}

func checkVersion(name string, msg Message, registered string) error {
	if msg.Compat == "" {
		return nil
	}
	constraint, err := masterminds.NewConstraint(msg.Compat)
	if err != nil {
		return fmt.Errorf("%s - type %q: invalid compat range %q: %w", verifyLogPrefix, name, msg.Compat, err)
	}
	if registered == "" {
		return fmt.Errorf("%s - type %q: contract requires %s but the registered type is unversioned", verifyLogPrefix, name, msg.Compat)
	}
	ver, err := masterminds.NewVersion(registered)
	if err != nil {
		return fmt.Errorf("%s - type %q: invalid registered version %q: %w", verifyLogPrefix, name, registered, err)
	}
	if !constraint.Check(ver) {
		return fmt.Errorf("%s - type %q: registered version %s does not satisfy %s", verifyLogPrefix, name, registered, msg.Compat)
	}
	return nil
}
