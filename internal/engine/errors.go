package engine

import (
	"fmt"

	"github.com/statecraft-io/statecraft/internal/ir"
)

// ConfigurationError is fatal at plan time: the desired graph itself is
// unusable (dependency cycle, malformed address, conflicting expansion). No
// provider call is ever attempted once one is raised.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// AddressInUseError rejects an import or move whose target address already
// has a resource record. No state mutation happens.
type AddressInUseError struct {
	Address ir.Address
}

func (e *AddressInUseError) Error() string {
	return fmt.Sprintf("address %s already has a resource record", e.Address)
}

// NotFoundError rejects an import whose provider id does not resolve, or a
// move/remove whose source address has no record.
type NotFoundError struct {
	Subject string
}

func (e *NotFoundError) Error() string {
	return e.Subject + " not found"
}
