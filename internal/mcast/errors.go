package mcast

import "errors"

var (
	// ErrResolve is returned when the group address or port cannot be resolved.
	ErrResolve = errors.New("address resolution failed")

	// ErrNotMulticast is returned when the resolved address is not a group address.
	ErrNotMulticast = errors.New("not a multicast address")

	// ErrSocketSetup wraps every failure after resolution: opening, binding,
	// socket options and group membership.
	ErrSocketSetup = errors.New("multicast socket setup failed")

	// ErrNoInterface is returned (wrapped in ErrSocketSetup) when a named
	// interface does not exist or lacks an address of the right family.
	ErrNoInterface = errors.New("no such multicast interface")
)
