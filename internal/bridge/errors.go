package bridge

import "errors"

// Domain errors for the lighting bridge.
//
// Per-message errors (everything except ErrRegistryUnreachable) are logged
// and end the handling of that message only.
var (
	// ErrUnroutable is returned when a topic does not address a channel the
	// bridge handles.
	ErrUnroutable = errors.New("bridge: unroutable topic")

	// ErrNotFound is returned when a device id is not in the registry.
	ErrNotFound = errors.New("bridge: device not found")

	// ErrInvalidFormat is returned for a malformed RGB value.
	ErrInvalidFormat = errors.New("bridge: invalid format")

	// ErrParse is returned when a numeric datapoint value or a command
	// payload cannot be parsed.
	ErrParse = errors.New("bridge: parse error")

	// ErrUnknownDatapoint is returned when a set command names a datapoint
	// that cannot be written.
	ErrUnknownDatapoint = errors.New("bridge: unknown datapoint")

	// ErrUnknownCommand is returned when no handler exists for a command name.
	ErrUnknownCommand = errors.New("bridge: unknown command")

	// ErrUnknownAccessor is returned when the info command names an
	// accessor the gateway does not provide.
	ErrUnknownAccessor = errors.New("bridge: unknown accessor")

	// ErrMutationFailed is returned when the gateway rejects or fails a mutation.
	ErrMutationFailed = errors.New("bridge: mutation failed")

	// ErrRegistryUnreachable is returned when the gateway cannot be queried
	// during a registry refresh. It ends the session.
	ErrRegistryUnreachable = errors.New("bridge: registry unreachable")

	// ErrConnectionStateOutOfBounds is returned for a connection state
	// outside 0, 1 and 2.
	ErrConnectionStateOutOfBounds = errors.New("bridge: connect status has to be either 0, 1 or 2")

	// ErrNotReady is returned when a message arrives before the device
	// registry has been synchronised.
	ErrNotReady = errors.New("bridge: not ready")
)
