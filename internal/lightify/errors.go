package lightify

import "errors"

// Domain errors for the Lightify gateway client.
var (
	// ErrNotConnected is returned when the client has been closed.
	ErrNotConnected = errors.New("lightify: not connected to gateway")

	// ErrConnectionFailed is returned when the TCP connection cannot be established.
	ErrConnectionFailed = errors.New("lightify: connection to gateway failed")

	// ErrRequestFailed is returned when a request cannot be written or its
	// response cannot be read.
	ErrRequestFailed = errors.New("lightify: request failed")

	// ErrInvalidResponse is returned when a response frame is malformed.
	ErrInvalidResponse = errors.New("lightify: invalid response")

	// ErrProtocolDesync is returned when a response does not match the
	// request it answers (command or sequence number).
	ErrProtocolDesync = errors.New("lightify: protocol desync")

	// ErrGatewayStatus is returned when the gateway answers with a non-zero status.
	ErrGatewayStatus = errors.New("lightify: gateway returned error status")
)
