package archive

import "errors"

// Sentinel errors for the sensor archive.
var (
	// ErrInvalidPayload indicates a mapped topic carried a payload that is not a JSON object.
	ErrInvalidPayload = errors.New("archive: invalid payload")

	// ErrStoreFailed wraps a sink failure for one document.
	ErrStoreFailed = errors.New("archive: store failed")
)
