package elasticsearch

import "errors"

// Sentinel errors for Elasticsearch operations.
var (
	// ErrNotConfigured indicates no cluster address is configured.
	ErrNotConfigured = errors.New("elasticsearch: no addresses configured")

	// ErrConnectionFailed indicates the client could not be created or the cluster did not answer.
	ErrConnectionFailed = errors.New("elasticsearch: connection failed")

	// ErrIndexFailed indicates a document could not be indexed.
	ErrIndexFailed = errors.New("elasticsearch: index failed")
)
