package history

import (
	"context"
	"time"
)

// Outcome values stored for each set command.
const (
	OutcomeApplied       = "applied"
	OutcomeClamped       = "clamped"
	OutcomeInvalidFormat = "invalid_format"
	OutcomeParseError    = "parse_error"
	OutcomeUnsupported   = "unsupported"
	OutcomeFailed        = "failed"
)

// Entry is one handled set command.
type Entry struct {
	// ID is the auto-incremented primary key.
	ID int64 `json:"id"`

	// DeviceID is the decimal light address or group index from the topic.
	DeviceID string `json:"device_id"`

	// Datapoint is the upper-cased datapoint (STATE, RGB, LUM, TEMP).
	Datapoint string `json:"datapoint"`

	// Payload is the raw message payload.
	Payload string `json:"payload"`

	// Value is the value sent to the gateway, empty if nothing was sent.
	Value string `json:"value"`

	// Outcome is one of the Outcome constants.
	Outcome string `json:"outcome"`

	// CreatedAt is when the command was handled (UTC, millisecond precision).
	CreatedAt time.Time `json:"created_at"`
}

// Repository stores and retrieves command history.
//
// Implementations must be thread-safe.
type Repository interface {
	// Record inserts an entry. A zero CreatedAt is replaced by the current time.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries for a device, newest first.
	Recent(ctx context.Context, deviceID string, limit int) ([]Entry, error)
}
