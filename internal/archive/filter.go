package archive

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document is one archived sensor reading.
type Document struct {
	Room      string    `json:"room"`
	Topic     string    `json:"topic"`
	Data      string    `json:"data"`
	Val       any       `json:"val,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Filter selects the messages worth archiving: the topic must be mapped to
// a room and the payload's source object must flag the value as changed.
//
// A payload from the default "hm" source looks like:
//
//	{"val": 21.5, "ts": 1760000000000, "hm": {"change": true, ...}}
type Filter struct {
	rooms     map[string]string
	sourceKey string
}

// NewFilter creates a filter for the given topic to room map.
func NewFilter(rooms map[string]string, sourceKey string) *Filter {
	copied := make(map[string]string, len(rooms))
	for topic, room := range rooms {
		copied[topic] = room
	}
	return &Filter{rooms: copied, sourceKey: sourceKey}
}

// Room returns the room a topic is archived under.
func (f *Filter) Room(topic string) (string, bool) {
	room, ok := f.rooms[topic]
	return room, ok
}

// Match decodes payload and builds the document for it.
//
// Parameters:
//   - topic: Source topic
//   - payload: Raw message payload
//   - now: Archive timestamp, stored in UTC
//
// Returns:
//   - Document: The document to store (valid only when ok is true)
//   - bool: false when the topic is unmapped or the value did not change
//   - error: ErrInvalidPayload if a mapped topic carries a non-JSON-object payload
func (f *Filter) Match(topic string, payload []byte, now time.Time) (Document, bool, error) {
	room, ok := f.rooms[topic]
	if !ok {
		return Document{}, false, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Document{}, false, fmt.Errorf("%w: %s: %w", ErrInvalidPayload, topic, err)
	}

	if !f.changed(fields[f.sourceKey]) {
		return Document{}, false, nil
	}

	doc := Document{
		Room:      room,
		Topic:     topic,
		Data:      string(payload),
		Timestamp: now.UTC(),
	}
	if raw, ok := fields["val"]; ok {
		var val any
		if err := json.Unmarshal(raw, &val); err == nil {
			doc.Val = val
		}
	}
	return doc, true, nil
}

// changed reports whether the source object's change flag is truthy.
// A missing source object or flag counts as unchanged.
func (f *Filter) changed(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var source struct {
		Change any `json:"change"`
	}
	if err := json.Unmarshal(raw, &source); err != nil {
		return false
	}
	switch v := source.Change.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return false
	}
}
