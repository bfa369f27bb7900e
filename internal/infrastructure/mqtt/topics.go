package mqtt

import (
	"fmt"
	"strings"
)

// Topic level separator and wildcards.
const (
	levelSeparator  = "/"
	singleWildcard  = "+"
	multiWildcard   = "#"
	wildcardCharset = singleWildcard + multiWildcard
)

// ValidateTopic checks that topic is usable as a publish topic name.
//
// Topic names must be non-empty and must not contain wildcards.
func ValidateTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, wildcardCharset) {
		return fmt.Errorf("%w: wildcards not allowed in %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks that filter is a well-formed subscription filter.
//
// "+" must occupy a whole level and "#" must be the whole last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(filter, levelSeparator)
	for i, level := range levels {
		switch {
		case level == multiWildcard && i != len(levels)-1:
			return fmt.Errorf("%w: %q must be the last level in %q", ErrInvalidTopic, multiWildcard, filter)
		case len(level) > 1 && strings.ContainsAny(level, wildcardCharset):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// Match reports whether topic matches the subscription filter.
//
// Example:
//
//	mqtt.Match("lightify/#", "lightify/set/12/LUM") // true
//	mqtt.Match("hm/status/+/TEMPERATURE", "hm/status/kitchen/HUMIDITY") // false
func Match(filter, topic string) bool {
	fl := strings.Split(filter, levelSeparator)
	tl := strings.Split(topic, levelSeparator)

	for i, f := range fl {
		if f == multiWildcard {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != singleWildcard && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}

// Join builds a topic from its levels, skipping empty ones.
//
// Example: Join("lightify", "status", "12", "LUM") = "lightify/status/12/LUM"
func Join(levels ...string) string {
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		if l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, levelSeparator)
}
