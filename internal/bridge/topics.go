package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/mqtt"
)

// Topic levels under the configured root.
const (
	levelGet       = "get"
	levelSet       = "set"
	levelCommand   = "command"
	levelStatus    = "status"
	levelConnected = "connected"
)

// Channel is the inbound channel a topic addresses.
type Channel int

// Inbound channels.
const (
	ChannelGet Channel = iota + 1
	ChannelSet
	ChannelCommand
)

// String returns the topic level of the channel.
func (c Channel) String() string {
	switch c {
	case ChannelGet:
		return levelGet
	case ChannelSet:
		return levelSet
	case ChannelCommand:
		return levelCommand
	default:
		return "unknown"
	}
}

// TopicAddress is the parsed form of an inbound topic. DeviceID and
// Datapoint are zero for the command channel.
type TopicAddress struct {
	Channel   Channel
	DeviceID  uint64
	Datapoint string
}

// Router maps topics under one root to TopicAddress values and builds the
// topics the bridge publishes.
type Router struct {
	root string
}

// NewRouter returns a router for the given top-level topic.
func NewRouter(root string) Router {
	return Router{root: strings.TrimSuffix(root, "/")}
}

// Root returns the top-level topic.
func (r Router) Root() string { return r.root }

// Filter returns the single wildcard subscription covering every channel.
func (r Router) Filter() string { return mqtt.Join(r.root, "#") }

// Parse classifies an inbound topic.
//
// Accepted forms:
//   - <root>/get/<id>[/<datapoint>]  (datapoint ignored)
//   - <root>/set/<id>/<datapoint>
//   - <root>/command[/<anything>]
//
// Returns:
//   - TopicAddress: Parsed address
//   - error: ErrUnroutable for anything else, including the bridge's own
//     status and connected topics
func (r Router) Parse(topic string) (TopicAddress, error) {
	if !mqtt.Match(r.Filter(), topic) {
		return TopicAddress{}, fmt.Errorf("%w: %q outside %s", ErrUnroutable, topic, r.Filter())
	}
	rest, ok := strings.CutPrefix(topic, r.root+"/")
	if !ok {
		return TopicAddress{}, fmt.Errorf("%w: %q", ErrUnroutable, topic)
	}
	levels := strings.Split(rest, "/")

	switch levels[0] {
	case levelCommand:
		return TopicAddress{Channel: ChannelCommand}, nil

	case levelGet:
		if len(levels) < 2 || len(levels) > 3 {
			return TopicAddress{}, fmt.Errorf("%w: %q", ErrUnroutable, topic)
		}
		id, err := parseDeviceID(levels[1])
		if err != nil {
			return TopicAddress{}, fmt.Errorf("%w: %q: %w", ErrUnroutable, topic, err)
		}
		return TopicAddress{Channel: ChannelGet, DeviceID: id}, nil

	case levelSet:
		if len(levels) != 3 || levels[2] == "" {
			return TopicAddress{}, fmt.Errorf("%w: %q", ErrUnroutable, topic)
		}
		id, err := parseDeviceID(levels[1])
		if err != nil {
			return TopicAddress{}, fmt.Errorf("%w: %q: %w", ErrUnroutable, topic, err)
		}
		return TopicAddress{Channel: ChannelSet, DeviceID: id, Datapoint: levels[2]}, nil

	default:
		return TopicAddress{}, fmt.Errorf("%w: %q", ErrUnroutable, topic)
	}
}

func parseDeviceID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// StatusTopic returns <root>/status/<id>/<datapoint>.
func (r Router) StatusTopic(id uint64, datapoint string) string {
	return mqtt.Join(r.root, levelStatus, strconv.FormatUint(id, 10), datapoint)
}

// ConnectedTopic returns <root>/connected.
func (r Router) ConnectedTopic() string {
	return mqtt.Join(r.root, levelConnected)
}

// GetTopic returns <root>/get/<id>.
func (r Router) GetTopic(id uint64) string {
	return mqtt.Join(r.root, levelGet, strconv.FormatUint(id, 10))
}

// CommandTopic returns <root>/command/<command>.
func (r Router) CommandTopic(command string) string {
	return mqtt.Join(r.root, levelCommand, command)
}
