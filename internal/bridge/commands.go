package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dzerrenner/mqtt-lightify/internal/history"
)

// commandHandler answers one command. The returned bytes are published on
// <root>/command/<name>.
type commandHandler func(ctx context.Context, param string) ([]byte, error)

// commandMessage is the payload on the command channel.
type commandMessage struct {
	Command string          `json:"command"`
	Param   json.RawMessage `json:"param"`
}

// buildCommands returns the command table. history is only present when a
// history store is configured.
func (c *Controller) buildCommands() map[string]commandHandler {
	commands := map[string]commandHandler{
		"info": c.commandInfo,
	}
	if c.history != nil {
		commands["history"] = c.commandHistory
	}
	return commands
}

// handleCommand dispatches {"command": ..., "param": ...}.
//
// Responses are published under the same channel, so they come back through
// the wildcard subscription. Any valid JSON without a command field is taken
// for such an echo and ignored.
func (c *Controller) handleCommand(ctx context.Context, _ TopicAddress, payload []byte) error {
	var msg commandMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Command == "" {
		if json.Valid(payload) {
			c.logDebug("ignoring command channel payload without command")
			return nil
		}
		return fmt.Errorf("%w: command payload: %w", ErrParse, err)
	}

	handler, ok := c.commands[msg.Command]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Command)
	}

	param, err := decodeParam(msg.Param)
	if err != nil {
		return err
	}

	c.logDebug("command", "command", msg.Command, "param", param)
	response, err := handler(ctx, param)
	if err != nil {
		return fmt.Errorf("command %s: %w", msg.Command, err)
	}

	if err := c.transport.Publish(c.router.CommandTopic(msg.Command), response, handlerQoS, false); err != nil {
		return fmt.Errorf("publishing %s response: %w", msg.Command, err)
	}
	return nil
}

// decodeParam accepts a JSON string or number; absent and null give "".
func decodeParam(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: param must be a string or a number, got %s", ErrParse, raw)
}

// commandInfo returns the gateway's cached lights, groups or scenes.
func (c *Controller) commandInfo(_ context.Context, param string) ([]byte, error) {
	switch param {
	case "lights":
		return EncodeLights(c.gw.Lights())
	case "groups":
		return EncodeGroups(c.gw.Groups())
	case "scenes":
		return EncodeScenes(c.gw.Scenes())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAccessor, param)
	}
}

// commandHistory returns the newest recorded set commands for a device id.
func (c *Controller) commandHistory(ctx context.Context, param string) ([]byte, error) {
	if _, err := parseDeviceID(param); err != nil {
		return nil, fmt.Errorf("%w: device id %q", ErrParse, param)
	}
	entries, err := c.history.Recent(ctx, param, history.DefaultLimit)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return marshal("history", entries)
}
