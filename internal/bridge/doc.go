// Package bridge exposes a Lightify gateway on MQTT.
//
// All topics live under a configurable root (default "lightify"):
//
//	<root>/connected                 published, retained: 0 disconnected, 1 connecting, 2 ready
//	<root>/get/<id>                  subscribed: republish every datapoint of a device
//	<root>/set/<id>/<DATAPOINT>      subscribed: STATE, RGB, LUM or TEMP
//	<root>/status/<id>/<DATAPOINT>   published: JSON {val, ts, lightify{...}}
//	<root>/command/<any>             subscribed: JSON {command, param}
//	<root>/command/<command>         published: JSON result of the command
//
// A light's id is its 64-bit gateway address in decimal; a group's id is
// its gateway index.
//
// The package is split into pure pieces and the Controller that drives them:
//
//   - codec.go: payload decoding (on/off, RGB, clamped luminance and
//     temperature) and status encoding
//   - topics.go: Router, topic parsing and construction
//   - registry.go: Registry, the device snapshot, and the Device variant
//   - state.go: ConnectionState and the controller Phase
//   - encode.go: JSON form of lights, groups and scenes for the info command
//   - controller.go, commands.go: session lifecycle and message handling
//
// # Usage
//
//	ctrl, err := bridge.NewController(bridge.Options{
//	    Config:    cfg.Lightify,
//	    QoS:       byte(cfg.MQTT.QoS),
//	    Transport: mqttClient,
//	    Gateway:   gatewayClient,
//	    Logger:    log,
//	})
//	if err != nil {
//	    return err
//	}
//	return ctrl.Run(ctx)
package bridge
